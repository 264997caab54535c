package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EventWriter writes event files to a directory shared by the sweep daemon
// and the API process.
type EventWriter struct {
	dir string
}

// NewEventWriter creates a writer that emits events to {dataPath}/events/.
func NewEventWriter(dataPath string) *EventWriter {
	return &EventWriter{dir: filepath.Join(dataPath, "events")}
}

// Dir returns the events directory.
func (w *EventWriter) Dir() string {
	return w.dir
}

// Publish writes evt as one file. Safe to call concurrently.
func (w *EventWriter) Publish(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.dir, 0o700); err != nil {
		return fmt.Errorf("notify: mkdir %s: %w", w.dir, err)
	}
	if evt.Time == 0 {
		evt.Time = time.Now().UnixNano()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("notify: marshal event: %w", err)
	}

	// Write under a temp name so watchers never read a partial file.
	name := fmt.Sprintf("%d-%s-%s", evt.Time, evt.Type, sanitizeID(evt.AgentID+"_"+evt.PostID))
	tmp := filepath.Join(w.dir, name+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("notify: write event: %w", err)
	}
	return os.Rename(tmp, filepath.Join(w.dir, name+".event"))
}

// sanitizeID replaces characters unsafe for filenames.
func sanitizeID(id string) string {
	out := make([]byte, len(id))
	for i := 0; i < len(id); i++ {
		switch id[i] {
		case '/', ':', '\\', ' ':
			out[i] = '_'
		default:
			out[i] = id[i]
		}
	}
	return string(out)
}
