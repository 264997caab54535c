package notify

import (
	"encoding/json"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/pkg/types"
)

const eventFileExt = ".event"

// EventFilter selects which feed events a watcher forwards. The zero value
// forwards everything.
type EventFilter struct {
	// Types limits events by Type. Empty means all types.
	Types []string

	// Kinds limits interaction events by action kind, e.g. replies only.
	// Events of other types are not affected.
	Kinds []types.ActionKind

	// MaxAge drops events older than this, such as files left behind by
	// a sweep that ran while no API process was up. Zero keeps all.
	MaxAge time.Duration
}

// Allows reports whether evt passes the filter at now.
func (f EventFilter) Allows(evt Event, now time.Time) bool {
	if len(f.Types) > 0 && !slices.Contains(f.Types, evt.Type) {
		return false
	}
	if evt.Type == EventInteraction && len(f.Kinds) > 0 && !slices.Contains(f.Kinds, evt.Kind) {
		return false
	}
	if f.MaxAge > 0 && evt.Time > 0 && now.Sub(time.Unix(0, evt.Time)) > f.MaxAge {
		return false
	}
	return true
}

// EventWatcher forwards feed events written by other processes to a
// callback. Each event file is consumed once across processes; files the
// filter rejects are consumed too, so they do not pile up.
type EventWatcher struct {
	dir      string
	filter   EventFilter
	callback func(Event)
	logger   *zap.Logger
	now      func() time.Time

	watcher *fsnotify.Watcher
	done    chan struct{}

	delivered atomic.Int64
	filtered  atomic.Int64
}

// NewEventWatcher creates a watcher for {dataPath}/events/ that passes
// events allowed by filter to callback.
func NewEventWatcher(dataPath string, filter EventFilter, callback func(Event), logger *zap.Logger) *EventWatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventWatcher{
		dir:      filepath.Join(dataPath, "events"),
		filter:   filter,
		callback: callback,
		logger:   logger,
		now:      time.Now,
		done:     make(chan struct{}),
	}
}

// Start forwards the backlog already on disk, oldest first, then watches
// for new files. Call Stop to clean up.
func (ew *EventWatcher) Start() error {
	if err := os.MkdirAll(ew.dir, 0o700); err != nil {
		return err
	}

	ew.drainBacklog()

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(ew.dir); err != nil {
		_ = w.Close()
		return err
	}
	ew.watcher = w

	go ew.loop()
	ew.logger.Info("notify: watching for feed events",
		zap.String("dir", ew.dir),
		zap.Strings("types", ew.filter.Types),
		zap.Duration("max_age", ew.filter.MaxAge))
	return nil
}

// Stop shuts down the watcher. Stop on a nil watcher or one that never
// started returns immediately.
func (ew *EventWatcher) Stop() {
	if ew == nil || ew.watcher == nil {
		return
	}
	_ = ew.watcher.Close()
	<-ew.done
	ew.logger.Info("notify: event watcher stopped",
		zap.Int64("delivered", ew.delivered.Load()),
		zap.Int64("filtered", ew.filtered.Load()))
}

// Delivered returns the number of events passed to the callback.
func (ew *EventWatcher) Delivered() int64 { return ew.delivered.Load() }

// Filtered returns the number of events the filter dropped.
func (ew *EventWatcher) Filtered() int64 { return ew.filtered.Load() }

func (ew *EventWatcher) loop() {
	defer close(ew.done)
	for {
		select {
		case evt, ok := <-ew.watcher.Events:
			if !ok {
				return
			}
			// Writers rename finished files into place.
			if evt.Op&(fsnotify.Create|fsnotify.Rename) != 0 && strings.HasSuffix(evt.Name, eventFileExt) {
				ew.consume(evt.Name)
			}
		case err, ok := <-ew.watcher.Errors:
			if !ok {
				return
			}
			ew.logger.Warn("notify: watcher error", zap.Error(err))
		}
	}
}

// drainBacklog relies on file names starting with the event time, so
// directory order is feed order.
func (ew *EventWatcher) drainBacklog() {
	entries, err := os.ReadDir(ew.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), eventFileExt) {
			ew.consume(filepath.Join(ew.dir, entry.Name()))
		}
	}
}

func (ew *EventWatcher) consume(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		return // taken by another process
	}
	if err := os.Remove(path); err != nil {
		return
	}

	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil || evt.Type == "" {
		ew.logger.Warn("notify: invalid event file", zap.String("file", filepath.Base(path)), zap.Error(err))
		return
	}
	if !ew.filter.Allows(evt, ew.now()) {
		ew.filtered.Add(1)
		ew.logger.Debug("notify: event filtered",
			zap.String("type", evt.Type),
			zap.String("kind", string(evt.Kind)),
			zap.String("agent_id", evt.AgentID))
		return
	}
	ew.delivered.Add(1)
	if ew.callback != nil {
		ew.callback(evt)
	}
}
