package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/engine"
	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c, err := config.LoadConfig()
	require.NoError(t, err)
	c.Storage.StorageEngine = "sqlite"
	c.Storage.DataPath = t.TempDir()
	c.Server.Host = "127.0.0.1"
	c.Server.Port = 0
	c.Security = config.SecurityConfig{SecurityMode: "development"}
	c.LLM.LLMProvider = "template"
	c.Notify = config.NotifyConfig{EventFiles: true}
	c.Generator.TemplatesFile = ""
	return c
}

// seed writes fixtures through a store that is closed before the command
// under test opens its own.
func seed(t *testing.T, c *config.Config, fn func(ctx context.Context, store storage.Store)) {
	t.Helper()
	store, err := openStore(c, zap.NewNop())
	require.NoError(t, err)
	defer store.Close()
	fn(context.Background(), store)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })

	require.NoError(t, rootCmd.Execute())
	assert.Equal(t, "agentpulse dev\n", out.String())
}

func TestOpenStore(t *testing.T) {
	c := testConfig(t)

	c.Storage.StorageEngine = "memory"
	store, err := openStore(c, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	c.Storage.StorageEngine = "sqlite"
	store, err = openStore(c, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, store.Close())
	assert.FileExists(t, filepath.Join(c.Storage.DataPath, sqliteFile))

	c.Storage.StorageEngine = "redis"
	_, err = openStore(c, zap.NewNop())
	assert.Error(t, err)
}

func TestGenerateAgentsAndStats(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, generateAgents(ctx, c, zap.NewNop(), &out, 3, 7))
	assert.Contains(t, out.String(), "Generated agents")

	out.Reset()
	require.NoError(t, showStats(ctx, c, zap.NewNop(), &out, true))
	var stats []types.AgentStats
	require.NoError(t, json.Unmarshal(out.Bytes(), &stats))
	require.Len(t, stats, 3)
	for _, s := range stats {
		assert.Equal(t, types.AgentActive, s.Status)
		assert.Zero(t, s.Replies)
		assert.GreaterOrEqual(t, s.RateLimit, c.Generator.MinRateLimit)
	}

	out.Reset()
	require.NoError(t, showStats(ctx, c, zap.NewNop(), &out, false))
	assert.Contains(t, out.String(), "3 agents, 0 replies, 0 likes")
}

func TestGenerateAgents_StopsAtMax(t *testing.T) {
	c := testConfig(t)
	c.Generator.MaxAgents = 2

	var out bytes.Buffer
	require.NoError(t, generateAgents(context.Background(), c, zap.NewNop(), &out, 5, 1))
	assert.Contains(t, out.String(), "stopped after 2 agents")

	assert.Error(t, generateAgents(context.Background(), c, zap.NewNop(), &out, 0, 1))
}

func TestShowStats_Empty(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, showStats(context.Background(), testConfig(t), zap.NewNop(), &out, false))
	assert.Contains(t, out.String(), "no agents yet")
}

func TestResetRateLimits(t *testing.T) {
	c := testConfig(t)
	hour := types.HourWindow(time.Now())
	seed(t, c, func(ctx context.Context, store storage.Store) {
		for _, id := range []string{"a1", "a2"} {
			require.NoError(t, store.CreateAgent(ctx, &types.Agent{ID: id, Name: "Agent_" + id, RateLimit: 5, Status: types.AgentActive}))
			require.NoError(t, store.UpsertRateWindow(ctx, id, hour, 3))
		}
	})

	var out bytes.Buffer
	require.NoError(t, resetRateLimits(context.Background(), c, zap.NewNop(), &out, "a1"))
	assert.Equal(t, "removed 1 rate windows for agent a1\n", out.String())

	out.Reset()
	require.NoError(t, resetRateLimits(context.Background(), c, zap.NewNop(), &out, ""))
	assert.Equal(t, "removed 1 rate windows for all agents\n", out.String())

	assert.Error(t, resetRateLimits(context.Background(), c, zap.NewNop(), &out, "missing"))
}

func TestSweepOnce_WritesEventFiles(t *testing.T) {
	c := testConfig(t)
	seed(t, c, func(ctx context.Context, store storage.Store) {
		require.NoError(t, store.CreateAgent(ctx, &types.Agent{
			ID: "a1", Name: "Agent_a1", TriggerWords: []string{"garden"}, RateLimit: 5, Status: types.AgentActive,
		}))
		require.NoError(t, store.CreatePost(ctx, &types.Post{UserID: "u1", Content: "my garden is blooming"}))
	})

	var out bytes.Buffer
	require.NoError(t, sweepOnce(context.Background(), c, zap.NewNop(), &out, true))

	var report engine.SweepReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &report))
	assert.Equal(t, 1, report.AgentsProcessed)
	assert.Equal(t, 1, report.PostsConsidered)

	entries, err := os.ReadDir(filepath.Join(c.Storage.DataPath, "events"))
	require.NoError(t, err)
	var events int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".event") {
			events++
		}
	}
	assert.GreaterOrEqual(t, events, 1, "sweep completion event is written")
}

func TestPrintReport_Text(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	r := engine.SweepReport{
		StartedAt:       start,
		FinishedAt:      start.Add(1500 * time.Millisecond),
		AgentsProcessed: 2,
		RepliesSent:     1,
		LikesGiven:      3,
		Errors:          []string{"agent a2: invalid agent"},
		TimedOut:        true,
	}
	var out bytes.Buffer
	require.NoError(t, printReport(&out, r, false))
	text := out.String()
	assert.Contains(t, text, "sweep finished in 1.5s: 2 agents (0 skipped), 0 posts, 1 replies, 3 likes")
	assert.Contains(t, text, "error: agent a2: invalid agent")
	assert.Contains(t, text, "sweep budget exhausted")
}

func TestServe_StartsAndStops(t *testing.T) {
	c := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addrCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- serve(ctx, c, zap.NewNop(), true, func(addr string) { addrCh <- addr })
	}()

	var addr string
	select {
	case addr = <-addrCh:
	case err := <-errCh:
		t.Fatalf("serve returned early: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start in time")
	}

	resp, err := http.Get("http://" + addr + "/api/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get("http://" + addr + "/api/heartbeat/status")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestTableRender(t *testing.T) {
	tbl := newTable("Title", "A", "LONGER")
	tbl.addRow("value", "x")
	out := tbl.render()
	assert.Contains(t, out, "Title")
	assert.Contains(t, out, "LONGER")
	assert.Contains(t, out, "value")
	assert.Len(t, strings.Split(strings.TrimRight(out, "\n"), "\n"), 4)
}

func TestBackupCreateListRestore(t *testing.T) {
	c := testConfig(t)
	ctx := context.Background()
	seed(t, c, func(ctx context.Context, store storage.Store) {
		require.NoError(t, store.CreateAgent(ctx, &types.Agent{ID: "a1", Name: "Agent_a1", RateLimit: 5, Status: types.AgentActive}))
	})

	var out bytes.Buffer
	require.NoError(t, createBackup(ctx, c, zap.NewNop(), &out))
	assert.Contains(t, out.String(), "pruned 0")

	snaps, err := filepath.Glob(filepath.Join(c.Storage.DataPath, "backups", "*.db"))
	require.NoError(t, err)
	require.Len(t, snaps, 1)

	out.Reset()
	require.NoError(t, listBackups(c, zap.NewNop(), &out))
	assert.Contains(t, out.String(), snaps[0])

	seed(t, c, func(ctx context.Context, store storage.Store) {
		require.NoError(t, store.CreateAgent(ctx, &types.Agent{ID: "a2", Name: "Agent_a2", RateLimit: 5, Status: types.AgentActive}))
	})
	out.Reset()
	require.NoError(t, restoreBackup(ctx, c, zap.NewNop(), &out, snaps[0]))
	seed(t, c, func(ctx context.Context, store storage.Store) {
		_, err := store.GetAgent(ctx, "a1")
		assert.NoError(t, err)
		_, err = store.GetAgent(ctx, "a2")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestBackup_RejectsOtherEngines(t *testing.T) {
	c := testConfig(t)
	c.Storage.StorageEngine = "memory"
	assert.Error(t, createBackup(context.Background(), c, zap.NewNop(), &bytes.Buffer{}))
}
