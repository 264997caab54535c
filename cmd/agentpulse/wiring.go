package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/engine"
	"github.com/scrypster/agentpulse/internal/llm"
	"github.com/scrypster/agentpulse/internal/notify"
	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/internal/storage/memory"
	"github.com/scrypster/agentpulse/internal/storage/postgres"
	"github.com/scrypster/agentpulse/internal/storage/sqlite"
	"github.com/scrypster/agentpulse/pkg/types"
)

const (
	sqliteFile     = "agentpulse.db"
	publishTimeout = 5 * time.Second
)

// openStore opens the backend named by cfg.Storage.StorageEngine.
func openStore(cfg *config.Config, logger *zap.Logger) (storage.Store, error) {
	switch cfg.Storage.StorageEngine {
	case "memory":
		logger.Warn("using in-memory storage, data is lost on exit")
		return memory.NewStore(), nil
	case "postgres":
		return postgres.NewStore(cfg.Storage.PostgresDSN, logger)
	case "sqlite", "":
		if err := os.MkdirAll(cfg.Storage.DataPath, 0o700); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
		return sqlite.NewStore(filepath.Join(cfg.Storage.DataPath, sqliteFile), logger)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}

// runtime holds everything a sweeping command needs.
type runtime struct {
	store     storage.Store
	scheduler *engine.Scheduler
	fanout    *notify.Fanout
	nats      *notify.NATSPublisher
}

// runtimeOptions selects the event sinks of a command. Publishers that
// depend on the scheduler, like the websocket hub, are added to the fanout
// afterwards.
type runtimeOptions struct {
	// eventFiles writes events for another process to pick up. serve leaves
	// it off because it watches the same directory.
	eventFiles bool
}

func newRuntime(cfg *config.Config, logger *zap.Logger, opts runtimeOptions) (rt *runtime, err error) {
	store, err := openStore(cfg, logger)
	if err != nil {
		return nil, err
	}
	rt = &runtime{store: store, fanout: notify.NewFanout(logger)}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	if opts.eventFiles && cfg.Notify.EventFiles {
		rt.fanout.AddPublisher(notify.NewEventWriter(cfg.Storage.DataPath))
	}
	digests := false
	if cfg.Notify.NATSURL != "" {
		rt.nats, err = notify.DialNATS(cfg.Notify.NATSURL, cfg.Notify.NATSSubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		rt.fanout.AddPublisher(rt.nats)
		rt.fanout.AddNotifier(rt.nats)
		digests = true
	}
	if cfg.Notify.WhatsAppToken != "" && len(cfg.Notify.WhatsAppRecipients) > 0 {
		wa, err := notify.NewWhatsAppNotifier(notify.WhatsAppConfig{
			APIURL:     cfg.Notify.WhatsAppAPIURL,
			Token:      cfg.Notify.WhatsAppToken,
			PhoneID:    cfg.Notify.WhatsAppPhoneID,
			Recipients: cfg.Notify.WhatsAppRecipients,
		}, logger)
		if err != nil {
			return nil, err
		}
		rt.fanout.AddNotifier(wa)
		digests = true
	}

	gen, err := llm.NewContentGenerator(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}

	schedOpts := []engine.SchedulerOption{engine.WithLogger(logger)}
	if digests {
		schedOpts = append(schedOpts, engine.WithNotifier(rt.fanout))
	}
	rt.scheduler, err = engine.NewScheduler(store, gen, engine.ConfigFromSettings(cfg.Heartbeat), schedOpts...)
	if err != nil {
		return nil, err
	}

	rt.scheduler.SetOnInteraction(func(in types.Interaction) {
		rt.publish(notify.InteractionEvent(in))
	})
	rt.scheduler.SetOnSweepComplete(func(r engine.SweepReport) {
		rt.publish(notify.SweepEvent(r.FinishedAt, r.RepliesSent, r.LikesGiven))
	})
	return rt, nil
}

func (rt *runtime) publish(evt notify.Event) {
	if rt.fanout.Empty() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	_ = rt.fanout.Publish(ctx, evt)
}

// Close releases the NATS connection and the store.
func (rt *runtime) Close() {
	if rt.nats != nil {
		rt.nats.Close()
	}
	if rt.store != nil {
		_ = rt.store.Close()
	}
}
