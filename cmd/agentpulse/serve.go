package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/generator"
	"github.com/scrypster/agentpulse/internal/notify"
	"github.com/scrypster/agentpulse/internal/server"
	"github.com/scrypster/agentpulse/pkg/types"
)

const stopTimeout = 30 * time.Second

var serveNoHeartbeat bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic heartbeat",
	Long: `Starts the HTTP API and, unless --no-heartbeat is given, the periodic
sweep. Events written by separate "agentpulse sweep" processes are picked up
from the data directory and streamed to websocket clients.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg, logger, !serveNoHeartbeat, func(addr string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentpulse API listening on http://%s\n", addr)
		})
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoHeartbeat, "no-heartbeat", false, "Serve the API without the periodic sweep")
}

// serve blocks until ctx is done. ready is called with the bound address.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, heartbeat bool, ready func(addr string)) error {
	rt, err := newRuntime(cfg, logger, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	catalog, err := generator.LoadCatalog(cfg.Generator.TemplatesFile)
	if err != nil {
		return err
	}
	gen, err := generator.New(rt.store, catalog, cfg.Generator, 0, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rt.store, rt.scheduler,
		server.WithLogger(logger),
		server.WithGenerator(gen),
		server.WithVersion(version))
	if err != nil {
		return err
	}
	rt.fanout.AddPublisher(srv.Hub())

	var watcher *notify.EventWatcher
	if cfg.Notify.EventFiles {
		hub := srv.Hub()
		filter := notify.EventFilter{
			Types:  cfg.Notify.WatchEventTypes,
			MaxAge: cfg.Notify.WatchMaxAge,
		}
		for _, k := range cfg.Notify.WatchKinds {
			filter.Kinds = append(filter.Kinds, types.ActionKind(k))
		}
		watcher = notify.NewEventWatcher(cfg.Storage.DataPath, filter, func(evt notify.Event) {
			_ = hub.Publish(ctx, evt)
		}, logger)
		if err := watcher.Start(); err != nil {
			logger.Warn("event watcher disabled", zap.Error(err))
			watcher = nil
		}
	}
	defer watcher.Stop()

	addr, err := srv.Start(ctx)
	if err != nil {
		return err
	}
	if ready != nil {
		ready(addr)
	}

	if heartbeat {
		if err := rt.scheduler.Start(ctx); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("shutting down")

	if heartbeat {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := rt.scheduler.Stop(stopCtx); err != nil {
			logger.Warn("heartbeat did not stop cleanly", zap.Error(err))
		}
	}
	srv.Wait()
	rt.scheduler.WaitNotifications()
	return nil
}
