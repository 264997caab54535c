package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/engine"
)

var sweepJSON bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one heartbeat sweep and exit",
	Long: `Runs a single sweep over all active agents, suitable for cron. Events are
written to the data directory so a running "agentpulse serve" can stream
them, and digests go to the configured NATS and WhatsApp sinks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return sweepOnce(ctx, cfg, logger, cmd.OutOrStdout(), sweepJSON)
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepJSON, "json", false, "Print the sweep report as JSON")
}

func sweepOnce(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, asJSON bool) error {
	rt, err := newRuntime(cfg, logger, runtimeOptions{eventFiles: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.scheduler.RunOnce(ctx)
	rt.scheduler.WaitNotifications()
	if printErr := printReport(out, report, asJSON); printErr != nil {
		return printErr
	}
	return err
}

func printReport(out io.Writer, r engine.SweepReport, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	_, err := fmt.Fprintf(out,
		"sweep finished in %s: %d agents (%d skipped), %d posts, %d replies, %d likes, %d observed, %d rate limited, %d generation failures\n",
		r.Duration().Round(time.Millisecond), r.AgentsProcessed, r.AgentsSkipped, r.PostsConsidered,
		r.RepliesSent, r.LikesGiven, r.Observed, r.RateLimited, r.GenerationFailures)
	if err != nil {
		return err
	}
	for _, e := range r.Errors {
		if _, err := fmt.Fprintf(out, "  error: %s\n", e); err != nil {
			return err
		}
	}
	if r.TimedOut {
		_, err = fmt.Fprintln(out, "  sweep budget exhausted before all agents were visited")
	}
	return err
}
