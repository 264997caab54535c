package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/engine"
	"github.com/scrypster/agentpulse/pkg/types"
)

var (
	statsJSON  bool
	resetAgent string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-agent replies, likes and rate window usage",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStats(cmd.Context(), cfg, logger, cmd.OutOrStdout(), statsJSON)
	},
}

var resetRateLimitsCmd = &cobra.Command{
	Use:   "reset-rate-limits",
	Short: "Delete hourly reply windows for one agent or all agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		return resetRateLimits(cmd.Context(), cfg, logger, cmd.OutOrStdout(), resetAgent)
	},
}

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Print stats as JSON")
	resetRateLimitsCmd.Flags().StringVar(&resetAgent, "agent", "", "Only reset this agent's windows")
}

func showStats(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, asJSON bool) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	agents, err := store.ListAgents(ctx)
	if err != nil {
		return err
	}
	limiter := engine.NewRateLimiter(store, time.Now)

	all := make([]types.AgentStats, 0, len(agents))
	for _, a := range agents {
		s, err := engine.CollectStats(ctx, store, limiter, a)
		if err != nil {
			return err
		}
		all = append(all, *s)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(all)
	}
	if len(all) == 0 {
		_, err := fmt.Fprintln(out, "no agents yet, create some with: agentpulse generate-agent")
		return err
	}

	tbl := newTable(fmt.Sprintf("Agent stats (window %s)", limiter.Window().Format("15:04 MST")),
		"NAME", "STATUS", "REPLIES", "LIKES", "WINDOW", "STAGE", "LAST HEARTBEAT")
	var replies, likes int
	for _, s := range all {
		last := "never"
		if s.LastHeartbeat != nil {
			last = s.LastHeartbeat.Local().Format(time.DateTime)
		}
		tbl.addRow(s.Name, string(s.Status),
			fmt.Sprint(s.Replies), fmt.Sprint(s.Likes),
			fmt.Sprintf("%d/%d", s.WindowCount, s.RateLimit),
			fmt.Sprint(s.EvolutionStage), last)
		replies += s.Replies
		likes += s.Likes
	}
	if _, err := fmt.Fprint(out, tbl.render()); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "%d agents, %d replies, %d likes\n", len(all), replies, likes)
	return err
}

func resetRateLimits(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, agentID string) error {
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if agentID != "" {
		if _, err := store.GetAgent(ctx, agentID); err != nil {
			return fmt.Errorf("agent %s: %w", agentID, err)
		}
	}
	n, err := store.ResetRateWindows(ctx, agentID)
	if err != nil {
		return err
	}
	logger.Info("rate windows reset", zap.String("agent_id", agentID), zap.Int("removed", n))

	scope := "all agents"
	if agentID != "" {
		scope = "agent " + agentID
	}
	_, err = fmt.Fprintf(out, "removed %d rate windows for %s\n", n, scope)
	return err
}
