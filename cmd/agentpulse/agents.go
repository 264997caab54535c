package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/config"
	"github.com/scrypster/agentpulse/internal/generator"
)

var (
	generateCount int
	generateSeed  uint64
)

var generateAgentCmd = &cobra.Command{
	Use:   "generate-agent",
	Short: "Create agents from random personality templates",
	Long: `Creates new active agents. Each picks a random template from the
personality catalog, varies its traits by up to one point and draws an hourly
reply limit. Generation stops early once the configured maximum is reached.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generateAgents(cmd.Context(), cfg, logger, cmd.OutOrStdout(), generateCount, generateSeed)
	},
}

func init() {
	generateAgentCmd.Flags().IntVarP(&generateCount, "count", "n", 1, "Number of agents to create")
	generateAgentCmd.Flags().Uint64Var(&generateSeed, "seed", 0, "Random seed (0 seeds from the clock)")
}

func generateAgents(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, count int, seed uint64) error {
	if count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", count)
	}
	store, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	catalog, err := generator.LoadCatalog(cfg.Generator.TemplatesFile)
	if err != nil {
		return err
	}
	gen, err := generator.New(store, catalog, cfg.Generator, seed, logger)
	if err != nil {
		return err
	}

	tbl := newTable("Generated agents", "ID", "NAME", "TEMPLATE", "RATE LIMIT")
	created := 0
	for i := 0; i < count; i++ {
		res, err := gen.Generate(ctx)
		if errors.Is(err, generator.ErrMaxAgents) {
			fmt.Fprintf(out, "stopped after %d agents: %v\n", created, err)
			break
		}
		if err != nil {
			return err
		}
		created++
		tbl.addRow(res.Agent.ID, res.Agent.Name, res.Template, fmt.Sprintf("%d/h", res.Agent.RateLimit))
	}
	if created > 0 {
		fmt.Fprint(out, tbl.render())
	}
	return nil
}
