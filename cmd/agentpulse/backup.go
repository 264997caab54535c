package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/scrypster/agentpulse/internal/backup"
	"github.com/scrypster/agentpulse/internal/config"
)

var (
	backupDir     string
	backupHourly  int
	backupDaily   int
	backupWeekly  int
	backupMonthly int
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot, list or restore the SQLite feed database",
	Long: `Takes a verified point-in-time copy of the SQLite database with VACUUM INTO
and prunes older copies by age tier. Only the sqlite storage engine is
supported; use pg_dump for postgres.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return createBackup(cmd.Context(), cfg, logger, cmd.OutOrStdout())
	},
}

var backupListCmd = &cobra.Command{
	Use:   "list",
	Short: "List snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listBackups(cfg, logger, cmd.OutOrStdout())
	},
}

var backupRestoreCmd = &cobra.Command{
	Use:   "restore <snapshot>",
	Short: "Replace the database with a snapshot (stop serve first)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return restoreBackup(cmd.Context(), cfg, logger, cmd.OutOrStdout(), args[0])
	},
}

func init() {
	backupCmd.PersistentFlags().StringVar(&backupDir, "dir", "", "Snapshot directory (default <data path>/backups)")
	backupCmd.Flags().IntVar(&backupHourly, "keep-hourly", 24, "Snapshots kept from the last day")
	backupCmd.Flags().IntVar(&backupDaily, "keep-daily", 7, "Snapshots kept from the last week")
	backupCmd.Flags().IntVar(&backupWeekly, "keep-weekly", 4, "Snapshots kept from the last month")
	backupCmd.Flags().IntVar(&backupMonthly, "keep-monthly", 12, "Snapshots kept from the last year")
	backupCmd.AddCommand(backupListCmd, backupRestoreCmd)
}

func backupManager(cfg *config.Config, logger *zap.Logger) (*backup.Manager, error) {
	if e := cfg.Storage.StorageEngine; e != "sqlite" && e != "" {
		return nil, fmt.Errorf("backup supports the sqlite storage engine only, got %q", e)
	}
	dir := backupDir
	if dir == "" {
		dir = filepath.Join(cfg.Storage.DataPath, "backups")
	}
	retention := backup.Retention{
		Hourly:  backupHourly,
		Daily:   backupDaily,
		Weekly:  backupWeekly,
		Monthly: backupMonthly,
	}
	return backup.NewManager(filepath.Join(cfg.Storage.DataPath, sqliteFile), dir, retention, logger)
}

func createBackup(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	m, err := backupManager(cfg, logger)
	if err != nil {
		return err
	}
	res, err := m.Create(ctx)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "snapshot %s (%d bytes) in %s, pruned %d\n",
		res.Path, res.Size, res.Duration.Round(time.Millisecond), res.Pruned)
	return err
}

func listBackups(cfg *config.Config, logger *zap.Logger, out io.Writer) error {
	m, err := backupManager(cfg, logger)
	if err != nil {
		return err
	}
	snaps, err := m.List()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		_, err := fmt.Fprintln(out, "no snapshots yet, create one with: agentpulse backup")
		return err
	}
	tbl := newTable("Snapshots", "TAKEN", "SIZE", "PATH")
	for _, s := range snaps {
		tbl.addRow(s.TakenAt.Local().Format(time.DateTime), fmt.Sprintf("%d", s.Size), s.Path)
	}
	_, err = fmt.Fprint(out, tbl.render())
	return err
}

func restoreBackup(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, snapshot string) error {
	m, err := backupManager(cfg, logger)
	if err != nil {
		return err
	}
	if err := m.Restore(ctx, snapshot); err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "restored %s\n", snapshot)
	return err
}
