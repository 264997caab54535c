package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/scrypster/agentpulse/pkg/types"
)

// GetRateWindow returns the reply count for (agent, hour).
func (s *Store) GetRateWindow(ctx context.Context, agentID string, hour time.Time) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT count FROM rate_windows WHERE agent_id = $1 AND hour = $2",
		agentID, types.HourWindow(hour)).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rate window: %w", err)
	}
	return count, nil
}

// UpsertRateWindow sets the reply count for (agent, hour).
func (s *Store) UpsertRateWindow(ctx context.Context, agentID string, hour time.Time, count int) error {
	if count < 0 {
		count = 0
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_windows (agent_id, hour, count) VALUES ($1, $2, $3)
		ON CONFLICT (agent_id, hour) DO UPDATE SET count = EXCLUDED.count`,
		agentID, types.HourWindow(hour), count)
	if err != nil {
		return fmt.Errorf("postgres: failed to upsert rate window: %w", err)
	}
	return nil
}

// AdmitReply increments the window only while it is below limit, as one
// conditional upsert. Concurrent callers serialise on the row lock.
func (s *Store) AdmitReply(ctx context.Context, agentID string, hour time.Time, limit int) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO rate_windows (agent_id, hour, count) VALUES ($1, $2, 1)
		ON CONFLICT (agent_id, hour) DO UPDATE SET count = rate_windows.count + 1
		WHERE rate_windows.count < $3`,
		agentID, types.HourWindow(hour), limit)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to admit reply: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to get rows affected for admit: %w", err)
	}
	return n == 1, nil
}

// ReleaseReply decrements the window, never below zero.
func (s *Store) ReleaseReply(ctx context.Context, agentID string, hour time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE rate_windows SET count = count - 1 WHERE agent_id = $1 AND hour = $2 AND count > 0",
		agentID, types.HourWindow(hour))
	if err != nil {
		return fmt.Errorf("postgres: failed to release reply: %w", err)
	}
	return nil
}

// ResetRateWindows deletes rate windows for one agent or, with an empty id, all agents.
func (s *Store) ResetRateWindows(ctx context.Context, agentID string) (int, error) {
	var (
		result sql.Result
		err    error
	)
	if agentID == "" {
		result, err = s.db.ExecContext(ctx, "DELETE FROM rate_windows")
	} else {
		result, err = s.db.ExecContext(ctx, "DELETE FROM rate_windows WHERE agent_id = $1", agentID)
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to reset rate windows: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("postgres: failed to get rows affected for reset: %w", err)
	}
	return int(n), nil
}
