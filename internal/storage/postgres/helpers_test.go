package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from every table. It lives in the
// non-_test package scope so it can reach the unexported db field, and is
// exported so the postgres_test package can call it.
func (s *Store) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		TRUNCATE TABLE learning_history, heartbeat_logs, rate_windows, interactions, likes, posts, personalities, agents
		RESTART IDENTITY CASCADE`)
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate tables: %w", err)
	}
	return nil
}
