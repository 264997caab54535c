package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

// RecordHeartbeat appends a heartbeat log row.
func (s *Store) RecordHeartbeat(ctx context.Context, log *types.HeartbeatLog) error {
	if log == nil || log.AgentID == "" {
		return fmt.Errorf("%w: heartbeat log needs an agent", storage.ErrInvalidInput)
	}
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.ExecutedAt.IsZero() {
		log.ExecutedAt = time.Now().UTC()
	}
	if log.Status == "" {
		log.Status = types.HeartbeatSuccess
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO heartbeat_logs (id, agent_id, responses_generated, likes_given, status, error, executed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.AgentID, log.ResponsesGenerated, log.LikesGiven, string(log.Status), log.Error,
		formatTime(log.ExecutedAt))
	if err != nil {
		return fmt.Errorf("sqlite: failed to insert heartbeat log: %w", err)
	}
	return nil
}

// ListHeartbeats returns recent heartbeat logs, optionally for one agent.
func (s *Store) ListHeartbeats(ctx context.Context, agentID string, limit int) ([]types.HeartbeatLog, error) {
	query := `SELECT id, agent_id, responses_generated, likes_given, status, error, executed_at FROM heartbeat_logs`
	args := []any{}
	if agentID != "" {
		query += " WHERE agent_id = ?"
		args = append(args, agentID)
	}
	query += " ORDER BY executed_at DESC, id LIMIT ?"
	args = append(args, storage.NormalizeLimit(limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: failed to list heartbeat logs: %w", err)
	}
	defer rows.Close()

	var out []types.HeartbeatLog
	for rows.Next() {
		var (
			l          types.HeartbeatLog
			status     string
			executedAt string
		)
		if err := rows.Scan(&l.ID, &l.AgentID, &l.ResponsesGenerated, &l.LikesGiven, &status, &l.Error, &executedAt); err != nil {
			return nil, fmt.Errorf("sqlite: failed to scan heartbeat log: %w", err)
		}
		l.Status = types.HeartbeatStatus(status)
		if l.ExecutedAt, err = parseTime(executedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: failed to iterate heartbeat logs: %w", err)
	}
	return out, nil
}
