package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/scrypster/agentpulse/internal/storage"
	"github.com/scrypster/agentpulse/pkg/types"
)

const postColumns = `id, user_id, agent_id, content, reply_to, likes_count, replies_count, created_at`

func scanPost(row rowScanner) (*types.Post, error) {
	var (
		p                        types.Post
		userID, agentID, replyTo sql.NullString
	)
	if err := row.Scan(&p.ID, &userID, &agentID, &p.Content, &replyTo,
		&p.LikesCount, &p.RepliesCount, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.UserID = userID.String
	p.AgentID = agentID.String
	p.ReplyTo = replyTo.String
	p.CreatedAt = p.CreatedAt.UTC()
	return &p, nil
}

// ListRecentPosts returns posts created at or after since, newest first.
func (s *Store) ListRecentPosts(ctx context.Context, since time.Time, limit int) ([]types.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postColumns+" FROM posts WHERE created_at >= $1 ORDER BY created_at DESC, id LIMIT $2",
		since.UTC(), storage.NormalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to list posts: %w", err)
	}
	defer rows.Close()

	var posts []types.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan post: %w", err)
		}
		posts = append(posts, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: failed to iterate posts: %w", err)
	}
	return posts, nil
}

// GetPost retrieves a post by ID.
func (s *Store) GetPost(ctx context.Context, id string) (*types.Post, error) {
	p, err := scanPost(s.db.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = $1", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get post %s: %w", id, err)
	}
	return p, nil
}

// CreatePost inserts a post. Exactly one of UserID and AgentID must be set.
func (s *Store) CreatePost(ctx context.Context, post *types.Post) error {
	return insertPost(ctx, s.db, post)
}

// insertPost validates post, fills its ID and timestamp and inserts it.
func insertPost(ctx context.Context, db execer, post *types.Post) error {
	if post == nil || post.Content == "" {
		return fmt.Errorf("%w: post content is required", storage.ErrInvalidInput)
	}
	if (post.UserID == "") == (post.AgentID == "") {
		return fmt.Errorf("%w: post needs exactly one author", storage.ErrInvalidInput)
	}
	if post.ID == "" {
		post.ID = uuid.NewString()
	}
	if post.CreatedAt.IsZero() {
		post.CreatedAt = time.Now().UTC()
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO posts (id, user_id, agent_id, content, reply_to, likes_count, replies_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		post.ID, nullableString(post.UserID), nullableString(post.AgentID), post.Content,
		nullableString(post.ReplyTo), post.LikesCount, post.RepliesCount, post.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: post %s", storage.ErrDuplicate, post.ID)
	}
	if err != nil {
		return fmt.Errorf("postgres: failed to insert post: %w", err)
	}
	return nil
}

// IncrementPostCounters adds delta to the post's counters in one statement.
func (s *Store) IncrementPostCounters(ctx context.Context, postID string, delta types.CounterDelta) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE posts
		SET likes_count = GREATEST(likes_count + $1, 0),
		    replies_count = GREATEST(replies_count + $2, 0)
		WHERE id = $3`,
		delta.Likes, delta.Replies, postID)
	if err != nil {
		return fmt.Errorf("postgres: failed to increment post counters: %w", err)
	}
	return rowsAffected(result, "post counters")
}

// CreateLike inserts the like edge unless it already exists.
func (s *Store) CreateLike(ctx context.Context, postID, agentID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO likes (id, post_id, agent_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (post_id, agent_id) DO NOTHING`,
		uuid.NewString(), postID, agentID)
	if err != nil {
		return false, fmt.Errorf("postgres: failed to insert like: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("postgres: failed to get rows affected for like: %w", err)
	}
	return n == 1, nil
}
