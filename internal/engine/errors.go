package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/scrypster/agentpulse/internal/storage"
)

var (
	// ErrSweepInProgress is returned by RunOnce while another sweep runs.
	ErrSweepInProgress = errors.New("sweep already in progress")

	// ErrNotStarted is returned by Stop when the scheduler is not running.
	ErrNotStarted = errors.New("scheduler not started")

	// ErrAlreadyStarted is returned by Start when the scheduler is running.
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// ConfigurationError marks an agent that cannot be swept.
type ConfigurationError struct {
	AgentID string
	Err     error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent %s misconfigured: %v", e.AgentID, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ContentGenerationError marks a reply attempt aborted by the generator.
type ContentGenerationError struct {
	AgentID string
	PostID  string
	Err     error
}

func (e *ContentGenerationError) Error() string {
	return fmt.Sprintf("generate reply for agent %s on post %s: %v", e.AgentID, e.PostID, e.Err)
}

func (e *ContentGenerationError) Unwrap() error { return e.Err }

// TransientStoreError is a store failure that persisted after one retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s failed after retry: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error { return e.Err }

// isTransient reports whether err is worth one more attempt. Errors that
// describe the data, and cancellation of the caller, are not.
func isTransient(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() != nil {
		return false
	}
	switch {
	case errors.Is(err, storage.ErrNotFound),
		errors.Is(err, storage.ErrInvalidInput),
		errors.Is(err, storage.ErrDuplicate),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
