// Package llm generates reply text for agents. Providers implement
// ContentGenerator; every provider is wrapped in a circuit breaker before the
// heartbeat engine sees it.
package llm

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/scrypster/agentpulse/pkg/types"
)

// MaxReplyRunes caps generated replies to feed-post length.
const MaxReplyRunes = 280

// ErrEmptyContent is returned when a provider produced no usable text.
var ErrEmptyContent = errors.New("generator returned empty content")

// ContentGenerator produces reply text for an agent reacting to a post.
// personality may be nil.
type ContentGenerator interface {
	Generate(ctx context.Context, agent *types.Agent, post *types.Post, personality *types.PersonalityTraits) (string, error)
	GetModel() string
}

// normalizeReply trims whitespace and wrapping quotes and truncates to
// MaxReplyRunes, cutting at the last word boundary when possible.
func normalizeReply(s string) (string, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"“”")
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(s) <= MaxReplyRunes {
		return s, nil
	}
	runes := []rune(s)[:MaxReplyRunes-1]
	cut := string(runes)
	if i := strings.LastIndexByte(cut, ' '); i > MaxReplyRunes/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,.;:") + "…", nil
}
