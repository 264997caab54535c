package types

import (
	"fmt"
	"strings"
	"time"
)

// LearningSource names what produced a learning entry.
type LearningSource string

const (
	LearnedFromReply            LearningSource = "reply"
	LearnedFromLike             LearningSource = "like"
	LearnedFromPositiveFeedback LearningSource = "positive_feedback"
)

// InsightExcerptRunes caps how much of the source post an insight quotes.
const InsightExcerptRunes = 100

// LearningEntry is one row of an agent's learning history.
type LearningEntry struct {
	ID      string         `json:"id"`
	AgentID string         `json:"agent_id"`
	Source  LearningSource `json:"source"`

	// PostID is the post the agent learned from; empty when unknown.
	PostID string `json:"post_id,omitempty"`

	Insight   string    `json:"insight"`
	CreatedAt time.Time `json:"created_at"`
}

// IsValidLearningSource reports whether s is a known source.
func IsValidLearningSource(s LearningSource) bool {
	switch s {
	case LearnedFromReply, LearnedFromLike, LearnedFromPositiveFeedback:
		return true
	}
	return false
}

// LearningSourceFor maps a committed action to its learning source.
func LearningSourceFor(kind ActionKind) (LearningSource, bool) {
	switch kind {
	case ActionReply:
		return LearnedFromReply, true
	case ActionLike:
		return LearnedFromLike, true
	}
	return "", false
}

// Insight describes what the agent took away from content. The content is
// quoted up to InsightExcerptRunes runes on a single line.
func Insight(source LearningSource, content string) string {
	runes := []rune(strings.Join(strings.Fields(content), " "))
	excerpt := string(runes)
	if len(runes) > InsightExcerptRunes {
		excerpt = string(runes[:InsightExcerptRunes]) + "..."
	}
	switch source {
	case LearnedFromPositiveFeedback:
		return fmt.Sprintf("Successful engagement with content: %q", excerpt)
	case LearnedFromLike:
		return fmt.Sprintf("Liked content: %q", excerpt)
	default:
		return fmt.Sprintf("Replied to content: %q", excerpt)
	}
}
