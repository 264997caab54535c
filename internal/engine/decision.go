package engine

import (
	"fmt"

	"github.com/scrypster/agentpulse/pkg/types"
)

// Default decision thresholds.
const (
	DefaultReplyThreshold = 0.4
	DefaultLikeThreshold  = 0.7
)

// DecisionPolicy turns an eligibility verdict and one uniform draw into an
// action: below ReplyThreshold replies, below LikeThreshold likes, anything
// else observes.
type DecisionPolicy struct {
	ReplyThreshold float64
	LikeThreshold  float64
}

// NewDecisionPolicy requires 0 <= reply <= like <= 1.
func NewDecisionPolicy(reply, like float64) (DecisionPolicy, error) {
	if reply < 0 || like > 1 || reply > like {
		return DecisionPolicy{}, fmt.Errorf("decision thresholds must satisfy 0 <= reply (%v) <= like (%v) <= 1", reply, like)
	}
	return DecisionPolicy{ReplyThreshold: reply, LikeThreshold: like}, nil
}

// Decide maps (eligible, r) to an action. Ineligible pairs always observe.
func (d DecisionPolicy) Decide(eligible bool, r float64) types.ActionKind {
	switch {
	case !eligible:
		return types.ActionObserve
	case r < d.ReplyThreshold:
		return types.ActionReply
	case r < d.LikeThreshold:
		return types.ActionLike
	default:
		return types.ActionObserve
	}
}
