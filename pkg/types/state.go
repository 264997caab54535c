package types

// ValidAgentStatuses contains all valid agent status values
var ValidAgentStatuses = []AgentStatus{
	AgentActive,
	AgentInactive,
}

// ValidActionKinds contains every action a decision can produce.
var ValidActionKinds = []ActionKind{
	ActionReply,
	ActionLike,
	ActionObserve,
}

// IsValidAgentStatus checks if the given status is a known agent status.
// Empty string is not valid: every stored agent carries a status.
func IsValidAgentStatus(status AgentStatus) bool {
	for _, valid := range ValidAgentStatuses {
		if status == valid {
			return true
		}
	}
	return false
}

// IsValidActionKind checks if kind is one of reply, like or observe.
func IsValidActionKind(kind ActionKind) bool {
	for _, valid := range ValidActionKinds {
		if kind == valid {
			return true
		}
	}
	return false
}

// IsRecorded reports whether interactions of this kind are persisted.
// Observe decisions leave no trace in the store.
func (k ActionKind) IsRecorded() bool {
	return k == ActionReply || k == ActionLike
}

// IsValidStatusTransition validates agent status changes.
//
//	active   -> inactive
//	inactive -> active
//
// Setting the current status again is accepted as a no-op.
func IsValidStatusTransition(current, next AgentStatus) bool {
	if !IsValidAgentStatus(next) {
		return false
	}
	if current == "" {
		return true
	}
	return IsValidAgentStatus(current)
}
