package types

import "fmt"

// ActionPlanStatus represents the status of a remediation action plan
type ActionPlanStatus string

const (
	ActionPlanStatusPlanned    ActionPlanStatus = "planned"
	ActionPlanStatusInProgress ActionPlanStatus = "in_progress"
	ActionPlanStatusDone       ActionPlanStatus = "done"
	ActionPlanStatusCancelled  ActionPlanStatus = "cancelled"
)

// AllActionPlanStatuses returns all valid action plan statuses
func AllActionPlanStatuses() []ActionPlanStatus {
	return []ActionPlanStatus{
		ActionPlanStatusPlanned,
		ActionPlanStatusInProgress,
		ActionPlanStatusDone,
		ActionPlanStatusCancelled,
	}
}

// IsValid checks if the action plan status is valid
func (s ActionPlanStatus) IsValid() bool {
	switch s {
	case ActionPlanStatusPlanned,
		ActionPlanStatusInProgress,
		ActionPlanStatusDone,
		ActionPlanStatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the action plan status
func (s ActionPlanStatus) String() string {
	return string(s)
}

// ParseActionPlanStatus parses a string into an ActionPlanStatus
func ParseActionPlanStatus(s string) (ActionPlanStatus, error) {
	status := ActionPlanStatus(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid action plan status: %s", s)
	}
	return status, nil
}
