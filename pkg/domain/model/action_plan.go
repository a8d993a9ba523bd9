package model

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
)

const (
	// DueDateLayout is the wire format of ActionPlan.DueDate
	DueDateLayout = "2006-01-02"
	// MinActionPlanTitleLength is the minimum length of an action plan title
	MinActionPlanTitleLength = 3
)

// ActionPlan is a remediation task attached to a risk
type ActionPlan struct {
	ID      int64                  `json:"id"`
	RiskID  int64                  `json:"riskId"`
	Title   string                 `json:"title"`
	DueDate string                 `json:"dueDate,omitempty"`
	Owner   string                 `json:"owner,omitempty"`
	Status  types.ActionPlanStatus `json:"status"`
}

// ActionPlanPage is one page of action plans of a risk
type ActionPlanPage struct {
	Data []*ActionPlan `json:"data"`
	Meta PageMeta      `json:"meta"`
}

// CreateActionPlanInput is the body of POST /action-plans
type CreateActionPlanInput struct {
	RiskID  int64                  `json:"riskId"`
	Title   string                 `json:"title"`
	DueDate string                 `json:"dueDate,omitempty"`
	Owner   string                 `json:"owner,omitempty"`
	Status  types.ActionPlanStatus `json:"status"`
}

// Validate checks the input before it is sent
func (in CreateActionPlanInput) Validate() error {
	if in.RiskID <= 0 {
		return goerr.Wrap(ErrInvalidRiskID, "risk ID is required", goerr.V(RiskIDKey, in.RiskID))
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Title)) < MinActionPlanTitleLength {
		return goerr.Wrap(ErrMissingRequired, "title is required", goerr.V(FieldKey, "title"), goerr.V(FieldValueKey, in.Title))
	}
	if in.DueDate != "" {
		if _, err := time.Parse(DueDateLayout, in.DueDate); err != nil {
			return goerr.Wrap(ErrInvalidDate, "due date must be YYYY-MM-DD",
				goerr.V(FieldKey, "dueDate"), goerr.V(FieldValueKey, in.DueDate))
		}
	}
	if !in.Status.IsValid() {
		return goerr.Wrap(ErrInvalidStatus, "invalid action plan status",
			goerr.V(FieldKey, "status"), goerr.V(FieldValueKey, in.Status))
	}
	return nil
}
