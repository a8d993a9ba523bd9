package model

import (
	"time"

	"github.com/secmon-lab/riskdesk/pkg/domain/types"
)

// Risk is a tracked hazard or compliance item. The client never mutates it.
type Risk struct {
	ID        int64            `json:"id"`
	Code      string           `json:"code"`
	Label     string           `json:"label"`
	UnitID    int64            `json:"unitId"`
	Score     float64          `json:"score"`
	Status    types.RiskStatus `json:"status"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// RiskPage is one page of the risk list
type RiskPage struct {
	Data []*Risk  `json:"data"`
	Meta PageMeta `json:"meta"`
}

// RiskOverview groups a risk with the first page of its sub-collections
type RiskOverview struct {
	Risk        *Risk
	ActionPlans *ActionPlanPage
	Documents   *DocumentPage
}
