package model

import (
	"encoding/json"
	"net/url"
	"strconv"
)

const (
	// DefaultPage and DefaultPageSize apply when a list parameter is left zero
	DefaultPage     = 1
	DefaultPageSize = 25

	// StatusFilterAll disables the status filter
	StatusFilterAll = "all"
)

// ListRisksParams are the query parameters of GET /risks
type ListRisksParams struct {
	Page    int
	Size    int
	Query   string
	Sort    string
	Status  string
	Filters string
}

// Normalize fills defaults and derives the JSON filter from the status
func (p ListRisksParams) Normalize() ListRisksParams {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Status == StatusFilterAll {
		p.Status = ""
	}
	if p.Status != "" && p.Filters == "" {
		raw, _ := json.Marshal(map[string]string{"status": p.Status})
		p.Filters = string(raw)
	}
	return p
}

// Values encodes the parameters, omitting empty optional ones
func (p ListRisksParams) Values() url.Values {
	v := url.Values{}
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("size", strconv.Itoa(p.Size))
	setIfNotEmpty(v, "query", p.Query)
	setIfNotEmpty(v, "sort", p.Sort)
	setIfNotEmpty(v, "status", p.Status)
	setIfNotEmpty(v, "filters", p.Filters)
	return v
}

// RiskChildParams are the query parameters of the per-risk collections
// (GET /action-plans and GET /documents)
type RiskChildParams struct {
	RiskID int64
	Page   int
	Size   int
}

func (p RiskChildParams) Normalize() RiskChildParams {
	if p.Page <= 0 {
		p.Page = DefaultPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	return p
}

func (p RiskChildParams) Values() url.Values {
	v := url.Values{}
	v.Set("riskId", strconv.FormatInt(p.RiskID, 10))
	v.Set("page", strconv.Itoa(p.Page))
	v.Set("size", strconv.Itoa(p.Size))
	return v
}

func setIfNotEmpty(v url.Values, key, value string) {
	if value != "" {
		v.Set(key, value)
	}
}
