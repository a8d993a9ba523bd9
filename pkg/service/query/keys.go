package query

import (
	"strconv"
	"strings"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

// Key identifies a cached query as a hierarchy of segments, most general
// first. Invalidating a key also invalidates every key below it.
type Key []string

// String flattens the key into the form used by cache stores
func (k Key) String() string {
	return strings.Join(k, model.KeySeparator)
}

// Append returns a new key extended with segments
func (k Key) Append(segments ...string) Key {
	next := make(Key, 0, len(k)+len(segments))
	next = append(next, k...)
	return append(next, segments...)
}

// HasPrefix reports whether k is prefix or lies below it
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

const (
	segmentRisks       = "risks"
	segmentList        = "list"
	segmentDetail      = "detail"
	segmentAssessments = "assessments"
	segmentActionPlans = "action-plans"
	segmentDocuments   = "documents"
)

// RisksKey is the root of every risk related query
func RisksKey() Key {
	return Key{segmentRisks}
}

// RiskListKey identifies one page of the risk list. Equal parameters after
// normalization give equal keys.
func RiskListKey(params model.ListRisksParams) Key {
	return RisksKey().Append(segmentList, params.Normalize().Values().Encode())
}

// RiskDetailKey is the root of everything cached for one risk
func RiskDetailKey(riskID int64) Key {
	return RisksKey().Append(segmentDetail, formatID(riskID))
}

func AssessmentsKey(riskID int64) Key {
	return RiskDetailKey(riskID).Append(segmentAssessments)
}

func AssessmentKey(riskID, assessmentID int64) Key {
	return AssessmentsKey(riskID).Append(formatID(assessmentID))
}

func ActionPlansKey(riskID int64) Key {
	return RiskDetailKey(riskID).Append(segmentActionPlans)
}

func ActionPlanListKey(params model.RiskChildParams) Key {
	return ActionPlansKey(params.RiskID).Append(childParams(params))
}

func DocumentsKey(riskID int64) Key {
	return RiskDetailKey(riskID).Append(segmentDocuments)
}

func DocumentListKey(params model.RiskChildParams) Key {
	return DocumentsKey(params.RiskID).Append(childParams(params))
}

func childParams(params model.RiskChildParams) string {
	values := params.Normalize().Values()
	values.Del("riskId")
	return values.Encode()
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
