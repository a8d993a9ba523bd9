package model

import (
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
)

const (
	// MinMethodLength is the minimum length of an assessment method
	MinMethodLength = 2
	// MinAssessmentScore and MaxAssessmentScore bound the assessment score
	MinAssessmentScore = 0
	MaxAssessmentScore = 100
)

// Attachment is a named link attached to an assessment
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Assessment is a scored evaluation of a risk. UpdatedAt is the version stamp
// used for optimistic concurrency and is compared as an opaque token.
type Assessment struct {
	ID          int64        `json:"id"`
	RiskID      int64        `json:"riskId"`
	Method      string       `json:"method"`
	Score       int          `json:"score"`
	Notes       string       `json:"notes,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

// CreateAssessmentInput is the body of POST /assessments
type CreateAssessmentInput struct {
	RiskID      int64        `json:"riskId"`
	Method      string       `json:"method"`
	Score       int          `json:"score"`
	Notes       string       `json:"notes,omitempty"`
	Attachments []Attachment `json:"attachments"`
}

// UpdateAssessmentInput is the body of PATCH /assessments/{id}
type UpdateAssessmentInput struct {
	Method      string       `json:"method"`
	Score       int          `json:"score"`
	Notes       string       `json:"notes"`
	Attachments []Attachment `json:"attachments"`
	UpdatedAt   string       `json:"updatedAt,omitempty"`
}

// AssessmentValues is the user editable part of an assessment
type AssessmentValues struct {
	Method      string
	Score       int
	Notes       string
	Attachments []string
}

// ValuesOf extracts the editable values of an assessment
func ValuesOf(a *Assessment) AssessmentValues {
	if a == nil {
		return AssessmentValues{}
	}
	values := AssessmentValues{
		Method: a.Method,
		Score:  a.Score,
		Notes:  a.Notes,
	}
	for _, att := range a.Attachments {
		values.Attachments = append(values.Attachments, att.URL)
	}
	return values
}

// Clone returns a deep copy
func (v AssessmentValues) Clone() AssessmentValues {
	v.Attachments = slices.Clone(v.Attachments)
	return v
}

// Equal compares all fields. Attachment order is significant and a nil list
// equals an empty one.
func (v AssessmentValues) Equal(other AssessmentValues) bool {
	return v.Method == other.Method &&
		v.Score == other.Score &&
		v.Notes == other.Notes &&
		slices.Equal(v.Attachments, other.Attachments)
}

// Validate applies the evaluation form rules
func (v AssessmentValues) Validate() error {
	if utf8.RuneCountInString(strings.TrimSpace(v.Method)) < MinMethodLength {
		return goerr.Wrap(ErrInvalidMethod, "method is too short",
			goerr.V(FieldKey, "method"), goerr.V(FieldValueKey, v.Method))
	}
	if v.Score < MinAssessmentScore || v.Score > MaxAssessmentScore {
		return goerr.Wrap(ErrInvalidScore, "score out of range",
			goerr.V(FieldKey, "score"), goerr.V(FieldValueKey, v.Score))
	}
	for i, raw := range v.Attachments {
		if !IsAbsoluteURL(raw) {
			return goerr.Wrap(ErrInvalidURL, "attachment is not a valid URL",
				goerr.V(FieldKey, "attachments"), goerr.V(IndexKey, i), goerr.V(FieldValueKey, raw))
		}
	}
	return nil
}

func (v AssessmentValues) attachments() []Attachment {
	attachments := make([]Attachment, 0, len(v.Attachments))
	for _, u := range v.Attachments {
		attachments = append(attachments, Attachment{Name: u, URL: u})
	}
	return attachments
}

// CreateInput builds the creation payload for the given risk
func (v AssessmentValues) CreateInput(riskID int64) CreateAssessmentInput {
	return CreateAssessmentInput{
		RiskID:      riskID,
		Method:      v.Method,
		Score:       v.Score,
		Notes:       v.Notes,
		Attachments: v.attachments(),
	}
}

// UpdateInput builds the conditional update payload carrying the version stamp
func (v AssessmentValues) UpdateInput(version string) UpdateAssessmentInput {
	return UpdateAssessmentInput{
		Method:      v.Method,
		Score:       v.Score,
		Notes:       v.Notes,
		Attachments: v.attachments(),
		UpdatedAt:   version,
	}
}

// IsAbsoluteURL reports whether raw is an absolute http or https URL
func IsAbsoluteURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
