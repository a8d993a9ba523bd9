package model

import "github.com/m-mizutani/goerr/v2"

// Validation errors
var (
	ErrInvalidMethod   = goerr.New("invalid assessment method")
	ErrInvalidScore    = goerr.New("invalid assessment score")
	ErrInvalidURL      = goerr.New("invalid URL")
	ErrInvalidRiskID   = goerr.New("invalid risk ID")
	ErrInvalidDate     = goerr.New("invalid date")
	ErrInvalidStatus   = goerr.New("invalid status")
	ErrMissingRequired = goerr.New("required field is missing")
)

// Context keys for error values
const (
	FieldKey        = "field"
	FieldValueKey   = "field_value"
	IndexKey        = "index"
	RiskIDKey       = "risk_id"
	AssessmentIDKey = "assessment_id"
)
