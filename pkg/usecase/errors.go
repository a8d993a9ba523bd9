package usecase

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for use case layer
var (
	ErrAssessmentMismatch   = goerr.New("assessment does not belong to risk")
	ErrArchiveNotConfigured  = goerr.New("report archive is not configured")
)

// Context keys for error values
const (
	RiskIDKey       = "risk_id"
	AssessmentIDKey = "assessment_id"
)
