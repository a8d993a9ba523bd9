package model

import "fmt"

// Report is a binary risk report downloaded from the API
type Report struct {
	RiskID      int64
	ContentType string
	Filename    string
	Data        []byte
}

// DefaultReportFilename is used when the server does not name the file
func DefaultReportFilename(riskID int64) string {
	return fmt.Sprintf("risk-%d.pdf", riskID)
}
