package interfaces

import (
	"context"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

// ReportArchive keeps a copy of downloaded risk reports
type ReportArchive interface {
	// Store saves the report and returns the location it was written to
	Store(ctx context.Context, report *model.Report) (string, error)
}
