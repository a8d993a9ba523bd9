package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

// ReportUseCase downloads risk reports. Reports are binary and never cached.
type ReportUseCase struct {
	api     interfaces.RiskAPI
	archive interfaces.ReportArchive
}

func NewReportUseCase(api interfaces.RiskAPI, archive interfaces.ReportArchive) *ReportUseCase {
	return &ReportUseCase{
		api:     api,
		archive: archive,
	}
}

func (uc *ReportUseCase) Download(ctx context.Context, riskID int64) (*model.Report, error) {
	if riskID <= 0 {
		return nil, goerr.Wrap(model.ErrInvalidRiskID, "risk ID must be positive", goerr.V(RiskIDKey, riskID))
	}
	report, err := uc.api.DownloadRiskReport(ctx, riskID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to download report", goerr.V(RiskIDKey, riskID))
	}
	return report, nil
}

// HasArchive reports whether Archive can be used
func (uc *ReportUseCase) HasArchive() bool {
	return uc.archive != nil
}

// Archive stores a copy of report and returns where it was written
func (uc *ReportUseCase) Archive(ctx context.Context, report *model.Report) (string, error) {
	if uc.archive == nil {
		return "", goerr.Wrap(ErrArchiveNotConfigured, "cannot archive report")
	}
	if report == nil {
		return "", goerr.New("report is required")
	}

	location, err := uc.archive.Store(ctx, report)
	if err != nil {
		return "", goerr.Wrap(err, "failed to archive report", goerr.V(RiskIDKey, report.RiskID))
	}
	logging.From(ctx).Info("report archived", "risk_id", report.RiskID, "location", location)
	return location, nil
}
