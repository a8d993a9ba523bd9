package archive

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

// Local writes reports under a directory on the local filesystem
type Local struct {
	dir string
	now func() time.Time
}

var _ interfaces.ReportArchive = (*Local)(nil)

func NewLocal(dir string, opts ...Option) *Local {
	o := newOptions(opts)
	return &Local{dir: dir, now: o.now}
}

func (a *Local) Store(ctx context.Context, report *model.Report) (string, error) {
	if err := validate(report); err != nil {
		return "", err
	}

	name := filepath.Join(a.dir, filepath.FromSlash(objectName("", report, a.now())))
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return "", goerr.Wrap(err, "failed to create archive directory", goerr.V(ObjectKey, name))
	}
	if err := os.WriteFile(name, report.Data, 0o644); err != nil {
		return "", goerr.Wrap(err, "failed to write report", goerr.V(ObjectKey, name))
	}

	logging.From(ctx).Debug("report archived", "path", name, "size", len(report.Data))
	return name, nil
}
