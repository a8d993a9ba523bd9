package archive

import (
	"context"
	"time"

	"cloud.google.com/go/storage"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
	"github.com/secmon-lab/riskdesk/pkg/utils/safe"
)

// GCS writes reports to a Cloud Storage bucket using application default credentials
type GCS struct {
	client *storage.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ interfaces.ReportArchive = (*GCS)(nil)

func NewGCS(ctx context.Context, bucket, prefix string, opts ...Option) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create storage client", goerr.V("bucket", bucket))
	}

	o := newOptions(opts)
	return &GCS{client: client, bucket: bucket, prefix: prefix, now: o.now}, nil
}

func (a *GCS) Store(ctx context.Context, report *model.Report) (string, error) {
	if err := validate(report); err != nil {
		return "", err
	}

	name := objectName(a.prefix, report, a.now())
	w := a.client.Bucket(a.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentType(report)
	w.Metadata = map[string]string{"filename": report.Filename}

	if _, err := w.Write(report.Data); err != nil {
		safe.Close(ctx, w)
		return "", goerr.Wrap(err, "failed to write report object",
			goerr.V("bucket", a.bucket), goerr.V(ObjectKey, name))
	}
	if err := w.Close(); err != nil {
		return "", goerr.Wrap(err, "failed to finalize report object",
			goerr.V("bucket", a.bucket), goerr.V(ObjectKey, name))
	}

	location := "gs://" + a.bucket + "/" + name
	logging.From(ctx).Debug("report archived", "location", location, "size", len(report.Data))
	return location, nil
}

func (a *GCS) Close() error {
	return a.client.Close()
}
