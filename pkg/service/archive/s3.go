package archive

import (
	"bytes"
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

const defaultS3Endpoint = "s3.amazonaws.com"

// S3 writes reports to an S3-compatible bucket such as AWS S3 or MinIO
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

var _ interfaces.ReportArchive = (*S3)(nil)

func NewS3(bucket, prefix string, opts ...Option) (*S3, error) {
	o := newOptions(opts)

	endpoint := o.endpoint
	if endpoint == "" {
		endpoint = defaultS3Endpoint
	}

	creds := credentials.NewEnvAWS()
	if o.accessKey != "" {
		creds = credentials.NewStaticV4(o.accessKey, o.secretKey, "")
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:     creds,
		Secure:    !o.insecure,
		Region:    o.region,
		Transport: o.transport,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create S3 client",
			goerr.V("endpoint", endpoint), goerr.V("bucket", bucket))
	}

	return &S3{client: client, bucket: bucket, prefix: prefix, now: o.now}, nil
}

func (a *S3) Store(ctx context.Context, report *model.Report) (string, error) {
	if err := validate(report); err != nil {
		return "", err
	}

	name := objectName(a.prefix, report, a.now())
	_, err := a.client.PutObject(ctx, a.bucket, name,
		bytes.NewReader(report.Data), int64(len(report.Data)),
		minio.PutObjectOptions{
			ContentType:  contentType(report),
			UserMetadata: map[string]string{"filename": report.Filename},
		})
	if err != nil {
		return "", goerr.Wrap(err, "failed to put report object",
			goerr.V("bucket", a.bucket), goerr.V(ObjectKey, name))
	}

	location := "s3://" + a.bucket + "/" + name
	logging.From(ctx).Debug("report archived", "location", location, "size", len(report.Data))
	return location, nil
}
