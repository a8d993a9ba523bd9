package archive

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

var (
	ErrUnsupportedScheme = goerr.New("unsupported archive scheme")
	ErrInvalidLocation   = goerr.New("invalid archive location")
	ErrEmptyReport       = goerr.New("report has no content")
)

const (
	LocationKey = "location"
	ObjectKey   = "object"
)

type options struct {
	now       func() time.Time
	endpoint  string
	region    string
	accessKey string
	secretKey string
	insecure  bool
	transport http.RoundTripper
}

type Option func(*options)

// WithClock sets the clock used to stamp object names
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithS3Endpoint sets the S3-compatible endpoint (host:port). Required for s3:// locations.
func WithS3Endpoint(endpoint string, insecure bool) Option {
	return func(o *options) {
		o.endpoint = endpoint
		o.insecure = insecure
	}
}

// WithS3Region sets the bucket region. Without it the region is looked up
// from the bucket.
func WithS3Region(region string) Option {
	return func(o *options) {
		o.region = region
	}
}

// WithS3Credentials sets static credentials. Without it, AWS_* environment variables are used.
func WithS3Credentials(accessKey, secretKey string) Option {
	return func(o *options) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

func newOptions(opts []Option) *options {
	o := &options{now: time.Now}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// New opens an archive for a location such as file:///var/reports,
// gs://bucket/prefix or s3://bucket/prefix.
func New(ctx context.Context, location string, opts ...Option) (interfaces.ReportArchive, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, goerr.Wrap(ErrInvalidLocation, "failed to parse archive location",
			goerr.V(LocationKey, location), goerr.V("cause", err.Error()))
	}

	switch u.Scheme {
	case "file", "":
		dir := u.Path
		if u.Scheme == "" {
			dir = location
		}
		if dir == "" {
			return nil, goerr.Wrap(ErrInvalidLocation, "archive directory is empty", goerr.V(LocationKey, location))
		}
		return NewLocal(dir, opts...), nil

	case "gs":
		if u.Host == "" {
			return nil, goerr.Wrap(ErrInvalidLocation, "bucket is required", goerr.V(LocationKey, location))
		}
		return NewGCS(ctx, u.Host, strings.TrimPrefix(u.Path, "/"), opts...)

	case "s3":
		if u.Host == "" {
			return nil, goerr.Wrap(ErrInvalidLocation, "bucket is required", goerr.V(LocationKey, location))
		}
		return NewS3(u.Host, strings.TrimPrefix(u.Path, "/"), opts...)

	default:
		return nil, goerr.Wrap(ErrUnsupportedScheme, "failed to open archive",
			goerr.V(LocationKey, location), goerr.V("scheme", u.Scheme))
	}
}

// objectName returns prefix/risk-<id>/<UTC timestamp>-<filename>
func objectName(prefix string, report *model.Report, now time.Time) string {
	filename := report.Filename
	if filename == "" {
		filename = model.DefaultReportFilename(report.RiskID)
	}
	filename = path.Base(strings.ReplaceAll(filename, "\\", "/"))

	return path.Join(prefix,
		fmt.Sprintf("risk-%d", report.RiskID),
		now.UTC().Format("20060102T150405Z")+"-"+filename,
	)
}

func contentType(report *model.Report) string {
	if report.ContentType == "" {
		return "application/octet-stream"
	}
	return report.ContentType
}

func validate(report *model.Report) error {
	if report == nil || len(report.Data) == 0 {
		return goerr.Wrap(ErrEmptyReport, "cannot archive report")
	}
	return nil
}
