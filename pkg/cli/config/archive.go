package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/service/archive"
	"github.com/urfave/cli/v3"
)

// Archive holds the flags of the report archive
type Archive struct {
	location    string
	s3Endpoint  string
	s3Region    string
	s3AccessKey string
	s3SecretKey string
	s3Insecure  bool
}

func (x *Archive) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "archive",
			Usage:       "Keep a copy of downloaded reports (file:///dir, gs://bucket/prefix or s3://bucket/prefix)",
			Category:    "Archive",
			Sources:     cli.EnvVars("RISKDESK_ARCHIVE"),
			Destination: &x.location,
		},
		&cli.StringFlag{
			Name:        "s3-endpoint",
			Usage:       "S3-compatible endpoint (host:port) for s3:// archives",
			Category:    "Archive",
			Sources:     cli.EnvVars("RISKDESK_S3_ENDPOINT"),
			Destination: &x.s3Endpoint,
		},
		&cli.StringFlag{
			Name:        "s3-region",
			Usage:       "Bucket region, skips the bucket location lookup",
			Category:    "Archive",
			Sources:     cli.EnvVars("RISKDESK_S3_REGION"),
			Destination: &x.s3Region,
		},
		&cli.StringFlag{
			Name:        "s3-access-key",
			Usage:       "S3 access key (default: AWS_ACCESS_KEY_ID)",
			Category:    "Archive",
			Sources:     cli.EnvVars("RISKDESK_S3_ACCESS_KEY"),
			Destination: &x.s3AccessKey,
		},
		&cli.StringFlag{
			Name:        "s3-secret-key",
			Usage:       "S3 secret key (default: AWS_SECRET_ACCESS_KEY)",
			Category:    "Archive",
			Sources:     cli.EnvVars("RISKDESK_S3_SECRET_KEY"),
			Destination: &x.s3SecretKey,
		},
		&cli.BoolFlag{
			Name:        "s3-insecure",
			Usage:       "Use plain HTTP for the S3 endpoint",
			Category:    "Archive",
			Sources:     cli.EnvVars("RISKDESK_S3_INSECURE"),
			Destination: &x.s3Insecure,
		},
	}
}

func (x Archive) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("location", x.location),
		slog.String("s3_endpoint", x.s3Endpoint),
		slog.String("s3_region", x.s3Region),
		slog.Int("s3_secret_key.len", len(x.s3SecretKey)),
	)
}

// Configure opens the archive. It returns nil when no location is set.
func (x *Archive) Configure(ctx context.Context, profile *Profile) (interfaces.ReportArchive, error) {
	if profile == nil {
		profile = &Profile{}
	}

	location := pick(x.location, profile.Archive.Location)
	if location == "" {
		return nil, nil
	}

	opts := []archive.Option{
		archive.WithS3Endpoint(pick(x.s3Endpoint, profile.Archive.S3Endpoint), x.s3Insecure || profile.Archive.S3Insecure),
	}
	if region := pick(x.s3Region, profile.Archive.S3Region); region != "" {
		opts = append(opts, archive.WithS3Region(region))
	}
	if x.s3AccessKey != "" {
		opts = append(opts, archive.WithS3Credentials(x.s3AccessKey, x.s3SecretKey))
	}

	a, err := archive.New(ctx, location, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open report archive")
	}
	return a, nil
}
