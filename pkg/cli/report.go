package cli

import (
	"context"
	"os"
	"path/filepath"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/cli/config"
	"github.com/secmon-lab/riskdesk/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdReport(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Risk reports",
		Commands: []*cli.Command{
			cmdReportDownload(env),
		},
	}
}

func cmdReportDownload(env *environment) *cli.Command {
	var riskID int64
	var out string
	var archiveCfg config.Archive

	flags := []cli.Flag{
		&cli.Int64Flag{
			Name:        "risk-id",
			Usage:       "Risk to export",
			Required:    true,
			Destination: &riskID,
		},
		&cli.StringFlag{
			Name:        "out",
			Aliases:     []string{"o"},
			Usage:       "Output file or directory (default: file name given by the server)",
			Destination: &out,
		},
	}
	flags = append(flags, archiveCfg.Flags()...)

	return &cli.Command{
		Name:  "download",
		Usage: "Download the PDF report of a risk",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			profile, err := env.loadProfile()
			if err != nil {
				return err
			}
			archive, err := archiveCfg.Configure(ctx, profile)
			if err != nil {
				return err
			}

			var opts []usecase.Option
			if archive != nil {
				opts = append(opts, usecase.WithArchive(archive))
			}
			uc, closer, err := env.open(ctx, opts...)
			if err != nil {
				return err
			}
			defer closer()

			report, err := uc.Report.Download(ctx, riskID)
			if err != nil {
				return err
			}

			path := reportPath(out, report.Filename)
			if err := os.WriteFile(path, report.Data, 0o644); err != nil {
				return goerr.Wrap(err, "failed to write report", goerr.V("path", path))
			}
			w := c.Root().Writer
			colorOK.Fprintf(w, "saved %s (%d bytes)\n", path, len(report.Data))

			if uc.Report.HasArchive() {
				location, err := uc.Report.Archive(ctx, report)
				if err != nil {
					return err
				}
				colorOK.Fprintf(w, "archived to %s\n", location)
			}
			return nil
		},
	}
}

// reportPath resolves --out. An existing directory receives the server file
// name.
func reportPath(out, filename string) string {
	filename = filepath.Base(filepath.Clean("/" + filename))
	if out == "" {
		return filename
	}
	if info, err := os.Stat(out); err == nil && info.IsDir() {
		return filepath.Join(out, filename)
	}
	return out
}
