package cli

import (
	"context"
	"io"
	"os"

	"github.com/secmon-lab/riskdesk/pkg/cli/config"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func Run(ctx context.Context, args []string, version string) error {
	return run(ctx, args, version, os.Stdin, os.Stdout, os.Stderr)
}

func run(ctx context.Context, args []string, version string, stdin io.Reader, stdout, stderr io.Writer) error {
	var loggerCfg config.Logger
	var sentryCfg config.Sentry
	env := &environment{version: version}
	var closers []func()

	flags := loggerCfg.Flags()
	flags = append(flags, sentryCfg.Flags()...)
	flags = append(flags, env.Flags()...)

	app := &cli.Command{
		Name:      "riskdesk",
		Usage:     "Console for the risk management API",
		Version:   version,
		Flags:     flags,
		Reader:    stdin,
		Writer:    stdout,
		ErrWriter: stderr,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closers = append(closers, f)

			flush, err := sentryCfg.Configure(version)
			if err != nil {
				return ctx, err
			}
			closers = append(closers, flush)

			logging.Default().Debug("Starting riskdesk", "logger", loggerCfg, "sentry", sentryCfg, "client", env.client)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdRisk(env),
			cmdAssessment(env),
			cmdActionPlan(env),
			cmdDocument(env),
			cmdReport(env),
			cmdCache(env),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		printError(stderr, err)
		logging.Default().Debug("failed to run app", "error", err)
		return err
	}

	return nil
}
