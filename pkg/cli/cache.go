package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

func cmdCache(env *environment) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage the query cache",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop every cached query",
				Action: func(ctx context.Context, c *cli.Command) error {
					profile, err := env.loadProfile()
					if err != nil {
						return err
					}
					q, err := env.cache.Configure(ctx, profile)
					if err != nil {
						return goerr.Wrap(err, "failed to configure query cache")
					}
					defer func() {
						if err := q.Close(); err != nil {
							colorWarn.Fprintf(c.Root().ErrWriter, "failed to close query cache: %s\n", err.Error())
						}
					}()

					if err := q.Clear(ctx); err != nil {
						return err
					}
					colorOK.Fprintln(c.Root().Writer, "query cache cleared")
					return nil
				},
			},
		},
	}
}
