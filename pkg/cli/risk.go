package cli

import (
	"context"
	"fmt"
	"strconv"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdRisk(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "risk",
		Aliases: []string{"r"},
		Usage:   "Browse risks",
		Commands: []*cli.Command{
			cmdRiskList(env),
			cmdRiskShow(env),
		},
	}
}

func cmdRiskList(env *environment) *cli.Command {
	var params model.ListRisksParams

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List risks",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "page",
				Usage:       "Page number (1-based)",
				Value:       model.DefaultPage,
				Destination: &params.Page,
			},
			&cli.IntFlag{
				Name:        "size",
				Usage:       "Page size",
				Value:       model.DefaultPageSize,
				Destination: &params.Size,
			},
			&cli.StringFlag{
				Name:        "query",
				Aliases:     []string{"q"},
				Usage:       "Free text search",
				Destination: &params.Query,
			},
			&cli.StringFlag{
				Name:        "sort",
				Usage:       "Sort order, e.g. code, -score, updatedAt",
				Destination: &params.Sort,
			},
			&cli.StringFlag{
				Name:        "status",
				Usage:       "Status filter [open|in_progress|closed|all]",
				Destination: &params.Status,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			page, err := uc.Risk.ListRisks(ctx, params)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			tw := newTable(w)
			fmt.Fprintln(tw, "ID\tCODE\tLABEL\tSCORE\tSTATUS\tUPDATED")
			for _, r := range page.Data {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%s\t%s\n",
					r.ID, r.Code, r.Label, r.Score,
					riskStatusColor(r.Status).Sprint(r.Status),
					r.UpdatedAt.Local().Format("2006-01-02 15:04"),
				)
			}
			if err := tw.Flush(); err != nil {
				return goerr.Wrap(err, "failed to write risk list")
			}
			printPageFooter(w, page.Meta, "risks")
			return nil
		},
	}
}

func cmdRiskShow(env *environment) *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Show a risk with its action plans and documents",
		ArgsUsage: "<risk-id>",
		Action: func(ctx context.Context, c *cli.Command) error {
			riskID, err := parseID(c.Args().First(), "risk ID")
			if err != nil {
				return err
			}

			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			overview, err := uc.Risk.GetRiskOverview(ctx, riskID)
			if err != nil {
				return err
			}

			w := c.Root().Writer
			r := overview.Risk
			colorHeading.Fprintf(w, "%s %s\n", r.Code, r.Label)
			fmt.Fprintf(w, "  id:      %d\n", r.ID)
			fmt.Fprintf(w, "  status:  %s\n", riskStatusColor(r.Status).Sprint(r.Status))
			fmt.Fprintf(w, "  score:   %.1f\n", r.Score)
			fmt.Fprintf(w, "  updated: %s\n", r.UpdatedAt.Local().Format("2006-01-02 15:04"))

			fmt.Fprintln(w)
			colorHeading.Fprintln(w, "Action plans")
			if err := writeActionPlans(w, overview.ActionPlans); err != nil {
				return err
			}

			fmt.Fprintln(w)
			colorHeading.Fprintln(w, "Documents")
			return writeDocuments(w, overview.Documents)
		},
	}
}

func parseID(raw, name string) (int64, error) {
	if raw == "" {
		return 0, goerr.Wrap(model.ErrMissingRequired, name+" is required", goerr.V(model.FieldKey, name))
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, goerr.Wrap(model.ErrInvalidRiskID, name+" must be a positive integer",
			goerr.V(model.FieldKey, name), goerr.V(model.FieldValueKey, raw))
	}
	return id, nil
}
