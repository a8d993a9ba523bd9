package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdActionPlan(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "action-plan",
		Aliases: []string{"ap"},
		Usage:   "Manage action plans of a risk",
		Commands: []*cli.Command{
			cmdActionPlanList(env),
			cmdActionPlanCreate(env),
		},
	}
}

func cmdActionPlanList(env *environment) *cli.Command {
	var params model.RiskChildParams

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List action plans",
		Flags:   childListFlags(&params),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			page, err := uc.ActionPlan.List(ctx, params)
			if err != nil {
				return err
			}
			return writeActionPlans(c.Root().Writer, page)
		},
	}
}

func cmdActionPlanCreate(env *environment) *cli.Command {
	var input model.CreateActionPlanInput
	var status string

	return &cli.Command{
		Name:  "create",
		Usage: "Create an action plan",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "risk-id",
				Usage:       "Parent risk",
				Required:    true,
				Destination: &input.RiskID,
			},
			&cli.StringFlag{
				Name:        "title",
				Usage:       "Title (at least 3 characters)",
				Required:    true,
				Destination: &input.Title,
			},
			&cli.StringFlag{
				Name:        "due",
				Usage:       "Due date (YYYY-MM-DD)",
				Destination: &input.DueDate,
			},
			&cli.StringFlag{
				Name:        "owner",
				Usage:       "Owner",
				Destination: &input.Owner,
			},
			&cli.StringFlag{
				Name:        "status",
				Usage:       "Status [planned|in_progress|done|cancelled]",
				Value:       string(types.ActionPlanStatusPlanned),
				Destination: &status,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			input.Status = types.ActionPlanStatus(status)

			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			plan, err := uc.ActionPlan.Create(ctx, input)
			if err != nil {
				return err
			}
			colorOK.Fprintf(c.Root().Writer, "created action plan %d: %s\n", plan.ID, plan.Title)
			return nil
		},
	}
}

func childListFlags(params *model.RiskChildParams) []cli.Flag {
	return []cli.Flag{
		&cli.Int64Flag{
			Name:        "risk-id",
			Usage:       "Parent risk",
			Required:    true,
			Destination: &params.RiskID,
		},
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
	}
}

func writeActionPlans(w io.Writer, page *model.ActionPlanPage) error {
	if page == nil || len(page.Data) == 0 {
		colorMuted.Fprintln(w, "  (none)")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tTITLE\tDUE\tOWNER\tSTATUS")
	for _, p := range page.Data {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", p.ID, p.Title, dash(p.DueDate), dash(p.Owner), p.Status)
	}
	if err := tw.Flush(); err != nil {
		return goerr.Wrap(err, "failed to write action plans")
	}
	printPageFooter(w, page.Meta, "action plans")
	return nil
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
