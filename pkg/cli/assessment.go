package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/service/autosave"
	"github.com/urfave/cli/v3"
)

func cmdAssessment(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "assessment",
		Aliases: []string{"as"},
		Usage:   "Evaluate risks",
		Commands: []*cli.Command{
			cmdAssessmentShow(env),
			cmdAssessmentCreate(env),
			cmdAssessmentEdit(env),
		},
	}
}

func cmdAssessmentShow(env *environment) *cli.Command {
	var riskID, assessmentID int64

	return &cli.Command{
		Name:  "show",
		Usage: "Show an assessment",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "risk-id", Usage: "Parent risk", Required: true, Destination: &riskID},
			&cli.Int64Flag{Name: "id", Usage: "Assessment", Required: true, Destination: &assessmentID},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			a, err := uc.Evaluation.GetAssessment(ctx, riskID, assessmentID)
			if err != nil {
				return err
			}
			writeAssessment(c.Root().Writer, a.ID, model.ValuesOf(a), a.UpdatedAt)
			return nil
		},
	}
}

func cmdAssessmentCreate(env *environment) *cli.Command {
	var riskID int64
	var values model.AssessmentValues

	return &cli.Command{
		Name:  "create",
		Usage: "Create an assessment in one step",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "risk-id", Usage: "Parent risk", Required: true, Destination: &riskID},
			&cli.StringFlag{Name: "method", Usage: "Evaluation method, e.g. AMDEC", Required: true, Destination: &values.Method},
			&cli.IntFlag{Name: "score", Usage: "Score between 0 and 100", Destination: &values.Score},
			&cli.StringFlag{Name: "notes", Usage: "Free text notes", Destination: &values.Notes},
			&cli.StringSliceFlag{Name: "attach", Usage: "Attachment URL (repeatable)", Destination: &values.Attachments},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			a, err := uc.Evaluation.CreateAssessment(ctx, values.CreateInput(riskID))
			if err != nil {
				return err
			}
			colorOK.Fprintf(c.Root().Writer, "created assessment %d (version %s)\n", a.ID, a.UpdatedAt)
			return nil
		},
	}
}

func cmdAssessmentEdit(env *environment) *cli.Command {
	var riskID, assessmentID int64

	return &cli.Command{
		Name:  "edit",
		Usage: "Edit an assessment interactively with autosave",
		Description: "Without --id a new assessment is drafted and created on :save.\n" +
			"Type :help inside the editor for the list of commands.",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "risk-id", Usage: "Parent risk", Required: true, Destination: &riskID},
			&cli.Int64Flag{Name: "id", Usage: "Assessment to edit, omit to create one", Destination: &assessmentID},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			ed := newEditor(c.Root().Writer)
			ev, err := uc.Evaluation.Open(ctx, riskID, assessmentID, autosave.WithOnChange(ed.OnChange))
			if err != nil {
				return err
			}
			return ed.Run(ctx, ev, c.Root().Reader)
		},
	}
}

func writeAssessment(w io.Writer, id int64, v model.AssessmentValues, version string) {
	if id == 0 {
		colorHeading.Fprintln(w, "new assessment")
	} else {
		colorHeading.Fprintf(w, "assessment %d\n", id)
	}
	fmt.Fprintf(w, "  method:  %s\n", dash(v.Method))
	fmt.Fprintf(w, "  score:   %d\n", v.Score)
	fmt.Fprintf(w, "  notes:   %s\n", dash(v.Notes))
	for i, att := range v.Attachments {
		fmt.Fprintf(w, "  attach%d: %s\n", i+1, att)
	}
	fmt.Fprintf(w, "  version: %s\n", dash(strings.TrimSpace(version)))
}
