package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/urfave/cli/v3"
)

func cmdDocument(env *environment) *cli.Command {
	return &cli.Command{
		Name:    "document",
		Aliases: []string{"doc"},
		Usage:   "Manage documents of a risk",
		Commands: []*cli.Command{
			cmdDocumentList(env),
			cmdDocumentCreate(env),
		},
	}
}

func cmdDocumentList(env *environment) *cli.Command {
	var params model.RiskChildParams

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List documents",
		Flags:   childListFlags(&params),
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			page, err := uc.Document.List(ctx, params)
			if err != nil {
				return err
			}
			return writeDocuments(c.Root().Writer, page)
		},
	}
}

func cmdDocumentCreate(env *environment) *cli.Command {
	var input model.CreateDocumentInput

	return &cli.Command{
		Name:  "create",
		Usage: "Link a document to a risk",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "risk-id",
				Usage:       "Parent risk",
				Required:    true,
				Destination: &input.RiskID,
			},
			&cli.StringFlag{
				Name:        "name",
				Usage:       "Document name",
				Required:    true,
				Destination: &input.Name,
			},
			&cli.StringFlag{
				Name:        "url",
				Usage:       "Absolute http(s) URL of the document",
				Required:    true,
				Destination: &input.URL,
			},
			&cli.StringFlag{
				Name:        "type",
				Usage:       "Document type, e.g. report, procedure",
				Required:    true,
				Destination: &input.Type,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closer, err := env.open(ctx)
			if err != nil {
				return err
			}
			defer closer()

			doc, err := uc.Document.Create(ctx, input)
			if err != nil {
				return err
			}
			colorOK.Fprintf(c.Root().Writer, "created document %d: %s\n", doc.ID, doc.Name)
			return nil
		},
	}
}

func writeDocuments(w io.Writer, page *model.DocumentPage) error {
	if page == nil || len(page.Data) == 0 {
		colorMuted.Fprintln(w, "  (none)")
		return nil
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tURL")
	for _, d := range page.Data {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", d.ID, d.Name, d.Type, d.URL)
	}
	if err := tw.Flush(); err != nil {
		return goerr.Wrap(err, "failed to write documents")
	}
	printPageFooter(w, page.Meta, "documents")
	return nil
}
