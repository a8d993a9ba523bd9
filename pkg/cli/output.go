package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
)

var (
	colorOK      = color.New(color.FgGreen)
	colorWarn    = color.New(color.FgYellow)
	colorError   = color.New(color.FgRed)
	colorMuted   = color.New(color.FgHiBlack)
	colorHeading = color.New(color.Bold)
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func printPageFooter(w io.Writer, meta model.PageMeta, noun string) {
	colorMuted.Fprintf(w, "page %d/%d (%d %s)\n", meta.Page, max(meta.TotalPages, 1), meta.TotalItems, noun)
}

func riskStatusColor(status types.RiskStatus) *color.Color {
	switch status {
	case types.RiskStatusOpen:
		return colorError
	case types.RiskStatusInProgress:
		return colorWarn
	case types.RiskStatusClosed:
		return colorOK
	default:
		return colorMuted
	}
}

func saveStateColor(state types.SaveState) *color.Color {
	switch state {
	case types.SaveStateSaved:
		return colorOK
	case types.SaveStateConflict:
		return colorWarn
	case types.SaveStateSaving, types.SaveStateScheduled:
		return colorMuted
	default:
		return colorHeading
	}
}

// printError writes a user facing description of err. Conflicts are shown as
// warnings, validation failures list every field.
func printError(w io.Writer, err error) {
	if w == nil {
		w = os.Stderr
	}
	if err == nil {
		return
	}

	if apiErr, ok := model.AsAPIError(err); ok {
		switch {
		case apiErr.IsConflict():
			colorWarn.Fprintf(w, "conflict: %s\n", apiErr.Detail())
			colorMuted.Fprintln(w, "your changes are kept; reload to get the latest version")
		case apiErr.IsNetwork():
			colorError.Fprintf(w, "error: cannot reach the API: %s\n", apiErr.Detail())
		default:
			colorError.Fprintf(w, "error: %s\n", apiErr.Detail())
		}

		fieldErrors := apiErr.FieldErrors()
		for _, field := range model.SortedFields(fieldErrors) {
			fmt.Fprintf(w, "  %s: %s\n", field, strings.Join(fieldErrors[field], ", "))
		}
		if trace := apiErr.TraceID(); trace != "" {
			colorMuted.Fprintf(w, "  trace ID: %s\n", trace)
		}
		return
	}

	colorError.Fprintf(w, "error: %s\n", err.Error())
	if field := validationField(err); field != "" {
		fmt.Fprintf(w, "  field: %s\n", field)
	}
}

func validationField(err error) string {
	ge := goerr.Unwrap(err)
	if ge == nil {
		return ""
	}
	if field, ok := ge.Values()[model.FieldKey].(string); ok {
		return field
	}
	return ""
}
