package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/secmon-lab/riskdesk/pkg/service/autosave"
	"github.com/secmon-lab/riskdesk/pkg/usecase"
)

const editorHelp = `commands:
  method=<text>     set the evaluation method
  score=<0-100>     set the score
  notes=<text>      set the notes
  attach=<url>      add an attachment
  detach=<url|n>    remove an attachment by URL or position
  :save             save now and wait for the result
  :status           show the draft and the save state
  :quit             save pending edits and leave
`

// editor is a line based assessment editor. Edits are saved automatically
// after a quiet period; save state changes are reported as they happen.
type editor struct {
	mu        sync.Mutex
	out       io.Writer
	lastState types.SaveState
}

func newEditor(out io.Writer) *editor {
	return &editor{out: out}
}

func (e *editor) printf(c interface {
	Fprintf(w io.Writer, format string, a ...any) (int, error)
}, format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = c.Fprintf(e.out, format, args...)
}

func (e *editor) printError(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	printError(e.out, err)
}

// OnChange reports save state transitions
func (e *editor) OnChange(snap autosave.Snapshot) {
	e.mu.Lock()
	changed := snap.State != e.lastState
	e.lastState = snap.State
	e.mu.Unlock()
	if !changed {
		return
	}

	switch snap.State {
	case types.SaveStateSaved:
		e.printf(colorOK, "[saved] version %s\n", snap.Version)
	case types.SaveStateConflict:
		e.printf(colorWarn, "[conflict] %s\n", snap.Conflict)
	case types.SaveStateEditing:
		if snap.LastError != nil {
			e.printf(colorError, "[not saved] %s\n", snap.LastError.Error())
		}
	case types.SaveStateSaving:
		e.printf(colorMuted, "[saving]\n")
	}
}

// Run reads commands from in until :quit or end of input
func (e *editor) Run(ctx context.Context, ev *usecase.Evaluation, in io.Reader) error {
	defer ev.Close()

	e.mu.Lock()
	writeAssessment(e.out, ev.Snapshot().AssessmentID, ev.Snapshot().Values, ev.Snapshot().Version)
	fmt.Fprintln(e.out, "type :help for commands")
	e.mu.Unlock()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "editor interrupted")
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		quit, err := e.handle(ctx, ev, line)
		if err != nil {
			e.printError(err)
		}
		if quit {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return goerr.Wrap(err, "failed to read editor input")
	}

	return e.finish(ctx, ev)
}

func (e *editor) handle(ctx context.Context, ev *usecase.Evaluation, line string) (bool, error) {
	switch line {
	case ":help", ":h":
		e.printf(colorMuted, "%s", editorHelp)
		return false, nil

	case ":status", ":s":
		snap := ev.Snapshot()
		e.mu.Lock()
		writeAssessment(e.out, snap.AssessmentID, snap.Values, snap.Version)
		saveStateColor(snap.State).Fprintf(e.out, "  state:   %s", snap.State)
		if snap.Dirty {
			fmt.Fprint(e.out, " (unsaved changes)")
		}
		fmt.Fprintln(e.out)
		if snap.Conflict != "" {
			colorWarn.Fprintf(e.out, "  conflict: %s\n", snap.Conflict)
		}
		e.mu.Unlock()
		return false, nil

	case ":save", ":w":
		if err := ev.Submit(ctx); err != nil {
			return false, err
		}
		e.printf(colorOK, "saved\n")
		return false, nil

	case ":quit", ":q":
		return true, e.finish(ctx, ev)
	}

	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return false, goerr.New("unknown command, type :help", goerr.V("input", line))
	}
	value = strings.TrimSpace(value)

	switch strings.TrimSpace(key) {
	case "method":
		ev.Update(func(v *model.AssessmentValues) { v.Method = value })
	case "score":
		score, err := strconv.Atoi(value)
		if err != nil {
			return false, goerr.Wrap(model.ErrInvalidScore, "score must be a number",
				goerr.V(model.FieldKey, "score"), goerr.V(model.FieldValueKey, value))
		}
		ev.Update(func(v *model.AssessmentValues) { v.Score = score })
	case "notes":
		ev.Update(func(v *model.AssessmentValues) { v.Notes = value })
	case "attach":
		if !model.IsAbsoluteURL(value) {
			return false, goerr.Wrap(model.ErrInvalidURL, "attachment must be an absolute http(s) URL",
				goerr.V(model.FieldKey, "attachments"), goerr.V(model.FieldValueKey, value))
		}
		ev.Update(func(v *model.AssessmentValues) { v.Attachments = append(v.Attachments, value) })
	case "detach":
		var missing bool
		ev.Update(func(v *model.AssessmentValues) {
			i := attachmentIndex(v.Attachments, value)
			if i < 0 {
				missing = true
				return
			}
			v.Attachments = slices.Delete(v.Attachments, i, i+1)
		})
		if missing {
			return false, goerr.New("no such attachment", goerr.V("input", value))
		}
	default:
		return false, goerr.New("unknown field, type :help", goerr.V("input", key))
	}
	return false, nil
}

// finish saves pending edits before leaving. A draft that could not be saved,
// a conflicted one included, is printed so the values are not lost.
func (e *editor) finish(ctx context.Context, ev *usecase.Evaluation) error {
	var err error
	if snap := ev.Snapshot(); snap.Dirty && snap.State != types.SaveStateConflict {
		err = ev.Submit(ctx)
	}
	if err == nil {
		err = ev.Wait(ctx)
	}

	if snap := ev.Snapshot(); snap.Dirty {
		e.mu.Lock()
		colorWarn.Fprintln(e.out, "unsaved draft, not written to the server:")
		writeAssessment(e.out, snap.AssessmentID, snap.Values, snap.Version)
		e.mu.Unlock()
	}
	return err
}

// attachmentIndex finds an attachment by URL or 1-based position
func attachmentIndex(attachments []string, value string) int {
	if i := slices.Index(attachments, value); i >= 0 {
		return i
	}
	if n, err := strconv.Atoi(value); err == nil && n >= 1 && n <= len(attachments) {
		return n - 1
	}
	return -1
}
