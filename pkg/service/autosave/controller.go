// Package autosave keeps an assessment draft in sync with the server. Edits
// are debounced into conditional updates carrying the last observed version
// stamp; at most one update is in flight, and a rejected stale write leaves
// the draft untouched in the Conflict state.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/riskdesk/pkg/domain/interfaces"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
	"github.com/secmon-lab/riskdesk/pkg/domain/types"
	"github.com/secmon-lab/riskdesk/pkg/utils/async"
	"github.com/secmon-lab/riskdesk/pkg/utils/logging"
)

const (
	// DefaultDebounce is the quiet period after the last edit before saving
	DefaultDebounce = 1200 * time.Millisecond

	// DefaultConflictMessage is shown when the server gives no detail
	DefaultConflictMessage = "conflict detected, reload to get the latest version"
)

var (
	ErrClosed     = goerr.New("autosave session is closed")
	ErrNotLoaded  = goerr.New("no assessment is loaded")
	ErrCreateBusy = goerr.New("assessment creation already in progress")
)

// Snapshot is a consistent view of the controller state
type Snapshot struct {
	State        types.SaveState
	RiskID       int64
	AssessmentID int64
	Values       model.AssessmentValues
	Dirty        bool
	Version      string
	Conflict     string
	LastError    error
	LastSavedAt  time.Time
	InFlight     bool
	Saves        int
}

// chain tracks consecutive saves issued without a pause, so that Submit and
// Wait can block until the draft settles
type chain struct {
	done chan struct{}
	err  error
}

// Controller owns one assessment draft
type Controller struct {
	api       interfaces.AssessmentAPI
	scheduler interfaces.Scheduler
	debounce  time.Duration
	now       func() time.Time
	onChange  func(Snapshot)
	ctx       context.Context

	mu           sync.Mutex
	loaded       bool
	riskID       int64
	assessmentID int64
	draft        model.AssessmentValues
	saved        model.AssessmentValues
	sending      model.AssessmentValues
	version      string
	hasSaved     bool
	state        types.SaveState
	conflict     string
	lastErr      error
	lastSavedAt  time.Time
	saves        int

	cancelTimer interfaces.CancelFunc
	generation  uint64
	epoch       uint64
	inFlight    bool
	queued      bool
	creating    bool
	current     *chain
	closed      bool
}

type Option func(*Controller)

func WithDebounce(d time.Duration) Option {
	return func(c *Controller) { c.debounce = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithOnChange registers a callback receiving every state change. It is
// called without holding the controller lock, possibly from a save goroutine.
func WithOnChange(fn func(Snapshot)) Option {
	return func(c *Controller) { c.onChange = fn }
}

// WithContext sets the context whose logger is used by background saves.
// Its cancellation does not abort saves.
func WithContext(ctx context.Context) Option {
	return func(c *Controller) { c.ctx = async.Detach(ctx) }
}

func New(api interfaces.AssessmentAPI, scheduler interfaces.Scheduler, opts ...Option) *Controller {
	c := &Controller{
		api:       api,
		scheduler: scheduler,
		debounce:  DefaultDebounce,
		now:       time.Now,
		ctx:       context.Background(),
		state:     types.SaveStateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load seeds the draft from an existing assessment. Any pending save result
// from a previous load is ignored.
func (c *Controller) Load(a *model.Assessment) {
	c.mu.Lock()
	c.reset()
	c.riskID = a.RiskID
	c.assessmentID = a.ID
	c.saved = model.ValuesOf(a)
	c.draft = c.saved.Clone()
	c.version = a.UpdatedAt
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
}

// LoadNew starts an empty draft for a new assessment of riskID. It is saved
// by Submit only.
func (c *Controller) LoadNew(riskID int64) {
	c.mu.Lock()
	c.reset()
	c.riskID = riskID
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Controller) reset() {
	c.stopTimer()
	c.epoch++
	c.loaded = true
	c.assessmentID = 0
	c.draft = model.AssessmentValues{}
	c.saved = model.AssessmentValues{}
	c.version = ""
	c.hasSaved = false
	c.state = types.SaveStateIdle
	c.conflict = ""
	c.lastErr = nil
	c.queued = false
}

// Edit replaces the draft
func (c *Controller) Edit(values model.AssessmentValues) {
	c.mu.Lock()
	if c.closed || !c.loaded {
		c.mu.Unlock()
		return
	}
	c.draft = values.Clone()
	c.afterEdit()
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
}

// Update applies fn to a copy of the draft and stores the result
func (c *Controller) Update(fn func(v *model.AssessmentValues)) {
	c.mu.Lock()
	if c.closed || !c.loaded {
		c.mu.Unlock()
		return
	}
	next := c.draft.Clone()
	fn(&next)
	c.draft = next
	c.afterEdit()
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
}

func (c *Controller) afterEdit() {
	dirty := c.dirty()

	if c.assessmentID == 0 {
		if dirty {
			c.state = types.SaveStateEditing
		} else {
			c.state = types.SaveStateIdle
		}
		return
	}

	if !dirty && !c.inFlight {
		c.stopTimer()
		c.queued = false
		if c.state != types.SaveStateConflict {
			c.state = c.cleanState()
		}
		return
	}

	c.armTimer()
	c.state = types.SaveStateScheduled
}

func (c *Controller) armTimer() {
	c.stopTimer()
	gen := c.generation
	c.cancelTimer = c.scheduler.ScheduleAfter(c.debounce, func() { c.fire(gen) })
}

// stopTimer cancels the pending timer. Bumping the generation also disarms a
// timer callback that already started.
func (c *Controller) stopTimer() {
	c.generation++
	if c.cancelTimer != nil {
		c.cancelTimer()
		c.cancelTimer = nil
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		return
	}
	c.cancelTimer = nil

	start, _ := c.flush()
	if start == nil && c.state == types.SaveStateScheduled {
		switch {
		case c.inFlight:
			c.state = types.SaveStateSaving
		case c.dirty():
			c.state = types.SaveStateEditing
		default:
			c.state = c.cleanState()
		}
	}
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
	if start != nil {
		go start()
	}
}

// flush sends the draft now, or queues it behind the save in flight when it
// differs from what is being sent. It returns the save to start, if any.
func (c *Controller) flush() (func(), error) {
	if c.assessmentID == 0 {
		return nil, nil
	}
	if c.inFlight {
		if !c.draft.Equal(c.sending) {
			c.queued = true
			c.state = types.SaveStateEditing
		}
		return nil, nil
	}
	if !c.dirty() {
		return nil, nil
	}
	return c.beginSave()
}

// beginSave validates the draft and marks a save in flight. An invalid draft
// sends nothing.
func (c *Controller) beginSave() (func(), error) {
	if err := c.draft.Validate(); err != nil {
		c.lastErr = err
		c.state = types.SaveStateEditing
		c.finishChain(err)
		return nil, err
	}

	payload := c.draft.Clone()
	c.sending = payload
	c.inFlight = true
	c.state = types.SaveStateSaving
	if c.current == nil {
		c.current = &chain{done: make(chan struct{})}
	}

	id, version, epoch := c.assessmentID, c.version, c.epoch
	return func() { c.runSave(id, version, epoch, payload) }, nil
}

func (c *Controller) runSave(id int64, version string, epoch uint64, payload model.AssessmentValues) {
	logger := logging.From(c.ctx)
	logger.Debug("saving assessment", "assessment_id", id, "version", version)

	updated, err := c.api.UpdateAssessment(c.ctx, id, payload.UpdateInput(version))
	if err != nil {
		logger.Debug("assessment save failed", "assessment_id", id, "error", err.Error())
	}

	c.mu.Lock()
	next := c.resolve(epoch, payload, updated, err)
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
	if next != nil {
		next()
	}
}

func (c *Controller) resolve(epoch uint64, payload model.AssessmentValues, updated *model.Assessment, err error) func() {
	c.inFlight = false
	c.sending = model.AssessmentValues{}

	if epoch != c.epoch {
		c.finishChain(nil)
		return nil
	}

	switch {
	case err == nil:
		c.saved = payload
		if updated != nil {
			c.version = updated.UpdatedAt
		}
		c.hasSaved = true
		c.lastSavedAt = c.now()
		c.conflict = ""
		c.lastErr = nil
		c.saves++

	case model.IsConflict(err):
		c.state = types.SaveStateConflict
		c.conflict = conflictMessage(err)
		c.lastErr = err
		c.stopTimer()
		c.queued = false
		c.finishChain(err)
		return nil

	default:
		c.lastErr = err
	}

	if c.queued && !c.closed && c.dirty() {
		c.queued = false
		next, _ := c.beginSave()
		return next
	}
	c.queued = false

	switch {
	case c.cancelTimer != nil:
		c.state = types.SaveStateScheduled
	case c.dirty():
		c.state = types.SaveStateEditing
	default:
		c.state = c.cleanState()
	}
	c.finishChain(err)
	return nil
}

// Submit saves the draft now. A draft without an assessment ID is created;
// otherwise pending edits are flushed and Submit waits until they settle.
// Submitting a clean draft does nothing.
func (c *Controller) Submit(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if !c.loaded {
		c.mu.Unlock()
		return ErrNotLoaded
	}
	if c.assessmentID == 0 {
		return c.create(ctx)
	}

	c.stopTimer()
	start, err := c.flush()
	if err != nil {
		snap := c.snapshot()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}
	if start == nil && !c.inFlight && c.state == types.SaveStateScheduled {
		c.state = c.cleanState()
	}
	current := c.current
	snap := c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
	if start != nil {
		go start()
	}
	if current == nil {
		return nil
	}
	return wait(ctx, current)
}

// create runs with c.mu held and releases it
func (c *Controller) create(ctx context.Context) error {
	if c.creating {
		c.mu.Unlock()
		return ErrCreateBusy
	}
	values := c.draft.Clone()
	if err := values.Validate(); err != nil {
		c.lastErr = err
		c.state = types.SaveStateEditing
		snap := c.snapshot()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}
	c.creating = true
	c.state = types.SaveStateSaving
	riskID, epoch := c.riskID, c.epoch
	snap := c.snapshot()
	c.mu.Unlock()
	c.notify(snap)

	created, err := c.api.CreateAssessment(ctx, values.CreateInput(riskID))

	c.mu.Lock()
	c.creating = false
	if epoch != c.epoch {
		c.mu.Unlock()
		return err
	}
	if err != nil {
		c.lastErr = err
		c.state = types.SaveStateEditing
		snap = c.snapshot()
		c.mu.Unlock()
		c.notify(snap)
		return err
	}

	c.assessmentID = created.ID
	c.version = created.UpdatedAt
	c.saved = values
	c.hasSaved = true
	c.lastSavedAt = c.now()
	c.lastErr = nil
	c.saves++
	if c.dirty() && !c.closed {
		c.armTimer()
		c.state = types.SaveStateScheduled
	} else {
		c.state = types.SaveStateSaved
	}
	snap = c.snapshot()
	c.mu.Unlock()

	c.notify(snap)
	return nil
}

// Wait blocks until no save is in flight or queued
func (c *Controller) Wait(ctx context.Context) error {
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	if current == nil {
		return nil
	}
	return wait(ctx, current)
}

// Close cancels the pending debounce timer and stops issuing saves. A save
// already in flight is not aborted: it completes in the background and its
// result is still recorded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopTimer()
	c.queued = false
	inFlight := c.inFlight
	c.mu.Unlock()

	if inFlight {
		logging.From(c.ctx).Debug("closing autosave with a save in flight")
	}
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	return Snapshot{
		State:        c.state,
		RiskID:       c.riskID,
		AssessmentID: c.assessmentID,
		Values:       c.draft.Clone(),
		Dirty:        c.dirty(),
		Version:      c.version,
		Conflict:     c.conflict,
		LastError:    c.lastErr,
		LastSavedAt:  c.lastSavedAt,
		InFlight:     c.inFlight || c.creating,
		Saves:        c.saves,
	}
}

func (c *Controller) notify(snap Snapshot) {
	if c.onChange != nil {
		c.onChange(snap)
	}
}

func (c *Controller) dirty() bool {
	return !c.draft.Equal(c.saved)
}

func (c *Controller) cleanState() types.SaveState {
	if c.hasSaved {
		return types.SaveStateSaved
	}
	return types.SaveStateIdle
}

func (c *Controller) finishChain(err error) {
	if c.current == nil {
		return
	}
	c.current.err = err
	close(c.current.done)
	c.current = nil
}

func wait(ctx context.Context, ch *chain) error {
	select {
	case <-ch.done:
		return ch.err
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "interrupted while waiting for autosave")
	}
}

func conflictMessage(err error) string {
	if apiErr, ok := model.AsAPIError(err); ok && apiErr.Problem != nil && apiErr.Problem.Detail != "" {
		return apiErr.Problem.Detail
	}
	return DefaultConflictMessage
}
