package autosave_test

import (
	"context"
	"net/http"
	"strconv"
	"sync"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

// fakeAPI stores one assessment per ID and enforces version stamps
type fakeAPI struct {
	mu          sync.Mutex
	assessments map[int64]*model.Assessment
	stamps      []string
	seq         int
	nextID      int64
	updates     []model.UpdateAssessmentInput
	creates     []model.CreateAssessmentInput
	failures    []error

	// when hold is set, every update signals started and waits for a release
	hold    chan struct{}
	started chan struct{}
}

func newFakeAPI(stamps ...string) *fakeAPI {
	return &fakeAPI{
		assessments: make(map[int64]*model.Assessment),
		stamps:      stamps,
		nextID:      100,
	}
}

func (f *fakeAPI) holdUpdates() {
	f.hold = make(chan struct{})
	f.started = make(chan struct{}, 16)
}

func (f *fakeAPI) put(a model.Assessment) *model.Assessment {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assessments[a.ID] = &a
	copied := a
	return &copied
}

// touch simulates a write from another user
func (f *fakeAPI) touch(id int64, stamp string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assessments[id].UpdatedAt = stamp
}

func (f *fakeAPI) failNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, err)
}

func (f *fakeAPI) Updates() []model.UpdateAssessmentInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.UpdateAssessmentInput(nil), f.updates...)
}

func (f *fakeAPI) Creates() []model.CreateAssessmentInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.CreateAssessmentInput(nil), f.creates...)
}

func (f *fakeAPI) nextStamp() string {
	if len(f.stamps) > 0 {
		s := f.stamps[0]
		f.stamps = f.stamps[1:]
		return s
	}
	f.seq++
	return "S" + strconv.Itoa(f.seq)
}

func (f *fakeAPI) GetAssessment(ctx context.Context, id int64) (*model.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.assessments[id]
	if !ok {
		return nil, &model.APIError{Status: http.StatusNotFound, Message: "not found"}
	}
	copied := *a
	return &copied, nil
}

func (f *fakeAPI) CreateAssessment(ctx context.Context, input model.CreateAssessmentInput) (*model.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates = append(f.creates, input)
	if err := f.popFailure(); err != nil {
		return nil, err
	}

	f.nextID++
	a := &model.Assessment{
		ID:          f.nextID,
		RiskID:      input.RiskID,
		Method:      input.Method,
		Score:       input.Score,
		Notes:       input.Notes,
		Attachments: input.Attachments,
		UpdatedAt:   f.nextStamp(),
	}
	f.assessments[a.ID] = a
	copied := *a
	return &copied, nil
}

func (f *fakeAPI) UpdateAssessment(ctx context.Context, id int64, input model.UpdateAssessmentInput) (*model.Assessment, error) {
	f.mu.Lock()
	f.updates = append(f.updates, input)
	hold := f.hold
	f.mu.Unlock()

	if hold != nil {
		f.started <- struct{}{}
		<-hold
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.popFailure(); err != nil {
		return nil, err
	}

	a, ok := f.assessments[id]
	if !ok {
		return nil, &model.APIError{Status: http.StatusNotFound, Message: "not found"}
	}
	if input.UpdatedAt != a.UpdatedAt {
		return nil, &model.APIError{
			Status:  http.StatusConflict,
			Title:   "Conflict",
			Message: "Conflict",
			Problem: &model.ProblemDetails{Title: "Conflict", Status: http.StatusConflict, Detail: "stale version " + input.UpdatedAt},
		}
	}

	a.Method = input.Method
	a.Score = input.Score
	a.Notes = input.Notes
	a.Attachments = input.Attachments
	a.UpdatedAt = f.nextStamp()
	copied := *a
	return &copied, nil
}

func (f *fakeAPI) popFailure() error {
	if len(f.failures) == 0 {
		return nil
	}
	err := f.failures[0]
	f.failures = f.failures[1:]
	return err
}
