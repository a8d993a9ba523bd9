package riskapitest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

const problemContentType = "application/problem+json"

// ConflictDetail is the detail of the problem sent on a stale assessment update
const ConflictDetail = "assessment was modified by another user"

func (s *Server) listRisks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status == "" {
		if raw := q.Get("filters"); raw != "" {
			var filters map[string]string
			if err := json.Unmarshal([]byte(raw), &filters); err != nil {
				writeProblem(w, http.StatusBadRequest, "Bad Request", "filters must be a JSON object", nil)
				return
			}
			status = filters["status"]
		}
	}
	keyword := strings.ToLower(q.Get("query"))

	s.mu.Lock()
	var matched []*model.Risk
	for _, risk := range s.risks {
		if status != "" && string(risk.Status) != status {
			continue
		}
		if keyword != "" && !strings.Contains(strings.ToLower(risk.Code+" "+risk.Label), keyword) {
			continue
		}
		matched = append(matched, copyRisk(risk))
	}
	s.mu.Unlock()

	sortRisks(matched, q.Get("sort"))
	page, size, ok := paging(w, r)
	if !ok {
		return
	}
	data, meta := paginate(matched, page, size)
	writeJSON(w, http.StatusOK, "application/json", model.RiskPage{Data: data, Meta: meta})
}

func (s *Server) getRisk(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s.mu.Lock()
	risk, found := s.risks[id]
	if found {
		risk = copyRisk(risk)
	}
	s.mu.Unlock()

	if !found {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("risk %d not found", id), nil)
		return
	}
	writeJSON(w, http.StatusOK, "application/json", risk)
}

func (s *Server) getAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	a, found := s.Assessment(id)
	if !found {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("assessment %d not found", id), nil)
		return
	}
	writeJSON(w, http.StatusOK, "application/json", a)
}

type assessmentBody struct {
	RiskID      int64              `json:"riskId"`
	Method      string             `json:"method"`
	Score       int                `json:"score"`
	Notes       string             `json:"notes"`
	Attachments []model.Attachment `json:"attachments"`
	UpdatedAt   *string            `json:"updatedAt"`
}

func (b assessmentBody) validate() map[string][]string {
	errs := map[string][]string{}
	if utf8.RuneCountInString(strings.TrimSpace(b.Method)) < model.MinMethodLength {
		errs["method"] = append(errs["method"], "method is too short")
	}
	if b.Score < model.MinAssessmentScore || b.Score > model.MaxAssessmentScore {
		errs["score"] = append(errs["score"], "score must be between 0 and 100")
	}
	for _, att := range b.Attachments {
		if !model.IsAbsoluteURL(att.URL) {
			errs["attachments"] = append(errs["attachments"], "invalid URL: "+att.URL)
		}
	}
	return errs
}

func (s *Server) createAssessment(w http.ResponseWriter, r *http.Request) {
	var body assessmentBody
	if !decodeBody(w, r, &body) {
		return
	}
	errs := body.validate()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.risks[body.RiskID]; !ok {
		errs["riskId"] = append(errs["riskId"], "unknown risk")
	}
	if len(errs) > 0 {
		writeValidationProblem(w, errs)
		return
	}

	a := &model.Assessment{
		ID:          s.newID(),
		RiskID:      body.RiskID,
		Method:      body.Method,
		Score:       body.Score,
		Notes:       body.Notes,
		Attachments: body.Attachments,
		UpdatedAt:   s.newVersion(),
	}
	s.assessments[a.ID] = a
	writeJSON(w, http.StatusCreated, "application/json", copyAssessment(a))
}

func (s *Server) updateAssessment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var body assessmentBody
	if !decodeBody(w, r, &body) {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, found := s.assessments[id]
	if !found {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("assessment %d not found", id), nil)
		return
	}
	if body.UpdatedAt != nil && *body.UpdatedAt != a.UpdatedAt {
		writeProblem(w, http.StatusConflict, "Conflict", ConflictDetail, map[string]any{
			"currentUpdatedAt": a.UpdatedAt,
		})
		return
	}
	if errs := body.validate(); len(errs) > 0 {
		writeValidationProblem(w, errs)
		return
	}

	a.Method = body.Method
	a.Score = body.Score
	a.Notes = body.Notes
	a.Attachments = body.Attachments
	a.UpdatedAt = s.newVersion()
	writeJSON(w, http.StatusOK, "application/json", copyAssessment(a))
}

func (s *Server) listActionPlans(w http.ResponseWriter, r *http.Request) {
	riskID, ok := riskIDParam(w, r)
	if !ok {
		return
	}
	page, size, ok := paging(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	var matched []*model.ActionPlan
	for _, p := range s.actionPlans {
		if p.RiskID == riskID {
			copied := *p
			matched = append(matched, &copied)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	data, meta := paginate(matched, page, size)
	writeJSON(w, http.StatusOK, "application/json", model.ActionPlanPage{Data: data, Meta: meta})
}

func (s *Server) createActionPlan(w http.ResponseWriter, r *http.Request) {
	var in model.CreateActionPlanInput
	if !decodeBody(w, r, &in) {
		return
	}
	errs := map[string][]string{}
	if utf8.RuneCountInString(strings.TrimSpace(in.Title)) < model.MinActionPlanTitleLength {
		errs["title"] = append(errs["title"], "title is required")
	}
	if in.DueDate != "" {
		if _, err := time.Parse(model.DueDateLayout, in.DueDate); err != nil {
			errs["dueDate"] = append(errs["dueDate"], "due date must be YYYY-MM-DD")
		}
	}
	if !in.Status.IsValid() {
		errs["status"] = append(errs["status"], "unknown status")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.risks[in.RiskID]; !ok {
		errs["riskId"] = append(errs["riskId"], "unknown risk")
	}
	if len(errs) > 0 {
		writeValidationProblem(w, errs)
		return
	}

	p := &model.ActionPlan{
		ID:      s.newID(),
		RiskID:  in.RiskID,
		Title:   in.Title,
		DueDate: in.DueDate,
		Owner:   in.Owner,
		Status:  in.Status,
	}
	s.actionPlans[p.ID] = p
	copied := *p
	writeJSON(w, http.StatusCreated, "application/json", &copied)
}

func (s *Server) listDocuments(w http.ResponseWriter, r *http.Request) {
	riskID, ok := riskIDParam(w, r)
	if !ok {
		return
	}
	page, size, ok := paging(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	var matched []*model.Document
	for _, d := range s.documents {
		if d.RiskID == riskID {
			copied := *d
			matched = append(matched, &copied)
		}
	}
	s.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })
	data, meta := paginate(matched, page, size)
	writeJSON(w, http.StatusOK, "application/json", model.DocumentPage{Data: data, Meta: meta})
}

func (s *Server) createDocument(w http.ResponseWriter, r *http.Request) {
	var in model.CreateDocumentInput
	if !decodeBody(w, r, &in) {
		return
	}
	errs := map[string][]string{}
	if utf8.RuneCountInString(strings.TrimSpace(in.Name)) < model.MinDocumentFieldLength {
		errs["name"] = append(errs["name"], "name is required")
	}
	if !model.IsAbsoluteURL(in.URL) {
		errs["url"] = append(errs["url"], "invalid URL")
	}
	if utf8.RuneCountInString(strings.TrimSpace(in.Type)) < model.MinDocumentFieldLength {
		errs["type"] = append(errs["type"], "type is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.risks[in.RiskID]; !ok {
		errs["riskId"] = append(errs["riskId"], "unknown risk")
	}
	if len(errs) > 0 {
		writeValidationProblem(w, errs)
		return
	}

	d := &model.Document{
		ID:     s.newID(),
		RiskID: in.RiskID,
		Name:   in.Name,
		URL:    in.URL,
		Type:   in.Type,
	}
	s.documents[d.ID] = d
	copied := *d
	writeJSON(w, http.StatusCreated, "application/json", &copied)
}

func (s *Server) downloadReport(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	risk, found := s.risks[id]
	var code string
	if found {
		code = risk.Code
	}
	data, hasReport := s.reports[id]
	s.mu.Unlock()

	if !found {
		writeProblem(w, http.StatusNotFound, "Not Found", fmt.Sprintf("risk %d not found", id), nil)
		return
	}
	if !hasReport {
		data = []byte(fmt.Sprintf("%%PDF-1.4\n%% risk report %s\n%%%%EOF\n", code))
	}

	w.Header().Set("Content-Type", "application/pdf")
	if code != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, code))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func sortRisks(risks []*model.Risk, order string) {
	desc := strings.HasPrefix(order, "-")
	field := strings.TrimPrefix(order, "-")

	less := func(a, b *model.Risk) bool { return a.ID < b.ID }
	switch field {
	case "code":
		less = func(a, b *model.Risk) bool { return a.Code < b.Code }
	case "score":
		less = func(a, b *model.Risk) bool { return a.Score < b.Score }
	case "updatedAt":
		less = func(a, b *model.Risk) bool { return a.UpdatedAt.Before(b.UpdatedAt) }
	}
	sort.SliceStable(risks, func(i, j int) bool {
		if desc {
			return less(risks[j], risks[i])
		}
		return less(risks[i], risks[j])
	})
}

func paginate[T any](items []T, page, size int) ([]T, model.PageMeta) {
	meta := model.PageMeta{
		Page:       page,
		Size:       size,
		TotalItems: len(items),
		TotalPages: (len(items) + size - 1) / size,
	}
	start := (page - 1) * size
	if start >= len(items) {
		return []T{}, meta
	}
	end := min(start+size, len(items))
	return items[start:end], meta
}

func paging(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	page, ok := intParam(w, r, "page", model.DefaultPage)
	if !ok {
		return 0, 0, false
	}
	size, ok := intParam(w, r, "size", model.DefaultPageSize)
	if !ok {
		return 0, 0, false
	}
	return page, size, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 1 {
		writeProblem(w, http.StatusBadRequest, "Bad Request", name+" must be a positive integer", nil)
		return 0, false
	}
	return v, true
}

func riskIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(r.URL.Query().Get("riskId"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "riskId is required", nil)
		return 0, false
	}
	return v, true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	v, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "id must be an integer", nil)
		return 0, false
	}
	return v, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "malformed JSON body", nil)
		return false
	}
	return true
}

func readBody(r *http.Request) []byte {
	if r.Body == nil {
		return nil
	}
	body, _ := io.ReadAll(r.Body)
	r.Body = io.NopCloser(bytes.NewReader(body))
	return body
}

func writeValidationProblem(w http.ResponseWriter, errs map[string][]string) {
	writeProblem(w, http.StatusUnprocessableEntity, "Validation Failed", "one or more fields are invalid", map[string]any{
		"errors": errs,
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string, extensions map[string]any) {
	writeJSON(w, status, problemContentType, model.ProblemDetails{
		Type:       "about:blank",
		Title:      title,
		Status:     status,
		Detail:     detail,
		TraceID:    w.Header().Get(traceIDHeader),
		Extensions: extensions,
	})
}

func writeJSON(w http.ResponseWriter, status int, contentType string, v any) {
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
