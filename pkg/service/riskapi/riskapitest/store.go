package riskapitest

import (
	"fmt"
	"slices"

	"github.com/secmon-lab/riskdesk/pkg/domain/model"
)

// AddRisk seeds a risk. A zero ID is assigned by the server.
func (s *Server) AddRisk(risk model.Risk) *model.Risk {
	s.mu.Lock()
	defer s.mu.Unlock()

	if risk.ID == 0 {
		risk.ID = s.newID()
	}
	s.bumpID(risk.ID)
	s.risks[risk.ID] = &risk
	return copyRisk(&risk)
}

// AddAssessment seeds an assessment. Empty ID and version stamp are assigned
// by the server.
func (s *Server) AddAssessment(a model.Assessment) *model.Assessment {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == 0 {
		a.ID = s.newID()
	}
	s.bumpID(a.ID)
	if a.UpdatedAt == "" {
		a.UpdatedAt = s.newVersion()
	}
	a.Attachments = slices.Clone(a.Attachments)
	s.assessments[a.ID] = &a
	return copyAssessment(&a)
}

// Assessment returns the stored assessment
func (s *Server) Assessment(id int64) (*model.Assessment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assessments[id]
	if !ok {
		return nil, false
	}
	return copyAssessment(a), true
}

// TouchAssessment simulates a write by another user: it applies mutate and
// advances the version stamp, which it returns
func (s *Server) TouchAssessment(id int64, mutate func(a *model.Assessment)) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.assessments[id]
	if !ok {
		return ""
	}
	if mutate != nil {
		mutate(a)
	}
	a.UpdatedAt = s.newVersion()
	return a.UpdatedAt
}

// SetNextVersion makes the next version stamp issued by the server equal v
func (s *Server) SetNextVersion(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pinnedVersions = append(s.pinnedVersions, v)
}

// AddActionPlan seeds an action plan
func (s *Server) AddActionPlan(p model.ActionPlan) *model.ActionPlan {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == 0 {
		p.ID = s.newID()
	}
	s.bumpID(p.ID)
	s.actionPlans[p.ID] = &p
	copied := p
	return &copied
}

// AddDocument seeds a document
func (s *Server) AddDocument(d model.Document) *model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()

	if d.ID == 0 {
		d.ID = s.newID()
	}
	s.bumpID(d.ID)
	s.documents[d.ID] = &d
	copied := d
	return &copied
}

// SetReport sets the PDF payload served for a risk
func (s *Server) SetReport(riskID int64, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports[riskID] = slices.Clone(data)
}

func (s *Server) newID() int64 {
	s.nextID++
	return s.nextID
}

func (s *Server) bumpID(id int64) {
	if id > s.nextID {
		s.nextID = id
	}
}

func (s *Server) newVersion() string {
	if len(s.pinnedVersions) > 0 {
		v := s.pinnedVersions[0]
		s.pinnedVersions = s.pinnedVersions[1:]
		return v
	}
	s.versionSeq++
	return fmt.Sprintf("V%d", s.versionSeq)
}

func copyRisk(r *model.Risk) *model.Risk {
	copied := *r
	return &copied
}

func copyAssessment(a *model.Assessment) *model.Assessment {
	copied := *a
	copied.Attachments = slices.Clone(a.Attachments)
	return &copied
}
