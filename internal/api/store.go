package api

import (
	"cmp"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/samcharles93/strata/internal/export"
)

const inspectionObject = "inspection"

// Store keeps inspection results in memory.
type Store struct {
	mu          sync.Mutex
	inspections map[string]*Inspection
}

func NewStore() *Store {
	return &Store{
		inspections: make(map[string]*Inspection),
	}
}

func (s *Store) Create(doc *export.Document, now time.Time) Inspection {
	insp := &Inspection{
		ID:        newInspectionID(),
		Object:    inspectionObject,
		CreatedAt: now.Unix(),
		Document:  doc,
	}
	s.mu.Lock()
	s.inspections[insp.ID] = insp
	s.mu.Unlock()
	return *insp
}

func (s *Store) Get(id string) (Inspection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	insp, ok := s.inspections[id]
	if !ok {
		return Inspection{}, false
	}
	return *insp, true
}

// List returns summaries, newest first. Ties are ordered by id.
func (s *Store) List() []InspectionSummary {
	s.mu.Lock()
	out := make([]InspectionSummary, 0, len(s.inspections))
	for _, insp := range s.inspections {
		out = append(out, InspectionSummary{
			ID:        insp.ID,
			Object:    insp.Object,
			CreatedAt: insp.CreatedAt,
			Name:      insp.Document.Name,
			Format:    insp.Document.Format,
			Tensors:   len(insp.Document.Tensors),
		})
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b InspectionSummary) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inspections[id]; !ok {
		return false
	}
	delete(s.inspections, id)
	return true
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inspections)
}

func newInspectionID() string {
	return "insp_" + uuid.NewString()
}
