package dashboard

import (
	"sync"

	"github.com/joelkehle/contract-analyzer/internal/contractscore"
)

// Analysis is one finished run as the dashboard keeps it.
type Analysis struct {
	Owner    string
	Envelope contractscore.ResponseEnvelope
	Notice   string
}

func (a *Analysis) ID() string { return a.Envelope.AnalysisID }

// AnalysisStore keeps the most recent analyses in memory. Each owner (session token, or
// visitor token for anonymous callers) has at most one analysis; the oldest entries are evicted once max is
// reached.
type AnalysisStore struct {
	mu      sync.RWMutex
	max     int
	byID    map[string]*Analysis
	byOwner map[string]string
	order   []string
}

func NewAnalysisStore(max int) *AnalysisStore {
	if max <= 0 {
		max = 500
	}
	return &AnalysisStore{
		max:     max,
		byID:    make(map[string]*Analysis),
		byOwner: make(map[string]string),
	}
}

// Put stores a and drops the owner's previous analysis.
func (s *AnalysisStore) Put(a *Analysis) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byOwner[a.Owner]; ok {
		s.deleteLocked(prev)
	}
	s.byID[a.ID()] = a
	s.byOwner[a.Owner] = a.ID()
	s.order = append(s.order, a.ID())
	for len(s.byID) > s.max && len(s.order) > 0 {
		s.deleteLocked(s.order[0])
	}
}

func (s *AnalysisStore) Get(id string) *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byID[id]
}

// Latest returns the owner's current analysis, if any.
func (s *AnalysisStore) Latest(owner string) *Analysis {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byOwner[owner]
	if !ok {
		return nil
	}
	return s.byID[id]
}

func (s *AnalysisStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[id]; !ok {
		return false
	}
	s.deleteLocked(id)
	return true
}

// DropOwner removes whatever the owner has stored, used on logout.
func (s *AnalysisStore) DropOwner(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byOwner[owner]; ok {
		s.deleteLocked(id)
	}
}

func (s *AnalysisStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

func (s *AnalysisStore) deleteLocked(id string) {
	a, ok := s.byID[id]
	if ok {
		delete(s.byID, id)
		if s.byOwner[a.Owner] == id {
			delete(s.byOwner, a.Owner)
		}
	}
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}
