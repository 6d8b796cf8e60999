package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lernloop/guidance/internal/domain"
)

// MemoryStore is a mutex-guarded in-memory Store and BanditStore.
type MemoryStore struct {
	mu           sync.RWMutex
	interactions map[string][]domain.Interaction
	textbooks    map[string]*domain.Textbook
	pdfIndex     *domain.PdfIndexDoc
	profiles     map[string]*domain.LearnerProfile
	bandits      map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		interactions: make(map[string][]domain.Interaction),
		textbooks:    make(map[string]*domain.Textbook),
		profiles:     make(map[string]*domain.LearnerProfile),
		bandits:      make(map[string][]byte),
	}
}

func (s *MemoryStore) InteractionsByLearner(_ context.Context, learnerID string) ([]domain.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.interactions[learnerID]
	out := make([]domain.Interaction, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.Before(out[j].OccurredAt)
	})
	return out, nil
}

func (s *MemoryStore) SaveInteraction(_ context.Context, it domain.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interactions[it.LearnerID] = append(s.interactions[it.LearnerID], it)
	return nil
}

func (s *MemoryStore) Textbook(_ context.Context, id string) (*domain.Textbook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tb, ok := s.textbooks[id]
	if !ok {
		return nil, nil
	}
	cp := *tb
	cp.Units = append([]domain.TextbookUnit(nil), tb.Units...)
	return &cp, nil
}

func (s *MemoryStore) SaveTextbookUnit(_ context.Context, textbookID, title string, unit domain.TextbookUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tb, ok := s.textbooks[textbookID]
	if !ok {
		tb = &domain.Textbook{ID: textbookID, Title: title}
		s.textbooks[textbookID] = tb
	}
	for i := range tb.Units {
		if tb.Units[i].ID == unit.ID {
			tb.Units[i] = unit
			return nil
		}
	}
	tb.Units = append(tb.Units, unit)
	return nil
}

func (s *MemoryStore) PdfIndex(_ context.Context) (*domain.PdfIndexDoc, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.pdfIndex == nil {
		return nil, nil
	}
	cp := *s.pdfIndex
	cp.Passages = append([]domain.Passage(nil), s.pdfIndex.Passages...)
	return &cp, nil
}

func (s *MemoryStore) SavePdfIndex(_ context.Context, doc *domain.PdfIndexDoc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc == nil {
		s.pdfIndex = nil
		return nil
	}
	cp := *doc
	cp.Passages = append([]domain.Passage(nil), doc.Passages...)
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now()
	}
	s.pdfIndex = &cp
	return nil
}

func (s *MemoryStore) Profile(_ context.Context, learnerID string) (*domain.LearnerProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[learnerID]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (s *MemoryStore) SaveProfile(_ context.Context, p *domain.LearnerProfile) error {
	if p == nil {
		return domain.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *p
	cp.UpdatedAt = time.Now()
	s.profiles[p.LearnerID] = &cp
	return nil
}

func (s *MemoryStore) BanditSnapshot(_ context.Context, learnerID string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.bandits[learnerID]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) SaveBanditSnapshot(_ context.Context, learnerID string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bandits[learnerID] = append([]byte(nil), data...)
	return nil
}

func (s *MemoryStore) DeleteBanditSnapshot(_ context.Context, learnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bandits, learnerID)
	return nil
}
