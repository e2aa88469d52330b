package facts

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pondera-ai/pondera/pkg/errors"
)

// MemoryStore is the in-memory Store implementation. A single RWMutex
// serializes writes while allowing concurrent reads.
type MemoryStore struct {
	mu     sync.RWMutex
	policy PromotionPolicy

	byID      map[string]*Fact
	bySubject map[string][]string // normalized subject -> fact ids, insertion order
	order     []string            // all fact ids, insertion order
}

// NewMemoryStore creates an empty in-memory fact store.
func NewMemoryStore(policy PromotionPolicy) *MemoryStore {
	return &MemoryStore{
		policy:    policy,
		byID:      make(map[string]*Fact),
		bySubject: make(map[string][]string),
	}
}

func (s *MemoryStore) Insert(ctx context.Context, f *Fact) (*Fact, error) {
	if f == nil {
		return nil, errors.New(errors.InvalidInput, "fact must not be nil")
	}
	if err := errors.CheckContext(ctx, "fact insert"); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	subject := NormalizeText(f.Subject)

	// Corroboration path: merge into an equivalent existing fact.
	for _, id := range s.bySubject[subject] {
		existing := s.byID[id]
		if s.policy.Equivalent(existing, f) {
			s.policy.Corroborate(existing, f)
			s.policy.Promote(ctx, existing)
			existing.UpdatedAt = now(f)
			return existing.Clone(), nil
		}
	}

	stored := f.Clone()
	s.byID[stored.ID] = stored
	s.bySubject[subject] = append(s.bySubject[subject], stored.ID)
	s.order = append(s.order, stored.ID)
	return stored.Clone(), nil
}

func now(f *Fact) time.Time {
	if !f.Provenance.Timestamp.IsZero() {
		return f.Provenance.Timestamp
	}
	return time.Now()
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.byID[id]
	if !ok {
		return nil, errors.WithFields(
			errors.New(errors.ResourceNotFound, "fact not found"),
			errors.Fields{"fact_id": id},
		)
	}
	return f.Clone(), nil
}

func (s *MemoryStore) BySubject(ctx context.Context, subject string) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySubject[NormalizeText(subject)]
	out := make([]*Fact, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) ByTier(ctx context.Context, tier Tier) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Fact
	for _, id := range s.order {
		if f := s.byID[id]; f.Tier == tier {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) ByNode(ctx context.Context, nodeID int) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Fact
	for _, id := range s.order {
		if f := s.byID[id]; f.Provenance.NodeID == nodeID {
			out = append(out, f.Clone())
		}
	}
	return out, nil
}

func (s *MemoryStore) All(ctx context.Context) ([]*Fact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*Fact, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out, nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

func (s *MemoryStore) UpdateConfidence(ctx context.Context, id string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return errors.WithFields(
			errors.New(errors.InvalidInput, "confidence must be in [0,1]"),
			errors.Fields{"confidence": confidence},
		)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "fact not found"),
			errors.Fields{"fact_id": id},
		)
	}
	f.Confidence = confidence
	f.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkDisputed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, ok := s.byID[id]
	if !ok {
		return errors.WithFields(
			errors.New(errors.ResourceNotFound, "fact not found"),
			errors.Fields{"fact_id": id},
		)
	}
	f.Disputed = true
	f.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) PromoteAll(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	promoted := 0
	for _, id := range s.order {
		if s.policy.Promote(ctx, s.byID[id]) {
			promoted++
		}
	}
	return promoted, nil
}

func (s *MemoryStore) Snapshot(ctx context.Context) ([]*Fact, error) {
	return s.All(ctx)
}

func (s *MemoryStore) Restore(ctx context.Context, snapshot []*Fact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*Fact, len(snapshot))
	s.bySubject = make(map[string][]string)
	s.order = s.order[:0]

	// Restore in creation order so corroboration indexes rebuild identically.
	sorted := make([]*Fact, len(snapshot))
	copy(sorted, snapshot)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, f := range sorted {
		stored := f.Clone()
		subject := NormalizeText(stored.Subject)
		s.byID[stored.ID] = stored
		s.bySubject[subject] = append(s.bySubject[subject], stored.ID)
		s.order = append(s.order, stored.ID)
	}
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
