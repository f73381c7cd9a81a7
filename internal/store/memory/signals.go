package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// SignalStore implements domain.SignalStore.
type SignalStore struct {
	mu      sync.RWMutex
	signals map[string]domain.TradingSignal
}

// NewSignalStore creates an empty SignalStore.
func NewSignalStore() *SignalStore {
	return &SignalStore{signals: make(map[string]domain.TradingSignal)}
}

func (s *SignalStore) Create(ctx context.Context, sig domain.TradingSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.signals[sig.ID] = sig
	return nil
}

func (s *SignalStore) Update(ctx context.Context, sig domain.TradingSignal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.signals[sig.ID]; !ok {
		return domain.ErrNotFound
	}
	s.signals[sig.ID] = sig
	return nil
}

func (s *SignalStore) GetByID(ctx context.Context, id string) (domain.TradingSignal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sig, ok := s.signals[id]
	if !ok {
		return domain.TradingSignal{}, domain.ErrNotFound
	}
	return sig, nil
}

func (s *SignalStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.TradingSignal, error) {
	out := s.filter(func(sig domain.TradingSignal) bool {
		return inRange(sig.CreatedAt, opts)
	})
	return paginate(out, opts), nil
}

func (s *SignalStore) ListPendingBefore(ctx context.Context, before time.Time) ([]domain.TradingSignal, error) {
	return s.filter(func(sig domain.TradingSignal) bool {
		return sig.Status == domain.SignalStatusPending && sig.CreatedAt.Before(before)
	}), nil
}

func (s *SignalStore) filter(keep func(domain.TradingSignal) bool) []domain.TradingSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.TradingSignal
	for _, sig := range s.signals {
		if keep(sig) {
			out = append(out, sig)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

var _ domain.SignalStore = (*SignalStore)(nil)
