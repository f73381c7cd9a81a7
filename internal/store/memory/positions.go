// Package memory implements the domain store, cache and bus interfaces in
// process memory. It backs tests and the `storage = "memory"` deployment.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// PositionStore implements domain.PositionStore.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[string]domain.Position
}

// NewPositionStore creates an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[string]domain.Position)}
}

func (s *PositionStore) Create(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; ok {
		return domain.ErrAlreadyExists
	}
	s.positions[pos.ID] = pos
	return nil
}

func (s *PositionStore) Update(ctx context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; !ok {
		return domain.ErrNotFound
	}
	s.positions[pos.ID] = pos
	return nil
}

func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pos, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *PositionStore) ListOpen(ctx context.Context, accountID string) ([]domain.Position, error) {
	return s.filter(func(p domain.Position) bool {
		return p.AccountID == accountID && p.IsOpen()
	}), nil
}

func (s *PositionStore) ListAllOpen(ctx context.Context) ([]domain.Position, error) {
	return s.filter(domain.Position.IsOpen), nil
}

func (s *PositionStore) ListHistory(ctx context.Context, accountID string, opts domain.ListOpts) ([]domain.Position, error) {
	out := s.filter(func(p domain.Position) bool {
		if p.AccountID != accountID {
			return false
		}
		return inRange(p.OpenedAt, opts)
	})
	return paginate(out, opts), nil
}

func (s *PositionStore) ListClosedBefore(ctx context.Context, before time.Time) ([]domain.Position, error) {
	return s.filter(func(p domain.Position) bool {
		return !p.IsOpen() && p.ClosedAt != nil && p.ClosedAt.Before(before)
	}), nil
}

// filter returns matching positions, newest first.
func (s *PositionStore) filter(keep func(domain.Position) bool) []domain.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Position
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].OpenedAt.After(out[j].OpenedAt)
	})
	return out
}

func inRange(t time.Time, opts domain.ListOpts) bool {
	if opts.Since != nil && t.Before(*opts.Since) {
		return false
	}
	if opts.Until != nil && t.After(*opts.Until) {
		return false
	}
	return true
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && len(items) > opts.Limit {
		items = items[:opts.Limit]
	}
	return items
}

var _ domain.PositionStore = (*PositionStore)(nil)
