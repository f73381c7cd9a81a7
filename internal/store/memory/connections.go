package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// ConnectionStore implements domain.ConnectionStore.
type ConnectionStore struct {
	mu    sync.RWMutex
	conns map[string]domain.ClientConnection
}

// NewConnectionStore creates an empty ConnectionStore.
func NewConnectionStore() *ConnectionStore {
	return &ConnectionStore{conns: make(map[string]domain.ClientConnection)}
}

func (s *ConnectionStore) Upsert(ctx context.Context, conn domain.ClientConnection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn.ID] = conn
	return nil
}

func (s *ConnectionStore) GetByID(ctx context.Context, id string) (domain.ClientConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conns[id]
	if !ok {
		return domain.ClientConnection{}, domain.ErrNotFound
	}
	return c, nil
}

// GetByName returns the most recently connected session for clientName.
func (s *ConnectionStore) GetByName(ctx context.Context, clientName string) (domain.ClientConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		found  domain.ClientConnection
		exists bool
	)
	for _, c := range s.conns {
		if c.ClientName != clientName {
			continue
		}
		if !exists || c.ConnectedAt.After(found.ConnectedAt) {
			found, exists = c, true
		}
	}
	if !exists {
		return domain.ClientConnection{}, domain.ErrNotFound
	}
	return found, nil
}

func (s *ConnectionStore) List(ctx context.Context) ([]domain.ClientConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClientConnection, 0, len(s.conns))
	for _, c := range s.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ConnectedAt.After(out[j].ConnectedAt)
	})
	return out, nil
}

var _ domain.ConnectionStore = (*ConnectionStore)(nil)
