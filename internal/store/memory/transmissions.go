package memory

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// TransmissionStore implements domain.TransmissionStore as an append-only
// slice.
type TransmissionStore struct {
	mu   sync.RWMutex
	rows []domain.SignalTransmission
}

// NewTransmissionStore creates an empty TransmissionStore.
func NewTransmissionStore() *TransmissionStore {
	return &TransmissionStore{}
}

func (s *TransmissionStore) Append(ctx context.Context, t domain.SignalTransmission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, t)
	return nil
}

// ListRecent returns rows newest first.
func (s *TransmissionStore) ListRecent(ctx context.Context, opts domain.ListOpts) ([]domain.SignalTransmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SignalTransmission, 0, len(s.rows))
	for i := len(s.rows) - 1; i >= 0; i-- {
		if inRange(s.rows[i].SentAt, opts) {
			out = append(out, s.rows[i])
		}
	}
	return paginate(out, opts), nil
}

// ListBySignal returns rows for signalID in append order.
func (s *TransmissionStore) ListBySignal(ctx context.Context, signalID string) ([]domain.SignalTransmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SignalTransmission
	for _, t := range s.rows {
		if t.SignalID == signalID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *TransmissionStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SignalTransmission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.SignalTransmission
	for _, t := range s.rows {
		if t.SentAt.Before(before) {
			out = append(out, t)
		}
	}
	return out, nil
}

var _ domain.TransmissionStore = (*TransmissionStore)(nil)
