package producer

import (
	"context"
	"sync"

	"github.com/alanyoungcy/signalhub/internal/domain"
)

// Static hands out a fixed list of candidates. With once set, the list is
// returned on the first Fetch only.
type Static struct {
	name       string
	candidates []domain.SignalCandidate
	once       bool

	mu   sync.Mutex
	done bool
}

// NewStatic creates a Static producer.
func NewStatic(name string, once bool, candidates ...domain.SignalCandidate) *Static {
	return &Static{name: name, candidates: candidates, once: once}
}

func (s *Static) Name() string { return s.name }

func (s *Static) Fetch(context.Context) ([]domain.SignalCandidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.once && s.done {
		return nil, nil
	}
	s.done = true
	out := make([]domain.SignalCandidate, len(s.candidates))
	copy(out, s.candidates)
	return out, nil
}

var _ domain.SignalProducer = (*Static)(nil)
