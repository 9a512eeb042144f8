package groups

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"editgate/internal/domain"
	"editgate/internal/metrics"
)

// Session suppresses duplicate lookups within a single resolution. Concurrent
// identical queries share one call and completed results are reused. A
// session must not outlive the resolution that created it.
type Session struct {
	lookup  Lookup
	metrics *metrics.Metrics

	flight singleflight.Group
	mu     sync.Mutex
	done   map[string][]domain.Group
}

func NewSession(lookup Lookup, m *metrics.Metrics) *Session {
	return &Session{
		lookup:  lookup,
		metrics: m,
		done:    make(map[string][]domain.Group),
	}
}

func (s *Session) Groups(ctx context.Context, q Query) ([]domain.Group, error) {
	key := q.Key()
	s.mu.Lock()
	if gs, ok := s.done[key]; ok {
		s.mu.Unlock()
		s.metrics.IncrementDeduplicated()
		return gs, nil
	}
	s.mu.Unlock()

	v, err, shared := s.flight.Do(key, func() (any, error) {
		gs, err := s.lookup.Groups(ctx, q)
		s.metrics.ObserveLookup(string(q.Mode()), err)
		if err != nil {
			var le *LookupError
			if !errors.As(err, &le) {
				err = &LookupError{Query: q, Err: err}
			}
			return nil, err
		}
		s.mu.Lock()
		s.done[key] = gs
		s.mu.Unlock()
		return gs, nil
	})
	if shared {
		s.metrics.IncrementDeduplicated()
	}
	if err != nil {
		return nil, err
	}
	return v.([]domain.Group), nil
}
