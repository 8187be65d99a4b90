// Package memstore keeps sessions in process memory. The number of live
// sessions is bounded; the least recently used session is dropped first.
// It should not be used if your application runs on more than one instance.
package memstore

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/JeanGrijp/csrfguard/session"
)

const DefaultSize = 10000

var _ session.Store = (*Store)(nil)

type Store struct {
	cache *lru.Cache[string, session.Values]
}

// New returns a Store holding at most size sessions. size <= 0 uses DefaultSize.
func New(size int) (*Store, error) {
	if size <= 0 {
		size = DefaultSize
	}
	c, err := lru.New[string, session.Values](size)
	if err != nil {
		return nil, fmt.Errorf("memstore: creating cache: %w", err)
	}
	return &Store{cache: c}, nil
}

// Load returns a copy of the stored values so concurrent requests of the same
// session never share a map.
func (s *Store) Load(_ context.Context, id string) (session.Values, error) {
	v, ok := s.cache.Get(id)
	if !ok {
		return session.Values{}, nil
	}
	return v.Clone(), nil
}

func (s *Store) Save(_ context.Context, id string, v session.Values) error {
	s.cache.Add(id, v.Clone())
	return nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.cache.Remove(id)
	return nil
}

// Len reports the number of live sessions.
func (s *Store) Len() int {
	return s.cache.Len()
}
