package csrf

import (
	"crypto/subtle"
	"fmt"
	"io"

	"go.uber.org/zap"
)

// Store keeps the bounded list of valid tokens of one session, oldest first,
// under a single session key.
type Store struct {
	session Session
	key     string
	limit   int
	size    int
	entropy io.Reader
	logger  *zap.Logger
	metrics *Metrics
}

func newStore(session Session, cfg Config) *Store {
	return &Store{
		session: session,
		key:     cfg.SessionKey,
		limit:   cfg.Limit,
		size:    cfg.TokenBytes,
		entropy: cfg.Entropy,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Issue generates a fresh token, appends it to the session list, evicts the
// oldest entries above the limit and writes the list back.
func (s *Store) Issue() (string, error) {
	tok, err := newToken(s.entropy, s.size)
	if err != nil {
		return "", err
	}
	tokens := append(s.load(), tok)
	kept := EvictOverLimit(tokens, s.limit)
	if evicted := len(tokens) - len(kept); evicted > 0 {
		s.metrics.evicted(evicted)
		s.logger.Debug("csrf tokens evicted", zap.Int("count", evicted), zap.Int("limit", s.limit))
	}
	s.session.Set(s.key, kept)
	s.metrics.issued()
	return tok, nil
}

// Contains reports whether token is currently stored.
func (s *Store) Contains(token string) bool {
	found := false
	for _, t := range s.load() {
		if subtle.ConstantTimeCompare([]byte(t), []byte(token)) == 1 {
			found = true
		}
	}
	return found
}

// Consume removes every occurrence of token. Absent tokens are ignored.
func (s *Store) Consume(token string) {
	tokens := s.load()
	kept := tokens[:0]
	for _, t := range tokens {
		if t != token {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tokens) {
		return
	}
	s.session.Set(s.key, kept)
	s.metrics.consumed()
}

// Tokens returns a copy of the stored list, oldest first.
func (s *Store) Tokens() []string {
	return s.load()
}

// load reads the list into a fresh slice so writes never alias a slice
// still held by the session backend.
func (s *Store) load() []string {
	v, ok := s.session.Get(s.key)
	if !ok || v == nil {
		return []string{}
	}
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list), len(list)+1)
		copy(out, list)
		return out
	case []any:
		out := make([]string, 0, len(list)+1)
		for _, item := range list {
			str, ok := item.(string)
			if !ok {
				s.logger.Warn("csrf token list holds a non-string entry, ignoring it",
					zap.String("session_key", s.key))
				continue
			}
			out = append(out, str)
		}
		return out
	default:
		s.logger.Warn("csrf token list has an unexpected type, treating it as empty",
			zap.String("session_key", s.key), zap.String("type", fmt.Sprintf("%T", v)))
		return []string{}
	}
}

// EvictOverLimit drops entries from the front of list until it holds at most
// limit entries. Order is preserved. A non-positive limit leaves list as is.
func EvictOverLimit(list []string, limit int) []string {
	if limit <= 0 || len(list) <= limit {
		return list
	}
	return list[len(list)-limit:]
}
