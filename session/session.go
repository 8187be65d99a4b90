// Package session provides the per-user key-value mapping the CSRF guard
// stores its tokens in, a cookie-based middleware that loads and saves it
// around each request, and pluggable storage backends.
package session

import (
	"context"
	"errors"
	"maps"
	"net/http"

	"github.com/JeanGrijp/csrfguard/csrf"
)

// Values is the key-value mapping of one session. It satisfies csrf.Session.
type Values map[string]any

var _ csrf.Session = Values(nil)

func (v Values) Get(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

func (v Values) Set(key string, value any) {
	v[key] = value
}

// Clone returns a shallow copy of v. Slices stored by the guard are never
// mutated in place, so a shallow copy is enough to isolate two requests.
func (v Values) Clone() Values {
	out := make(Values, len(v))
	maps.Copy(out, v)
	return out
}

// Store persists session values by session id.
type Store interface {
	// Load returns the values stored under id. An unknown id yields empty
	// Values and a nil error.
	Load(ctx context.Context, id string) (Values, error)
	// Save replaces the values stored under id.
	Save(ctx context.Context, id string, v Values) error
	// Delete removes id. No-op and no error if it doesn't exist.
	Delete(ctx context.Context, id string) error
}

// ErrNotInContext is returned by Resolver for requests that did not go
// through Manager.Middleware.
var ErrNotInContext = errors.New("session: no session in request context")

type ctxKey struct{}

func contextWithBound(ctx context.Context, b *bound) context.Context {
	return context.WithValue(ctx, ctxKey{}, b)
}

// bound is the session attached to one request.
type bound struct {
	id        string
	values    Values
	destroyed bool
}

// FromContext returns the session id and values bound to ctx by the middleware.
func FromContext(ctx context.Context) (string, Values, bool) {
	b, ok := ctx.Value(ctxKey{}).(*bound)
	if !ok || b == nil {
		return "", nil, false
	}
	return b.id, b.values, true
}

// Resolver is a csrf.SessionResolver reading the session bound by the middleware.
func Resolver(r *http.Request) (csrf.Session, error) {
	_, v, ok := FromContext(r.Context())
	if !ok {
		return nil, ErrNotInContext
	}
	return v, nil
}
