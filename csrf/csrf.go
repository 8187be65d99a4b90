package csrf

import (
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
)

// SessionResolver returns the session mapping bound to r.
type SessionResolver func(r *http.Request) (Session, error)

// Protector applies a Guard to every request of a multi-session server.
type Protector struct {
	cfg     Config
	resolve SessionResolver
}

// NewProtector returns a Protector that looks up each request's session with
// resolve. cfg follows the same defaults and validation as New.
func NewProtector(resolve SessionResolver, cfg Config) (*Protector, error) {
	if resolve == nil {
		return nil, &ConfigError{Field: "session resolver", Reason: "resolver is nil"}
	}
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Protector{cfg: cfg, resolve: resolve}, nil
}

// SessionKey returns the session key the token list is stored under.
func (p *Protector) SessionKey() string { return p.cfg.SessionKey }

// FormKey returns the form field the token is read from.
func (p *Protector) FormKey() string { return p.cfg.FormField }

// Protect wraps the given next http.Handler and enforces CSRF protection.
//
// Behavior:
//   - Resolves the request's session and binds a Guard to the request context,
//     so handlers can issue tokens via Token or FromContext.
//   - Non-mutating methods are forwarded unchanged.
//   - Mutating methods must carry a token previously issued to the same
//     session. The token is consumed before next runs.
//   - Any failure is handed to Config.ErrorHandler and next is not called.
func (p *Protector) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		g, err := p.guardFor(r)
		if err != nil {
			p.cfg.Metrics.rejected(rejectReason(err))
			p.cfg.Logger.Error("csrf session resolution failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Error(err),
			)
			p.cfg.ErrorHandler(w, r, err)
			return
		}

		r = r.WithContext(contextWithGuard(r.Context(), g))
		if err := g.Process(w, r, next); err != nil {
			p.cfg.ErrorHandler(w, r, err)
		}
	})
}

// Issue generates a token for the session of r. Use it when rendering a form.
func (p *Protector) Issue(r *http.Request) (string, error) {
	if g, ok := FromContext(r.Context()); ok {
		return g.Issue()
	}
	g, err := p.guardFor(r)
	if err != nil {
		return "", err
	}
	return g.Issue()
}

// TokenHandler returns an HTTP handler that issues a token and writes it.
// This is useful for SPAs to fetch a token and attach it to the next request.
//
// Returns:
// - http.Handler that responds with the token in the response body (text/plain).
func (p *Protector) TokenHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := p.Issue(r)
		if err != nil {
			p.cfg.ErrorHandler(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.Write([]byte(tok))
	})
}

func (p *Protector) guardFor(r *http.Request) (*Guard, error) {
	s, err := p.resolve(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoSession, err)
	}
	if s == nil || isNilRef(s) {
		return nil, ErrNoSession
	}
	return newGuard(s, p.cfg), nil
}

// Token issues a token through the Guard bound to r by Protect.
func Token(r *http.Request) (string, error) {
	g, ok := FromContext(r.Context())
	if !ok {
		return "", ErrNoSession
	}
	return g.Issue()
}

// DefaultErrorHandler answers 403 for rejected tokens and origins, and 500 for
// anything else.
func DefaultErrorHandler(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrMissingToken):
		http.Error(w, "missing CSRF token", http.StatusForbidden)
	case errors.Is(err, ErrInvalidToken):
		http.Error(w, "bad CSRF token", http.StatusForbidden)
	case errors.Is(err, ErrBadOrigin):
		http.Error(w, "invalid origin", http.StatusForbidden)
	default:
		http.Error(w, "CSRF check failed", http.StatusInternalServerError)
	}
}
