package csrf

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// Guard validates and consumes tokens for a single session.
type Guard struct {
	cfg   Config
	store *Store
}

// New builds a Guard over session.
//
// Params:
//   - session: a Session, a map[string]any or a *map[string]any. The guard
//     mutates it in place.
//   - cfg: configuration; zero values take the package defaults.
//
// Returns:
//   - the Guard, or a *ConfigError (matching ErrConfiguration) when session is
//     not a key-value mapping or cfg is invalid.
func New(session any, cfg Config) (*Guard, error) {
	s, err := asSession(session)
	if err != nil {
		return nil, err
	}
	cfg, err = cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return newGuard(s, cfg), nil
}

func newGuard(s Session, cfg Config) *Guard {
	return &Guard{cfg: cfg, store: newStore(s, cfg)}
}

// Issue generates a token for the session, typically while rendering a form.
func (g *Guard) Issue() (string, error) {
	tok, err := g.store.Issue()
	if err != nil {
		g.cfg.Logger.Error("csrf token issuance failed", zap.Error(err))
		return "", err
	}
	g.cfg.Logger.Debug("csrf token issued", zap.String("token", redact(tok)))
	return tok, nil
}

// SessionKey returns the session key the token list is stored under.
func (g *Guard) SessionKey() string { return g.cfg.SessionKey }

// FormKey returns the form field the token is read from.
func (g *Guard) FormKey() string { return g.cfg.FormField }

// Tokens returns the tokens currently valid for the session, oldest first.
func (g *Guard) Tokens() []string { return g.store.Tokens() }

// Check runs the guard for r. Requests whose method is not mutating always
// pass. For mutating requests the token must be present and stored; it is
// consumed before Check returns nil, so it cannot be replayed.
func (g *Guard) Check(r *http.Request) error {
	if !g.cfg.mutating(r.Method) {
		return nil
	}

	if g.cfg.EnforceOriginCheck {
		if err := checkSource(r, g.cfg.AllowedOrigin); err != nil {
			return g.reject(r, err)
		}
	}

	tok, ok, err := extractClientToken(r, g.cfg.HeaderName, g.cfg.FormField)
	if err != nil {
		return g.reject(r, fmt.Errorf("%w: %w", ErrMissingToken, err))
	}
	if !ok {
		return g.reject(r, ErrMissingToken)
	}
	if !g.store.Contains(tok) {
		return g.reject(r, ErrInvalidToken)
	}

	g.store.Consume(tok)
	g.cfg.Logger.Debug("csrf token consumed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("token", redact(tok)),
	)
	return nil
}

// Process runs Check and forwards r to next only when it passes. next is
// called at most once and its outcome does not restore a consumed token.
func (g *Guard) Process(w http.ResponseWriter, r *http.Request, next http.Handler) error {
	if err := g.Check(r); err != nil {
		return err
	}
	next.ServeHTTP(w, r)
	return nil
}

func (g *Guard) reject(r *http.Request, err error) error {
	reason := rejectReason(err)
	g.cfg.Metrics.rejected(reason)
	g.cfg.Logger.Warn("csrf request rejected",
		zap.String("reason", reason),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("remote_addr", r.RemoteAddr),
		zap.Error(err),
	)
	return err
}

// checkSource rejects requests whose Origin, or Referer when Origin is
// absent, names a host other than want. An empty want means r.Host.
func checkSource(r *http.Request, want string) error {
	if want == "" {
		want = r.Host
	}
	header := "Origin"
	src := r.Header.Get(header)
	if src == "" {
		header = "Referer"
		src = r.Header.Get(header)
	}
	if src == "" {
		return fmt.Errorf("%w: request carries neither Origin nor Referer", ErrBadOrigin)
	}
	host, ok := sourceHost(src)
	if !ok || !strings.EqualFold(host, want) {
		return fmt.Errorf("%w: %s %q does not match %q", ErrBadOrigin, header, src, want)
	}
	return nil
}
