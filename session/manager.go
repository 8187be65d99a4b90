package session

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Config struct {
	// Cookie
	CookieName     string
	CookiePath     string
	CookieDomain   string
	CookieSecure   bool
	CookieSameSite http.SameSite
	CookieMaxAge   int // in seconds

	Logger *zap.Logger
}

// Manager binds a session to every request through a cookie holding the
// session id.
type Manager struct {
	cfg   Config
	store Store
}

func NewManager(store Store, cfg Config) *Manager {
	// reasonable defaults
	if cfg.CookieName == "" {
		cfg.CookieName = "session_id"
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Manager{cfg: cfg, store: store}
}

// Middleware loads the session of the request before calling next and saves
// it before the first byte of the response is written. Requests without a
// valid session cookie get a new session id.
//
// The session is saved again once next returns, including when it panics, so
// a token consumed by the CSRF guard stays consumed whatever the handler does.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id, fresh := m.sessionID(r)

		values, err := m.store.Load(ctx, id)
		if err != nil {
			m.cfg.Logger.Error("session load failed", zap.String("path", r.URL.Path), zap.Error(err))
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		if values == nil {
			values = Values{}
		}

		b := &bound{id: id, values: values}
		save := func() {
			if b.destroyed || (fresh && len(values) == 0) {
				return
			}
			if err := m.store.Save(ctx, id, values); err != nil {
				m.cfg.Logger.Error("session save failed", zap.String("path", r.URL.Path), zap.Error(err))
			}
		}
		defer save()

		m.setCookie(w, id, m.cfg.CookieMaxAge)
		next.ServeHTTP(&saveOnWrite{ResponseWriter: w, save: save}, r.WithContext(contextWithBound(ctx, b)))
	})
}

// saveOnWrite persists the session right before the response headers go out,
// so a client never sees a token the store does not hold yet.
type saveOnWrite struct {
	http.ResponseWriter
	save  func()
	saved bool
}

func (w *saveOnWrite) flushSession() {
	if !w.saved {
		w.saved = true
		w.save()
	}
}

func (w *saveOnWrite) WriteHeader(code int) {
	w.flushSession()
	w.ResponseWriter.WriteHeader(code)
}

func (w *saveOnWrite) Write(p []byte) (int, error) {
	w.flushSession()
	return w.ResponseWriter.Write(p)
}

func (w *saveOnWrite) Flush() {
	w.flushSession()
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *saveOnWrite) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

// Destroy deletes the session bound to r and expires its cookie.
func (m *Manager) Destroy(w http.ResponseWriter, r *http.Request) error {
	var id string
	if b, ok := r.Context().Value(ctxKey{}).(*bound); ok && b != nil {
		b.destroyed = true
		id = b.id
	} else {
		c, err := r.Cookie(m.cfg.CookieName)
		if err != nil {
			return nil
		}
		id = c.Value
	}
	m.setCookie(w, "", -1)
	return m.store.Delete(r.Context(), id)
}

// sessionID returns the id carried by the request cookie, or a new one.
func (m *Manager) sessionID(r *http.Request) (string, bool) {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		if id, err := uuid.Parse(c.Value); err == nil {
			return id.String(), false
		}
	}
	return uuid.NewString(), true
}

func (m *Manager) setCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    value,
		Path:     m.cfg.CookiePath,
		Domain:   m.cfg.CookieDomain,
		MaxAge:   maxAge,
		SameSite: m.cfg.CookieSameSite,
		Secure:   m.cfg.CookieSecure,
		HttpOnly: true,
	})
}
