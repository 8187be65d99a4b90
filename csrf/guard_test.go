package csrf

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// countingHandler records how often the guard forwarded a request.
type countingHandler struct {
	calls int
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls++
	w.WriteHeader(http.StatusAccepted)
	w.Write([]byte("done"))
}

func newTestGuard(t *testing.T, session map[string]any, cfg Config) *Guard {
	t.Helper()
	cfg.Logger = zaptest.NewLogger(t)
	g, err := New(session, cfg)
	require.NoError(t, err)
	return g
}

func formRequest(method string, fields url.Values) *http.Request {
	var body *strings.Reader
	if fields == nil {
		body = strings.NewReader("")
	} else {
		body = strings.NewReader(fields.Encode())
	}
	r := httptest.NewRequest(method, "/submit", body)
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestNewAcceptsMappings(t *testing.T) {
	m := map[string]any{}
	var nilMap map[string]any

	cases := map[string]any{
		"map":         m,
		"map pointer": &nilMap,
		"MapSession":  MapSession{},
	}
	for name, session := range cases {
		t.Run(name, func(t *testing.T) {
			g, err := New(session, Config{})
			require.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
	assert.NotNil(t, nilMap, "pointer target should be initialised")
}

func TestNewRejectsNonMappings(t *testing.T) {
	var nilMap map[string]any
	var nilPtr *map[string]any
	var nilValues valuesSession
	var nilSessionPtr *structSession

	cases := map[string]any{
		"nil":          nil,
		"struct":       struct{ Name string }{"x"},
		"string":       "session",
		"slice":        []string{"a"},
		"nil map":      nilMap,
		"nil pointer":  nilPtr,
		"wrong values": map[string]string{},
		"nil values":   nilValues,
		"nil session":  nilSessionPtr,
	}
	for name, session := range cases {
		t.Run(name, func(t *testing.T) {
			g, err := New(session, Config{})
			require.Error(t, err)
			assert.Nil(t, g)
			assert.ErrorIs(t, err, ErrConfiguration)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr))
			assert.Equal(t, "session", cfgErr.Field)
		})
	}
}

// valuesSession is a named map implementing Session, like the session package's Values.
type valuesSession map[string]any

func (v valuesSession) Get(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

func (v valuesSession) Set(key string, value any) { v[key] = value }

type structSession struct{ m map[string]any }

func (s *structSession) Get(key string) (any, bool) {
	val, ok := s.m[key]
	return val, ok
}

func (s *structSession) Set(key string, value any) { s.m[key] = value }

func TestNewAcceptsSessionImplementations(t *testing.T) {
	vs := valuesSession{}
	g, err := New(vs, Config{})
	require.NoError(t, err)
	tok, err := g.Issue()
	require.NoError(t, err)
	assert.Equal(t, []string{tok}, vs["csrf.token"])

	_, err = New(&structSession{m: map[string]any{}}, Config{})
	require.NoError(t, err)
}

func TestNewRejectsNegativeLimit(t *testing.T) {
	_, err := New(map[string]any{}, Config{Limit: -1})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestDefaults(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})
	assert.Equal(t, "csrf.token", g.SessionKey())
	assert.Equal(t, "_csrf", g.FormKey())
	assert.Equal(t, 50, g.cfg.Limit)
	assert.Equal(t, []string{"POST", "PUT", "DELETE"}, g.cfg.Methods)
}

func TestNonMutatingMethodsPassThrough(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})

	for _, method := range []string{http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			next := &countingHandler{}
			rec := httptest.NewRecorder()
			err := g.Process(rec, httptest.NewRequest(method, "/", nil), next)
			require.NoError(t, err)
			assert.Equal(t, 1, next.calls)
			assert.Equal(t, http.StatusAccepted, rec.Code)
		})
	}
}

func TestMissingTokenRejected(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			next := &countingHandler{}
			err := g.Process(httptest.NewRecorder(), formRequest(method, nil), next)
			assert.ErrorIs(t, err, ErrMissingToken)
			assert.Zero(t, next.calls)
		})
	}
}

func TestValidTokenAccepted(t *testing.T) {
	session := map[string]any{}
	g := newTestGuard(t, session, Config{})

	tok, err := g.Issue()
	require.NoError(t, err)

	next := &countingHandler{}
	rec := httptest.NewRecorder()
	err = g.Process(rec, formRequest(http.MethodPost, url.Values{"_csrf": {tok}}), next)
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "done", rec.Body.String())
	assert.Empty(t, session["csrf.token"])
}

func TestTokenIsSingleUse(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})

	tok, err := g.Issue()
	require.NoError(t, err)

	next := &countingHandler{}
	require.NoError(t, g.Process(httptest.NewRecorder(), formRequest(http.MethodPost, url.Values{"_csrf": {tok}}), next))

	err = g.Process(httptest.NewRecorder(), formRequest(http.MethodPost, url.Values{"_csrf": {tok}}), next)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Equal(t, 1, next.calls)
}

func TestInvalidTokenRejected(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})

	tok, err := g.Issue()
	require.NoError(t, err)

	next := &countingHandler{}
	err = g.Process(httptest.NewRecorder(), formRequest(http.MethodPost, url.Values{"_csrf": {"echec"}}), next)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Zero(t, next.calls)
	assert.Equal(t, []string{tok}, g.Tokens(), "a rejected request must not consume stored tokens")
}

func TestEmptyTokenIsInvalidNotMissing(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})
	_, err := g.Issue()
	require.NoError(t, err)

	err = g.Check(formRequest(http.MethodPost, url.Values{"_csrf": {""}}))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenConsumedEvenIfHandlerFails(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})
	tok, err := g.Issue()
	require.NoError(t, err)

	failing := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	rec := httptest.NewRecorder()
	require.NoError(t, g.Process(rec, formRequest(http.MethodPost, url.Values{"_csrf": {tok}}), failing))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.False(t, g.store.Contains(tok))
}

func TestCustomMethodsAndKeys(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{
		Methods:    []string{"patch", " post "},
		FormField:  "token",
		SessionKey: "forms.csrf",
	})
	tok, err := g.Issue()
	require.NoError(t, err)

	// DELETE is no longer guarded
	require.NoError(t, g.Check(formRequest(http.MethodDelete, nil)))

	assert.ErrorIs(t, g.Check(formRequest(http.MethodPatch, url.Values{"_csrf": {tok}})), ErrMissingToken)
	require.NoError(t, g.Check(formRequest(http.MethodPatch, url.Values{"token": {tok}})))
}

func TestHeaderTokenWhenConfigured(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{HeaderName: "X-CSRF-Token"})
	tok, err := g.Issue()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-CSRF-Token", tok)
	require.NoError(t, g.Check(r))

	r = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader("{}"))
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("X-CSRF-Token", tok)
	assert.ErrorIs(t, g.Check(r), ErrInvalidToken)
}

func TestHeaderIgnoredByDefault(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})
	tok, err := g.Issue()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodPost, "/submit", nil)
	r.Header.Set("X-CSRF-Token", tok)
	assert.ErrorIs(t, g.Check(r), ErrMissingToken)
}

func TestQueryTokenOnDelete(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})
	tok, err := g.Issue()
	require.NoError(t, err)

	r := httptest.NewRequest(http.MethodDelete, "/items/1?_csrf="+tok, nil)
	require.NoError(t, g.Check(r))
}

func TestMultipartFormToken(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{})
	tok, err := g.Issue()
	require.NoError(t, err)

	body := "--XYZ\r\n" +
		"Content-Disposition: form-data; name=\"_csrf\"\r\n\r\n" +
		tok + "\r\n" +
		"--XYZ--\r\n"
	r := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(body))
	r.Header.Set("Content-Type", "multipart/form-data; boundary=XYZ")
	require.NoError(t, g.Check(r))
}

func TestOriginCheck(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{EnforceOriginCheck: true})

	tok, err := g.Issue()
	require.NoError(t, err)

	// Mismatching origin
	bad := formRequest(http.MethodPost, url.Values{"_csrf": {tok}})
	bad.Host = "example.com"
	bad.Header.Set("Origin", "https://evil.com")
	assert.ErrorIs(t, g.Check(bad), ErrBadOrigin)

	// No origin nor referer
	none := formRequest(http.MethodPost, url.Values{"_csrf": {tok}})
	none.Host = "example.com"
	assert.ErrorIs(t, g.Check(none), ErrBadOrigin)

	// Opaque origin
	opaque := formRequest(http.MethodPost, url.Values{"_csrf": {tok}})
	opaque.Host = "example.com"
	opaque.Header.Set("Origin", "null")
	assert.ErrorIs(t, g.Check(opaque), ErrBadOrigin)

	// Origin wins over a matching Referer
	both := formRequest(http.MethodPost, url.Values{"_csrf": {tok}})
	both.Host = "example.com"
	both.Header.Set("Origin", "https://evil.com")
	both.Header.Set("Referer", "https://example.com/page")
	assert.ErrorIs(t, g.Check(both), ErrBadOrigin)

	// Referer fallback, matching host
	ok := formRequest(http.MethodPost, url.Values{"_csrf": {tok}})
	ok.Host = "example.com"
	ok.Header.Set("Referer", "https://example.com/page")
	require.NoError(t, g.Check(ok))
}

func TestOriginCheckAllowedOrigin(t *testing.T) {
	g := newTestGuard(t, map[string]any{}, Config{EnforceOriginCheck: true, AllowedOrigin: "app.example.com"})
	tok, err := g.Issue()
	require.NoError(t, err)

	r := formRequest(http.MethodPost, url.Values{"_csrf": {tok}})
	r.Host = "internal:8080"
	r.Header.Set("Origin", "https://app.example.com")
	require.NoError(t, g.Check(r))
}
