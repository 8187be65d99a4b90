// Package csrf provides CSRF protection for Go net/http servers using
// session-stored, single-use synchronizer tokens.
//
// How it works
//   - Issuing: when a form is rendered, Issue generates a random token
//     (16 bytes, hex-encoded) and appends it to a list kept in the user's
//     session. The list is bounded; the oldest tokens are evicted first.
//   - Non-mutating methods (anything outside Config.Methods, default POST,
//     PUT, DELETE) pass through untouched.
//   - Mutating methods must carry a token in the form field (default "_csrf")
//     or, when configured, in a header. A missing token fails with
//     ErrMissingToken, an unknown one with ErrInvalidToken. A valid token is
//     removed from the session before the request is forwarded, so it can be
//     used exactly once.
//
// # Configuration
//
// All behavior is driven by Config. Key fields include:
//   - Limit (default: 50), SessionKey (default: "csrf.token")
//   - FormField (default: "_csrf"), HeaderName (default: none)
//   - Methods (default: POST, PUT, DELETE)
//   - EnforceOriginCheck and AllowedOrigin (empty means use the request host)
//   - Logger, Metrics, ErrorHandler
//
// Single session
//
//	g, err := csrf.New(sessionMap, csrf.Config{})
//	tok, _ := g.Issue()
//	err = g.Process(w, r, next) // ErrMissingToken / ErrInvalidToken on rejection
//
// Middleware
//
//	p, err := csrf.NewProtector(session.Resolver, csrf.Config{})
//	protected := p.Protect(appMux)
//
// In handlers, issue a token for the form being rendered:
//
//	tok, err := csrf.Token(r)
package csrf
