package csrf

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// newToken reads n bytes from src and returns them hex-encoded.
func newToken(src io.Reader, n int) (string, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(src, b); err != nil {
		return "", fmt.Errorf("csrf: reading entropy: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// extractClientToken returns the token presented by the client and whether one
// was present at all. An empty form value still counts as present.
func extractClientToken(r *http.Request, headerName, formField string) (string, bool, error) {
	if headerName != "" {
		if h := r.Header.Get(headerName); h != "" {
			return h, true, nil
		}
	}
	// url-encoded and multipart bodies, plus the query string
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return "", false, fmt.Errorf("csrf: parsing form: %w", err)
	}
	vs, ok := r.Form[formField]
	if !ok || len(vs) == 0 {
		return "", false, nil
	}
	return vs[0], true, nil
}

// sourceHost extracts the host of an Origin or Referer value. Opaque
// origins ("null") and values without a host yield false.
func sourceHost(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", false
	}
	return u.Host, true
}

// redact keeps a short prefix of a token for logs.
func redact(tok string) string {
	if len(tok) <= 6 {
		return "***"
	}
	return tok[:6] + "***"
}
