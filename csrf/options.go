package csrf

import (
	"crypto/rand"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	DefaultLimit      = 50
	DefaultSessionKey = "csrf.token"
	DefaultFormField  = "_csrf"
	DefaultTokenBytes = 16
)

// DefaultMethods are the methods that require a token when Config.Methods is empty.
var DefaultMethods = []string{http.MethodPost, http.MethodPut, http.MethodDelete}

// ErrorHandlerFunc writes the response for a rejected request.
type ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)

type Config struct {
	// Token store
	Limit      int    // max tokens kept per session, oldest evicted first; 0 means DefaultLimit
	SessionKey string // session key holding the token list
	TokenBytes int    // random bytes per token, hex-encoded

	// Token transport
	FormField  string // e.g.: "_csrf"
	HeaderName string // e.g.: "X-CSRF-Token"; empty disables header lookup

	// Methods that require a valid token
	Methods []string

	// Extra security
	EnforceOriginCheck bool
	AllowedOrigin      string // if empty, uses r.Host

	// Entropy source, crypto/rand.Reader when nil
	Entropy io.Reader

	Logger       *zap.Logger
	Metrics      *Metrics
	ErrorHandler ErrorHandlerFunc
}

// withDefaults fills unset fields and validates the rest.
//
// Returns:
//   - the completed Config, or a *ConfigError when a field holds an unusable value.
func (cfg Config) withDefaults() (Config, error) {
	if cfg.Limit < 0 {
		return cfg, &ConfigError{Field: "limit", Reason: "must be positive"}
	}
	if cfg.Limit == 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.TokenBytes < 0 {
		return cfg, &ConfigError{Field: "token bytes", Reason: "must be positive"}
	}
	if cfg.TokenBytes == 0 {
		cfg.TokenBytes = DefaultTokenBytes
	}
	if cfg.SessionKey == "" {
		cfg.SessionKey = DefaultSessionKey
	}
	if cfg.FormField == "" {
		cfg.FormField = DefaultFormField
	}
	if len(cfg.Methods) == 0 {
		cfg.Methods = DefaultMethods
	}
	methods := make([]string, 0, len(cfg.Methods))
	for _, m := range cfg.Methods {
		m = strings.ToUpper(strings.TrimSpace(m))
		if m == "" {
			return cfg, &ConfigError{Field: "methods", Reason: "empty method name"}
		}
		methods = append(methods, m)
	}
	cfg.Methods = methods
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler
	}
	return cfg, nil
}

// mutating reports whether method requires a token.
func (cfg Config) mutating(method string) bool {
	method = strings.ToUpper(method)
	for _, m := range cfg.Methods {
		if m == method {
			return true
		}
	}
	return false
}
