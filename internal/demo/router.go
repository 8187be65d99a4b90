// Package demo wires the CSRF guard into a small chi application: a form
// page that embeds a fresh token and an endpoint that only accepts it once.
package demo

import (
	"html/template"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/JeanGrijp/csrfguard/csrf"
	"github.com/JeanGrijp/csrfguard/session"
)

var formPage = template.Must(template.New("form").Parse(`<!doctype html>
<html>
<body>
<form method="post" action="/transfer">
  <input type="hidden" name="{{.Field}}" value="{{.Token}}">
  <input type="text" name="amount">
  <button type="submit">Send</button>
</form>
</body>
</html>
`))

// NewRouter mounts the application routes behind the session middleware and
// the CSRF protector.
func NewRouter(sessions *session.Manager, p *csrf.Protector, gatherer prometheus.Gatherer, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)
		r.Use(p.Protect)

		// endpoint for SPAs to fetch a token
		r.Get("/csrf-token", p.TokenHandler().ServeHTTP)

		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			tok, err := csrf.Token(r)
			if err != nil {
				logger.Error("issuing form token", zap.Error(err))
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			w.Header().Set("Cache-Control", "no-store")
			if err := formPage.Execute(w, struct{ Field, Token string }{p.FormKey(), tok}); err != nil {
				logger.Error("rendering form", zap.Error(err))
			}
		})

		r.Post("/transfer", func(w http.ResponseWriter, r *http.Request) {
			// if we got here, the token was valid and is now spent
			logger.Info("transfer accepted",
				zap.String("amount", r.PostFormValue("amount")),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte("ok"))
		})

		r.Post("/logout", func(w http.ResponseWriter, r *http.Request) {
			if err := sessions.Destroy(w, r); err != nil {
				logger.Error("destroying session", zap.Error(err))
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
		})
	})

	return r
}
