package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"aistudio/internal/http/handlers"
	"aistudio/internal/middleware"
)

// Options configures the cross-cutting middleware.
type Options struct {
	RateLimitPerMin int
	AllowedOrigins  []string
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()

	var recorder middleware.HTTPRecorder
	if app.Metrics != nil {
		recorder = app.Metrics
	}
	r.Use(
		chimw.RealIP,
		middleware.RequestID,
		middleware.Logger(app.Logger, recorder),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/styles", app.Styles)
	r.Get("/metrics", app.MetricsHandler)

	r.Route("/v1/studio", func(r chi.Router) {
		r.Get("/", app.StudioState)
		r.Put("/image", app.SetImage)
		r.Put("/prompt", app.SetPrompt)
		r.Put("/style", app.SetStyle)
		r.With(middleware.RateLimit(opts.RateLimitPerMin, time.Minute)).Post("/generate", app.Generate)
		r.Post("/abort", app.Abort)

		r.Route("/history", func(r chi.Router) {
			r.Get("/", app.History)
			r.Delete("/", app.ClearHistory)
			r.Get("/export", app.ExportHistory)
			r.Post("/{id}/restore", app.RestoreHistory)
		})
	})

	return r
}
