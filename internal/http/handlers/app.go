package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"aistudio/internal/i18n"
	"aistudio/internal/imaging"
	"aistudio/internal/metrics"
	"aistudio/internal/middleware"
	"aistudio/internal/studio"
)

// ClientIDHeader selects the caller's studio session.
const ClientIDHeader = "X-Client-ID"

// maxUploadBytes bounds how much of an upload is read; the advisory 10 MiB
// limit is reported, not enforced.
const maxUploadBytes = 64 << 20

// App carries the dependencies shared by every handler.
type App struct {
	Studios *studio.Registry
	Imaging *imaging.Preprocessor
	Metrics *metrics.Collector
	Logger  zerolog.Logger
	// RunCtx scopes background generations to the server lifetime rather
	// than the request that started them.
	RunCtx context.Context

	runsMu  sync.Mutex
	closing bool
	runs    sync.WaitGroup
}

func NewApp(runCtx context.Context, studios *studio.Registry, pre *imaging.Preprocessor, collector *metrics.Collector, logger zerolog.Logger) *App {
	return &App{
		Studios: studios,
		Imaging: pre,
		Metrics: collector,
		Logger:  logger.With().Str("component", "http").Logger(),
		RunCtx:  runCtx,
	}
}

// ErrShuttingDown is reported for generations requested after Wait was called.
var ErrShuttingDown = errors.New("server is shutting down")

// Wait stops accepting new generations and blocks until every running one
// has settled.
func (a *App) Wait() {
	a.runsMu.Lock()
	a.closing = true
	a.runsMu.Unlock()
	a.runs.Wait()
}

// beginRun registers a generation with Wait. It reports false once Wait has
// been called.
func (a *App) beginRun() bool {
	a.runsMu.Lock()
	defer a.runsMu.Unlock()
	if a.closing {
		return false
	}
	a.runs.Add(1)
	return true
}

type errorResponse struct {
	Code    string `json:"code"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// error writes the raw error text alongside its localized message.
func (a *App) error(w http.ResponseWriter, r *http.Request, status int, code string, err error, key i18n.Key, args ...any) {
	raw := ""
	if err != nil {
		raw = err.Error()
	}
	a.json(w, status, errorResponse{
		Code:    code,
		Error:   raw,
		Message: a.message(r, key, args...),
	})
}

func (a *App) message(r *http.Request, key i18n.Key, args ...any) string {
	return i18n.T(middleware.LocaleFromContext(r.Context()), key, args...)
}

// session resolves the caller's studio or writes a 400 and returns nil.
func (a *App) session(w http.ResponseWriter, r *http.Request) *studio.Studio {
	s, err := a.Studios.Get(r.Header.Get(ClientIDHeader))
	if err != nil {
		a.error(w, r, http.StatusBadRequest, "invalid_client", err, i18n.ClientInvalid)
		return nil
	}
	return s
}

func (a *App) runContext() context.Context {
	if a.RunCtx != nil {
		return a.RunCtx
	}
	return context.Background()
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("unexpected trailing data")
	}
	return nil
}
