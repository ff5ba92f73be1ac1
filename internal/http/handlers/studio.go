package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"aistudio/internal/domain"
	"aistudio/internal/history"
	"aistudio/internal/i18n"
	"aistudio/internal/imaging"
	"aistudio/internal/studio"
	"aistudio/pkg/zip"
)

type stateResponse struct {
	State   studio.State `json:"state"`
	Message string       `json:"message,omitempty"`
}

type imageResponse struct {
	State     studio.State `json:"state"`
	Oversized bool         `json:"oversized"`
	Message   string       `json:"message"`
}

type outcomeResponse struct {
	Phase    studio.Phase               `json:"phase"`
	Attempts int                        `json:"attempts"`
	Result   *domain.GenerationResponse `json:"result,omitempty"`
	Error    string                     `json:"error,omitempty"`
	Message  string                     `json:"message"`
}

type abortResponse struct {
	Aborted bool   `json:"aborted"`
	Message string `json:"message"`
}

type promptRequest struct {
	Prompt string `json:"prompt"`
}

type styleRequest struct {
	Style string `json:"style"`
}

func (a *App) StudioState(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	a.json(w, http.StatusOK, stateResponse{State: s.Snapshot()})
}

// SetImage accepts either a multipart form with a "file" field or the raw
// image as the request body.
func (a *App) SetImage(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	file, err := readUpload(w, r)
	if err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", err, i18n.RequestInvalid)
		return
	}
	if !a.Imaging.Validate(file) {
		a.error(w, r, http.StatusUnsupportedMediaType, "unsupported_type", imaging.ErrUnsupportedType, i18n.ImageUnsupported)
		return
	}
	oversized := !a.Imaging.IsWithinLimit(file)
	dataURL, err := a.Imaging.Normalize(r.Context(), file)
	if err != nil {
		a.Logger.Warn().Err(err).Str("file", file.Name).Msg("image normalization failed")
		a.error(w, r, http.StatusUnprocessableEntity, "process_failed", imaging.ErrProcessImage, i18n.ImageProcessFailed)
		return
	}
	s.SetImage(dataURL)

	msg := a.message(r, i18n.ImageAccepted)
	if oversized {
		msg = a.message(r, i18n.ImageTooLarge, a.Imaging.MaxFileSize>>20)
	}
	a.json(w, http.StatusOK, imageResponse{State: s.Snapshot(), Oversized: oversized, Message: msg})
}

func readUpload(w http.ResponseWriter, r *http.Request) (imaging.File, error) {
	body := http.MaxBytesReader(w, r.Body, maxUploadBytes)
	contentType := r.Header.Get("Content-Type")
	if isMultipart(contentType) {
		r.Body = body
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			return imaging.File{}, err
		}
		part, header, err := r.FormFile("file")
		if err != nil {
			return imaging.File{}, err
		}
		defer part.Close()
		data, err := io.ReadAll(part)
		if err != nil {
			return imaging.File{}, err
		}
		return imaging.File{Name: header.Filename, ContentType: header.Header.Get("Content-Type"), Data: data}, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return imaging.File{}, err
	}
	if len(data) == 0 {
		return imaging.File{}, errors.New("empty body")
	}
	return imaging.File{Name: r.URL.Query().Get("name"), ContentType: contentType, Data: data}, nil
}

func isMultipart(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && mediaType == "multipart/form-data"
}

func (a *App) SetPrompt(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	var req promptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", err, i18n.RequestInvalid)
		return
	}
	s.SetPrompt(req.Prompt)
	a.json(w, http.StatusOK, stateResponse{State: s.Snapshot()})
}

func (a *App) SetStyle(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	var req styleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		a.error(w, r, http.StatusBadRequest, "bad_request", err, i18n.RequestInvalid)
		return
	}
	if err := s.SetStyle(req.Style); err != nil {
		a.error(w, r, http.StatusBadRequest, "unknown_style", err, i18n.StyleUnknown, req.Style)
		return
	}
	a.json(w, http.StatusOK, stateResponse{State: s.Snapshot()})
}

// Generate starts a generation on the server-scoped context. By default it
// answers 202 once the run is under way; with ?wait=true it blocks until the
// run settles and returns the outcome.
func (a *App) Generate(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	if !a.beginRun() {
		a.error(w, r, http.StatusServiceUnavailable, "shutting_down", ErrShuttingDown, i18n.ShuttingDown)
		return
	}
	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if wait {
		defer a.runs.Done()
		a.writeOutcome(w, r, s.Generate(a.runContext()))
		return
	}

	out, done := s.Start(a.runContext())
	if done == nil {
		a.runs.Done()
		a.writeOutcome(w, r, out)
		return
	}
	go func() {
		defer a.runs.Done()
		<-done
	}()
	a.json(w, http.StatusAccepted, stateResponse{State: s.Snapshot(), Message: a.message(r, i18n.GenerationStarted)})
}

func (a *App) writeOutcome(w http.ResponseWriter, r *http.Request, out studio.Outcome) {
	switch {
	case out.Skipped:
		a.error(w, r, http.StatusConflict, "busy", errors.New("generation already in progress"), i18n.GenerationBusy)
		return
	case errors.Is(out.Err, studio.ErrIncompleteForm):
		a.error(w, r, http.StatusUnprocessableEntity, "incomplete_form", out.Err, i18n.FormIncomplete)
		return
	}

	resp := outcomeResponse{Phase: out.Phase, Attempts: out.Attempts, Result: out.Response}
	status := http.StatusOK
	switch out.Phase {
	case studio.PhaseSucceeded:
		resp.Message = a.message(r, i18n.GenerationSucceeded)
	case studio.PhaseAborted:
		resp.Error = domain.ErrRequestAborted.Message
		resp.Message = a.message(r, i18n.GenerationAborted)
	default:
		status = http.StatusBadGateway
		resp.Error = "Failed to generate image"
		if out.Err != nil {
			resp.Error = out.Err.Error()
		}
		if errors.Is(out.Err, domain.ErrModelOverloaded) {
			resp.Message = a.message(r, i18n.GenerationOverloaded)
		} else {
			resp.Message = a.message(r, i18n.GenerationFailed)
		}
	}
	a.json(w, status, resp)
}

func (a *App) Abort(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	if s.Abort() {
		a.json(w, http.StatusOK, abortResponse{Aborted: true, Message: a.message(r, i18n.AbortRequested)})
		return
	}
	a.json(w, http.StatusOK, abortResponse{Aborted: false, Message: a.message(r, i18n.AbortIdle)})
}

type historyResponse struct {
	Items []domain.HistoryEntry `json:"items"`
}

func (a *App) History(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	items := s.History()
	if items == nil {
		items = []domain.HistoryEntry{}
	}
	a.json(w, http.StatusOK, historyResponse{Items: items})
}

func (a *App) ClearHistory(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	s.ClearHistory(r.Context())
	a.json(w, http.StatusOK, historyResponse{Items: []domain.HistoryEntry{}})
}

func (a *App) RestoreHistory(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.RestoreFromHistory(id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, r, http.StatusNotFound, "not_found", err, i18n.HistoryNotFound)
			return
		}
		a.error(w, r, http.StatusInternalServerError, "internal", err, i18n.Internal)
		return
	}
	a.json(w, http.StatusOK, stateResponse{State: s.Snapshot(), Message: a.message(r, i18n.HistoryRestored)})
}

// ExportHistory streams the caller's history as a zip archive.
func (a *App) ExportHistory(w http.ResponseWriter, r *http.Request) {
	s := a.session(w, r)
	if s == nil {
		return
	}
	assets, err := history.Export(s.History())
	if err != nil {
		a.error(w, r, http.StatusInternalServerError, "internal", err, i18n.Internal)
		return
	}
	raw, err := zip.ArchiveAssets(assets)
	if err != nil {
		a.error(w, r, http.StatusInternalServerError, "internal", err, i18n.Internal)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="ai-studio-history.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(raw)
}
