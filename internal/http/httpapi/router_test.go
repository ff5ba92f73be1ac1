package httpapi

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aistudio/internal/history"
	"aistudio/internal/http/handlers"
	"aistudio/internal/imaging"
	"aistudio/internal/metrics"
	provider "aistudio/internal/providers/image"
	"aistudio/internal/storage"
	"aistudio/internal/studio"
)

type testServer struct {
	handler http.Handler
	app     *handlers.App
	store   *storage.MemoryStore
}

func newTestServer(t *testing.T, simOpts ...provider.Option) *testServer {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := zerolog.Nop()
	store := storage.NewMemoryStore()
	sim := provider.NewSimulator(append([]provider.Option{provider.WithDelayRange(0, 0), provider.WithFailureRate(0)}, simOpts...)...)
	collector := metrics.NewCollector("test")
	registry := studio.NewRegistry(func(clientID string) *studio.Studio {
		cache := history.New(ctx, store, history.DefaultKey+":"+clientID, logger)
		return studio.New(sim, cache,
			studio.WithConfig(studio.Config{MaxAttempts: 3, BackoffBase: time.Millisecond}),
			studio.WithObserver(collector),
		)
	})
	app := handlers.NewApp(ctx, registry, imaging.New(logger), collector, logger)
	t.Cleanup(app.Wait)

	handler := NewRouter(app, Options{
		RateLimitPerMin: 1000,
		AllowedOrigins:  []string{"*"},
		DefaultLocale:   "en",
	})
	return &testServer{handler: handler, app: app, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, contentType string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (ts *testServer) fillForm(t *testing.T, headers map[string]string) {
	t.Helper()
	rec := ts.do(t, http.MethodPut, "/v1/studio/image", "image/png", pngBytes(t, 64, 32), headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPut, "/v1/studio/prompt", "application/json", []byte(`{"prompt":"a jacket on a rooftop"}`), headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = ts.do(t, http.MethodPut, "/v1/studio/style", "application/json", []byte(`{"style":"streetwear"}`), headers)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealthAndStyles(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/v1/healthz", "", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])

	rec = ts.do(t, http.MethodGet, "/v1/styles", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "editorial", body["default"])
	assert.Len(t, body["items"], 5)
}

func TestStudioStateDefaults(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/v1/studio", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	state := decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, "idle", state["phase"])
	assert.Equal(t, false, state["loading"])
	assert.Equal(t, "editorial", state["form"].(map[string]any)["style"])
}

func TestSetImageRejectsUnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPut, "/v1/studio/image", "image/gif", []byte("GIF89a"), nil)
	require.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unsupported_type", body["code"])
	assert.Equal(t, "Please upload a PNG or JPG image", body["message"])

	rec = ts.do(t, http.MethodPut, "/v1/studio/image", "image/gif", []byte("GIF89a"), map[string]string{"Accept-Language": "id-ID"})
	assert.Equal(t, "Silakan unggah gambar PNG atau JPG", decode(t, rec)["message"])
}

func TestSetImageRejectsUndecodableData(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/v1/studio/image", "image/png", []byte("not a png"), nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "Failed to process image", decode(t, rec)["message"])
}

func TestSetImageMultipartDownscales(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{`form-data; name="file"; filename="wide.png"`}
	header["Content-Type"] = []string{"image/png"}
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t, 2400, 600))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	rec := ts.do(t, http.MethodPut, "/v1/studio/image", mw.FormDataContentType(), buf.Bytes(), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, false, body["oversized"])

	dataURL := body["state"].(map[string]any)["form"].(map[string]any)["imageDataUrl"].(string)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
}

func TestSetStyleUnknown(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/v1/studio/style", "application/json", []byte(`{"style":"baroque"}`), nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "unknown_style", body["code"])
	assert.Equal(t, `Unknown style "baroque".`, body["message"])
}

func TestSetPromptRejectsMalformedJSON(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPut, "/v1/studio/prompt", "application/json", []byte(`{"prompt":`), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateIncompleteForm(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/studio/generate", "", nil, nil)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Please provide an image, prompt, and style.", body["error"])
	assert.Equal(t, "incomplete_form", body["code"])
}

func TestGenerateWaitSucceedsAndRecordsHistory(t *testing.T) {
	ts := newTestServer(t)
	ts.fillForm(t, nil)

	rec := ts.do(t, http.MethodPost, "/v1/studio/generate?wait=true", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, "succeeded", body["phase"])
	assert.Equal(t, float64(1), body["attempts"])
	assert.Equal(t, "Your image is ready.", body["message"])
	result := body["result"].(map[string]any)
	id := result["id"].(string)
	assert.Equal(t, "streetwear", result["style"])

	rec = ts.do(t, http.MethodGet, "/v1/studio/history", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decode(t, rec)["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, id, items[0].(map[string]any)["id"])

	_, err := ts.store.Get(context.Background(), history.DefaultKey+":default")
	assert.NoError(t, err)

	rec = ts.do(t, http.MethodPut, "/v1/studio/prompt", "application/json", []byte(`{"prompt":"changed"}`), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/studio/history/"+id+"/restore", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, "a jacket on a rooftop", state["form"].(map[string]any)["prompt"])
	assert.Equal(t, id, state["result"].(map[string]any)["id"])

	rec = ts.do(t, http.MethodPost, "/v1/studio/history/missing/restore", "", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/v1/studio/history/export", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	zr, err := zip.NewReader(bytes.NewReader(rec.Body.Bytes()), int64(rec.Body.Len()))
	require.NoError(t, err)
	require.Len(t, zr.File, 2)
	assert.Equal(t, id+".png", zr.File[0].Name)
	assert.Equal(t, history.ManifestName, zr.File[1].Name)

	rec = ts.do(t, http.MethodDelete, "/v1/studio/history", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode(t, rec)["items"])
}

func TestGenerateWaitFailsAfterOverloads(t *testing.T) {
	ts := newTestServer(t, provider.WithFailureRate(1))
	ts.fillForm(t, map[string]string{"Accept-Language": "id"})

	rec := ts.do(t, http.MethodPost, "/v1/studio/generate?wait=true", "", nil, map[string]string{"Accept-Language": "id"})
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "failed", body["phase"])
	assert.Equal(t, float64(3), body["attempts"])
	assert.Equal(t, "Model overloaded", body["error"])
	assert.Equal(t, "Model sedang sibuk. Silakan coba lagi sebentar lagi.", body["message"])
}

func TestGenerateAsyncThenAbort(t *testing.T) {
	ts := newTestServer(t, provider.WithDelayRange(5*time.Second, 5*time.Second))
	ts.fillForm(t, nil)

	rec := ts.do(t, http.MethodPost, "/v1/studio/generate", "", nil, nil)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	state := decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, true, state["loading"])

	rec = ts.do(t, http.MethodPost, "/v1/studio/generate", "", nil, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = ts.do(t, http.MethodPost, "/v1/studio/abort", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["aborted"])

	ts.app.Wait()

	rec = ts.do(t, http.MethodGet, "/v1/studio", "", nil, nil)
	state = decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, "aborted", state["phase"])
	assert.Equal(t, "Request aborted", state["error"])
	assert.Equal(t, false, state["loading"])
}

func TestAbortWhenIdle(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/studio/abort", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["aborted"])
	assert.Equal(t, "No generation is running.", body["message"])
}

func TestClientsAreIsolated(t *testing.T) {
	ts := newTestServer(t)
	alice := map[string]string{handlers.ClientIDHeader: "alice"}
	ts.fillForm(t, alice)

	rec := ts.do(t, http.MethodGet, "/v1/studio", "", nil, map[string]string{handlers.ClientIDHeader: "bob"})
	state := decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, "", state["form"].(map[string]any)["prompt"])

	rec = ts.do(t, http.MethodGet, "/v1/studio", "", nil, map[string]string{handlers.ClientIDHeader: "../bad"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodGet, "/v1/healthz", "", nil, nil)

	rec := ts.do(t, http.MethodGet, "/metrics", "", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `test_http_requests_total{method="GET",route="/v1/healthz",status="200"} 1`)
}

func TestGenerateRefusedAfterWait(t *testing.T) {
	ts := newTestServer(t)
	ts.fillForm(t, nil)
	ts.app.Wait()

	rec := ts.do(t, http.MethodPost, "/v1/studio/generate", "", nil, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "shutting_down", decode(t, rec)["code"])

	rec = ts.do(t, http.MethodGet, "/v1/studio", "", nil, nil)
	state := decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, "idle", state["phase"])
}

func TestWaitConcurrentWithGenerate(t *testing.T) {
	ts := newTestServer(t)
	ts.fillForm(t, nil)

	var wg sync.WaitGroup
	codes := make([]int, 8)
	for i := range codes {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = ts.do(t, http.MethodPost, "/v1/studio/generate", "", nil, nil).Code
		}(i)
	}
	ts.app.Wait()
	wg.Wait()
	ts.app.Wait()

	for _, code := range codes {
		assert.Contains(t, []int{http.StatusAccepted, http.StatusConflict, http.StatusServiceUnavailable}, code)
	}
	rec := ts.do(t, http.MethodGet, "/v1/studio", "", nil, nil)
	state := decode(t, rec)["state"].(map[string]any)
	assert.Equal(t, false, state["loading"])
}
