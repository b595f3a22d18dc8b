package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alainbuyze/stampscan/internal/detection"
	"github.com/alainbuyze/stampscan/internal/scan"
	"github.com/alainbuyze/stampscan/internal/session"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	recorder, err := session.NewRecorder(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewRecorder failed: %v", err)
	}
	pipeline := detection.NewPipeline(
		detection.NewShapeDetector(detection.DefaultShapeConfig()),
		detection.NewClassifier(detection.DefaultClassifierConfig()),
		nil,
		detection.DefaultPipelineConfig(),
	)
	return &App{
		Runner:   scan.NewRunner(pipeline, nil, recorder),
		Recorder: recorder,
	}
}

func multipartImage(t *testing.T, field string) (*bytes.Buffer, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.Set(x, y, color.White)
		}
	}
	for y := 50; y < 120; y++ {
		for x := 50; x < 110; x++ {
			img.Set(x, y, color.RGBA{R: 40, G: 40, B: 90, A: 255})
		}
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, "sheet.png")
	if err != nil {
		t.Fatalf("CreateFormFile failed: %v", err)
	}
	if err := png.Encode(part, img); err != nil {
		t.Fatalf("png encode failed: %v", err)
	}
	writer.Close()
	return &body, writer.FormDataContentType()
}

func TestPing(t *testing.T) {
	router := NewRouter(newTestApp(t))

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rr.Code)
	}
	if rr.Body.String() != "pong" {
		t.Errorf("body %q, want pong", rr.Body.String())
	}
}

func TestScanEndpoint(t *testing.T) {
	app := newTestApp(t)
	router := NewRouter(app)

	body, contentType := multipartImage(t, "image")
	req := httptest.NewRequest(http.MethodPost, "/api/scan", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		SessionID string          `json:"session_id"`
		Summary   session.Summary `json:"summary"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.SessionID == "" {
		t.Fatal("response has no session ID")
	}

	// The session must be retrievable afterwards.
	req = httptest.NewRequest(http.MethodGet, "/api/sessions/"+resp.SessionID, nil)
	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("GET session status %d", rr.Code)
	}
}

func TestScanEndpointMissingField(t *testing.T) {
	router := NewRouter(newTestApp(t))

	body, contentType := multipartImage(t, "wrong_field")
	req := httptest.NewRequest(http.MethodPost, "/api/scan", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rr.Code)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	router := NewRouter(newTestApp(t))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/20260101_000000_ffffff", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rr.Code)
	}
}

func TestListSessionsEmpty(t *testing.T) {
	router := NewRouter(newTestApp(t))

	req := httptest.NewRequest(http.MethodGet, "/api/sessions", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rr.Code)
	}
}

func TestListPendingEmpty(t *testing.T) {
	router := NewRouter(newTestApp(t))

	req := httptest.NewRequest(http.MethodGet, "/api/pending", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status %d, want 200", rr.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Count != 0 {
		t.Errorf("count %d, want 0", resp.Count)
	}
}

func TestResolvePendingNotFound(t *testing.T) {
	router := NewRouter(newTestApp(t))

	req := httptest.NewRequest(http.MethodPost, "/api/pending/nope.png/resolve", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rr.Code)
	}
}
