package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/alainbuyze/stampscan/internal/imaging"
	"github.com/alainbuyze/stampscan/internal/session"
)

const defaultMaxUploadSize = 32 << 20 // 32 MB

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// ScanHandler accepts a multipart upload under the "image" field, runs
// the full pipeline on it, and returns the saved session.
func (app *App) ScanHandler(w http.ResponseWriter, r *http.Request) {
	maxSize := app.MaxUploadSize
	if maxSize <= 0 {
		maxSize = defaultMaxUploadSize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image field")
		return
	}
	defer file.Close()

	img, err := imaging.Decode(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable image: "+err.Error())
		return
	}

	result, err := app.Runner.Scan(r.Context(), img, session.SourceFile, header.Filename)
	if err != nil {
		slog.Error("scan failed", "file", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}

	writeJSON(w, http.StatusOK, struct {
		SessionID string                    `json:"session_id"`
		Summary   session.Summary           `json:"summary"`
		Records   []session.DetectionRecord `json:"detections"`
		ElapsedMS int64                     `json:"elapsed_ms"`
	}{
		SessionID: result.Session.SessionID,
		Summary:   result.Summary,
		Records:   result.Session.Records,
		ElapsedMS: result.Elapsed.Milliseconds(),
	})
}

// ListSessionsHandler returns session summaries, most recent first. It
// serves from the SQLite index when available and falls back to the
// directory listing otherwise.
func (app *App) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	if app.Index != nil {
		rows, err := app.Index.List(100)
		if err == nil {
			writeJSON(w, http.StatusOK, rows)
			return
		}
		slog.Warn("session index unavailable, listing directories", "error", err)
	}

	ids, err := app.Recorder.ListSessions()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing sessions failed")
		return
	}
	writeJSON(w, http.StatusOK, ids)
}

// GetSessionHandler returns one stored session record.
func (app *App) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, err := app.Recorder.LoadSession(id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown session")
			return
		}
		writeError(w, http.StatusInternalServerError, "loading session failed")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// AnnotatedHandler serves the session's annotated overlay image.
func (app *App) AnnotatedHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path := app.Recorder.AnnotatedPath(id)
	if !imaging.Exists(path) {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	http.ServeFile(w, r, path)
}

// ListPendingHandler lists crops queued for manual review.
func (app *App) ListPendingHandler(w http.ResponseWriter, r *http.Request) {
	names, err := app.Recorder.PendingCrops()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "listing pending crops failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Pending []string `json:"pending"`
		Count   int      `json:"count"`
	}{Pending: names, Count: len(names)})
}

// ResolvePendingHandler moves a reviewed crop out of the queue.
func (app *App) ResolvePendingHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := app.Recorder.ResolvePending(name); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "unknown pending crop")
			return
		}
		writeError(w, http.StatusInternalServerError, "resolving crop failed")
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Resolved string `json:"resolved"`
	}{Resolved: name})
}
