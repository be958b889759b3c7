package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/previouslives/internal/imaging"
	"github.com/kalambet/previouslives/internal/pipeline"
	"github.com/kalambet/previouslives/internal/storage"
	"github.com/kalambet/previouslives/internal/viewer"
)

const maxUploadSize = 20 << 20 // 20MB

// CaptureStore is the read side of the datastore used by the API.
type CaptureStore interface {
	FetchByID(ctx context.Context, id int64) (storage.CaptureRecord, error)
	List(ctx context.Context, limit, offset int) ([]storage.CaptureSummary, error)
	Count(ctx context.Context) (int, error)
}

// Capturer starts captures and looks up running ones.
type Capturer interface {
	Capture(ctx context.Context) (*pipeline.Task, error)
	CaptureImage(ctx context.Context, raw []byte) (*pipeline.Task, error)
	Task(id string) (*pipeline.Task, bool)
}

type AppDeps struct {
	Store    CaptureStore
	Pipeline Capturer
	// Latest is optional; without it /captures/latest answers 404.
	Latest *viewer.Latest
	Token  string
	Logger *slog.Logger
}

// NewAppHandler returns the HTTP API. /health is served without auth.
func NewAppHandler(deps AppDeps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/captures", handleCapture(deps))
		r.Get("/captures", handleListCaptures(deps))
		r.Get("/captures/latest", handleLatestCapture(deps))
		r.Get("/captures/tasks/{taskID}", handleGetTask(deps))
		r.Get("/captures/{id}", handleGetCapture(deps))
		r.Get("/captures/{id}/image", handleCaptureBlob(deps, false))
		r.Get("/captures/{id}/edited", handleCaptureBlob(deps, true))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleCapture(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		defer r.Body.Close()

		upload, err := io.ReadAll(r.Body)
		if err != nil {
			httpError(w, http.StatusRequestEntityTooLarge, "invalid_request_error", "reading upload: %v", err)
			return
		}

		var task *pipeline.Task
		if len(upload) > 0 {
			task, err = deps.Pipeline.CaptureImage(r.Context(), upload)
		} else {
			task, err = deps.Pipeline.Capture(r.Context())
		}
		switch {
		case errors.Is(err, pipeline.ErrBusy):
			httpError(w, http.StatusConflict, "busy", "%v", err)
			return
		case errors.Is(err, pipeline.ErrNoFrame):
			httpError(w, http.StatusUnprocessableEntity, "no_frame", "%v", err)
			return
		case err != nil:
			httpError(w, http.StatusInternalServerError, "api_error", "starting capture: %v", err)
			return
		}
		deps.Logger.Info("capture started", "task_id", task.ID, "upload_bytes", len(upload))

		if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
			if _, err := task.Wait(r.Context()); err != nil && r.Context().Err() != nil {
				return
			}
			writeJSON(w, http.StatusOK, newTaskResponse(task))
			return
		}

		w.Header().Set("Location", "/captures/tasks/"+task.ID)
		writeJSON(w, http.StatusAccepted, newTaskResponse(task))
	}
}

func handleGetTask(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		task, ok := deps.Pipeline.Task(chi.URLParam(r, "taskID"))
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		writeJSON(w, http.StatusOK, newTaskResponse(task))
	}
}

func handleListCaptures(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)
		offset := parseIntParam(r, "offset", 0, 0)

		items, err := deps.Store.List(r.Context(), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list captures: %v", err)
			return
		}
		total, err := deps.Store.Count(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count captures: %v", err)
			return
		}
		if items == nil {
			items = []storage.CaptureSummary{}
		}
		writeJSON(w, http.StatusOK, listResponse{Total: total, Items: items})
	}
}

func handleLatestCapture(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Latest == nil {
			httpError(w, http.StatusNotFound, "not_found", "no capture has been shown yet")
			return
		}
		h, ok := deps.Latest.Get()
		if !ok {
			httpError(w, http.StatusNotFound, "not_found", "no capture has been shown yet")
			return
		}
		writeRecord(w, r, deps, h.RecordID)
	}
}

func handleGetCapture(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}
		writeRecord(w, r, deps, id)
	}
}

func writeRecord(w http.ResponseWriter, r *http.Request, deps AppDeps, id int64) {
	rec, err := deps.Store.FetchByID(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found", "capture %d not found", id)
		return
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get capture: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, NewRecordResponse(rec))
}

func handleCaptureBlob(deps AppDeps, edited bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := recordID(w, r)
		if !ok {
			return
		}
		rec, err := deps.Store.FetchByID(r.Context(), id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "capture %d not found", id)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get capture: %v", err)
			return
		}

		blob, what := rec.RawImage, "image"
		if edited {
			blob, what = rec.EditedImage, "edited image"
		}
		if len(blob) == 0 {
			httpError(w, http.StatusNotFound, "not_found", "capture %d has no %s", id, what)
			return
		}

		ct := "application/octet-stream"
		if f := imaging.Format(blob); f != "" {
			ct = "image/" + f
		}
		w.Header().Set("Content-Type", ct)
		w.Header().Set("Content-Length", strconv.Itoa(len(blob)))
		w.Write(blob)
	}
}

func recordID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid capture id %q", chi.URLParam(r, "id"))
		return 0, false
	}
	return id, true
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
