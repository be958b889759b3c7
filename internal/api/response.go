package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/kalambet/previouslives/internal/generation"
	"github.com/kalambet/previouslives/internal/pipeline"
	"github.com/kalambet/previouslives/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// TaskResponse is the wire form of a capture task.
type TaskResponse struct {
	ID           string `json:"id" yaml:"id"`
	State        string `json:"state" yaml:"state"`
	Profession   string `json:"profession" yaml:"profession"`
	Age          int    `json:"age" yaml:"age"`
	PersistedID  int64  `json:"persisted_id,omitempty" yaml:"persisted_id,omitempty"`
	ConfirmedID  int64  `json:"confirmed_id,omitempty" yaml:"confirmed_id,omitempty"`
	RecordID     int64  `json:"record_id,omitempty" yaml:"record_id,omitempty"`
	Error        string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	HandoffError string `json:"handoff_error,omitempty" yaml:"handoff_error,omitempty"`
}

func newTaskResponse(t *pipeline.Task) TaskResponse {
	resp := TaskResponse{
		ID:         t.ID,
		State:      t.State().String(),
		Profession: t.Profession,
		Age:        t.Age,
	}
	out, done := t.Outcome()
	if !done {
		return resp
	}
	resp.State = out.State.String()
	resp.PersistedID = out.PersistedID
	resp.ConfirmedID = out.ConfirmedID
	resp.RecordID = out.RecordID
	if out.Err != nil {
		resp.Error = out.Err.Error()
		resp.ErrorKind = ErrorKind(out.Err)
	}
	if out.HandoffErr != nil {
		resp.HandoffError = out.HandoffErr.Error()
	}
	return resp
}

// ErrorKind names the failure class of a capture error.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, generation.ErrUnavailable):
		return "generation_unavailable"
	case errors.Is(err, generation.ErrIdentifierParse):
		return "identifier_parse"
	case errors.Is(err, generation.ErrFailed):
		return "generation_failed"
	case errors.Is(err, storage.ErrNotFound):
		return "record_not_found"
	case errors.Is(err, storage.ErrStorageUnavailable):
		return "storage_unavailable"
	default:
		return "internal"
	}
}

// RecordResponse is the wire form of a capture record without its blobs.
type RecordResponse struct {
	ID             int64  `json:"id" yaml:"id"`
	Timestamp      int64  `json:"timestamp" yaml:"timestamp"`
	CreatedAt      string `json:"created_at" yaml:"created_at"`
	Description    string `json:"description" yaml:"description"`
	RawImageSize   int    `json:"raw_image_size" yaml:"raw_image_size"`
	EditedImageURL string `json:"edited_image_url,omitempty" yaml:"edited_image_url,omitempty"`
	ImageURL       string `json:"image_url" yaml:"image_url"`
	Finalized      bool   `json:"finalized" yaml:"finalized"`
}

// NewRecordResponse converts a stored record.
func NewRecordResponse(rec storage.CaptureRecord) RecordResponse {
	base := "/captures/" + strconv.FormatInt(rec.ID, 10)
	resp := RecordResponse{
		ID:           rec.ID,
		Timestamp:    rec.Timestamp,
		CreatedAt:    rec.CreatedAt().Format(time.RFC3339),
		Description:  rec.Description,
		RawImageSize: len(rec.RawImage),
		ImageURL:     base + "/image",
		Finalized:    rec.Finalized(),
	}
	if len(rec.EditedImage) > 0 {
		resp.EditedImageURL = base + "/edited"
	}
	return resp
}

type listResponse struct {
	Total int                      `json:"total"`
	Items []storage.CaptureSummary `json:"items"`
}
