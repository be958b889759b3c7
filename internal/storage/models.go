package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrStorageUnavailable is returned when the data directory or database file
// cannot be created or opened.
var ErrStorageUnavailable = errors.New("storage unavailable")

// ErrSchemaMigrationFailed is returned when a structural change to the store
// could not be applied.
var ErrSchemaMigrationFailed = errors.New("schema migration failed")

// CaptureRecord is a single captured frame together with its generated
// narrative and edited image. Description and EditedImage are empty until
// generation has finalized the record.
type CaptureRecord struct {
	ID          int64
	Timestamp   int64 // epoch seconds, UTC
	RawImage    []byte
	Description string
	EditedImage []byte
}

// CreatedAt returns Timestamp as a UTC time.
func (r CaptureRecord) CreatedAt() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// Finalized reports whether generation has populated the record.
func (r CaptureRecord) Finalized() bool {
	return r.Description != "" || len(r.EditedImage) > 0
}

// CaptureSummary is a blob-free view of a capture used for listings.
type CaptureSummary struct {
	ID             int64  `json:"id" yaml:"id"`
	Timestamp      int64  `json:"timestamp" yaml:"timestamp"`
	Description    string `json:"description" yaml:"description"`
	RawImageSize   int    `json:"raw_image_size" yaml:"raw_image_size"`
	HasEditedImage bool   `json:"has_edited_image" yaml:"has_edited_image"`
}

// RecordUpdate lists the fields to change on a capture. Nil fields are left
// untouched.
type RecordUpdate struct {
	Description *string
	EditedImage []byte
}

func (u RecordUpdate) empty() bool {
	return u.Description == nil && u.EditedImage == nil
}
