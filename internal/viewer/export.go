package viewer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kalambet/previouslives/internal/storage"
)

// RecordFetcher loads a capture record by ID.
type RecordFetcher interface {
	FetchByID(ctx context.Context, id int64) (storage.CaptureRecord, error)
}

// Exporter writes each handed-off record to Dir as <id>.png, <id>-edited.png
// and <id>.txt. Empty fields produce no file.
type Exporter struct {
	Store RecordFetcher
	Dir   string
}

func (e *Exporter) Show(ctx context.Context, h Handoff) error {
	rec, err := e.Store.FetchByID(ctx, h.RecordID)
	if err != nil {
		return fmt.Errorf("export record %d: %w", h.RecordID, err)
	}
	_, err = WriteRecord(e.Dir, rec)
	return err
}

// WriteRecord writes rec's non-empty fields into dir and returns the paths written.
func WriteRecord(dir string, rec storage.CaptureRecord) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating export dir: %w", err)
	}

	var written []string
	for _, f := range recordFiles(rec) {
		if len(f.data) == 0 {
			continue
		}
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, f.data, 0o644); err != nil {
			return written, fmt.Errorf("writing %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}

type recordFile struct {
	name string
	data []byte
	// contentType is used by object-store exporters.
	contentType string
}

func recordFiles(rec storage.CaptureRecord) []recordFile {
	return []recordFile{
		{fmt.Sprintf("%d.png", rec.ID), rec.RawImage, "image/png"},
		{fmt.Sprintf("%d-edited.png", rec.ID), rec.EditedImage, "image/png"},
		{fmt.Sprintf("%d.txt", rec.ID), []byte(rec.Description), "text/plain; charset=utf-8"},
	}
}
