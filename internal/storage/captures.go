package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// Insert stores a new capture with empty Description and EditedImage and
// returns its store-assigned ID. The row is committed when Insert returns.
func (s *Store) Insert(ctx context.Context, timestamp int64, rawImage []byte) (int64, error) {
	if rawImage == nil {
		rawImage = []byte{}
	}
	// Defaults are written explicitly: legacy tables may declare
	// EditedImage NOT NULL without a default.
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO Captures (Timestamp, ImageData, Description, EditedImage)
		VALUES (?, ?, '', x'')`,
		timestamp, rawImage,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting capture: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading capture id: %w", err)
	}
	return id, nil
}

// Update writes the supplied fields of capture id and leaves the rest
// unchanged. It returns ErrNotFound if no capture has that ID.
func (s *Store) Update(ctx context.Context, id int64, u RecordUpdate) error {
	if u.empty() {
		var one int
		err := s.db.QueryRowContext(ctx, "SELECT 1 FROM Captures WHERE Id = ?", id).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	var sets []string
	var args []any
	if u.Description != nil {
		sets = append(sets, "Description = ?")
		args = append(args, *u.Description)
	}
	if u.EditedImage != nil {
		sets = append(sets, "EditedImage = ?")
		args = append(args, u.EditedImage)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, "UPDATE Captures SET "+strings.Join(sets, ", ")+" WHERE Id = ?", args...)
	if err != nil {
		return fmt.Errorf("updating capture %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FetchByID returns the full capture record, or ErrNotFound.
func (s *Store) FetchByID(ctx context.Context, id int64) (CaptureRecord, error) {
	var r CaptureRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT Id, Timestamp, ImageData, Description, EditedImage
		FROM Captures WHERE Id = ?`, id,
	).Scan(&r.ID, &r.Timestamp, &r.RawImage, &r.Description, &r.EditedImage)
	if errors.Is(err, sql.ErrNoRows) {
		return CaptureRecord{}, ErrNotFound
	}
	if err != nil {
		return CaptureRecord{}, fmt.Errorf("fetching capture %d: %w", id, err)
	}
	return r, nil
}

// List returns capture summaries, newest first.
func (s *Store) List(ctx context.Context, limit, offset int) ([]CaptureSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT Id, Timestamp, Description, length(ImageData), length(EditedImage) > 0
		FROM Captures ORDER BY Id DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("listing captures: %w", err)
	}
	defer rows.Close()

	var results []CaptureSummary
	for rows.Next() {
		var c CaptureSummary
		if err := rows.Scan(&c.ID, &c.Timestamp, &c.Description, &c.RawImageSize, &c.HasEditedImage); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// Count returns the number of stored captures.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM Captures").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting captures: %w", err)
	}
	return n, nil
}
