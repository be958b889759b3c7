package storage

import (
	"fmt"
	"strings"
)

const captureTable = "Captures"

// columnSpec describes one column of the capture table. Base columns are
// created by the numbered migrations; the rest are added in place when
// missing, always with a default so existing rows stay valid.
type columnSpec struct {
	name string
	decl string
	base bool
}

// captureColumns is the full required column set, in table order.
var captureColumns = []columnSpec{
	{name: "Id", decl: "INTEGER PRIMARY KEY AUTOINCREMENT", base: true},
	{name: "Timestamp", decl: "INTEGER NOT NULL", base: true},
	{name: "ImageData", decl: "BLOB NOT NULL", base: true},
	{name: "Description", decl: "TEXT NOT NULL DEFAULT ''"},
	{name: "EditedImage", decl: "BLOB NOT NULL DEFAULT x''"},
}

// missingColumns returns the specs absent from present. Names compare
// case-insensitively, as SQLite does.
func missingColumns(present []string) []columnSpec {
	have := make(map[string]struct{}, len(present))
	for _, name := range present {
		have[strings.ToLower(name)] = struct{}{}
	}

	var missing []columnSpec
	for _, col := range captureColumns {
		if _, ok := have[strings.ToLower(col.name)]; !ok {
			missing = append(missing, col)
		}
	}
	return missing
}

// Columns returns the column names of the capture table in table order.
func (s *Store) Columns() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM pragma_table_info(?)", captureTable)
	if err != nil {
		return nil, fmt.Errorf("reading %s columns: %w", captureTable, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// reconcileColumns adds every optional column the capture table lacks.
func (s *Store) reconcileColumns() error {
	present, err := s.Columns()
	if err != nil {
		return err
	}
	if len(present) == 0 {
		return fmt.Errorf("table %s does not exist", captureTable)
	}

	for _, col := range missingColumns(present) {
		if col.base {
			return fmt.Errorf("table %s is missing base column %s", captureTable, col.name)
		}
		ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", captureTable, col.name, col.decl)
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("adding column %s: %w", col.name, err)
		}
	}
	return nil
}
