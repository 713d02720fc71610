package database

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"
)

// Export dumps all three tables as flat field-keyed rows. Used for backup
// and migration; Import of the result into a fresh store round-trips every
// JSON-representable value.
func (s *Store) Export() (*Snapshot, error) {
	creations, err := s.dumpTable("creations")
	if err != nil {
		return nil, err
	}
	posts, err := s.dumpTable("posts")
	if err != nil {
		return nil, err
	}
	meta, err := s.dumpTable("meta")
	if err != nil {
		return nil, err
	}
	return &Snapshot{Creations: creations, Posts: posts, Meta: meta}, nil
}

// Import replaces rows wholesale by primary key.
func (s *Store) Import(snapshot *Snapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin import transaction: %w", err)
	}
	defer tx.Rollback()

	for _, row := range snapshot.Meta {
		key, hasKey := row["key"]
		value, hasValue := row["value"]
		if !hasKey || !hasValue {
			continue
		}
		if _, err := tx.Exec(
			"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
			key, value); err != nil {
			return fmt.Errorf("failed to import meta row: %w", err)
		}
	}

	for _, row := range snapshot.Creations {
		if err := insertRow(tx, "creations", row); err != nil {
			return err
		}
	}
	for _, row := range snapshot.Posts {
		if err := insertRow(tx, "posts", row); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}
	return nil
}

func insertRow(tx *sql.Tx, table string, row map[string]any) error {
	if len(row) == 0 {
		return nil
	}
	columns := make([]string, 0, len(row))
	for column := range row {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	values := make([]any, 0, len(columns))
	for _, column := range columns {
		values = append(values, normalizeImportValue(row[column]))
	}

	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		table,
		strings.Join(columns, ", "),
		strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", "))
	if _, err := tx.Exec(query, values...); err != nil {
		return fmt.Errorf("failed to import %s row: %w", table, err)
	}
	return nil
}

// normalizeImportValue maps JSON-decoded numbers back to sqlite-friendly
// types: whole floats become integers so INTEGER columns round-trip exactly.
func normalizeImportValue(value any) any {
	if f, ok := value.(float64); ok && f == float64(int64(f)) {
		return int64(f)
	}
	return value
}

func (s *Store) dumpTable(table string) ([]map[string]any, error) {
	rows, err := s.db.Query("SELECT * FROM " + table)
	if err != nil {
		return nil, fmt.Errorf("failed to export %s: %w", table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s columns: %w", table, err)
	}

	exported := make([]map[string]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", table, err)
		}

		row := make(map[string]any, len(columns))
		for i, column := range columns {
			value := values[i]
			if b, ok := value.([]byte); ok {
				value = string(b)
			}
			row[column] = value
		}
		exported = append(exported, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating %s rows: %w", table, err)
	}

	return exported, nil
}
