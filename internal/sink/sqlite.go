package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/api/sheets/v4"

	"github.com/mattjoyce/reviewsheet/internal/lock"
	"github.com/mattjoyce/reviewsheet/internal/storage"
)

// DefaultSQLiteRange names the table partition when no range is configured.
const DefaultSQLiteRange = "Sheet1"

// SQLite appends rows into the sheet_rows table of a local database.
type SQLite struct {
	db        *sql.DB
	lock      *lock.File
	path      string
	rangeName string
	timeout   time.Duration
}

// OpenSQLite opens the database at path and prepares the schema.
// The process holds path+".lock" until Close so only one receiver writes the table.
func OpenSQLite(ctx context.Context, path, rangeName string, timeout time.Duration) (*SQLite, error) {
	l, err := lock.Acquire(path + ".lock")
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: %w", err)
	}

	db, err := storage.OpenSQLite(ctx, path)
	if err != nil {
		_ = l.Release()
		return nil, err
	}
	if rangeName == "" {
		rangeName = DefaultSQLiteRange
	}
	return &SQLite{db: db, lock: l, path: path, rangeName: rangeName, timeout: timeout}, nil
}

// AppendRow inserts row and acknowledges it in the Sheets response shape.
func (s *SQLite) AppendRow(ctx context.Context, row []string) (json.RawMessage, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cells, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: encode row: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sheet_rows (id, range_name, cells, appended_at) VALUES (?, ?, ?, ?)`,
		uuid.NewString(), s.rangeName, string(cells), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: insert row: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: read row id: %w", err)
	}

	ack := sheets.AppendValuesResponse{
		SpreadsheetId: "sqlite:" + s.path,
		TableRange:    s.rangeName,
		Updates: &sheets.UpdateValuesResponse{
			SpreadsheetId:  "sqlite:" + s.path,
			UpdatedRange:   fmt.Sprintf("%s#%d", s.rangeName, seq),
			UpdatedRows:    1,
			UpdatedColumns: int64(len(row)),
			UpdatedCells:   int64(len(row)),
		},
	}
	data, err := json.Marshal(ack)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: encode ack: %w", err)
	}
	return data, nil
}

// Rows returns every row of the configured range in append order.
func (s *SQLite) Rows(ctx context.Context) ([][]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cells FROM sheet_rows WHERE range_name = ? ORDER BY seq`, s.rangeName)
	if err != nil {
		return nil, fmt.Errorf("sqlite sink: query rows: %w", err)
	}
	defer rows.Close()

	var out [][]string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("sqlite sink: scan row: %w", err)
		}
		var cells []string
		if err := json.Unmarshal([]byte(raw), &cells); err != nil {
			return nil, fmt.Errorf("sqlite sink: decode row: %w", err)
		}
		out = append(out, cells)
	}
	return out, rows.Err()
}

// Close closes the database and releases the writer lock.
func (s *SQLite) Close() error {
	err := s.db.Close()
	if lerr := s.lock.Release(); err == nil {
		err = lerr
	}
	return err
}
