// Package sink appends extracted rows to a tabular store.
//
// Exactly one backend is active per process: Google Sheets in production, or
// a local SQLite table for development and offline runs. Both acknowledge an
// append with the Sheets AppendValuesResponse JSON shape.
package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattjoyce/reviewsheet/internal/config"
)

//go:generate mockgen -destination=mocks/mock_sink.go -package=mocks github.com/mattjoyce/reviewsheet/internal/sink RowSink

// RowSink appends one row of cells and returns the backend's acknowledgment.
// Implementations must be safe for concurrent use.
type RowSink interface {
	AppendRow(ctx context.Context, row []string) (json.RawMessage, error)
}

// Backend is a RowSink owning resources released on shutdown.
type Backend interface {
	RowSink
	Close() error
}

// Open builds the backend selected by cfg.Kind.
func Open(ctx context.Context, cfg config.SinkConfig) (Backend, error) {
	switch cfg.Kind {
	case config.SinkSheets:
		s, err := NewSheets(ctx, SheetsConfig{
			SpreadsheetID:   cfg.SpreadsheetID,
			Range:           cfg.Range,
			CredentialsFile: cfg.CredentialsFile,
			Timeout:         cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SinkSQLite:
		s, err := OpenSQLite(ctx, cfg.SQLitePath, cfg.Range, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}
