package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Append options: values are parsed as if typed by a user (formulas, dates,
// numbers), and each append inserts new rows instead of overwriting.
const (
	valueInputOption = "USER_ENTERED"
	insertDataOption = "INSERT_ROWS"
	majorDimension   = "ROWS"
)

// SheetsConfig identifies the target range and credentials.
type SheetsConfig struct {
	SpreadsheetID string
	Range         string
	// CredentialsFile is a service account key. Empty uses Application Default Credentials.
	CredentialsFile string
	// Timeout bounds one append call. Zero means no limit beyond the caller's context.
	Timeout time.Duration
}

// Sheets appends rows through the Google Sheets v4 API.
type Sheets struct {
	svc           *sheets.Service
	spreadsheetID string
	rangeName     string
	timeout       time.Duration
}

// NewSheets creates the Sheets client. Extra options are applied after the
// defaults, which lets tests point the client at a local endpoint.
func NewSheets(ctx context.Context, cfg SheetsConfig, opts ...option.ClientOption) (*Sheets, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets: spreadsheet id is required")
	}
	if cfg.Range == "" {
		return nil, fmt.Errorf("sheets: range is required")
	}

	clientOpts := []option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := sheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}

	return &Sheets{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		rangeName:     cfg.Range,
		timeout:       cfg.Timeout,
	}, nil
}

// AppendRow appends row below the last row of the configured range.
func (s *Sheets) AppendRow(ctx context.Context, row []string) (json.RawMessage, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	cells := make([]interface{}, len(row))
	for i, v := range row {
		cells[i] = v
	}
	body := &sheets.ValueRange{
		Range:          s.rangeName,
		MajorDimension: majorDimension,
		Values:         [][]interface{}{cells},
	}

	resp, err := s.svc.Spreadsheets.Values.
		Append(s.spreadsheetID, s.rangeName, body).
		ValueInputOption(valueInputOption).
		InsertDataOption(insertDataOption).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheets: append to %s: %w", s.rangeName, err)
	}

	ack, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("sheets: encode append response: %w", err)
	}
	return ack, nil
}

// Close is a no-op; the underlying HTTP client has no resources to release.
func (s *Sheets) Close() error { return nil }
