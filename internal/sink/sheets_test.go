package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

func newTestSheets(t *testing.T, handler http.HandlerFunc, timeout time.Duration) *Sheets {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	s, err := NewSheets(context.Background(), SheetsConfig{
		SpreadsheetID: "sheet-123",
		Range:         "Reviews!A:C",
		Timeout:       timeout,
	},
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	return s
}

func TestSheetsAppendRow(t *testing.T) {
	s := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.True(t, strings.HasPrefix(r.URL.Path, "/v4/spreadsheets/sheet-123/values/"), "path %s", r.URL.Path)
		assert.True(t, strings.HasSuffix(r.URL.Path, ":append"), "path %s", r.URL.Path)
		assert.Equal(t, "USER_ENTERED", r.URL.Query().Get("valueInputOption"))
		assert.Equal(t, "INSERT_ROWS", r.URL.Query().Get("insertDataOption"))

		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		var body struct {
			Range          string     `json:"range"`
			MajorDimension string     `json:"majorDimension"`
			Values         [][]string `json:"values"`
		}
		require.NoError(t, json.Unmarshal(raw, &body))
		assert.Equal(t, "Reviews!A:C", body.Range)
		assert.Equal(t, "ROWS", body.MajorDimension)
		assert.Equal(t, [][]string{{"2024-01-01T00:00:00Z", "repo1/Fix bug", "alice"}}, body.Values)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"spreadsheetId":"sheet-123","tableRange":"Reviews!A1:C4","updates":{"spreadsheetId":"sheet-123","updatedRange":"Reviews!A5:C5","updatedRows":1,"updatedColumns":3,"updatedCells":3}}`)
	}, 0)

	ack, err := s.AppendRow(context.Background(), []string{"2024-01-01T00:00:00Z", "repo1/Fix bug", "alice"})
	require.NoError(t, err)

	var got struct {
		SpreadsheetID string `json:"spreadsheetId"`
		Updates       struct {
			UpdatedRange string `json:"updatedRange"`
			UpdatedRows  int    `json:"updatedRows"`
			UpdatedCells int    `json:"updatedCells"`
		} `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(ack, &got))
	assert.Equal(t, "sheet-123", got.SpreadsheetID)
	assert.Equal(t, "Reviews!A5:C5", got.Updates.UpdatedRange)
	assert.Equal(t, 1, got.Updates.UpdatedRows)
	assert.Equal(t, 3, got.Updates.UpdatedCells)
}

func TestSheetsAppendRowRemoteError(t *testing.T) {
	s := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"The caller does not have permission","status":"PERMISSION_DENIED"}}`)
	}, 0)

	ack, err := s.AppendRow(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.Nil(t, ack)

	var gerr *googleapi.Error
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, http.StatusForbidden, gerr.Code)
}

func TestSheetsAppendRowTimeout(t *testing.T) {
	release := make(chan struct{})
	s := newTestSheets(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}, 50*time.Millisecond)
	defer close(release)

	_, err := s.AppendRow(context.Background(), []string{"x"})
	require.Error(t, err)
}

func TestNewSheetsRequiresTarget(t *testing.T) {
	_, err := NewSheets(context.Background(), SheetsConfig{Range: "A:A"}, option.WithoutAuthentication())
	assert.Error(t, err)

	_, err = NewSheets(context.Background(), SheetsConfig{SpreadsheetID: "x"}, option.WithoutAuthentication())
	assert.Error(t, err)
}
