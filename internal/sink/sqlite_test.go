package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/reviewsheet/internal/config"
	"github.com/mattjoyce/reviewsheet/internal/lock"
)

func TestSQLiteAppendRow(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "rows.db"), "Reviews", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ack, err := s.AppendRow(ctx, []string{"2024-01-01T00:00:00Z", "repo1/Fix bug", "alice"})
	require.NoError(t, err)

	var got struct {
		TableRange string `json:"tableRange"`
		Updates    struct {
			UpdatedRange string `json:"updatedRange"`
			UpdatedRows  int    `json:"updatedRows"`
			UpdatedCells int    `json:"updatedCells"`
		} `json:"updates"`
	}
	require.NoError(t, json.Unmarshal(ack, &got))
	assert.Equal(t, "Reviews", got.TableRange)
	assert.Equal(t, "Reviews#1", got.Updates.UpdatedRange)
	assert.Equal(t, 1, got.Updates.UpdatedRows)
	assert.Equal(t, 3, got.Updates.UpdatedCells)

	_, err = s.AppendRow(ctx, []string{"", "=1+1"})
	require.NoError(t, err)

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"2024-01-01T00:00:00Z", "repo1/Fix bug", "alice"},
		{"", "=1+1"},
	}, rows)
}

func TestSQLiteConcurrentAppends(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "rows.db"), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	var wg sync.WaitGroup
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AppendRow(ctx, []string{fmt.Sprintf("row-%d", i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows, err := s.Rows(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 10)
}

func TestOpenSelectsBackend(t *testing.T) {
	ctx := context.Background()

	b, err := Open(ctx, config.SinkConfig{Kind: config.SinkSQLite, SQLitePath: filepath.Join(t.TempDir(), "rows.db")})
	require.NoError(t, err)
	_, ok := b.(*SQLite)
	assert.True(t, ok)
	require.NoError(t, b.Close())

	_, err = Open(ctx, config.SinkConfig{Kind: "excel"})
	assert.Error(t, err)
}

func TestSQLiteSingleWriter(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "rows.db")

	first, err := OpenSQLite(ctx, path, "", 0)
	require.NoError(t, err)

	_, err = OpenSQLite(ctx, path, "", 0)
	require.ErrorIs(t, err, lock.ErrLocked)

	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path, "", 0)
	require.NoError(t, err)
	require.NoError(t, second.Close())
}
