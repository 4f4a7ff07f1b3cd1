package preview

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/reviewsheet/internal/extract"
)

const savedDelivery = `{
	"action": "submitted",
	"review": {"state": "approved", "submitted_at": "2024-01-01T00:00:00Z"},
	"pull_request": {"title": "Fix bug", "number": 42, "user": {"login": "alice"}},
	"repository": {"name": "repo1"}
}`

func mustSpec(t *testing.T, s string) extract.Spec {
	t.Helper()
	spec, err := extract.ParseSpec(s)
	require.NoError(t, err)
	return spec
}

func TestRun(t *testing.T) {
	spec := mustSpec(t, "review->submitted_at,repository->name+pull_request->title,pull_request->number")

	res, err := Run(spec, "/", []byte(savedDelivery))
	require.NoError(t, err)

	assert.True(t, res.Approved)
	assert.Empty(t, res.Error)
	assert.Equal(t, []string{"2024-01-01T00:00:00Z", "repo1/Fix bug", "42"}, res.Row)
	require.Len(t, res.Cells, 3)
	assert.Equal(t, "repository->name+pull_request->title", res.Cells[1].Spec)
}

func TestRunMissingField(t *testing.T) {
	spec := mustSpec(t, "review->state,pull_request->merged_by->login")

	res, err := Run(spec, "/", []byte(savedDelivery))
	require.NoError(t, err)
	assert.Nil(t, res.Row)
	assert.Contains(t, res.Error, "pull_request->merged_by")
}

func TestRunNotApproved(t *testing.T) {
	spec := mustSpec(t, "review->state")

	res, err := Run(spec, "/", []byte(`{"review":{"state":"commented"}}`))
	require.NoError(t, err)
	assert.False(t, res.Approved)
	assert.Equal(t, []string{"commented"}, res.Row)
}

func TestRunInvalidPayload(t *testing.T) {
	_, err := Run(mustSpec(t, "a"), "/", []byte(`{"a":`))
	assert.Error(t, err)
}

func TestFormatHuman(t *testing.T) {
	res := &Result{
		Approved: true,
		Cells: []Cell{
			{Spec: "review->submitted_at", Value: "2024-01-01T00:00:00Z"},
			{Spec: "pull_request->user->login", Value: "alice"},
		},
	}
	out := FormatHuman(res)
	assert.Contains(t, out, "FIELD")
	assert.Contains(t, out, "pull_request->user->login")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "row would be appended")

	res.Approved = false
	assert.Contains(t, FormatHuman(res), "no row would be written")

	assert.Contains(t, FormatHuman(&Result{Error: "boom"}), "extraction failed: boom")
}

func TestFormatJSON(t *testing.T) {
	out, err := FormatJSON(&Result{Approved: true, Row: []string{"a"}})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, true, decoded["approved"])
	assert.Equal(t, []any{"a"}, decoded["row"])
}
