// Package preview runs a field spec against a saved delivery payload and
// shows the row that would be appended.
package preview

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/mattjoyce/reviewsheet/internal/extract"
	"github.com/mattjoyce/reviewsheet/internal/payload"
	"github.com/mattjoyce/reviewsheet/internal/webhook"
)

// Cell pairs one cell of the spec with its extracted value.
type Cell struct {
	Spec  string `json:"spec"`
	Value string `json:"value"`
}

// Result is the outcome of a preview run.
type Result struct {
	Approved bool     `json:"approved"`
	Cells    []Cell   `json:"cells,omitempty"`
	Row      []string `json:"row,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Run extracts a row from data. Extraction runs even for non-approved
// reviews so a spec can be checked against any saved payload.
func Run(spec extract.Spec, sep string, data []byte) (*Result, error) {
	root, err := payload.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}

	res := &Result{Approved: webhook.IsReviewApproved(root)}
	row, err := spec.Extract(root, sep)
	if err != nil {
		res.Error = err.Error()
		return res, nil
	}

	res.Row = row
	res.Cells = make([]Cell, len(row))
	for i, cell := range spec.Cells {
		res.Cells[i] = Cell{Spec: cell.String(), Value: row[i]}
	}
	return res, nil
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#874BFD"))
)

// FormatHuman renders the result as a table followed by a status line.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Error != "" {
		b.WriteString(failStyle.Render("extraction failed: " + r.Error))
		b.WriteString("\n")
		return b.String()
	}

	rows := make([][]string, 0, len(r.Cells))
	for i, c := range r.Cells {
		rows = append(rows, []string{strconv.Itoa(i + 1), c.Spec, c.Value})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("#", "FIELD", "VALUE").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return cellStyle.Inherit(dimStyle)
			}
			return cellStyle
		})

	b.WriteString(t.Render())
	b.WriteString("\n")
	if r.Approved {
		b.WriteString(okStyle.Render("review approved: row would be appended"))
	} else {
		b.WriteString(dimStyle.Render("review not approved: no row would be written"))
	}
	b.WriteString("\n")
	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
