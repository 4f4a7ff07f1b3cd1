// Package extract maps a nested webhook payload into a flat spreadsheet row.
//
// A field spec is a comma separated list of cells. Each cell is one or more
// key paths joined by "+", and each key path is a list of object keys joined
// by "->":
//
//	review->submitted_at,repository->name+pull_request->title
//
// produces two cells; the second one holds the repository name and the pull
// request title joined by the configured separator.
package extract

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattjoyce/reviewsheet/internal/payload"
)

// DefaultSeparator joins the key paths of a single cell.
const DefaultSeparator = "/"

const (
	cellDelim = ","
	joinDelim = "+"
	keyDelim  = "->"
)

// Path is an ordered list of object keys.
type Path []string

func (p Path) String() string { return strings.Join(p, keyDelim) }

// Cell is one column of the output row.
type Cell struct {
	Paths []Path
}

func (c Cell) String() string {
	parts := make([]string, len(c.Paths))
	for i, p := range c.Paths {
		parts[i] = p.String()
	}
	return strings.Join(parts, joinDelim)
}

// Spec is a parsed field spec. It is immutable once parsed and safe for
// concurrent use.
type Spec struct {
	Cells []Cell
}

func (s Spec) String() string {
	parts := make([]string, len(s.Cells))
	for i, c := range s.Cells {
		parts[i] = c.String()
	}
	return strings.Join(parts, cellDelim)
}

// ParseSpec parses a field spec. Empty cells, paths or keys are rejected.
func ParseSpec(spec string) (Spec, error) {
	if spec == "" {
		return Spec{}, fmt.Errorf("field spec is empty")
	}

	groups := strings.Split(spec, cellDelim)
	out := Spec{Cells: make([]Cell, 0, len(groups))}
	for i, group := range groups {
		if group == "" {
			return Spec{}, fmt.Errorf("field spec cell %d is empty", i)
		}
		var cell Cell
		for j, raw := range strings.Split(group, joinDelim) {
			if raw == "" {
				return Spec{}, fmt.Errorf("field spec cell %d: path %d is empty", i, j)
			}
			keys := strings.Split(raw, keyDelim)
			for _, k := range keys {
				if k == "" {
					return Spec{}, fmt.Errorf("field spec cell %d: path %q has an empty key", i, raw)
				}
			}
			cell.Paths = append(cell.Paths, Path(keys))
		}
		out.Cells = append(out.Cells, cell)
	}
	return out, nil
}

// FieldError reports the key path that could not be resolved.
type FieldError struct {
	Cell int
	Path Path
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q (cell %d): %v", e.Path.String(), e.Cell, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }

// ErrMissingField is matched by every extraction failure.
var ErrMissingField = errors.New("missing field")

func (e *FieldError) Is(target error) bool { return target == ErrMissingField }

// Extract builds one row from root. The row has exactly one entry per cell.
// Any unresolved path fails the whole row.
func (s Spec) Extract(root payload.Value, sep string) ([]string, error) {
	row := make([]string, 0, len(s.Cells))
	for i, cell := range s.Cells {
		values := make([]string, 0, len(cell.Paths))
		for _, path := range cell.Paths {
			leaf, err := root.Lookup(path...)
			if err != nil {
				return nil, &FieldError{Cell: i, Path: path, Err: err}
			}
			values = append(values, leaf.Text())
		}
		row = append(row, strings.Join(values, sep))
	}
	return row, nil
}

// Extract parses spec and applies it to root in one step.
func Extract(spec, sep string, root payload.Value) ([]string, error) {
	parsed, err := ParseSpec(spec)
	if err != nil {
		return nil, err
	}
	return parsed.Extract(root, sep)
}
