// Package dataset holds the rectangular tables the workflow operates on.
//
// A Frame is an ordered set of equally long columns. Numeric columns store
// float64 with NaN as the missing value; nominal columns store strings with
// "" as the missing value. Frames are treated as immutable: Subset, Select
// and WithColumn return new frames, and Subset deep-copies so that each
// resampling worker owns its data.
package dataset

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/YuminosukeSato/tidytune/pkg/errors"
)

// Kind is the storage type of a column.
type Kind int

const (
	Numeric Kind = iota
	Nominal
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Nominal:
		return "nominal"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Column is a named vector. Exactly one of Num and Str is populated,
// according to Kind.
type Column struct {
	Name string
	Kind Kind
	Num  []float64
	Str  []string
}

// NewNumeric returns a numeric column. NaN marks a missing value.
func NewNumeric(name string, values []float64) *Column {
	return &Column{Name: name, Kind: Numeric, Num: values}
}

// NewNominal returns a nominal column. "" marks a missing value.
func NewNominal(name string, values []string) *Column {
	return &Column{Name: name, Kind: Nominal, Str: values}
}

// Len returns the number of rows.
func (c *Column) Len() int {
	if c.Kind == Numeric {
		return len(c.Num)
	}
	return len(c.Str)
}

// IsNA reports whether row i is missing.
func (c *Column) IsNA(i int) bool {
	if c.Kind == Numeric {
		return math.IsNaN(c.Num[i])
	}
	return c.Str[i] == ""
}

// NACount returns the number of missing rows.
func (c *Column) NACount() int {
	n := 0
	for i := 0; i < c.Len(); i++ {
		if c.IsNA(i) {
			n++
		}
	}
	return n
}

// Levels returns the sorted distinct non-missing values of a nominal column.
func (c *Column) Levels() []string {
	seen := make(map[string]struct{})
	for _, s := range c.Str {
		if s != "" {
			seen[s] = struct{}{}
		}
	}
	levels := make([]string, 0, len(seen))
	for s := range seen {
		levels = append(levels, s)
	}
	sort.Strings(levels)
	return levels
}

// Clone returns a deep copy.
func (c *Column) Clone() *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Num != nil {
		out.Num = append([]float64(nil), c.Num...)
	}
	if c.Str != nil {
		out.Str = append([]string(nil), c.Str...)
	}
	return out
}

// Rename returns a shallow copy of c under a new name.
func (c *Column) Rename(name string) *Column {
	out := *c
	out.Name = name
	return &out
}

func (c *Column) subset(rows []int) *Column {
	out := &Column{Name: c.Name, Kind: c.Kind}
	if c.Kind == Numeric {
		out.Num = make([]float64, len(rows))
		for i, r := range rows {
			out.Num[i] = c.Num[r]
		}
		return out
	}
	out.Str = make([]string, len(rows))
	for i, r := range rows {
		out.Str[i] = c.Str[r]
	}
	return out
}

// Frame is an ordered collection of equally long, uniquely named columns.
type Frame struct {
	cols  []*Column
	index map[string]int
	nrows int
}

// NewFrame builds a frame. Columns must share a length and have unique,
// non-empty names.
func NewFrame(cols ...*Column) (*Frame, error) {
	f := &Frame{index: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c == nil || c.Name == "" {
			return nil, errors.NewValidationError("columns", "column name must not be empty", i)
		}
		if _, dup := f.index[c.Name]; dup {
			return nil, errors.NewDataShapeError("NewFrame", c.Name, "duplicate column name")
		}
		if i == 0 {
			f.nrows = c.Len()
		} else if c.Len() != f.nrows {
			return nil, errors.NewDataShapeError("NewFrame", c.Name,
				fmt.Sprintf("has %d rows, expected %d", c.Len(), f.nrows))
		}
		f.index[c.Name] = i
		f.cols = append(f.cols, c)
	}
	return f, nil
}

// MustFrame is NewFrame that panics on error, for literals in tests and examples.
func MustFrame(cols ...*Column) *Frame {
	f, err := NewFrame(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// NRows returns the number of rows.
func (f *Frame) NRows() int { return f.nrows }

// NCols returns the number of columns.
func (f *Frame) NCols() int { return len(f.cols) }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Columns returns the columns in order. The slice is a copy; the columns
// are shared and must not be mutated.
func (f *Frame) Columns() []*Column {
	return append([]*Column(nil), f.cols...)
}

// Has reports whether the frame has a column called name.
func (f *Frame) Has(name string) bool {
	_, ok := f.index[name]
	return ok
}

// Column returns the named column or a DataShapeError.
func (f *Frame) Column(name string) (*Column, error) {
	i, ok := f.index[name]
	if !ok {
		return nil, errors.NewMissingColumnError("Frame.Column", name)
	}
	return f.cols[i], nil
}

// Levels returns the levels of a nominal column.
func (f *Frame) Levels(name string) ([]string, error) {
	c, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	if c.Kind != Nominal {
		return nil, errors.NewDataShapeError("Frame.Levels", name, "column is not nominal")
	}
	return c.Levels(), nil
}

// Subset returns a deep copy of the given rows, in the given order.
// Rows may repeat (bootstrap analysis sets).
func (f *Frame) Subset(rows []int) *Frame {
	out := &Frame{index: make(map[string]int, len(f.cols)), nrows: len(rows)}
	for i, c := range f.cols {
		out.cols = append(out.cols, c.subset(rows))
		out.index[c.Name] = i
	}
	return out
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	out := &Frame{index: make(map[string]int, len(f.cols)), nrows: f.nrows}
	for i, c := range f.cols {
		out.cols = append(out.cols, c.Clone())
		out.index[c.Name] = i
	}
	return out
}

// Select returns a frame with only the named columns, in the given order.
func (f *Frame) Select(names ...string) (*Frame, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return NewFrame(cols...)
}

// Drop returns a frame without the named columns. Unknown names are ignored.
func (f *Frame) Drop(names ...string) *Frame {
	drop := make(map[string]bool, len(names))
	for _, n := range names {
		drop[n] = true
	}
	out := &Frame{index: make(map[string]int, len(f.cols)), nrows: f.nrows}
	for _, c := range f.cols {
		if drop[c.Name] {
			continue
		}
		out.index[c.Name] = len(out.cols)
		out.cols = append(out.cols, c)
	}
	return out
}

// WithColumn returns a frame where c replaces the column of the same name,
// or is appended when no such column exists.
func (f *Frame) WithColumn(c *Column) (*Frame, error) {
	if len(f.cols) > 0 && c.Len() != f.nrows {
		return nil, errors.NewDataShapeError("Frame.WithColumn", c.Name,
			fmt.Sprintf("has %d rows, expected %d", c.Len(), f.nrows))
	}
	cols := f.Columns()
	if i, ok := f.index[c.Name]; ok {
		cols[i] = c
	} else {
		cols = append(cols, c)
	}
	return NewFrame(cols...)
}

// Matrix returns the named numeric columns as a dense rows x len(names) matrix.
func (f *Frame) Matrix(names []string) (*mat.Dense, error) {
	if f.nrows == 0 || len(names) == 0 {
		return nil, errors.ErrEmptyData
	}
	m := mat.NewDense(f.nrows, len(names), nil)
	for j, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if c.Kind != Numeric {
			return nil, errors.NewDataShapeError("Frame.Matrix", n, "column is not numeric")
		}
		for i, v := range c.Num {
			m.Set(i, j, v)
		}
	}
	return m, nil
}

// RequireColumns returns a DataShapeError naming the first missing column.
// Remote datasets are read with a fixed layout in mind, and this is where a
// changed upstream schema surfaces.
func RequireColumns(f *Frame, names ...string) error {
	for _, n := range names {
		if !f.Has(n) {
			return errors.NewMissingColumnError("RequireColumns", n)
		}
	}
	return nil
}

// CompleteRows returns the indices of rows with no missing value in the
// named columns.
func (f *Frame) CompleteRows(names ...string) ([]int, error) {
	cols := make([]*Column, 0, len(names))
	for _, n := range names {
		c, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	rows := make([]int, 0, f.nrows)
	for i := 0; i < f.nrows; i++ {
		ok := true
		for _, c := range cols {
			if c.IsNA(i) {
				ok = false
				break
			}
		}
		if ok {
			rows = append(rows, i)
		}
	}
	return rows, nil
}
