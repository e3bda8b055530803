// Package timeseries provides immutable, date-aligned price and return
// matrices. All slicing produces read-only views over shared backing
// storage, no per-day copying.
// ⭐ SSOT: 시계열 정렬/슬라이싱은 이 패키지에서만
package timeseries

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Missing returns the sentinel for an absent observation
func Missing() float64 {
	return math.NaN()
}

// IsMissing reports whether v is the missing-value sentinel
func IsMissing(v float64) bool {
	return math.IsNaN(v)
}

// Matrix is an immutable date × symbol matrix of float observations.
// Rows are ordered by strictly increasing date; row order is the sole
// temporal ordering. Column order is stable for the lifetime of the
// matrix and every view derived from it (cache keys depend on this).
//
// A Matrix and all views of it share backing storage and must be treated
// as read-only. Views are cheap: O(1) for row ranges, O(symbols) for
// column subsets.
type Matrix struct {
	dates   []time.Time
	symbols []string
	cols    []int // logical column -> physical column in rows
	index   map[string]int
	rows    [][]float64 // physical rows, full width, shared across views
}

// New builds a matrix from row-major data. dates must be strictly
// increasing, symbols unique, and every row must have len(symbols) cells.
// Use Missing() for absent observations. The caller must not mutate the
// supplied slices afterwards.
func New(dates []time.Time, symbols []string, rows [][]float64) (*Matrix, error) {
	if len(dates) != len(rows) {
		return nil, fmt.Errorf("timeseries: %d dates but %d rows", len(dates), len(rows))
	}
	for i := 1; i < len(dates); i++ {
		if !dates[i].After(dates[i-1]) {
			return nil, fmt.Errorf("timeseries: dates not strictly increasing at row %d (%s >= %s)",
				i, dates[i-1].Format("2006-01-02"), dates[i].Format("2006-01-02"))
		}
	}

	index := make(map[string]int, len(symbols))
	cols := make([]int, len(symbols))
	for j, sym := range symbols {
		if _, dup := index[sym]; dup {
			return nil, fmt.Errorf("timeseries: duplicate symbol %q", sym)
		}
		index[sym] = j
		cols[j] = j
	}

	for i, row := range rows {
		if len(row) != len(symbols) {
			return nil, fmt.Errorf("timeseries: row %d has %d cells, want %d", i, len(row), len(symbols))
		}
	}

	return &Matrix{
		dates:   dates,
		symbols: symbols,
		cols:    cols,
		index:   index,
		rows:    rows,
	}, nil
}

// Rows returns the number of dates in this view
func (m *Matrix) Rows() int { return len(m.dates) }

// Cols returns the number of symbols in this view
func (m *Matrix) Cols() int { return len(m.symbols) }

// Date returns the date of row i
func (m *Matrix) Date(i int) time.Time { return m.dates[i] }

// Symbol returns the symbol of logical column j
func (m *Matrix) Symbol(j int) string { return m.symbols[j] }

// Dates returns the date axis. Callers must not modify it.
func (m *Matrix) Dates() []time.Time { return m.dates }

// Symbols returns the symbol axis. Callers must not modify it.
func (m *Matrix) Symbols() []string { return m.symbols }

// HasSymbol reports whether sym is a column of this view
func (m *Matrix) HasSymbol(sym string) bool {
	_, ok := m.index[sym]
	return ok
}

// Value returns the cell at row i, logical column j
func (m *Matrix) Value(i, j int) float64 {
	return m.rows[i][m.cols[j]]
}

// At returns the cell at row i for a symbol; ok is false for an
// unknown symbol.
func (m *Matrix) At(i int, sym string) (float64, bool) {
	j, ok := m.index[sym]
	if !ok {
		return Missing(), false
	}
	return m.rows[i][m.cols[j]], true
}

// LastIndexAtOrBefore returns the row index of the latest date at or
// before t, or -1 if every date is after t.
func (m *Matrix) LastIndexAtOrBefore(t time.Time) int {
	// first index with date > t
	n := sort.Search(len(m.dates), func(i int) bool {
		return m.dates[i].After(t)
	})
	return n - 1
}

// FirstIndexAtOrAfter returns the row index of the earliest date at or
// after t, or -1 if every date is before t.
func (m *Matrix) FirstIndexAtOrAfter(t time.Time) int {
	n := sort.Search(len(m.dates), func(i int) bool {
		return !m.dates[i].Before(t)
	})
	if n == len(m.dates) {
		return -1
	}
	return n
}

// Slice returns a view of rows [i, j)
func (m *Matrix) Slice(i, j int) *Matrix {
	return &Matrix{
		dates:   m.dates[i:j],
		symbols: m.symbols,
		cols:    m.cols,
		index:   m.index,
		rows:    m.rows[i:j],
	}
}

// Through returns a view of every row dated at or before t. The view is
// empty when t precedes the first date.
func (m *Matrix) Through(t time.Time) *Matrix {
	idx := m.LastIndexAtOrBefore(t)
	return m.Slice(0, idx+1)
}

// Select returns a view restricted to the given symbols, in the given
// order. Fails on unknown symbols.
func (m *Matrix) Select(symbols []string) (*Matrix, error) {
	cols := make([]int, len(symbols))
	index := make(map[string]int, len(symbols))
	for j, sym := range symbols {
		phys, ok := m.index[sym]
		if !ok {
			return nil, fmt.Errorf("timeseries: unknown symbol %q", sym)
		}
		if _, dup := index[sym]; dup {
			return nil, fmt.Errorf("timeseries: duplicate symbol %q in selection", sym)
		}
		cols[j] = m.cols[phys]
		index[sym] = j
	}
	return &Matrix{
		dates:   m.dates,
		symbols: symbols,
		cols:    cols,
		index:   index,
		rows:    m.rows,
	}, nil
}

// Column copies the values of one symbol across every row of this view
func (m *Matrix) Column(sym string) ([]float64, bool) {
	j, ok := m.index[sym]
	if !ok {
		return nil, false
	}
	phys := m.cols[j]
	out := make([]float64, len(m.rows))
	for i, row := range m.rows {
		out[i] = row[phys]
	}
	return out, true
}

// FirstValidRow returns the index of the first non-missing observation
// for sym within this view, or -1 if there is none.
func (m *Matrix) FirstValidRow(sym string) int {
	j, ok := m.index[sym]
	if !ok {
		return -1
	}
	phys := m.cols[j]
	for i, row := range m.rows {
		if !IsMissing(row[phys]) {
			return i
		}
	}
	return -1
}

// ValidCount returns the number of non-missing observations for sym
// within this view.
func (m *Matrix) ValidCount(sym string) int {
	j, ok := m.index[sym]
	if !ok {
		return 0
	}
	phys := m.cols[j]
	count := 0
	for _, row := range m.rows {
		if !IsMissing(row[phys]) {
			count++
		}
	}
	return count
}

// Covers reports whether this view has at least one row at or before
// start and one at or after end.
func (m *Matrix) Covers(start, end time.Time) bool {
	if len(m.dates) == 0 {
		return false
	}
	return !m.dates[0].After(start) && !m.dates[len(m.dates)-1].Before(end)
}
