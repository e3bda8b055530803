// Package statscache memoizes window statistics (mean vector, sample
// covariance) within a single run. Entries are keyed on the identity of
// the return window, so repeated optimizations over the same lookback
// reuse one computation. The cache is in-process only and is expected
// to be created fresh per run.
package statscache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"sync"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

// Stats holds the statistics computed from one return window. Means and
// the covariance matrix are in the column order of the source window.
type Stats struct {
	Symbols    []string
	Means      []float64
	Covariance *mat.SymDense
	// Observations is the number of complete-case rows used
	Observations int
}

// Cache memoizes Stats per window fingerprint. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Stats
	logger  *logger.Logger

	hits   int
	misses int
}

// New returns an empty statistics cache
func New(log *logger.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*Stats),
		logger:  log,
	}
}

// Get returns the statistics for the window, computing and memoizing
// them on first use. A window needs at least two complete-case rows; a
// window with fewer yields an error, never a degenerate result.
func (c *Cache) Get(window *timeseries.Matrix) (*Stats, error) {
	key := fingerprint(window)

	c.mu.Lock()
	if stats, ok := c.entries[key]; ok {
		c.hits++
		c.mu.Unlock()
		return stats, nil
	}
	c.misses++
	c.mu.Unlock()

	stats, err := compute(window)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = stats
	c.mu.Unlock()

	c.logger.WithFields(map[string]interface{}{
		"symbols":      len(stats.Symbols),
		"observations": stats.Observations,
	}).Debug("Window statistics computed")

	return stats, nil
}

// HitRate reports cache effectiveness for run summaries
func (c *Cache) HitRate() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// compute derives means and sample covariance over complete-case rows:
// any row with a missing value for any column is dropped entirely, so
// the covariance stays positive semi-definite.
func compute(window *timeseries.Matrix) (*Stats, error) {
	n := window.Cols()
	if n == 0 {
		return nil, fmt.Errorf("statscache: empty symbol set")
	}

	var complete [][]float64
	for i := 0; i < window.Rows(); i++ {
		row := make([]float64, n)
		ok := true
		for j := 0; j < n; j++ {
			v := window.Value(i, j)
			if math.IsNaN(v) {
				ok = false
				break
			}
			row[j] = v
		}
		if ok {
			complete = append(complete, row)
		}
	}

	if len(complete) < 2 {
		return nil, fmt.Errorf("statscache: %d complete observations for %d symbols, need at least 2",
			len(complete), n)
	}

	data := mat.NewDense(len(complete), n, nil)
	for i, row := range complete {
		data.SetRow(i, row)
	}

	means := make([]float64, n)
	col := make([]float64, len(complete))
	for j := 0; j < n; j++ {
		mat.Col(col, j, data)
		means[j] = stat.Mean(col, nil)
	}

	cov := mat.NewSymDense(n, nil)
	stat.CovarianceMatrix(cov, data, nil)

	symbols := make([]string, n)
	copy(symbols, window.Symbols())

	return &Stats{
		Symbols:      symbols,
		Means:        means,
		Covariance:   cov,
		Observations: len(complete),
	}, nil
}

// fingerprint identifies a window by shape, columns, date bounds, and a
// content sample. Two windows over the same backing data with the same
// bounds hash identically.
func fingerprint(window *timeseries.Matrix) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|%s|", window.Rows(), window.Cols(), strings.Join(window.Symbols(), ","))
	if window.Rows() > 0 {
		fmt.Fprintf(h, "%d|%d|", window.Date(0).Unix(), window.Date(window.Rows()-1).Unix())
		sampleRow(h, window, 0)
		sampleRow(h, window, window.Rows()-1)
	}
	return hex.EncodeToString(h.Sum(nil)[:16])
}

func sampleRow(h interface{ Write([]byte) (int, error) }, m *timeseries.Matrix, i int) {
	var buf [8]byte
	for j := 0; j < m.Cols(); j++ {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.Value(i, j)))
		_, _ = h.Write(buf[:])
	}
}
