// Package factorcache is a content-addressed on-disk cache for factor
// scores and eligibility masks. Every failure mode on the read path
// (missing files, fingerprint mismatch, decode failure, stale entries)
// degrades to a cache miss; a corrupt entry is never surfaced as a hit
// and never crashes the caller. Write failures are logged and swallowed.
//
// The cache has no built-in concurrency control: concurrent writers to
// the same key can corrupt an entry. Single-writer discipline or
// external locking is the caller's responsibility.
package factorcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

const (
	metaSuffix    = ".meta.json"
	payloadSuffix = ".payload.bin"
)

// Meta is the metadata half of a cache entry pair
type Meta struct {
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
}

// Cache stores msgpack payloads under a root directory, one
// metadata/payload file pair per key.
// ⭐ SSOT: 디스크 캐시 입출력은 여기서만
type Cache struct {
	dir    string
	maxAge time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// New creates a cache rooted at dir, creating it if needed. Entries
// older than maxAge count as misses.
func New(dir string, maxAge time.Duration, log *logger.Logger) (*Cache, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("factorcache: max age must be positive, got %v", maxAge)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("factorcache: create cache dir: %w", err)
	}
	return &Cache{
		dir:    dir,
		maxAge: maxAge,
		logger: log,
		now:    time.Now,
	}, nil
}

// Get loads the payload for key into dest. The return value reports a
// hit; every failure mode is an ordinary miss.
func (c *Cache) Get(key string, dest interface{}) bool {
	metaBytes, err := os.ReadFile(c.path(key, metaSuffix))
	if err != nil {
		return false
	}

	var meta Meta
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache metadata corrupt, treating as miss")
		return false
	}

	if meta.Fingerprint != key {
		c.logger.WithFields(map[string]interface{}{
			"key":    key,
			"stored": meta.Fingerprint,
		}).Warn("Cache fingerprint mismatch, treating as miss")
		return false
	}

	if c.now().Sub(meta.CreatedAt) > c.maxAge {
		return false
	}

	payload, err := os.ReadFile(c.path(key, payloadSuffix))
	if err != nil {
		return false
	}

	if err := msgpack.Unmarshal(payload, dest); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache payload corrupt, treating as miss")
		return false
	}

	return true
}

// Put stores a payload under key. Failures are logged and swallowed:
// the computation result the caller holds is still valid either way.
func (c *Cache) Put(key string, payload interface{}) {
	data, err := msgpack.Marshal(payload)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache payload encode failed, skipping put")
		return
	}

	if err := os.WriteFile(c.path(key, payloadSuffix), data, 0o644); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache payload write failed, skipping put")
		return
	}

	meta := Meta{Fingerprint: key, CreatedAt: c.now()}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache metadata encode failed, skipping put")
		return
	}

	if err := os.WriteFile(c.path(key, metaSuffix), metaBytes, 0o644); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("Cache metadata write failed, skipping put")
	}
}

// Clear physically removes every entry under the cache root
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("factorcache: read cache dir: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasSuffix(name, metaSuffix) && !strings.HasSuffix(name, payloadSuffix) {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, name)); err != nil {
			return fmt.Errorf("factorcache: remove %s: %w", name, err)
		}
	}

	c.logger.WithField("dir", c.dir).Info("Factor cache cleared")
	return nil
}

// Sweep removes entries whose age exceeds the configured maximum.
// Returns the number of entries removed.
func (c *Cache) Sweep() (int, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return 0, fmt.Errorf("factorcache: read cache dir: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}

		key := strings.TrimSuffix(name, metaSuffix)

		metaBytes, err := os.ReadFile(filepath.Join(c.dir, name))
		if err != nil {
			continue
		}
		var meta Meta
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			// Unreadable metadata: the entry can never hit again, drop it
			c.removeEntry(key)
			removed++
			continue
		}

		if c.now().Sub(meta.CreatedAt) > c.maxAge {
			c.removeEntry(key)
			removed++
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"dir":     c.dir,
		"removed": removed,
	}).Info("Factor cache sweep completed")

	return removed, nil
}

func (c *Cache) removeEntry(key string) {
	_ = os.Remove(c.path(key, metaSuffix))
	_ = os.Remove(c.path(key, payloadSuffix))
}

func (c *Cache) path(key, suffix string) string {
	return filepath.Join(c.dir, key+suffix)
}

// Fingerprint derives a cache key from the data identity of a matrix, a
// serialized configuration hash, and the as-of date. Symbols are sorted
// so logically identical universes hash identically regardless of
// column order.
func Fingerprint(m *timeseries.Matrix, configHash string, asOf time.Time) string {
	h := sha256.New()

	sorted := make([]string, len(m.Symbols()))
	copy(sorted, m.Symbols())
	sort.Strings(sorted)

	fmt.Fprintf(h, "%d|%d|%s|", m.Rows(), m.Cols(), strings.Join(sorted, ","))
	if m.Rows() > 0 {
		fmt.Fprintf(h, "%d|%d|",
			m.Date(0).Unix(), m.Date(m.Rows()-1).Unix())
		// Content sample: first, middle, and last rows
		writeRow(h, m, 0)
		writeRow(h, m, m.Rows()/2)
		writeRow(h, m, m.Rows()-1)
	}
	fmt.Fprintf(h, "%s|%d", configHash, asOf.Unix())

	return hex.EncodeToString(h.Sum(nil)[:16])
}

// HashConfig produces a deterministic hash of any JSON-serializable
// configuration struct. Structs, not maps: field order must be stable.
func HashConfig(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		// json.Marshal on config structs only fails on exotic field
		// types, which is a programming error worth surfacing loudly
		panic(fmt.Sprintf("factorcache: config not serializable: %v", err))
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16])
}

func writeRow(h io.Writer, m *timeseries.Matrix, i int) {
	var buf [8]byte
	for j := 0; j < m.Cols(); j++ {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(m.Value(i, j)))
		_, _ = h.Write(buf[:])
	}
}
