package factorcache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/helios/internal/timeseries"
	"github.com/wonny/helios/pkg/logger"
)

func newTestCache(t *testing.T, maxAge time.Duration) *Cache {
	t.Helper()
	c, err := New(t.TempDir(), maxAge, logger.Nop())
	require.NoError(t, err)
	return c
}

func testMatrix(t *testing.T) *timeseries.Matrix {
	t.Helper()
	dates := []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}
	m, err := timeseries.New(dates, []string{"AAA", "BBB"}, [][]float64{
		{0.01, -0.02},
		{0.03, 0.01},
		{-0.01, 0.02},
	})
	require.NoError(t, err)
	return m
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t, time.Hour)

	key := Fingerprint(testMatrix(t), "cfg-hash", time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC))
	put := &ScorePayload{
		AsOf:         time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
		Scores:       map[string]float64{"AAA": 0.12, "BBB": -0.03},
		Insufficient: map[string]string{"CCC": "only 2 of 3 required observations"},
	}
	c.Put(key, put)

	var got ScorePayload
	require.True(t, c.Get(key, &got))
	assert.True(t, got.AsOf.Equal(put.AsOf))
	assert.Equal(t, put.Scores, got.Scores)
	assert.Equal(t, put.Insufficient, got.Insufficient)
}

func TestCache_MissOnAbsentKey(t *testing.T) {
	c := newTestCache(t, time.Hour)

	var got ScorePayload
	assert.False(t, c.Get("no-such-key", &got))
}

func TestCache_MissOnCorruptPayload(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("abc123", &ScorePayload{Scores: map[string]float64{"AAA": 1}})
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "abc123"+payloadSuffix), []byte("garbage"), 0o644))

	var got ScorePayload
	assert.False(t, c.Get("abc123", &got))
}

func TestCache_MissOnCorruptMetadata(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("abc123", &ScorePayload{Scores: map[string]float64{"AAA": 1}})
	require.NoError(t, os.WriteFile(filepath.Join(c.dir, "abc123"+metaSuffix), []byte("{not json"), 0o644))

	var got ScorePayload
	assert.False(t, c.Get("abc123", &got))
}

func TestCache_MissOnFingerprintMismatch(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("abc123", &ScorePayload{Scores: map[string]float64{"AAA": 1}})

	// Simulate an entry renamed or copied to the wrong key
	for _, suffix := range []string{metaSuffix, payloadSuffix} {
		require.NoError(t, os.Rename(
			filepath.Join(c.dir, "abc123"+suffix),
			filepath.Join(c.dir, "def456"+suffix),
		))
	}

	var got ScorePayload
	assert.False(t, c.Get("def456", &got))
}

func TestCache_MissOnMissingPayloadHalf(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("abc123", &ScorePayload{Scores: map[string]float64{"AAA": 1}})
	require.NoError(t, os.Remove(filepath.Join(c.dir, "abc123"+payloadSuffix)))

	var got ScorePayload
	assert.False(t, c.Get("abc123", &got))
}

func TestCache_MissOnExpiry(t *testing.T) {
	c := newTestCache(t, time.Hour)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put("abc123", &ScorePayload{Scores: map[string]float64{"AAA": 1}})

	c.now = func() time.Time { return base.Add(59 * time.Minute) }
	var got ScorePayload
	assert.True(t, c.Get("abc123", &got), "entry within max age should hit")

	c.now = func() time.Time { return base.Add(2 * time.Hour) }
	assert.False(t, c.Get("abc123", &got), "entry past max age should miss")
}

func TestCache_PutFailureIsSilent(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, time.Hour, logger.Nop())
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	// Must not panic; the caller still has the computed result
	c.Put("abc123", &ScorePayload{Scores: map[string]float64{"AAA": 1}})

	var got ScorePayload
	assert.False(t, c.Get("abc123", &got))
}

func TestCache_Clear(t *testing.T) {
	c := newTestCache(t, time.Hour)

	c.Put("aaa", &ScorePayload{Scores: map[string]float64{"AAA": 1}})
	c.Put("bbb", &ScorePayload{Scores: map[string]float64{"BBB": 2}})

	require.NoError(t, c.Clear())

	var got ScorePayload
	assert.False(t, c.Get("aaa", &got))
	assert.False(t, c.Get("bbb", &got))
}

func TestCache_Sweep(t *testing.T) {
	c := newTestCache(t, time.Hour)

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return base }
	c.Put("old", &ScorePayload{Scores: map[string]float64{"AAA": 1}})

	c.now = func() time.Time { return base.Add(30 * time.Minute) }
	c.Put("fresh", &ScorePayload{Scores: map[string]float64{"BBB": 2}})

	c.now = func() time.Time { return base.Add(90 * time.Minute) }
	removed, err := c.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	var got ScorePayload
	assert.False(t, c.Get("old", &got))
	assert.True(t, c.Get("fresh", &got))
}

func TestFingerprint_Deterministic(t *testing.T) {
	asOf := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	a := Fingerprint(testMatrix(t), "cfg", asOf)
	b := Fingerprint(testMatrix(t), "cfg", asOf)
	assert.Equal(t, a, b)
}

func TestFingerprint_SensitiveToInputs(t *testing.T) {
	m := testMatrix(t)
	asOf := time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC)
	base := Fingerprint(m, "cfg", asOf)

	assert.NotEqual(t, base, Fingerprint(m, "other-cfg", asOf), "config change must change the key")
	assert.NotEqual(t, base, Fingerprint(m, "cfg", asOf.AddDate(0, 0, 1)), "as-of change must change the key")
	assert.NotEqual(t, base, Fingerprint(m.Slice(0, 2), "cfg", asOf), "date range change must change the key")
}

func TestFingerprint_SensitiveToContent(t *testing.T) {
	dates := []time.Time{
		time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC),
	}
	a, err := timeseries.New(dates, []string{"AAA"}, [][]float64{{0.01}, {0.02}, {0.03}})
	require.NoError(t, err)
	b, err := timeseries.New(dates, []string{"AAA"}, [][]float64{{0.01}, {0.02}, {0.04}})
	require.NoError(t, err)

	asOf := dates[2]
	assert.NotEqual(t, Fingerprint(a, "cfg", asOf), Fingerprint(b, "cfg", asOf))
}

func TestHashConfig_Deterministic(t *testing.T) {
	type cfg struct {
		Lookback int
		Skip     int
	}
	assert.Equal(t, HashConfig(cfg{252, 21}), HashConfig(cfg{252, 21}))
	assert.NotEqual(t, HashConfig(cfg{252, 21}), HashConfig(cfg{126, 21}))
}
