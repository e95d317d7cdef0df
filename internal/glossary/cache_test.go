package glossary

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilmSlug(t *testing.T) {
	assert.Equal(t, "sholay_1975", FilmSlug("Sholay", 1975))
	assert.Equal(t, "dilwale_dulhania_le_jayenge_1995", FilmSlug("Dilwale Dulhania Le Jayenge", 1995))
	assert.Equal(t, "don_2_2011", FilmSlug("Don 2!", 2011))
	assert.Equal(t, "film_2020", FilmSlug("???", 2020))
}

func newTestCache(t *testing.T, opts ...CacheOption) *Cache {
	t.Helper()
	cache, err := NewCache(filepath.Join(t.TempDir(), "cache"), opts...)
	require.NoError(t, err)
	return cache
}

func TestCacheRoundTrip(t *testing.T) {
	cache := newTestCache(t)
	glossary := map[string][]string{"shah rukh khan": {"Shah Rukh Khan"}}

	// Cold cache misses.
	got, err := cache.GetTmdbGlossary("Don", 2006)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, cache.SaveTmdbGlossary("Don", 2006, glossary, map[string]any{"id": 7555}))

	got, err = cache.GetTmdbGlossary("Don", 2006)
	require.NoError(t, err)
	assert.Equal(t, glossary, got)

	// Index records the entry.
	stats, err := cache.GetCacheStatistics()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TmdbEntries)
	assert.Equal(t, 1, stats.TmdbHits)
	assert.Equal(t, 1, stats.TmdbMisses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)
	assert.Positive(t, stats.SizeBytes)
}

func TestCacheTTLExpiry(t *testing.T) {
	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cache := newTestCache(t, WithCacheClock(func() time.Time { return current }))

	require.NoError(t, cache.SaveTmdbGlossary("Don", 2006, map[string][]string{"don": {"Don"}}, nil))

	// Fresh within the TTL window.
	current = current.Add(29 * 24 * time.Hour)
	got, err := cache.GetTmdbGlossary("Don", 2006)
	require.NoError(t, err)
	assert.NotNil(t, got)

	// Expired at exactly cachedAt + ttlDays.
	current = current.Add(24 * time.Hour)
	got, err = cache.GetTmdbGlossary("Don", 2006)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestCleanupExpired(t *testing.T) {
	current := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	cache := newTestCache(t, WithCacheClock(func() time.Time { return current }))

	require.NoError(t, cache.SaveTmdbGlossary("Old Film", 1990, map[string][]string{}, nil))
	current = current.Add(15 * 24 * time.Hour)
	require.NoError(t, cache.SaveTmdbGlossary("New Film", 2024, map[string][]string{}, nil))

	// 31 days after the first save, only the first entry is expired.
	current = current.Add(16 * 24 * time.Hour)
	removed, err := cache.CleanupExpired()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = os.Stat(filepath.Join(cache.Dir(), "tmdb", "old_film_1990"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(cache.Dir(), "tmdb", "new_film_2024"))
	assert.NoError(t, err)

	// Index no longer lists the removed slug.
	index := cache.readIndex()
	assert.NotContains(t, index, "old_film_1990")
	assert.Contains(t, index, "new_film_2024")
}

func TestLearnedTerms(t *testing.T) {
	cache := newTestCache(t)

	// Missing file reads as empty, not an error.
	terms, err := cache.GetLearnedTerms("Don", 2006)
	require.NoError(t, err)
	assert.Empty(t, terms)

	freq := map[string]map[string]float64{
		"yaar": {"friend": 3, "buddy": 1.5},
	}
	require.NoError(t, cache.UpdateLearnedTerms("Don", 2006, freq))

	terms, err = cache.GetLearnedTerms("Don", 2006)
	require.NoError(t, err)
	assert.Equal(t, freq, terms)
}
