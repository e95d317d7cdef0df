package glossary

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/clearpath-media/cp-whisperx/internal/storage"
)

// DefaultTTLDays is how long a cached TMDB glossary stays fresh.
const DefaultTTLDays = 30

const (
	glossaryFilename   = "glossary.json"
	metadataFilename   = "metadata.json"
	enrichmentFilename = "enrichment.json"
	frequencyFilename  = "term_frequency.json"
	indexFilename      = "index.json"
)

// EntryMetadata describes one cached TMDB glossary entry.
type EntryMetadata struct {
	FilmSlug  string    `json:"filmSlug"`
	Title     string    `json:"title"`
	Year      int       `json:"year"`
	CachedAt  time.Time `json:"cachedAt"`
	TTLDays   int       `json:"ttlDays"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// IndexEntry is one row of tmdb/index.json.
type IndexEntry struct {
	Title    string    `json:"title"`
	Year     int       `json:"year"`
	CachedAt time.Time `json:"cachedAt"`
}

// CacheStatistics summarizes cache contents and effectiveness.
type CacheStatistics struct {
	TmdbEntries    int     `json:"tmdbEntries"`
	LearnedEntries int     `json:"learnedEntries"`
	SizeBytes      int64   `json:"sizeBytes"`
	TmdbHits       int     `json:"tmdbHits"`
	TmdbMisses     int     `json:"tmdbMisses"`
	HitRate        float64 `json:"hitRate"`
}

// Cache is the on-disk glossary cache rooted at cacheDir, with tmdb/ and
// learned/ subtrees keyed by film slug. Entry writes are atomic renames, so
// concurrent writers of different entries never interfere and same-entry
// races resolve last-writer-wins.
type Cache struct {
	dir     string
	ttlDays int
	logger  *slog.Logger
	now     func() time.Time

	mu         sync.Mutex
	tmdbHits   int
	tmdbMisses int
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTLDays overrides the default entry TTL.
func WithTTLDays(days int) CacheOption {
	return func(c *Cache) { c.ttlDays = days }
}

// WithCacheLogger sets the cache logger.
func WithCacheLogger(logger *slog.Logger) CacheOption {
	return func(c *Cache) { c.logger = logger }
}

// WithCacheClock overrides the cache clock.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates the cache directory tree.
func NewCache(cacheDir string, opts ...CacheOption) (*Cache, error) {
	c := &Cache{
		dir:     cacheDir,
		ttlDays: DefaultTTLDays,
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, sub := range []string{"tmdb", "learned"} {
		if err := os.MkdirAll(filepath.Join(cacheDir, sub), 0o750); err != nil {
			return nil, fmt.Errorf("creating glossary cache: %w", err)
		}
	}
	return c, nil
}

// Dir returns the cache root directory.
func (c *Cache) Dir() string {
	return c.dir
}

// GetTmdbGlossary returns the cached glossary for a film, or nil when the
// entry is absent or expired. Expired entries count as misses.
func (c *Cache) GetTmdbGlossary(title string, year int) (map[string][]string, error) {
	slug := FilmSlug(title, year)
	entryDir := filepath.Join(c.dir, "tmdb", slug)

	meta, err := readJSON[EntryMetadata](filepath.Join(entryDir, metadataFilename))
	if errors.Is(err, os.ErrNotExist) {
		c.recordMiss()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !c.now().Before(meta.ExpiresAt) {
		c.recordMiss()
		return nil, nil
	}

	glossary, err := readJSON[map[string][]string](filepath.Join(entryDir, glossaryFilename))
	if errors.Is(err, os.ErrNotExist) {
		c.recordMiss()
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.tmdbHits++
	c.mu.Unlock()
	return *glossary, nil
}

// SaveTmdbGlossary writes a film's glossary, metadata, and optional raw
// enrichment, then updates the index.
func (c *Cache) SaveTmdbGlossary(title string, year int, glossary map[string][]string, enrichment map[string]any) error {
	slug := FilmSlug(title, year)
	entryDir := filepath.Join(c.dir, "tmdb", slug)
	if err := os.MkdirAll(entryDir, 0o750); err != nil {
		return fmt.Errorf("creating cache entry: %w", err)
	}

	now := c.now().UTC()
	meta := EntryMetadata{
		FilmSlug:  slug,
		Title:     title,
		Year:      year,
		CachedAt:  now,
		TTLDays:   c.ttlDays,
		ExpiresAt: now.AddDate(0, 0, c.ttlDays),
	}

	if err := writeJSON(filepath.Join(entryDir, glossaryFilename), glossary); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(entryDir, metadataFilename), meta); err != nil {
		return err
	}
	if enrichment != nil {
		if err := writeJSON(filepath.Join(entryDir, enrichmentFilename), enrichment); err != nil {
			return err
		}
	}

	return c.updateIndex(slug, IndexEntry{Title: title, Year: year, CachedAt: now})
}

// GetLearnedTerms reads a film's learned term frequencies. Absent files read
// as an empty map.
func (c *Cache) GetLearnedTerms(title string, year int) (map[string]map[string]float64, error) {
	path := filepath.Join(c.dir, "learned", FilmSlug(title, year), frequencyFilename)
	freq, err := readJSON[map[string]map[string]float64](path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]map[string]float64{}, nil
	}
	if err != nil {
		return nil, err
	}
	return *freq, nil
}

// UpdateLearnedTerms atomically replaces a film's learned term frequencies.
func (c *Cache) UpdateLearnedTerms(title string, year int, frequencies map[string]map[string]float64) error {
	slug := FilmSlug(title, year)
	entryDir := filepath.Join(c.dir, "learned", slug)
	if err := os.MkdirAll(entryDir, 0o750); err != nil {
		return fmt.Errorf("creating learned entry: %w", err)
	}
	if err := writeJSON(filepath.Join(entryDir, frequencyFilename), frequencies); err != nil {
		return err
	}
	meta := EntryMetadata{FilmSlug: slug, CachedAt: c.now().UTC()}
	return writeJSON(filepath.Join(entryDir, metadataFilename), meta)
}

// CleanupExpired removes every TMDB entry past its expiry and returns how
// many were removed.
func (c *Cache) CleanupExpired() (int, error) {
	tmdbDir := filepath.Join(c.dir, "tmdb")
	entries, err := os.ReadDir(tmdbDir)
	if err != nil {
		return 0, fmt.Errorf("reading tmdb cache: %w", err)
	}

	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		entryDir := filepath.Join(tmdbDir, entry.Name())
		meta, err := readJSON[EntryMetadata](filepath.Join(entryDir, metadataFilename))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			c.logger.Warn("skipping unreadable cache entry",
				slog.String("entry", entry.Name()),
				slog.Any("error", err),
			)
			continue
		}
		if c.now().Before(meta.ExpiresAt) {
			continue
		}
		if err := os.RemoveAll(entryDir); err != nil {
			return removed, fmt.Errorf("removing expired entry %s: %w", entry.Name(), err)
		}
		c.removeFromIndex(entry.Name())
		removed++
	}

	if removed > 0 {
		c.logger.Info("removed expired glossary cache entries", slog.Int("count", removed))
	}
	return removed, nil
}

// GetCacheStatistics counts entries, computes total size and returns hit
// rates for this process.
func (c *Cache) GetCacheStatistics() (CacheStatistics, error) {
	stats := CacheStatistics{}

	stats.TmdbEntries = countEntryDirs(filepath.Join(c.dir, "tmdb"))
	stats.LearnedEntries = countEntryDirs(filepath.Join(c.dir, "learned"))

	_ = filepath.WalkDir(c.dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			stats.SizeBytes += info.Size()
		}
		return nil
	})

	c.mu.Lock()
	stats.TmdbHits = c.tmdbHits
	stats.TmdbMisses = c.tmdbMisses
	c.mu.Unlock()
	if total := stats.TmdbHits + stats.TmdbMisses; total > 0 {
		stats.HitRate = float64(stats.TmdbHits) / float64(total)
	}
	return stats, nil
}

func (c *Cache) recordMiss() {
	c.mu.Lock()
	c.tmdbMisses++
	c.mu.Unlock()
}

func (c *Cache) updateIndex(slug string, entry IndexEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.readIndex()
	index[slug] = entry
	return writeJSON(filepath.Join(c.dir, "tmdb", indexFilename), index)
}

func (c *Cache) removeFromIndex(slug string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	index := c.readIndex()
	if _, ok := index[slug]; !ok {
		return
	}
	delete(index, slug)
	if err := writeJSON(filepath.Join(c.dir, "tmdb", indexFilename), index); err != nil {
		c.logger.Warn("updating cache index", slog.Any("error", err))
	}
}

func (c *Cache) readIndex() map[string]IndexEntry {
	index, err := readJSON[map[string]IndexEntry](filepath.Join(c.dir, "tmdb", indexFilename))
	if err != nil {
		return make(map[string]IndexEntry)
	}
	return *index
}

func countEntryDirs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	count := 0
	for _, e := range entries {
		if e.IsDir() {
			count++
		}
	}
	return count
}

func readJSON[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return &v, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}
	if err := storage.WriteFileAtomic(path, data); err != nil {
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return nil
}
