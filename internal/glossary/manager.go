package glossary

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

// Resolution strategies for GetTerm.
const (
	StrategyCascade   = "cascade"
	StrategyFirst     = "first"
	StrategyFrequency = "frequency"
	StrategyContext   = "context"
)

// Contexts recognized by the context strategy.
const (
	ContextFormal    = "formal"
	ContextCasual    = "casual"
	ContextEmotional = "emotional"
)

// tmdbTopCast caps how many cast members the enrichment extraction keeps.
const tmdbTopCast = 10

var contextKeywords = map[string][]string{
	ContextFormal:    {"sir", "madam", "brother", "formal", "respect"},
	ContextCasual:    {"dude", "bro", "man", "buddy", "casual"},
	ContextEmotional: {"dear", "love", "heart", "darling"},
}

var (
	parentheticalRe = regexp.MustCompile(`\s*\([^)]*\)`)
	masterCrewRoles = map[string]bool{
		"Director": true, "Writer": true, "Screenplay": true, "Producer": true,
	}
)

// Statistics summarizes glossary tier sizes and resolution outcomes.
type Statistics struct {
	FilmTerms     int     `json:"filmTerms"`
	TmdbTerms     int     `json:"tmdbTerms"`
	MasterTerms   int     `json:"masterTerms"`
	LearnedTerms  int     `json:"learnedTerms"`
	FilmHits      int     `json:"filmHits"`
	TmdbHits      int     `json:"tmdbHits"`
	MasterHits    int     `json:"masterHits"`
	LearnedHits   int     `json:"learnedHits"`
	Misses        int     `json:"misses"`
	TotalRequests int     `json:"totalRequests"`
	HitRate       float64 `json:"hitRate"`

	Cache CacheStatistics `json:"cache"`
}

// Manager resolves source terms against four tiers in strict priority order:
// film-specific, TMDB-derived, master, learned.
type Manager struct {
	projectRoot    string
	cache          *Cache
	filmTitle      string
	filmYear       int
	enrichmentPath string
	learning       bool
	logger         *slog.Logger

	mu      sync.Mutex
	film    map[string][]string
	tmdb    map[string][]string
	master  map[string][]string
	learned map[string]map[string]float64

	// master phrases by word count, longest first, for ApplyToText.
	masterPhrases []string

	filmHits, tmdbHits, masterHits, learnedHits, misses int
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithFilm binds the manager to a film, enabling the TMDB, film-specific and
// learned tiers.
func WithFilm(title string, year int) ManagerOption {
	return func(m *Manager) {
		m.filmTitle = title
		m.filmYear = year
	}
}

// WithEnrichmentPath points at a raw TMDB enrichment JSON used to derive the
// TMDB tier on cache miss.
func WithEnrichmentPath(path string) ManagerOption {
	return func(m *Manager) { m.enrichmentPath = path }
}

// WithLearning enables frequency learning and the learned tier.
func WithLearning(enabled bool) ManagerOption {
	return func(m *Manager) { m.learning = enabled }
}

// WithManagerLogger sets the manager logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

// NewManager creates a Manager. projectRoot holds the glossary/ data tree;
// cache may be nil when no film is bound.
func NewManager(projectRoot string, cache *Cache, opts ...ManagerOption) *Manager {
	m := &Manager{
		projectRoot: projectRoot,
		cache:       cache,
		logger:      slog.Default(),
		film:        map[string][]string{},
		tmdb:        map[string][]string{},
		master:      map[string][]string{},
		learned:     map[string]map[string]float64{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// LoadAllSources populates every tier. Missing optional sources are skipped;
// a missing master file degrades to an empty master tier with a warning.
func (m *Manager) LoadAllSources() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.loadMaster(); err != nil {
		return err
	}
	if m.filmTitle != "" && m.cache != nil {
		if err := m.loadTmdb(); err != nil {
			return err
		}
		if err := m.loadFilmSpecific(); err != nil {
			return err
		}
		if m.learning {
			learned, err := m.cache.GetLearnedTerms(m.filmTitle, m.filmYear)
			if err != nil {
				return fmt.Errorf("loading learned terms: %w", err)
			}
			m.learned = learned
		}
	}

	m.rebuildMasterPhrases()
	m.logger.Info("glossary sources loaded",
		slog.Int("film", len(m.film)),
		slog.Int("tmdb", len(m.tmdb)),
		slog.Int("master", len(m.master)),
		slog.Int("learned", len(m.learned)),
	)
	return nil
}

// GetTerm resolves a source term. Tiers are consulted in priority order;
// within a tier holding multiple translations the strategy picks one.
// The second return is false on a miss.
func (m *Manager) GetTerm(source, context, strategy string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getTermLocked(source, context, strategy)
}

func (m *Manager) getTermLocked(source, context, strategy string) (string, bool) {
	key := strings.ToLower(source)

	tiers := []struct {
		terms map[string][]string
		hits  *int
	}{
		{m.film, &m.filmHits},
		{m.tmdb, &m.tmdbHits},
		{m.master, &m.masterHits},
	}
	for _, tier := range tiers {
		if translations, ok := tier.terms[key]; ok && len(translations) > 0 {
			*tier.hits++
			return m.pick(key, translations, context, strategy), true
		}
	}

	if scores, ok := m.learned[key]; ok && len(scores) > 0 {
		m.learnedHits++
		return bestLearned(scores), true
	}

	m.misses++
	return "", false
}

// pick selects among a tier's translations according to the strategy.
func (m *Manager) pick(source string, translations []string, context, strategy string) string {
	switch strategy {
	case StrategyFrequency:
		if !m.learning {
			return translations[0]
		}
		scores := m.learned[source]
		best := translations[0]
		bestScore := scores[best]
		for _, t := range translations[1:] {
			if scores[t] > bestScore {
				best, bestScore = t, scores[t]
			}
		}
		return best
	case StrategyContext:
		keywords := contextKeywords[context]
		for _, t := range translations {
			lower := strings.ToLower(t)
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					return t
				}
			}
		}
		return translations[0]
	default: // cascade / first
		return translations[0]
	}
}

// ApplyToText replaces known source terms word by word, preserving leading
// and trailing punctuation. Multi-word master entries are matched longest
// phrase first.
func (m *Manager) ApplyToText(text, context string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	words := strings.Fields(text)
	out := make([]string, 0, len(words))

	for i := 0; i < len(words); i++ {
		if phrase, span := m.matchPhrase(words, i); span > 0 {
			out = append(out, phrase)
			i += span - 1
			continue
		}

		prefix, core, suffix := splitPunctuation(words[i])
		if core == "" {
			out = append(out, words[i])
			continue
		}
		if translation, ok := m.getTermLocked(core, context, StrategyCascade); ok {
			out = append(out, prefix+translation+suffix)
		} else {
			out = append(out, words[i])
		}
	}
	return strings.Join(out, " ")
}

// matchPhrase tries multi-word master phrases starting at index i, longest
// first, and returns the replacement plus the matched word count.
func (m *Manager) matchPhrase(words []string, i int) (string, int) {
	for _, phrase := range m.masterPhrases {
		parts := strings.Split(phrase, " ")
		if len(parts) < 2 || i+len(parts) > len(words) {
			continue
		}
		prefix, _, _ := splitPunctuation(words[i])
		_, _, suffix := splitPunctuation(words[i+len(parts)-1])
		matched := true
		for j, part := range parts {
			_, core, _ := splitPunctuation(words[i+j])
			if !strings.EqualFold(core, part) {
				matched = false
				break
			}
		}
		if matched {
			return prefix + m.master[phrase][0] + suffix, len(parts)
		}
	}
	return "", 0
}

// TrackUsage adjusts the learned frequency for a (source, translation) pair:
// +1 on success, -0.5 on failure, clamped at zero. The update is persisted
// through the cache when learning is enabled.
func (m *Manager) TrackUsage(source, translation string, success bool) error {
	if !m.learning || m.cache == nil {
		return nil
	}

	m.mu.Lock()
	key := strings.ToLower(source)
	scores, ok := m.learned[key]
	if !ok {
		scores = map[string]float64{}
		m.learned[key] = scores
	}
	if success {
		scores[translation]++
	} else {
		scores[translation] -= 0.5
		if scores[translation] < 0 {
			scores[translation] = 0
		}
	}
	snapshot := make(map[string]map[string]float64, len(m.learned))
	for k, v := range m.learned {
		inner := make(map[string]float64, len(v))
		for t, s := range v {
			inner[t] = s
		}
		snapshot[k] = inner
	}
	m.mu.Unlock()

	return m.cache.UpdateLearnedTerms(m.filmTitle, m.filmYear, snapshot)
}

// GetBiasTerms returns a deduplicated union of source terms from the film,
// TMDB and master tiers in that priority order, truncated to maxTerms. The
// result is a prior for external recognizers.
func (m *Manager) GetBiasTerms(maxTerms int) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool)
	var terms []string
	for _, tier := range []map[string][]string{m.film, m.tmdb, m.master} {
		keys := make([]string, 0, len(tier))
		for k := range tier {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if seen[k] {
				continue
			}
			seen[k] = true
			terms = append(terms, k)
			if len(terms) == maxTerms {
				return terms
			}
		}
	}
	return terms
}

// GetStatistics reports tier sizes, hit counts and cache statistics.
func (m *Manager) GetStatistics() Statistics {
	m.mu.Lock()
	stats := Statistics{
		FilmTerms:    len(m.film),
		TmdbTerms:    len(m.tmdb),
		MasterTerms:  len(m.master),
		LearnedTerms: len(m.learned),
		FilmHits:     m.filmHits,
		TmdbHits:     m.tmdbHits,
		MasterHits:   m.masterHits,
		LearnedHits:  m.learnedHits,
		Misses:       m.misses,
	}
	m.mu.Unlock()

	stats.TotalRequests = stats.FilmHits + stats.TmdbHits + stats.MasterHits + stats.LearnedHits + stats.Misses
	if stats.TotalRequests > 0 {
		stats.HitRate = float64(stats.TotalRequests-stats.Misses) / float64(stats.TotalRequests)
	}
	if m.cache != nil {
		if cacheStats, err := m.cache.GetCacheStatistics(); err == nil {
			stats.Cache = cacheStats
		}
	}
	return stats
}

// loadMaster parses the master TSV. Columns are resolved by header name;
// preferred_english holds pipe-separated alternatives.
func (m *Manager) loadMaster() error {
	path := filepath.Join(m.projectRoot, "glossary", "hinglish_master.tsv")
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("master glossary not found, continuing with empty master",
			slog.String("path", path))
		m.master = map[string][]string{}
		return nil
	}
	if err != nil {
		return fmt.Errorf("opening master glossary: %w", err)
	}
	defer f.Close()

	master := make(map[string][]string)
	scanner := bufio.NewScanner(f)

	sourceCol, translationCol := -1, -1
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if line == 1 {
			for i, name := range fields {
				switch strings.TrimSpace(strings.ToLower(name)) {
				case "source":
					sourceCol = i
				case "preferred_english":
					translationCol = i
				}
			}
			if sourceCol < 0 || translationCol < 0 {
				return fmt.Errorf("master glossary %s: missing source/preferred_english columns", path)
			}
			continue
		}
		if len(fields) <= sourceCol || len(fields) <= translationCol {
			m.logger.Warn("skipping malformed master glossary row", slog.Int("line", line))
			continue
		}
		source := strings.ToLower(strings.TrimSpace(fields[sourceCol]))
		if source == "" {
			m.logger.Warn("skipping malformed master glossary row", slog.Int("line", line))
			continue
		}
		var translations []string
		for _, alt := range strings.Split(fields[translationCol], "|") {
			if trimmed := strings.TrimSpace(alt); trimmed != "" {
				translations = append(translations, trimmed)
			}
		}
		if len(translations) == 0 {
			m.logger.Warn("skipping malformed master glossary row", slog.Int("line", line))
			continue
		}
		master[source] = translations
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading master glossary: %w", err)
	}

	m.master = master
	return nil
}

// loadTmdb serves the TMDB tier from cache, deriving it from the enrichment
// file on miss.
func (m *Manager) loadTmdb() error {
	cached, err := m.cache.GetTmdbGlossary(m.filmTitle, m.filmYear)
	if err != nil {
		return fmt.Errorf("reading tmdb glossary cache: %w", err)
	}
	if cached != nil {
		m.tmdb = lowerKeys(cached)
		return nil
	}

	if m.enrichmentPath == "" {
		return nil
	}
	enrichment, err := readJSON[map[string]any](m.enrichmentPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading enrichment: %w", err)
	}

	derived := ExtractEnrichmentTerms(*enrichment)
	if err := m.cache.SaveTmdbGlossary(m.filmTitle, m.filmYear, derived, *enrichment); err != nil {
		return fmt.Errorf("caching tmdb glossary: %w", err)
	}
	m.tmdb = lowerKeys(derived)
	return nil
}

// loadFilmSpecific reads glossary/films/popular/{slug}.json, accepting either
// a {"terms": {...}} wrapper or a bare term map.
func (m *Manager) loadFilmSpecific() error {
	slug := FilmSlug(m.filmTitle, m.filmYear)
	path := filepath.Join(m.projectRoot, "glossary", "films", "popular", slug+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading film glossary: %w", err)
	}

	var wrapper struct {
		Terms map[string]json.RawMessage `json:"terms"`
	}
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &wrapper); err == nil && wrapper.Terms != nil {
		raw = wrapper.Terms
	} else if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parsing film glossary %s: %w", path, err)
	}

	film := make(map[string][]string, len(raw))
	for source, value := range raw {
		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			film[strings.ToLower(source)] = []string{single}
			continue
		}
		var many []string
		if err := json.Unmarshal(value, &many); err == nil && len(many) > 0 {
			film[strings.ToLower(source)] = many
		}
	}
	m.film = film
	return nil
}

func (m *Manager) rebuildMasterPhrases() {
	var phrases []string
	for key := range m.master {
		if strings.Contains(key, " ") {
			phrases = append(phrases, key)
		}
	}
	sort.Slice(phrases, func(i, j int) bool {
		wi, wj := strings.Count(phrases[i], " "), strings.Count(phrases[j], " ")
		if wi != wj {
			return wi > wj
		}
		return phrases[i] < phrases[j]
	})
	m.masterPhrases = phrases
}

// ExtractEnrichmentTerms derives glossary terms from a raw TMDB enrichment
// document: top cast names with their character names (parentheticals and
// slash-separated aliases cleaned) and crew names for key roles. Each name
// maps to itself so downstream translation preserves it verbatim.
func ExtractEnrichmentTerms(enrichment map[string]any) map[string][]string {
	credits := enrichment
	if nested, ok := enrichment["credits"].(map[string]any); ok {
		credits = nested
	}

	terms := make(map[string][]string)
	add := func(name string) {
		name = strings.TrimSpace(name)
		if name != "" {
			terms[name] = []string{name}
		}
	}

	if cast, ok := credits["cast"].([]any); ok {
		for i, member := range cast {
			if i == tmdbTopCast {
				break
			}
			entry, ok := member.(map[string]any)
			if !ok {
				continue
			}
			if name, ok := entry["name"].(string); ok {
				add(name)
			}
			if character, ok := entry["character"].(string); ok {
				cleaned := parentheticalRe.ReplaceAllString(character, "")
				for _, alias := range strings.Split(cleaned, "/") {
					add(alias)
				}
			}
		}
	}

	if crew, ok := credits["crew"].([]any); ok {
		for _, member := range crew {
			entry, ok := member.(map[string]any)
			if !ok {
				continue
			}
			job, _ := entry["job"].(string)
			if !masterCrewRoles[job] {
				continue
			}
			if name, ok := entry["name"].(string); ok {
				add(name)
			}
		}
	}
	return terms
}

func bestLearned(scores map[string]float64) string {
	keys := make([]string, 0, len(scores))
	for k := range scores {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	best, bestScore := keys[0], scores[keys[0]]
	for _, k := range keys[1:] {
		if scores[k] > bestScore {
			best, bestScore = k, scores[k]
		}
	}
	return best
}

func lowerKeys(in map[string][]string) map[string][]string {
	out := make(map[string][]string, len(in))
	for k, v := range in {
		out[strings.ToLower(k)] = v
	}
	return out
}

// splitPunctuation splits a token into leading punctuation, the core word
// and trailing punctuation.
func splitPunctuation(token string) (prefix, core, suffix string) {
	start := 0
	for start < len(token) && !isWordByte(token[start]) {
		start++
	}
	end := len(token)
	for end > start && !isWordByte(token[end-1]) {
		end--
	}
	return token[:start], token[start:end], token[end:]
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9' || b >= 0x80
}
