// Package jobconfig resolves effective per-job configuration by merging the
// process-level env file with the job descriptor, exposing typed lookups.
package jobconfig

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
	"strconv"
	"strings"
	"sync"

	"github.com/clearpath-media/cp-whisperx/internal/models"
)

var (
	intRe   = regexp.MustCompile(`^-?\d+$`)
	floatRe = regexp.MustCompile(`^-?\d+\.\d+$`)
)

// Config is the resolved configuration for one job directory. Keys are
// lowercase dotted paths: env-file entries verbatim, job descriptor fields
// flattened (for example "translation.provider"). Descriptor values override
// env-file values.
type Config struct {
	values     map[string]string
	descriptor *models.JobDescriptor
}

// Descriptor returns the parsed job descriptor, or nil when the job
// directory had none.
func (c *Config) Descriptor() *models.JobDescriptor {
	return c.descriptor
}

// GetString returns the value for key, or def when absent.
func (c *Config) GetString(key, def string) string {
	if v, ok := c.values[normalizeKey(key)]; ok {
		return v
	}
	return def
}

// GetBool parses true|false|1|0 (case-insensitive); anything else is def.
func (c *Config) GetBool(key string, def bool) bool {
	v, ok := c.values[normalizeKey(key)]
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	}
	return def
}

// GetInt returns the value as an integer when it matches the numeric form.
func (c *Config) GetInt(key string, def int) int {
	v, ok := c.values[normalizeKey(key)]
	if !ok || !intRe.MatchString(strings.TrimSpace(v)) {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

// GetFloat returns the value as a float when it matches the decimal or
// integer form.
func (c *Config) GetFloat(key string, def float64) float64 {
	v, ok := c.values[normalizeKey(key)]
	if !ok {
		return def
	}
	trimmed := strings.TrimSpace(v)
	if !floatRe.MatchString(trimmed) && !intRe.MatchString(trimmed) {
		return def
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return def
	}
	return f
}

// GetList splits a comma-separated value into trimmed elements.
func (c *Config) GetList(key string, def []string) []string {
	v, ok := c.values[normalizeKey(key)]
	if !ok {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Keys returns all resolved keys, sorted.
func (c *Config) Keys() []string {
	keys := make([]string, 0, len(c.values))
	for k := range c.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Resolver merges process-level and per-job configuration. Resolutions are
// cached per job directory; ForceReload bypasses the cache.
type Resolver struct {
	envPath           string
	legacySecretsPath string
	logger            *slog.Logger

	mu    sync.Mutex
	cache map[string]*Config
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithEnvPath points the resolver at the process-level env file.
func WithEnvPath(path string) ResolverOption {
	return func(r *Resolver) { r.envPath = path }
}

// WithLegacySecretsPath enables reading API tokens from the legacy secrets
// file. New code obtains credentials from user profiles; this exists only so
// pre-profile installations keep working.
func WithLegacySecretsPath(path string) ResolverOption {
	return func(r *Resolver) { r.legacySecretsPath = path }
}

// WithLogger sets the resolver logger.
func WithLogger(logger *slog.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = logger }
}

// NewResolver creates a Resolver.
func NewResolver(opts ...ResolverOption) *Resolver {
	r := &Resolver{
		logger: slog.Default(),
		cache:  make(map[string]*Config),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the effective configuration for jobDir, serving repeat
// calls from the cache.
func (r *Resolver) Resolve(jobDir string) (*Config, error) {
	r.mu.Lock()
	if cfg, ok := r.cache[jobDir]; ok {
		r.mu.Unlock()
		return cfg, nil
	}
	r.mu.Unlock()
	return r.load(jobDir)
}

// ForceReload re-reads all sources for jobDir, replacing the cached entry.
func (r *Resolver) ForceReload(jobDir string) (*Config, error) {
	return r.load(jobDir)
}

func (r *Resolver) load(jobDir string) (*Config, error) {
	values := make(map[string]string)

	// Lowest precedence: legacy secrets, kept for pre-profile installs.
	if r.legacySecretsPath != "" {
		secrets, err := readEnvFile(r.legacySecretsPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading legacy secrets: %w", err)
		}
		if len(secrets) > 0 {
			r.logger.Warn("loading secrets from legacy secrets file, migrate to user profiles",
				slog.String("path", r.legacySecretsPath))
			for k, v := range secrets {
				values[normalizeKey(k)] = v
			}
		}
	}

	if r.envPath != "" {
		env, err := readEnvFile(r.envPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading env file: %w", err)
		}
		for k, v := range env {
			values[normalizeKey(k)] = v
		}
	}

	// Highest precedence: the job descriptor, flattened to dotted keys.
	descriptor, err := loadDescriptor(jobDir)
	if err != nil {
		return nil, err
	}
	if descriptor != nil {
		flat, err := flattenDescriptorFile(filepath.Join(jobDir, models.DescriptorFilename))
		if err != nil {
			return nil, err
		}
		for k, v := range flat {
			values[k] = v
		}
	}

	cfg := &Config{values: values, descriptor: descriptor}
	r.mu.Lock()
	r.cache[jobDir] = cfg
	r.mu.Unlock()
	return cfg, nil
}

func loadDescriptor(jobDir string) (*models.JobDescriptor, error) {
	descriptor, err := models.LoadJobDescriptor(jobDir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return descriptor, nil
}

// flattenDescriptorFile reads the descriptor as generic JSON and flattens
// nested objects into dotted lowercase keys. Scalar arrays join with commas;
// object arrays are not flattened.
func flattenDescriptorFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading job descriptor: %w", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing job descriptor: %w", err)
	}

	flat := make(map[string]string)
	flattenInto(flat, "", raw)
	return flat, nil
}

func flattenInto(out map[string]string, prefix string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, child := range v {
			key := strings.ToLower(k)
			if prefix != "" {
				key = prefix + "." + key
			}
			flattenInto(out, key, child)
		}
	case []any:
		parts := make([]string, 0, len(v))
		for _, elem := range v {
			s, ok := scalarString(elem)
			if !ok {
				return
			}
			parts = append(parts, s)
		}
		out[prefix] = strings.Join(parts, ",")
	default:
		if s, ok := scalarString(v); ok {
			out[prefix] = s
		}
	}
}

func scalarString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), true
	case nil:
		return "", false
	}
	return "", false
}

// readEnvFile parses KEY=VALUE lines, ignoring comments and blanks.
func readEnvFile(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		values[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
