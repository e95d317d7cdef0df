// Package users provides the user profile store: monotonic user-id issuance,
// profile persistence, legacy credential migration, and workflow capability
// validation.
package users

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/clearpath-media/cp-whisperx/internal/lockfile"
	"github.com/clearpath-media/cp-whisperx/internal/models"
	"github.com/clearpath-media/cp-whisperx/internal/storage"
)

const (
	counterFilename = ".userIdCounter"
	lockFilename    = ".userIdCounter.lock"
)

// workflowRequirements maps each workflow to the credentials it needs.
var workflowRequirements = map[models.Workflow][]CredentialRef{
	models.WorkflowTranscribe: {{Service: "huggingface", Key: "token"}},
	models.WorkflowTranslate:  {{Service: "huggingface", Key: "token"}},
	models.WorkflowSubtitle: {
		{Service: "huggingface", Key: "token"},
		{Service: "tmdb", Key: "api_key"},
	},
}

// legacyKeyMap maps legacy secrets-file variable names to profile sections.
var legacyKeyMap = map[string]CredentialRef{
	"HF_TOKEN":          {Service: "huggingface", Key: "token"},
	"HUGGINGFACE_TOKEN": {Service: "huggingface", Key: "token"},
	"TMDB_API_KEY":      {Service: "tmdb", Key: "api_key"},
	"OPENAI_API_KEY":    {Service: "openai", Key: "api_key"},
	"GEMINI_API_KEY":    {Service: "gemini", Key: "api_key"},
}

// Store manages user profiles under a base directory.
type Store struct {
	baseDir           string
	defaultBudget     models.Budget
	legacySecretsPath string
	logger            *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultBudget sets the budget template applied to new profiles.
func WithDefaultBudget(b models.Budget) Option {
	return func(s *Store) { s.defaultBudget = b }
}

// WithLegacySecretsPath points the store at a legacy secrets file used to
// synthesize profiles for users that predate the profile format.
func WithLegacySecretsPath(path string) Option {
	return func(s *Store) { s.legacySecretsPath = path }
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// NewStore creates a Store rooted at baseDir (the users/ directory).
func NewStore(baseDir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating users directory: %w", err)
	}
	s := &Store{
		baseDir:       baseDir,
		defaultBudget: models.Budget{MonthlyLimitUsd: 50, AlertThresholdPercent: 80},
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BaseDir returns the users directory.
func (s *Store) BaseDir() string {
	return s.baseDir
}

// NextUserID issues the next user id from the durable counter file.
// The read-increment-write cycle is serialized process-wide by an advisory
// file lock, so concurrent callers always receive distinct ids.
func (s *Store) NextUserID() (int, error) {
	lock, err := lockfile.Acquire(filepath.Join(s.baseDir, lockFilename))
	if err != nil {
		return 0, fmt.Errorf("locking user id counter: %w", err)
	}
	defer lock.Release() //nolint:errcheck // release failure leaves a stale flock only

	counterPath := filepath.Join(s.baseDir, counterFilename)
	next := 1
	if data, err := os.ReadFile(counterPath); err == nil {
		parsed, err := strconv.Atoi(strings.TrimSpace(string(data)))
		if err != nil || parsed < 1 {
			return 0, fmt.Errorf("corrupt user id counter %q", strings.TrimSpace(string(data)))
		}
		next = parsed
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("reading user id counter: %w", err)
	}

	if err := storage.WriteFileAtomic(counterPath, []byte(strconv.Itoa(next+1))); err != nil {
		return 0, fmt.Errorf("writing user id counter: %w", err)
	}
	return next, nil
}

// CreateNewUser issues a fresh id, creates the user directory tree and
// writes a populated template profile. Initial credentials are applied to
// the profile before it is saved.
func (s *Store) CreateNewUser(name, email string, initialCredentials map[string]map[string]string) (int, error) {
	id, err := s.NextUserID()
	if err != nil {
		return 0, err
	}

	userDir := s.userDir(id)
	if err := os.MkdirAll(filepath.Join(userDir, "cache"), 0o750); err != nil {
		return 0, fmt.Errorf("creating user directory: %w", err)
	}

	profile := models.NewUserProfile(id, name, email, s.defaultBudget)
	for service, keys := range initialCredentials {
		for key, value := range keys {
			profile.SetCredential(service, key, value)
		}
	}

	if err := s.Save(profile); err != nil {
		return 0, err
	}

	s.logger.Info("created user",
		slog.Int("user_id", id),
		slog.String("name", name),
	)
	return id, nil
}

// Load reads a user's profile. If the profile file is absent but a legacy
// secrets file is configured and present, a profile is synthesized from it
// and persisted under the requested id (one-shot migration).
func (s *Store) Load(userID int) (*models.UserProfile, error) {
	if userID < 1 {
		return nil, fmt.Errorf("%w: user id %d is not positive", ErrInvalidProfile, userID)
	}

	path := filepath.Join(s.userDir(userID), models.ProfileFilename)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s.migrateLegacy(userID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	var profile models.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	if err := profile.ValidateSchema(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	// Correct id/directory mismatches rather than failing the load.
	if profile.UserID != userID {
		s.logger.Warn("profile user id does not match directory, correcting",
			slog.Int("profile_user_id", profile.UserID),
			slog.Int("directory_user_id", userID),
		)
		profile.UserID = userID
	}

	return &profile, nil
}

// Save atomically writes the profile JSON.
func (s *Store) Save(profile *models.UserProfile) error {
	if err := profile.ValidateSchema(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProfile, err)
	}

	userDir := s.userDir(profile.UserID)
	if err := os.MkdirAll(userDir, 0o750); err != nil {
		return fmt.Errorf("creating user directory: %w", err)
	}

	data, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding profile: %w", err)
	}

	if err := storage.WriteFileAtomic(filepath.Join(userDir, models.ProfileFilename), data); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}
	return nil
}

// UserExists reports whether a profile file exists for the user id.
// Readers never take the counter lock.
func (s *Store) UserExists(userID int) bool {
	_, err := os.Stat(filepath.Join(s.userDir(userID), models.ProfileFilename))
	return err == nil
}

// ListUsers returns the ids of all users with a profile on disk, ascending.
func (s *Store) ListUsers() ([]int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		return nil, fmt.Errorf("reading users directory: %w", err)
	}

	var ids []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, err := strconv.Atoi(entry.Name())
		if err != nil || id < 1 {
			continue
		}
		if s.UserExists(id) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids, nil
}

// ValidateForWorkflow checks that the profile holds every credential the
// workflow requires and returns a MissingCredentialError listing the gaps.
func ValidateForWorkflow(profile *models.UserProfile, workflow models.Workflow) error {
	required, ok := workflowRequirements[workflow]
	if !ok {
		return fmt.Errorf("unknown workflow %q", workflow)
	}

	var missing []CredentialRef
	for _, ref := range required {
		if profile.GetCredential(ref.Service, ref.Key) == "" {
			missing = append(missing, ref)
		}
	}
	if len(missing) > 0 {
		return &MissingCredentialError{Workflow: string(workflow), Missing: missing}
	}
	return nil
}

// migrateLegacy synthesizes a profile from the legacy secrets file.
func (s *Store) migrateLegacy(userID int) (*models.UserProfile, error) {
	if s.legacySecretsPath == "" {
		return nil, fmt.Errorf("%w: user %d", ErrProfileNotFound, userID)
	}

	secrets, err := parseLegacySecrets(s.legacySecretsPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: user %d", ErrProfileNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("reading legacy secrets: %w", err)
	}

	profile := models.NewUserProfile(userID, "", "", s.defaultBudget)
	for envKey, value := range secrets {
		ref, ok := legacyKeyMap[envKey]
		if !ok {
			continue
		}
		profile.Credentials[ref.Service] = map[string]string{ref.Key: value}
	}

	if err := os.MkdirAll(filepath.Join(s.userDir(userID), "cache"), 0o750); err != nil {
		return nil, fmt.Errorf("creating user directory: %w", err)
	}
	if err := s.Save(profile); err != nil {
		return nil, err
	}

	s.logger.Info("migrated legacy secrets to profile",
		slog.Int("user_id", userID),
		slog.String("source", s.legacySecretsPath),
	)
	return profile, nil
}

// parseLegacySecrets reads KEY=VALUE lines, ignoring comments and blanks.
func parseLegacySecrets(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	secrets := make(map[string]string)
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
		secrets[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"'`)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return secrets, nil
}

func (s *Store) userDir(userID int) string {
	return filepath.Join(s.baseDir, strconv.Itoa(userID))
}
