package users

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clearpath-media/cp-whisperx/internal/models"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "users"), opts...)
	require.NoError(t, err)
	return store
}

func TestCreateNewUser_FirstUser(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateNewUser("Alice", "alice@example.com", nil)
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	// Profile exists with the right identity.
	profile, err := store.Load(1)
	require.NoError(t, err)
	assert.Equal(t, 1, profile.UserID)
	assert.Equal(t, "Alice", profile.User.Name)

	// Counter advanced to 2.
	data, err := os.ReadFile(filepath.Join(store.BaseDir(), ".userIdCounter"))
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	// Cache directory was created.
	info, err := os.Stat(filepath.Join(store.BaseDir(), "1", "cache"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	// Second user gets the next id.
	id, err = store.CreateNewUser("Bob", "", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, id)
}

func TestNextUserID_MonotoneAndContiguous(t *testing.T) {
	store := newTestStore(t)

	for want := 1; want <= 5; want++ {
		id, err := store.NextUserID()
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
}

func TestNextUserID_CorruptCounter(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(store.BaseDir(), ".userIdCounter"), []byte("banana"), 0o644))

	_, err := store.NextUserID()
	assert.Error(t, err)
}

func TestCreateNewUser_InitialCredentials(t *testing.T) {
	store := newTestStore(t)

	id, err := store.CreateNewUser("Carol", "", map[string]map[string]string{
		"huggingface": {"token": "hf_abc"},
	})
	require.NoError(t, err)

	profile, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "hf_abc", profile.GetCredential("huggingface", "token"))
}

func TestLoad_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Load(42)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestLoad_InvalidSchema(t *testing.T) {
	store := newTestStore(t)
	userDir := filepath.Join(store.BaseDir(), "1")
	require.NoError(t, os.MkdirAll(userDir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "profile.json"),
		[]byte(`{"userId": 1, "version": "one.zero", "credentials": {}}`), 0o644))

	_, err := store.Load(1)
	assert.ErrorIs(t, err, ErrInvalidProfile)
}

func TestLoad_IDMismatchCorrected(t *testing.T) {
	store := newTestStore(t)
	userDir := filepath.Join(store.BaseDir(), "3")
	require.NoError(t, os.MkdirAll(userDir, 0o750))

	profile := models.NewUserProfile(9, "Mismatched", "", models.Budget{MonthlyLimitUsd: 10, AlertThresholdPercent: 80})
	data, err := json.Marshal(profile)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(userDir, "profile.json"), data, 0o644))

	loaded, err := store.Load(3)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.UserID)
}

func TestLoad_LegacyMigration(t *testing.T) {
	dir := t.TempDir()
	secretsPath := filepath.Join(dir, "secrets.env")
	secrets := "# legacy secrets\nHF_TOKEN=hf_legacy\nTMDB_API_KEY=\"tmdb_legacy\"\nUNRELATED=skip\n"
	require.NoError(t, os.WriteFile(secretsPath, []byte(secrets), 0o600))

	store, err := NewStore(filepath.Join(dir, "users"), WithLegacySecretsPath(secretsPath))
	require.NoError(t, err)

	profile, err := store.Load(1)
	require.NoError(t, err)
	assert.Equal(t, "hf_legacy", profile.GetCredential("huggingface", "token"))
	assert.Equal(t, "tmdb_legacy", profile.GetCredential("tmdb", "api_key"))
	assert.Empty(t, profile.GetCredential("unrelated", "key"))

	// Migration is one-shot: the profile is now persisted.
	assert.True(t, store.UserExists(1))
}

func TestSaveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	id, err := store.CreateNewUser("Dave", "", nil)
	require.NoError(t, err)

	profile, err := store.Load(id)
	require.NoError(t, err)
	profile.SetCredential("tmdb", "api_key", "tm_123")
	require.NoError(t, store.Save(profile))

	reloaded, err := store.Load(id)
	require.NoError(t, err)
	assert.Equal(t, "tm_123", reloaded.GetCredential("tmdb", "api_key"))
}

func TestListUsers(t *testing.T) {
	store := newTestStore(t)
	ids, err := store.ListUsers()
	require.NoError(t, err)
	assert.Empty(t, ids)

	for i := 0; i < 3; i++ {
		_, err := store.CreateNewUser("u"+strconv.Itoa(i), "", nil)
		require.NoError(t, err)
	}

	ids, err = store.ListUsers()
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids)
}

func TestValidateForWorkflow(t *testing.T) {
	profile := models.NewUserProfile(1, "", "", models.Budget{})

	err := ValidateForWorkflow(profile, models.WorkflowTranscribe)
	var missingErr *MissingCredentialError
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, []CredentialRef{{Service: "huggingface", Key: "token"}}, missingErr.Missing)

	profile.SetCredential("huggingface", "token", "hf_x")
	assert.NoError(t, ValidateForWorkflow(profile, models.WorkflowTranscribe))
	assert.NoError(t, ValidateForWorkflow(profile, models.WorkflowTranslate))

	// Subtitle additionally needs the TMDB key.
	err = ValidateForWorkflow(profile, models.WorkflowSubtitle)
	require.ErrorAs(t, err, &missingErr)
	assert.Equal(t, []CredentialRef{{Service: "tmdb", Key: "api_key"}}, missingErr.Missing)
	assert.Contains(t, err.Error(), "tmdb.api_key")

	profile.SetCredential("tmdb", "api_key", "tm_x")
	assert.NoError(t, ValidateForWorkflow(profile, models.WorkflowSubtitle))
}
