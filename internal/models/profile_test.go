package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserProfile(t *testing.T) {
	p := NewUserProfile(1, "Alice", "alice@example.com", Budget{MonthlyLimitUsd: 50, AlertThresholdPercent: 80})

	assert.Equal(t, 1, p.UserID)
	assert.Equal(t, ProfileSchemaVersion, p.SchemaVersion)
	assert.Equal(t, "Alice", p.User.Name)
	assert.NoError(t, p.ValidateSchema())
}

func TestGetCredential_Precedence(t *testing.T) {
	p := NewUserProfile(1, "", "", Budget{})
	p.Credentials["huggingface"] = map[string]string{"token": "hf_abc"}
	p.OnlineServices["huggingface"] = OnlineService{Enabled: true, Keys: map[string]string{"token": "shadowed"}}

	assert.Equal(t, "hf_abc", p.GetCredential("huggingface", "token"))
}

func TestGetCredential_EmptyIsMissing(t *testing.T) {
	p := NewUserProfile(1, "", "", Budget{})
	p.Credentials["tmdb"] = map[string]string{"api_key": ""}

	assert.Empty(t, p.GetCredential("tmdb", "api_key"))
	assert.Empty(t, p.GetCredential("tmdb", "missing"))
	assert.Empty(t, p.GetCredential("unknown", "key"))
}

func TestGetCredential_OnlineServicesFallback(t *testing.T) {
	p := NewUserProfile(1, "", "", Budget{})
	p.OnlineServices["youtube"] = OnlineService{Enabled: true, Keys: map[string]string{"api_key": "yt_key"}}

	assert.Equal(t, "yt_key", p.GetCredential("youtube", "api_key"))
}

func TestSetCredential(t *testing.T) {
	p := NewUserProfile(1, "", "", Budget{})

	// Existing credentials section wins.
	p.Credentials["huggingface"] = map[string]string{}
	p.SetCredential("huggingface", "token", "hf_new")
	assert.Equal(t, "hf_new", p.Credentials["huggingface"]["token"])

	// Unknown service lands under onlineServices.
	p.SetCredential("openai", "api_key", "sk_test")
	svc, ok := p.OnlineServices["openai"]
	require.True(t, ok)
	assert.Equal(t, "sk_test", svc.Keys["api_key"])
	assert.True(t, svc.Enabled)
}

func TestHasService(t *testing.T) {
	p := NewUserProfile(1, "", "", Budget{})
	p.OnlineServices["openai"] = OnlineService{Enabled: true}
	p.OnlineServices["gemini"] = OnlineService{Enabled: false}

	assert.True(t, p.HasService("openai"))
	assert.False(t, p.HasService("gemini"))
	assert.False(t, p.HasService("unknown"))
}

func TestValidateSchema(t *testing.T) {
	p := NewUserProfile(1, "", "", Budget{})
	assert.NoError(t, p.ValidateSchema())

	p.SchemaVersion = "1"
	assert.Error(t, p.ValidateSchema())

	p.SchemaVersion = "1.0"
	p.Credentials = nil
	assert.Error(t, p.ValidateSchema())

	p = NewUserProfile(0, "", "", Budget{})
	assert.Error(t, p.ValidateSchema())
}

func TestOnlineServiceJSONRoundTrip(t *testing.T) {
	svc := OnlineService{Enabled: true, Keys: map[string]string{"api_key": "k1", "region": "eu"}}
	data, err := json.Marshal(svc)
	require.NoError(t, err)

	var decoded OnlineService
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.Enabled)
	assert.Equal(t, svc.Keys, decoded.Keys)
}

func TestProfileJSONFieldNames(t *testing.T) {
	p := NewUserProfile(7, "Bob", "", Budget{MonthlyLimitUsd: 25, AlertThresholdPercent: 75})
	data, err := json.Marshal(p)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "userId")
	assert.Contains(t, raw, "version")
	assert.Contains(t, raw, "credentials")
	assert.Contains(t, raw, "budget")
}
