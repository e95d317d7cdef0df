package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"
)

// ProfileSchemaVersion is the version written to new profiles.
const ProfileSchemaVersion = "1.0"

// ProfileFilename is the profile file name inside users/{id}/.
const ProfileFilename = "profile.json"

var schemaVersionRe = regexp.MustCompile(`^\d+\.\d+$`)

// ValidSchemaVersion reports whether v matches the required major.minor form.
func ValidSchemaVersion(v string) bool {
	return schemaVersionRe.MatchString(v)
}

// UserInfo holds identity fields of a profile.
type UserInfo struct {
	Name      string    `json:"name,omitempty"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Budget holds per-user spend limits.
type Budget struct {
	MonthlyLimitUsd       float64 `json:"monthlyLimitUsd"`
	AlertThresholdPercent int     `json:"alertThresholdPercent"`
}

// OnlineService is a service entry under onlineServices: arbitrary string
// keys plus an enabled flag.
type OnlineService struct {
	Enabled bool
	Keys    map[string]string
}

// MarshalJSON flattens Keys alongside the enabled flag.
func (s OnlineService) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(s.Keys)+1)
	for k, v := range s.Keys {
		out[k] = v
	}
	out["enabled"] = s.Enabled
	return json.Marshal(out)
}

// UnmarshalJSON splits the enabled flag from the remaining string keys.
func (s *OnlineService) UnmarshalJSON(data []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.Keys = make(map[string]string)
	for k, v := range raw {
		if k == "enabled" {
			if b, ok := v.(bool); ok {
				s.Enabled = b
			}
			continue
		}
		if str, ok := v.(string); ok {
			s.Keys[k] = str
		}
	}
	return nil
}

// UserProfile is the persisted per-user record at users/{userId}/profile.json.
type UserProfile struct {
	UserID         int                          `json:"userId"`
	SchemaVersion  string                       `json:"version"`
	User           UserInfo                     `json:"user"`
	Credentials    map[string]map[string]string `json:"credentials"`
	OnlineServices map[string]OnlineService     `json:"onlineServices,omitempty"`
	Preferences    map[string]any               `json:"preferences,omitempty"`
	Budget         Budget                       `json:"budget"`
}

// NewUserProfile returns a populated template profile.
func NewUserProfile(userID int, name, email string, budget Budget) *UserProfile {
	return &UserProfile{
		UserID:        userID,
		SchemaVersion: ProfileSchemaVersion,
		User: UserInfo{
			Name:      name,
			Email:     email,
			CreatedAt: time.Now().UTC(),
		},
		Credentials:    make(map[string]map[string]string),
		OnlineServices: make(map[string]OnlineService),
		Preferences:    make(map[string]any),
		Budget:         budget,
	}
}

// GetCredential returns the credential value for (service, key), or the
// empty string when the service, key, or value is missing or empty.
// The credentials section takes precedence over onlineServices.
func (p *UserProfile) GetCredential(service, key string) string {
	if keys, ok := p.Credentials[service]; ok {
		if v := keys[key]; v != "" {
			return v
		}
	}
	if svc, ok := p.OnlineServices[service]; ok {
		if v := svc.Keys[key]; v != "" {
			return v
		}
	}
	return ""
}

// SetCredential writes a credential to whichever section already holds the
// service; services unknown to both sections land in onlineServices.
func (p *UserProfile) SetCredential(service, key, value string) {
	if keys, ok := p.Credentials[service]; ok {
		keys[key] = value
		return
	}
	if p.OnlineServices == nil {
		p.OnlineServices = make(map[string]OnlineService)
	}
	svc, ok := p.OnlineServices[service]
	if !ok {
		svc = OnlineService{Enabled: true, Keys: make(map[string]string)}
	}
	if svc.Keys == nil {
		svc.Keys = make(map[string]string)
	}
	svc.Keys[key] = value
	p.OnlineServices[service] = svc
}

// HasService reports whether service is present under onlineServices and
// enabled.
func (p *UserProfile) HasService(service string) bool {
	svc, ok := p.OnlineServices[service]
	return ok && svc.Enabled
}

// ValidateSchema checks the required profile fields.
func (p *UserProfile) ValidateSchema() error {
	if p.UserID < 1 {
		return fmt.Errorf("profile: userId must be a positive integer")
	}
	if !ValidSchemaVersion(p.SchemaVersion) {
		return fmt.Errorf("profile: version %q does not match major.minor", p.SchemaVersion)
	}
	if p.Credentials == nil {
		return fmt.Errorf("profile: credentials section is required")
	}
	return nil
}
