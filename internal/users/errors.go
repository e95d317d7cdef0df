package users

import (
	"errors"
	"fmt"
	"strings"
)

// ErrProfileNotFound indicates no profile exists for the requested user id.
var ErrProfileNotFound = errors.New("user profile not found")

// ErrInvalidProfile indicates a profile failed schema validation.
var ErrInvalidProfile = errors.New("invalid user profile")

// CredentialRef names one required credential as service.key.
type CredentialRef struct {
	Service string
	Key     string
}

// String returns the service.key path of the credential.
func (c CredentialRef) String() string {
	return c.Service + "." + c.Key
}

// MissingCredentialError reports the credentials a workflow requires but the
// profile does not hold.
type MissingCredentialError struct {
	Workflow string
	Missing  []CredentialRef
}

// Error implements the error interface with an actionable message.
func (e *MissingCredentialError) Error() string {
	paths := make([]string, len(e.Missing))
	for i, ref := range e.Missing {
		paths[i] = ref.String()
	}
	return fmt.Sprintf("workflow %q requires missing credentials: %s (set them with `cpx user set-credential`)",
		e.Workflow, strings.Join(paths, ", "))
}
