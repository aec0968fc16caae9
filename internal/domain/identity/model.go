package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

var (
	ErrEmailExists        = fmt.Errorf("%w: email already registered", apperr.ErrConflict)
	ErrAccountNotFound    = fmt.Errorf("account %w", apperr.ErrNotFound)
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrResetTokenInvalid  = errors.New("password reset link is invalid or expired")
)

// MinPasswordLength applies to every password set through this package.
const MinPasswordLength = 6

// Account is a sign-in identity. Rol is the custom role claim; it is empty
// until stamped.
type Account struct {
	UID          string                 `json:"uid"`
	Email        string                 `json:"email"`
	DisplayName  string                 `json:"displayName"`
	PasswordHash optional.Value[string] `json:"-"`
	Rol          string                 `json:"rol,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// HasPassword reports whether the account can sign in with a password.
func (a *Account) HasPassword() bool {
	return a.PasswordHash.IsSet()
}

// Claims are the server-side custom claims of an account.
type Claims struct {
	Rol string `json:"rol"`
}

// ResetToken is a one-time password (re)set grant. Only the hash of the
// token handed to the user is stored.
type ResetToken struct {
	TokenHash string
	UID       string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// NormalizeEmail lower-cases and trims an address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
