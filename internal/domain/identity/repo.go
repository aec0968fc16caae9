package identity

import (
	"context"
	"time"
)

type AccountRepository interface {
	// Create assigns a UID when empty and returns ErrEmailExists on a
	// duplicate email.
	Create(ctx context.Context, a *Account) error
	GetByID(ctx context.Context, uid string) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	SetRole(ctx context.Context, uid, rol string) error
	SetPasswordHash(ctx context.Context, uid, hash string) error
	Delete(ctx context.Context, uid string) error
}

type ResetTokenRepository interface {
	Create(ctx context.Context, t *ResetToken) error
	// Consume deletes the token and returns its account when it had not
	// expired at now. Unknown or expired tokens yield ErrResetTokenInvalid.
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)
	DeleteByUID(ctx context.Context, uid string) error
}
