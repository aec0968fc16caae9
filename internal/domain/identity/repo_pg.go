package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fisiotrack/fisiotrack/internal/platform/db"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// =========== Account Repository ===========

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository { return &accountRepoPG{pool: pool} }

const accountCols = `uid, email, display_name, password_hash, rol, created_at`

func (r *accountRepoPG) scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	var hash, rol *string
	if err := row.Scan(&a.UID, &a.Email, &a.DisplayName, &hash, &rol, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	a.PasswordHash = optional.FromPtr(hash)
	if rol != nil {
		a.Rol = *rol
	}
	return &a, nil
}

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	if a.UID == "" {
		a.UID = uuid.NewString()
	}
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO cuentas (uid, email, display_name, password_hash, rol)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''))
		RETURNING created_at`,
		a.UID, a.Email, a.DisplayName, a.PasswordHash.Ptr(), a.Rol).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err) {
		return ErrEmailExists
	}
	return err
}

func (r *accountRepoPG) GetByID(ctx context.Context, uid string) (*Account, error) {
	return r.scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountCols+` FROM cuentas WHERE uid = $1`, uid))
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return r.scanAccount(db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+accountCols+` FROM cuentas WHERE email = $1`, email))
}

func (r *accountRepoPG) SetRole(ctx context.Context, uid, rol string) error {
	return r.update(ctx, `UPDATE cuentas SET rol = $2 WHERE uid = $1`, uid, rol)
}

func (r *accountRepoPG) SetPasswordHash(ctx context.Context, uid, hash string) error {
	return r.update(ctx, `UPDATE cuentas SET password_hash = $2 WHERE uid = $1`, uid, hash)
}

func (r *accountRepoPG) update(ctx context.Context, sql, uid, value string) error {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, sql, uid, value)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

func (r *accountRepoPG) Delete(ctx context.Context, uid string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM cuentas WHERE uid = $1`, uid)
	return err
}

// =========== Reset Token Repository ===========

type resetTokenRepoPG struct{ pool *pgxpool.Pool }

func NewResetTokenRepoPG(pool *pgxpool.Pool) ResetTokenRepository {
	return &resetTokenRepoPG{pool: pool}
}

func (r *resetTokenRepoPG) Create(ctx context.Context, t *ResetToken) error {
	return db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO restablecimientos (token_hash, uid, expires_at)
		VALUES ($1, $2, $3)
		RETURNING created_at`,
		t.TokenHash, t.UID, t.ExpiresAt).Scan(&t.CreatedAt)
}

func (r *resetTokenRepoPG) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	var uid string
	var expiresAt time.Time
	err := db.Conn(ctx, r.pool).QueryRow(ctx,
		`DELETE FROM restablecimientos WHERE token_hash = $1 RETURNING uid, expires_at`, tokenHash).
		Scan(&uid, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrResetTokenInvalid
	}
	if err != nil {
		return "", fmt.Errorf("consume reset token: %w", err)
	}
	if !now.Before(expiresAt) {
		return "", ErrResetTokenInvalid
	}
	return uid, nil
}

func (r *resetTokenRepoPG) DeleteByUID(ctx context.Context, uid string) error {
	_, err := db.Conn(ctx, r.pool).Exec(ctx, `DELETE FROM restablecimientos WHERE uid = $1`, uid)
	return err
}
