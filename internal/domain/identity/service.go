package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/fisiotrack/fisiotrack/internal/platform/apperr"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/notification"
	"github.com/fisiotrack/fisiotrack/pkg/optional"
)

// Options tune password handling and reset links.
type Options struct {
	// ResetURL is the page that accepts ?token=...; the token is appended.
	ResetURL   string
	ResetTTL   time.Duration
	BcryptCost int
}

type Service struct {
	accounts    AccountRepository
	resets      ResetTokenRepository
	signer      *auth.Signer
	revocations auth.RevocationStore
	mailer      *notification.Mailer
	opts        Options
	logger      zerolog.Logger
	now         func() time.Time

	// dummyHash is compared against on unknown emails so sign-in timing
	// does not reveal which addresses exist.
	dummyHash []byte
}

func NewService(accounts AccountRepository, resets ResetTokenRepository, signer *auth.Signer,
	revocations auth.RevocationStore, mailer *notification.Mailer, opts Options, logger zerolog.Logger) *Service {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 24 * time.Hour
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("fisiotrack-dummy-password"), opts.BcryptCost)
	return &Service{
		accounts:    accounts,
		resets:      resets,
		signer:      signer,
		revocations: revocations,
		mailer:      mailer,
		opts:        opts,
		logger:      logger.With().Str("component", "identity").Logger(),
		now:         time.Now,
		dummyHash:   dummy,
	}
}

func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return apperr.Invalid("password", "must have at least %d characters", MinPasswordLength)
	}
	return nil
}

// CreateAccount registers a new identity. Without a password the account
// cannot sign in until a reset link is used.
func (s *Service) CreateAccount(ctx context.Context, email string, password optional.Value[string], displayName string) (*Account, error) {
	email = NormalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperr.Invalid("email", "a valid email is required")
	}
	a := &Account{Email: email, DisplayName: strings.TrimSpace(displayName)}
	if pw, ok := password.Get(); ok {
		if err := validatePassword(pw); err != nil {
			return nil, err
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(pw), s.opts.BcryptCost)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		a.PasswordHash = optional.Some(string(hash))
	}
	if err := s.accounts.Create(ctx, a); err != nil {
		if errors.Is(err, ErrEmailExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create account: %w", err)
	}
	return a, nil
}

// SetClaims stamps the custom claims of uid. Tokens issued afterwards carry them.
func (s *Service) SetClaims(ctx context.Context, uid string, claims Claims) error {
	if !auth.ValidRole(claims.Rol) {
		return apperr.Invalid("rol", "unknown role %q", claims.Rol)
	}
	if err := s.accounts.SetRole(ctx, uid, claims.Rol); err != nil {
		return fmt.Errorf("set claims: %w", err)
	}
	return nil
}

func (s *Service) GetAccount(ctx context.Context, uid string) (*Account, error) {
	return s.accounts.GetByID(ctx, uid)
}

// DeleteAccount removes the identity and its pending reset links.
func (s *Service) DeleteAccount(ctx context.Context, uid string) error {
	if err := s.resets.DeleteByUID(ctx, uid); err != nil {
		return fmt.Errorf("delete reset tokens: %w", err)
	}
	if err := s.accounts.Delete(ctx, uid); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	return nil
}

// SignIn checks the credentials and issues a token carrying the stored claims.
func (s *Service) SignIn(ctx context.Context, email, password string) (*auth.Token, error) {
	a, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("look up account: %w", err)
	}
	hash, ok := a.PasswordHash.Get()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(a)
}

func (s *Service) issue(a *Account) (*auth.Token, error) {
	tok, err := s.signer.Issue(a.UID, a.Email, a.Rol)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

// SignOut revokes the presented token until it would have expired.
func (s *Service) SignOut(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return nil
	}
	var exp time.Time
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}
	if err := s.revocations.Revoke(ctx, claims.ID, claims.Subject, exp); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

// Refresh re-issues a token for uid with the claims currently stored.
func (s *Service) Refresh(ctx context.Context, uid string) (*auth.Token, error) {
	a, err := s.accounts.GetByID(ctx, uid)
	if err != nil {
		return nil, err
	}
	return s.issue(a)
}

// RequestPasswordReset emails a reset link. Unknown addresses are ignored.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	a, err := s.accounts.GetByEmail(ctx, NormalizeEmail(email))
	if errors.Is(err, ErrAccountNotFound) {
		s.logger.Debug().Msg("password reset requested for unknown email")
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up account: %w", err)
	}
	return s.sendLink(ctx, a, notification.TemplatePasswordReset, nil)
}

// SendInvitation emails a newly created, password-less account the link to
// set its first password.
func (s *Service) SendInvitation(ctx context.Context, a *Account, invitedBy string) error {
	return s.sendLink(ctx, a, notification.TemplateInvitation, map[string]string{"terapeuta": invitedBy})
}

func (s *Service) sendLink(ctx context.Context, a *Account, templateID string, extra map[string]string) error {
	token, hash, err := newResetToken()
	if err != nil {
		return err
	}
	expires := s.now().Add(s.opts.ResetTTL)
	if err := s.resets.Create(ctx, &ResetToken{TokenHash: hash, UID: a.UID, ExpiresAt: expires}); err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}
	if s.mailer == nil {
		s.logger.Warn().Str("uid", a.UID).Msg("no mailer configured, reset link not delivered")
		return nil
	}

	data := map[string]string{
		"nombre": a.DisplayName,
		"enlace": s.resetLink(token),
		"vence":  expires.Format("02/01/2006 15:04"),
	}
	for k, v := range extra {
		data[k] = v
	}
	if err := s.mailer.Send(ctx, a.Email, templateID, data); err != nil {
		s.logger.Error().Err(err).Str("uid", a.UID).Str("template", templateID).Msg("reset email failed")
		return fmt.Errorf("%w: %v", apperr.ErrUnavailable, err)
	}
	return nil
}

func (s *Service) resetLink(token string) string {
	base := s.opts.ResetURL
	if base == "" {
		return token
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "token=" + url.QueryEscape(token)
}

// ConfirmPasswordReset consumes a reset token and sets the new password.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	uid, err := s.resets.Consume(ctx, hashToken(token), s.now())
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.opts.BcryptCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.accounts.SetPasswordHash(ctx, uid, string(hash)); err != nil {
		return fmt.Errorf("set password: %w", err)
	}
	return nil
}

func newResetToken() (token, hash string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("generate reset token: %w", err)
	}
	token = base64.RawURLEncoding.EncodeToString(buf)
	return token, hashToken(token), nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
