// Package auth provides the identity capability: account registration,
// password login, session tokens and password reset.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Config holds the secrets and lifetimes used by Service.
type Config struct {
	JWTSecret     string
	TokenTTL      time.Duration
	ResetSecret   string
	ResetTokenTTL time.Duration
	// BcryptCost defaults to bcrypt.DefaultCost when zero.
	BcryptCost int
}

// Service authenticates accounts against an AccountStore.
type Service struct {
	store   AccountStore
	logger  *zap.SugaredLogger
	tokens  *tokenIssuer
	resets  *resetCodec
	cost    int
	revoked *revocationList
}

// NewService builds a Service. Empty secrets are replaced by random keys,
// which invalidates outstanding tokens on restart.
func NewService(store AccountStore, cfg Config, logger *zap.SugaredLogger) *Service {
	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		logger.Warn("JWT_SECRET not set, using a random key; sessions will not survive a restart")
		jwtSecret = securecookie.GenerateRandomKey(32)
	}
	resetSecret := []byte(cfg.ResetSecret)
	if len(resetSecret) == 0 {
		resetSecret = securecookie.GenerateRandomKey(32)
	}
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	if cfg.ResetTokenTTL <= 0 {
		cfg.ResetTokenTTL = 30 * time.Minute
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}

	return &Service{
		store:   store,
		logger:  logger,
		tokens:  &tokenIssuer{secret: jwtSecret, ttl: cfg.TokenTTL},
		resets:  newResetCodec(resetSecret, cfg.ResetTokenTTL),
		cost:    cost,
		revoked: newRevocationList(),
	}
}

// Register creates an account for email with the given password.
func (s *Service) Register(ctx context.Context, email, password string) (*Account, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.InsertAccount(ctx, account); err != nil {
		return nil, err
	}
	s.logger.Infow("Account registered", "account_id", account.ID)
	return account, nil
}

// Login verifies the password and issues a session token.
func (s *Service) Login(ctx context.Context, email, password string) (string, *Account, error) {
	account, err := s.store.FindAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.tokens.issue(account)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}
	return token, account, nil
}

// Authenticate resolves a session token to its account. It is the
// current_account capability used to scope link ownership.
func (s *Service) Authenticate(ctx context.Context, token string) (*Account, error) {
	if token == "" || s.revoked.contains(token) {
		return nil, ErrInvalidToken
	}
	claims, err := s.tokens.parse(token)
	if err != nil {
		return nil, ErrInvalidToken
	}

	account, err := s.store.FindAccountByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return account, nil
}

// Logout revokes token until it would have expired anyway.
func (s *Service) Logout(token string) error {
	claims, err := s.tokens.parse(token)
	if err != nil {
		return ErrInvalidToken
	}
	s.revoked.add(token, claims.ExpiresAt.Time)
	return nil
}

// UpdatePassword replaces the password of an authenticated account.
func (s *Service) UpdatePassword(ctx context.Context, accountID, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.store.UpdatePasswordHash(ctx, accountID, string(hash))
}

// RequestPasswordReset returns a signed, time-limited reset token for email.
// Delivery is left to the caller.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	account, err := s.store.FindAccountByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", err
	}
	return s.resets.encode(account)
}

// ResetPassword consumes a reset token and sets a new password. A token stops
// working once the password it was issued against has changed.
func (s *Service) ResetPassword(ctx context.Context, token, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	claims, err := s.resets.decode(token)
	if err != nil {
		return ErrInvalidToken
	}

	account, err := s.store.FindAccountByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrInvalidToken
		}
		return err
	}
	if claims.Stamp != passwordStamp(account.PasswordHash) {
		return ErrInvalidToken
	}
	return s.UpdatePassword(ctx, account.ID, password)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	return nil
}
