package auth

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("an account with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidToken       = errors.New("invalid or expired token")
	ErrInvalidEmail       = errors.New("please enter a valid email")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
)

const minPasswordLength = 6

// Account is an authenticated identity. Only ID and Email leave this package.
type Account struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AccountStore persists accounts. Lookups that match nothing return
// ErrAccountNotFound; a duplicate email on insert returns ErrEmailTaken.
type AccountStore interface {
	FindAccountByEmail(ctx context.Context, email string) (*Account, error)
	FindAccountByID(ctx context.Context, id string) (*Account, error)
	InsertAccount(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}
