package shortener

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no link (or no link owned by the caller) matches.
	ErrNotFound = errors.New("link not found")
	// ErrCodeTaken is returned when a requested custom code already belongs to another link.
	ErrCodeTaken = errors.New("short code is already taken")
	// ErrAllocationExhausted is returned when every generated candidate collided.
	ErrAllocationExhausted = errors.New("could not allocate a unique short code")
	// ErrUniquenessViolation is returned by a Store when a write would duplicate a short code.
	ErrUniquenessViolation = errors.New("short code uniqueness violation")
	// ErrInvalidCode is returned for custom codes outside the allowed format.
	ErrInvalidCode = errors.New("short code must be 3-20 characters of letters, digits, '_' or '-'")
	// ErrEmptyURL is returned when the destination URL is blank.
	ErrEmptyURL = errors.New("original url is required")
	// ErrNoOwner is returned when an operation is attempted without an account.
	ErrNoOwner = errors.New("owner is required")
)

// Link maps a short code to a destination URL on behalf of an account.
type Link struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"owner_id"`
	OriginalURL string    `json:"original_url"`
	ShortCode   string    `json:"short_code"`
	CreatedAt   time.Time `json:"created_at"`
	ClickCount  int64     `json:"click_count"`
}

// Click is a single recorded resolution of a link.
type Click struct {
	ID        string    `json:"id"`
	LinkID    string    `json:"link_id"`
	UserAgent string    `json:"user_agent,omitempty"`
	Referrer  string    `json:"referrer,omitempty"`
	ClickedAt time.Time `json:"clicked_at"`
}

// Store is the persistence boundary for links and clicks.
//
// Implementations must enforce short code uniqueness themselves and report a
// duplicate as ErrUniquenessViolation; lookups that match nothing return ErrNotFound.
//
//go:generate mockgen -destination=../mocks/mock_store.go -package=mocks url-shortener/internal/shortener Store
type Store interface {
	FindByCode(ctx context.Context, code string) (*Link, error)
	FindByID(ctx context.Context, id string) (*Link, error)
	FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*Link, error)
	Insert(ctx context.Context, link *Link) error
	UpdateCode(ctx context.Context, id, ownerID, code string) error
	UpdateURL(ctx context.Context, id, ownerID, originalURL string) error
	Delete(ctx context.Context, id, ownerID string) error
	// IncrementClickCount must apply click_count = click_count + 1 as one atomic step.
	IncrementClickCount(ctx context.Context, id string) error
	InsertClick(ctx context.Context, click *Click) error
	// ListByOwner returns the owner's links, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Link, error)
	// ListClicks returns a link's clicks, newest first.
	ListClicks(ctx context.Context, linkID string) ([]Click, error)
}
