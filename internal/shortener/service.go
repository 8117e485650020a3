package shortener

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxAllocationAttempts bounds random code regeneration on collision.
const maxAllocationAttempts = 5

// ClickQueue accepts clicks for deferred recording. Submit reports false when
// the click was not accepted (queue full or shut down).
type ClickQueue interface {
	Submit(click Click) bool
}

// Visit carries the request details recorded with a click.
type Visit struct {
	UserAgent string
	Referrer  string
}

// Service implements code allocation, resolution and owner-scoped link management.
type Service struct {
	store        Store
	logger       *zap.SugaredLogger
	clicks       ClickQueue
	generateCode func() (string, error)
	now          func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCodeGenerator replaces the random code generator.
func WithCodeGenerator(fn func() (string, error)) Option {
	return func(s *Service) {
		s.generateCode = fn
	}
}

// WithClock replaces time.Now for created_at and clicked_at stamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates a Service backed by store.
func NewService(store Store, logger *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		logger:       logger,
		generateCode: GenerateShortCode,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClickQueue routes click recording through q. Without a queue clicks are
// recorded inline during Resolve.
func (s *Service) SetClickQueue(q ClickQueue) {
	s.clicks = q
}

// Allocate assigns a short code to originalURL for ownerID.
//
// With a desired code the code is claimed exactly or the call fails with
// ErrCodeTaken. Without one, an existing link of the same owner and URL is
// returned unchanged (created == false); otherwise a random code is drawn,
// retrying up to maxAllocationAttempts times before ErrAllocationExhausted.
func (s *Service) Allocate(ctx context.Context, ownerID, originalURL, desiredCode string) (link *Link, created bool, err error) {
	if ownerID == "" {
		return nil, false, ErrNoOwner
	}
	originalURL = strings.TrimSpace(originalURL)
	if originalURL == "" {
		return nil, false, ErrEmptyURL
	}

	if desiredCode != "" {
		link, err = s.allocateCustom(ctx, ownerID, originalURL, desiredCode)
		return link, err == nil, err
	}

	existing, err := s.store.FindByOwnerAndURL(ctx, ownerID, originalURL)
	if err == nil {
		s.logger.Debugw("Reusing existing link", "owner_id", ownerID, "short_code", existing.ShortCode)
		return existing, false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, false, fmt.Errorf("look up existing link: %w", err)
	}

	for attempt := 0; attempt < maxAllocationAttempts; attempt++ {
		code, err := s.generateCode()
		if err != nil {
			return nil, false, fmt.Errorf("generate short code: %w", err)
		}

		if _, err := s.store.FindByCode(ctx, code); err == nil {
			s.logger.Infow("Short code collision, retrying", "short_code", code, "attempt", attempt+1)
			continue
		} else if !errors.Is(err, ErrNotFound) {
			return nil, false, fmt.Errorf("check short code %s: %w", code, err)
		}

		link = s.newLink(ownerID, originalURL, code)
		err = s.store.Insert(ctx, link)
		if err == nil {
			return link, true, nil
		}
		if !errors.Is(err, ErrUniquenessViolation) {
			return nil, false, fmt.Errorf("insert link: %w", err)
		}
		// Lost a race to a concurrent insert of the same code.
		s.logger.Infow("Short code taken during insert, retrying", "short_code", code, "attempt", attempt+1)
	}

	s.logger.Errorw("Max retries reached for short code generation", "owner_id", ownerID, "url", originalURL)
	return nil, false, ErrAllocationExhausted
}

func (s *Service) allocateCustom(ctx context.Context, ownerID, originalURL, code string) (*Link, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}

	_, err := s.store.FindByCode(ctx, code)
	if err == nil {
		return nil, ErrCodeTaken
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check short code %s: %w", code, err)
	}

	link := s.newLink(ownerID, originalURL, code)
	if err := s.store.Insert(ctx, link); err != nil {
		if errors.Is(err, ErrUniquenessViolation) {
			return nil, fmt.Errorf("%w: %w", ErrCodeTaken, err)
		}
		return nil, fmt.Errorf("insert link: %w", err)
	}
	return link, nil
}

func (s *Service) newLink(ownerID, originalURL, code string) *Link {
	return &Link{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		OriginalURL: originalURL,
		ShortCode:   code,
		CreatedAt:   s.now().UTC(),
	}
}

// Resolve returns the destination of code and schedules the click to be
// recorded. Only ErrNotFound (or a store failure on lookup) fails resolution.
func (s *Service) Resolve(ctx context.Context, code string, visit Visit) (string, error) {
	link, err := s.store.FindByCode(ctx, code)
	if err != nil {
		return "", err
	}

	click := Click{
		ID:        uuid.NewString(),
		LinkID:    link.ID,
		UserAgent: visit.UserAgent,
		Referrer:  visit.Referrer,
		ClickedAt: s.now().UTC(),
	}
	if s.clicks == nil || !s.clicks.Submit(click) {
		s.RecordClick(context.WithoutCancel(ctx), click)
	}

	return link.OriginalURL, nil
}

// RecordClick appends the click and bumps the link counter. The two writes are
// independent: either failing is logged and does not prevent the other.
func (s *Service) RecordClick(ctx context.Context, click Click) {
	if err := s.store.InsertClick(ctx, &click); err != nil {
		s.logger.Warnw("Failed to record click", "link_id", click.LinkID, "error", err)
	}
	if err := s.store.IncrementClickCount(ctx, click.LinkID); err != nil {
		s.logger.Warnw("Failed to increment click count", "link_id", click.LinkID, "error", err)
	}
}

// UpdateCode changes the short code of a link owned by ownerID.
func (s *Service) UpdateCode(ctx context.Context, ownerID, id, code string) (*Link, error) {
	if err := ValidateCode(code); err != nil {
		return nil, err
	}

	link, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if link.ShortCode == code {
		return link, nil
	}

	if _, err := s.store.FindByCode(ctx, code); err == nil {
		return nil, ErrCodeTaken
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("check short code %s: %w", code, err)
	}

	if err := s.store.UpdateCode(ctx, id, ownerID, code); err != nil {
		if errors.Is(err, ErrUniquenessViolation) {
			return nil, fmt.Errorf("%w: %w", ErrCodeTaken, err)
		}
		return nil, err
	}
	link.ShortCode = code
	return link, nil
}

// UpdateURL changes the destination of a link owned by ownerID.
func (s *Service) UpdateURL(ctx context.Context, ownerID, id, originalURL string) (*Link, error) {
	originalURL = strings.TrimSpace(originalURL)
	if originalURL == "" {
		return nil, ErrEmptyURL
	}

	link, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateURL(ctx, id, ownerID, originalURL); err != nil {
		return nil, err
	}
	link.OriginalURL = originalURL
	return link, nil
}

// Delete removes a link owned by ownerID.
func (s *Service) Delete(ctx context.Context, ownerID, id string) error {
	if ownerID == "" {
		return ErrNoOwner
	}
	return s.store.Delete(ctx, id, ownerID)
}

// Sort orders for List.
const (
	SortNewest       = "newest"
	SortOldest       = "oldest"
	SortMostClicked  = "most_clicked"
	SortLeastClicked = "least_clicked"
)

// ListOptions filters and orders an owner's links.
type ListOptions struct {
	// Search matches case-insensitively against short code and original URL.
	Search string
	Sort   string
}

// List returns the owner's links. The default order is newest first, as
// returned by the store.
func (s *Service) List(ctx context.Context, ownerID string, opts ListOptions) ([]Link, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}

	links, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	if term := strings.ToLower(strings.TrimSpace(opts.Search)); term != "" {
		filtered := links[:0]
		for _, l := range links {
			if strings.Contains(strings.ToLower(l.ShortCode), term) ||
				strings.Contains(strings.ToLower(l.OriginalURL), term) {
				filtered = append(filtered, l)
			}
		}
		links = filtered
	}

	switch opts.Sort {
	case SortOldest:
		sort.SliceStable(links, func(i, j int) bool { return links[i].CreatedAt.Before(links[j].CreatedAt) })
	case SortMostClicked:
		sort.SliceStable(links, func(i, j int) bool { return links[i].ClickCount > links[j].ClickCount })
	case SortLeastClicked:
		sort.SliceStable(links, func(i, j int) bool { return links[i].ClickCount < links[j].ClickCount })
	}
	return links, nil
}

// Clicks returns the recorded clicks of a link owned by ownerID.
func (s *Service) Clicks(ctx context.Context, ownerID, id string) ([]Click, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	return s.store.ListClicks(ctx, id)
}

// owned loads a link and hides links of other owners behind ErrNotFound.
func (s *Service) owned(ctx context.Context, ownerID, id string) (*Link, error) {
	if ownerID == "" {
		return nil, ErrNoOwner
	}
	link, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if link.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return link, nil
}
