// Package memstore keeps links, clicks and accounts in process memory. It
// backs memory:// deployments and the service tests.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"url-shortener/internal/auth"
	"url-shortener/internal/shortener"
)

// Store is a mutex-guarded shortener.Store and auth.AccountStore.
type Store struct {
	mu       sync.RWMutex
	links    map[string]*shortener.Link // by id
	codes    map[string]string          // short code -> link id
	clicks   map[string][]shortener.Click
	accounts map[string]*auth.Account // by id
	emails   map[string]string        // lowercased email -> account id
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		links:    make(map[string]*shortener.Link),
		codes:    make(map[string]string),
		clicks:   make(map[string][]shortener.Click),
		accounts: make(map[string]*auth.Account),
		emails:   make(map[string]string),
	}
}

func (s *Store) FindByCode(ctx context.Context, code string) (*shortener.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.codes[code]
	if !ok {
		return nil, shortener.ErrNotFound
	}
	link := *s.links[id]
	return &link, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (*shortener.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.links[id]
	if !ok {
		return nil, shortener.ErrNotFound
	}
	link := *l
	return &link, nil
}

func (s *Store) FindByOwnerAndURL(ctx context.Context, ownerID, originalURL string) (*shortener.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *shortener.Link
	for _, l := range s.links {
		if l.OwnerID != ownerID || l.OriginalURL != originalURL {
			continue
		}
		// Oldest match wins, so repeated lookups are stable.
		if found == nil || l.CreatedAt.Before(found.CreatedAt) {
			found = l
		}
	}
	if found == nil {
		return nil, shortener.ErrNotFound
	}
	link := *found
	return &link, nil
}

func (s *Store) Insert(ctx context.Context, link *shortener.Link) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.codes[link.ShortCode]; taken {
		return shortener.ErrUniquenessViolation
	}
	stored := *link
	s.links[link.ID] = &stored
	s.codes[link.ShortCode] = link.ID
	return nil
}

func (s *Store) UpdateCode(ctx context.Context, id, ownerID, code string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok || link.OwnerID != ownerID {
		return shortener.ErrNotFound
	}
	if other, taken := s.codes[code]; taken && other != id {
		return shortener.ErrUniquenessViolation
	}
	delete(s.codes, link.ShortCode)
	link.ShortCode = code
	s.codes[code] = id
	return nil
}

func (s *Store) UpdateURL(ctx context.Context, id, ownerID, originalURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok || link.OwnerID != ownerID {
		return shortener.ErrNotFound
	}
	link.OriginalURL = originalURL
	return nil
}

func (s *Store) Delete(ctx context.Context, id, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok || link.OwnerID != ownerID {
		return shortener.ErrNotFound
	}
	delete(s.codes, link.ShortCode)
	delete(s.links, id)
	delete(s.clicks, id)
	return nil
}

func (s *Store) IncrementClickCount(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	link, ok := s.links[id]
	if !ok {
		return shortener.ErrNotFound
	}
	link.ClickCount++
	return nil
}

func (s *Store) InsertClick(ctx context.Context, click *shortener.Click) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[click.LinkID]; !ok {
		return shortener.ErrNotFound
	}
	s.clicks[click.LinkID] = append(s.clicks[click.LinkID], *click)
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string) ([]shortener.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	links := []shortener.Link{}
	for _, l := range s.links {
		if l.OwnerID == ownerID {
			links = append(links, *l)
		}
	}
	sort.SliceStable(links, func(i, j int) bool { return links[i].CreatedAt.After(links[j].CreatedAt) })
	return links, nil
}

func (s *Store) ListClicks(ctx context.Context, linkID string) ([]shortener.Click, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	clicks := make([]shortener.Click, len(s.clicks[linkID]))
	copy(clicks, s.clicks[linkID])
	sort.SliceStable(clicks, func(i, j int) bool { return clicks[i].ClickedAt.After(clicks[j].ClickedAt) })
	return clicks, nil
}

func (s *Store) FindAccountByEmail(ctx context.Context, email string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	account := *s.accounts[id]
	return &account, nil
}

func (s *Store) FindAccountByID(ctx context.Context, id string) (*auth.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrAccountNotFound
	}
	account := *a
	return &account, nil
}

func (s *Store) InsertAccount(ctx context.Context, account *auth.Account) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.ToLower(account.Email)
	if _, taken := s.emails[key]; taken {
		return auth.ErrEmailTaken
	}
	stored := *account
	s.accounts[account.ID] = &stored
	s.emails[key] = account.ID
	return nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return auth.ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}
