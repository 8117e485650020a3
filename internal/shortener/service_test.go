package shortener_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"url-shortener/internal/memstore"
	"url-shortener/internal/shortener"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, opts ...shortener.Option) (*shortener.Service, *memstore.Store) {
	t.Helper()
	store := memstore.New()
	return shortener.NewService(store, zap.NewNop().Sugar(), opts...), store
}

// sequence returns a generator yielding codes in order, then repeating the last.
func sequence(codes ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		code := codes[min(i, len(codes)-1)]
		i++
		return code, nil
	}
}

func TestAllocateCustomCode(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	link, created, err := svc.Allocate(ctx, "owner-1", "https://example.com/a", "my-link")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "my-link", link.ShortCode)

	found, err := store.FindByCode(ctx, "my-link")
	require.NoError(t, err)
	assert.Equal(t, link.ID, found.ID)
	assert.Equal(t, "https://example.com/a", found.OriginalURL)
	assert.Equal(t, "owner-1", found.OwnerID)
	assert.Zero(t, found.ClickCount)
}

func TestAllocateCustomCodeTaken(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/a", "taken")
	require.NoError(t, err)

	tests := []struct {
		name  string
		owner string
		url   string
	}{
		{"different owner", "owner-2", "https://example.com/b"},
		{"same owner same url", "owner-1", "https://example.com/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, created, err := svc.Allocate(ctx, tt.owner, tt.url, "taken")
			assert.ErrorIs(t, err, shortener.ErrCodeTaken)
			assert.False(t, created)
		})
	}

	links, err := store.ListByOwner(ctx, "owner-2")
	require.NoError(t, err)
	assert.Empty(t, links, "store must be left unchanged")

	links, err = store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestAllocateValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		owner   string
		url     string
		code    string
		wantErr error
	}{
		{"missing owner", "", "https://example.com", "", shortener.ErrNoOwner},
		{"blank url", "owner-1", "   ", "", shortener.ErrEmptyURL},
		{"code too short", "owner-1", "https://example.com", "ab", shortener.ErrInvalidCode},
		{"code with slash", "owner-1", "https://example.com", "a/b/c", shortener.ErrInvalidCode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := svc.Allocate(ctx, tt.owner, tt.url, tt.code)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAllocateReusesOwnerURL(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	first, created, err := svc.Allocate(ctx, "owner-1", "https://example.com/page", "")
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := svc.Allocate(ctx, "owner-1", "https://example.com/page", "")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ShortCode, second.ShortCode)
	assert.Equal(t, first.ID, second.ID)

	links, err := store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, links, 1, "exactly one link inserted")

	other, created, err := svc.Allocate(ctx, "owner-2", "https://example.com/page", "")
	require.NoError(t, err)
	assert.True(t, created, "reuse is scoped to the owner")
	assert.NotEqual(t, first.ShortCode, other.ShortCode)
}

func TestAllocateCustomCodeSkipsReuse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/page", "")
	require.NoError(t, err)

	custom, created, err := svc.Allocate(ctx, "owner-1", "https://example.com/page", "custom")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, custom.ID)
	assert.Equal(t, "custom", custom.ShortCode)
}

func TestAllocateRetriesOnCollision(t *testing.T) {
	svc, _ := newTestService(t, shortener.WithCodeGenerator(sequence("aaaaaa", "aaaaaa", "bbbbbb")))
	ctx := context.Background()

	_, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/1", "")
	require.NoError(t, err)

	link, created, err := svc.Allocate(ctx, "owner-1", "https://example.com/2", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "bbbbbb", link.ShortCode)
}

func TestAllocateExhausted(t *testing.T) {
	svc, store := newTestService(t, shortener.WithCodeGenerator(sequence("aaaaaa")))
	ctx := context.Background()

	_, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/1", "")
	require.NoError(t, err)

	_, created, err := svc.Allocate(ctx, "owner-1", "https://example.com/2", "")
	assert.ErrorIs(t, err, shortener.ErrAllocationExhausted)
	assert.False(t, created)

	links, err := store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestAllocateConcurrentCustomCode(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	const callers = 8
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/race", "contested")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.True(t,
			errors.Is(err, shortener.ErrCodeTaken) || errors.Is(err, shortener.ErrUniquenessViolation),
			"unexpected error: %v", err)
	}
	assert.Equal(t, 1, successes)

	links, err := store.ListByOwner(ctx, "owner-1")
	require.NoError(t, err)
	assert.Len(t, links, 1)
}

func TestResolve(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/target", "go-here")
	require.NoError(t, err)

	url, err := svc.Resolve(ctx, "go-here", shortener.Visit{UserAgent: "test-agent", Referrer: "https://ref.example"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/target", url)

	found, err := store.FindByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.ClickCount)

	clicks, err := store.ListClicks(ctx, link.ID)
	require.NoError(t, err)
	require.Len(t, clicks, 1)
	assert.Equal(t, link.ID, clicks[0].LinkID)
	assert.Equal(t, "test-agent", clicks[0].UserAgent)
	assert.Equal(t, "https://ref.example", clicks[0].Referrer)

	for i := 0; i < 3; i++ {
		_, err := svc.Resolve(ctx, "go-here", shortener.Visit{})
		require.NoError(t, err)
	}
	found, err = store.FindByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), found.ClickCount, "repeat visits are not deduplicated")
}

func TestResolveUnknownCode(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Resolve(context.Background(), "unknown", shortener.Visit{})
	assert.ErrorIs(t, err, shortener.ErrNotFound)
}

// failingClicks fails every click insert but otherwise behaves like memstore.
type failingClicks struct {
	*memstore.Store
}

func (f failingClicks) InsertClick(context.Context, *shortener.Click) error {
	return errors.New("click table unavailable")
}

func TestResolveSurvivesTrackingFailure(t *testing.T) {
	store := memstore.New()
	svc := shortener.NewService(failingClicks{store}, zap.NewNop().Sugar())
	ctx := context.Background()

	link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/target", "sturdy")
	require.NoError(t, err)

	url, err := svc.Resolve(ctx, "sturdy", shortener.Visit{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/target", url)

	found, err := store.FindByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), found.ClickCount, "counter still incremented")
}

type recordingQueue struct {
	mu       sync.Mutex
	accept   bool
	received []shortener.Click
}

func (q *recordingQueue) Submit(click shortener.Click) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.accept {
		return false
	}
	q.received = append(q.received, click)
	return true
}

func TestResolveUsesClickQueue(t *testing.T) {
	tests := []struct {
		name          string
		accept        bool
		wantQueued    int
		wantInlineHit int64
	}{
		{"queue accepts", true, 1, 0},
		{"queue full falls back inline", false, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestService(t)
			queue := &recordingQueue{accept: tt.accept}
			svc.SetClickQueue(queue)
			ctx := context.Background()

			link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/q", "queued")
			require.NoError(t, err)

			_, err = svc.Resolve(ctx, "queued", shortener.Visit{UserAgent: "ua"})
			require.NoError(t, err)

			assert.Len(t, queue.received, tt.wantQueued)
			found, err := store.FindByID(ctx, link.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantInlineHit, found.ClickCount)
		})
	}
}

func TestUpdateCode(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/a", "first")
	require.NoError(t, err)
	_, _, err = svc.Allocate(ctx, "owner-2", "https://example.com/b", "second")
	require.NoError(t, err)

	tests := []struct {
		name    string
		owner   string
		code    string
		wantErr error
	}{
		{"invalid format", "owner-1", "no", shortener.ErrInvalidCode},
		{"taken by other link", "owner-1", "second", shortener.ErrCodeTaken},
		{"not the owner", "owner-2", "stolen", shortener.ErrNotFound},
		{"unchanged code", "owner-1", "first", nil},
		{"new code", "owner-1", "renamed", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			updated, err := svc.UpdateCode(ctx, tt.owner, link.ID, tt.code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.code, updated.ShortCode)
		})
	}

	_, err = store.FindByCode(ctx, "first")
	assert.ErrorIs(t, err, shortener.ErrNotFound)
	found, err := store.FindByCode(ctx, "renamed")
	require.NoError(t, err)
	assert.Equal(t, link.ID, found.ID)
}

func TestUpdateURL(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/old", "")
	require.NoError(t, err)

	_, err = svc.UpdateURL(ctx, "owner-2", link.ID, "https://evil.example")
	assert.ErrorIs(t, err, shortener.ErrNotFound)

	_, err = svc.UpdateURL(ctx, "owner-1", link.ID, " ")
	assert.ErrorIs(t, err, shortener.ErrEmptyURL)

	updated, err := svc.UpdateURL(ctx, "owner-1", link.ID, "https://example.com/new")
	require.NoError(t, err)
	assert.Equal(t, link.ShortCode, updated.ShortCode)

	url, err := svc.Resolve(ctx, link.ShortCode, shortener.Visit{})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", url)

	found, err := store.FindByID(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/new", found.OriginalURL)
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/gone", "gone")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, "owner-2", link.ID), shortener.ErrNotFound)
	_, err = svc.Resolve(ctx, "gone", shortener.Visit{})
	require.NoError(t, err, "link survives a foreign delete")

	require.NoError(t, svc.Delete(ctx, "owner-1", link.ID))
	_, err = svc.Resolve(ctx, "gone", shortener.Visit{})
	assert.ErrorIs(t, err, shortener.ErrNotFound)

	assert.ErrorIs(t, svc.Delete(ctx, "owner-1", link.ID), shortener.ErrNotFound)
}

func TestList(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	current := base
	clock := func() time.Time {
		current = current.Add(time.Minute)
		return current
	}
	svc, _ := newTestService(t, shortener.WithClock(clock))
	ctx := context.Background()

	for _, l := range []struct{ url, code string }{
		{"https://golang.org/doc", "go-docs"},
		{"https://example.com/news", "news"},
		{"https://example.com/blog", "blog"},
	} {
		_, _, err := svc.Allocate(ctx, "owner-1", l.url, l.code)
		require.NoError(t, err)
	}
	_, _, err := svc.Allocate(ctx, "owner-2", "https://example.com/other", "other")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := svc.Resolve(ctx, "news", shortener.Visit{})
		require.NoError(t, err)
	}
	_, err = svc.Resolve(ctx, "go-docs", shortener.Visit{})
	require.NoError(t, err)

	tests := []struct {
		name  string
		opts  shortener.ListOptions
		codes []string
	}{
		{"default newest first", shortener.ListOptions{}, []string{"blog", "news", "go-docs"}},
		{"oldest first", shortener.ListOptions{Sort: shortener.SortOldest}, []string{"go-docs", "news", "blog"}},
		{"most clicked", shortener.ListOptions{Sort: shortener.SortMostClicked}, []string{"news", "go-docs", "blog"}},
		{"least clicked", shortener.ListOptions{Sort: shortener.SortLeastClicked}, []string{"blog", "go-docs", "news"}},
		{"search by url", shortener.ListOptions{Search: "EXAMPLE.com"}, []string{"blog", "news"}},
		{"search by code", shortener.ListOptions{Search: "go-"}, []string{"go-docs"}},
		{"search without match", shortener.ListOptions{Search: "nothing"}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			links, err := svc.List(ctx, "owner-1", tt.opts)
			require.NoError(t, err)

			codes := make([]string, 0, len(links))
			for _, l := range links {
				codes = append(codes, l.ShortCode)
			}
			assert.Equal(t, tt.codes, codes)
		})
	}

	_, err = svc.List(ctx, "", shortener.ListOptions{})
	assert.ErrorIs(t, err, shortener.ErrNoOwner)
}

func TestClicks(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	link, _, err := svc.Allocate(ctx, "owner-1", "https://example.com/c", "clicky")
	require.NoError(t, err)

	for _, ua := range []string{"first", "second"} {
		_, err := svc.Resolve(ctx, "clicky", shortener.Visit{UserAgent: ua})
		require.NoError(t, err)
	}

	clicks, err := svc.Clicks(ctx, "owner-1", link.ID)
	require.NoError(t, err)
	assert.Len(t, clicks, 2)

	_, err = svc.Clicks(ctx, "owner-2", link.ID)
	assert.ErrorIs(t, err, shortener.ErrNotFound)
}
