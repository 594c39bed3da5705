package service

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/id"
	"github.com/libris/libris-server/internal/store/sqlite"
)

// fixture bundles the services over one file-backed SQLite store.
type fixture struct {
	ctx     context.Context
	store   *sqlite.Store
	index   *fakeIndex
	catalog *CatalogService
	ledger  *LedgerService
	readers *ReaderService
	auth    *AuthService
	admin   *domain.Principal
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	opts := sqlite.DefaultOptions()
	opts.BusyTimeout = 30 * time.Second
	s, err := sqlite.OpenWithOptions(filepath.Join(t.TempDir(), "libris.db"), nil, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{7}, 32), time.Hour)
	require.NoError(t, err)

	admin := &domain.Admin{ID: id.New(), Username: "root", PasswordHash: "unused"}
	admin.InitTimestamps()
	require.NoError(t, s.CreateAdmin(context.Background(), admin))

	index := newFakeIndex()
	return &fixture{
		ctx:     context.Background(),
		store:   s,
		index:   index,
		catalog: NewCatalogService(s, index, nil),
		ledger:  NewLedgerService(s, nil),
		readers: NewReaderService(s, nil),
		auth:    NewAuthService(s, tokens, domain.DefaultQuota, nil),
		admin:   domain.AdminPrincipal(admin),
	}
}

func (f *fixture) reader(t *testing.T, username string, quota int) *domain.Reader {
	t.Helper()
	r := &domain.Reader{ID: id.New(), Username: username, PasswordHash: "unused", CanGetMore: quota}
	r.InitTimestamps()
	require.NoError(t, f.store.CreateReader(f.ctx, r))
	return r
}

func (f *fixture) author(t *testing.T, username string) *domain.Author {
	t.Helper()
	a, err := f.catalog.CreateAuthor(f.ctx, f.admin, CreateAuthorRequest{Username: username})
	require.NoError(t, err)
	return a
}

func (f *fixture) genres(t *testing.T, names ...string) []*domain.Genre {
	t.Helper()
	res, err := f.catalog.CreateGenres(f.ctx, f.admin, CreateGenresRequest{Names: names})
	require.NoError(t, err)
	return res.Created
}

func (f *fixture) book(t *testing.T, name string, copies int, authors, genres []string) *domain.Book {
	t.Helper()
	b, err := f.catalog.CreateBook(f.ctx, f.admin, CreateBookRequest{
		Name:           name,
		CountAvailable: copies,
		AuthorNames:    authors,
		GenreNames:     genres,
	})
	require.NoError(t, err)
	return b
}

func (f *fixture) stock(t *testing.T, bookID string) (total, available int) {
	t.Helper()
	st, err := f.store.GetBookStock(f.ctx, bookID)
	require.NoError(t, err)
	return st.TotalCopies, st.CountAvailable
}

// fakeIndex matches a query against book names by case-insensitive substring.
type fakeIndex struct {
	mu    sync.Mutex
	order []string
	names map[string]string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{names: map[string]string{}}
}

func (x *fakeIndex) IndexBook(b *domain.Book) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.names[b.ID]; !ok {
		x.order = append(x.order, b.ID)
	}
	x.names[b.ID] = strings.ToLower(b.Name)
	return nil
}

func (x *fakeIndex) DeleteBook(bookID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.names, bookID)
	return nil
}

func (x *fakeIndex) SearchBooks(_ context.Context, query string, offset, limit int) ([]string, int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	var hits []string
	for _, bid := range x.order {
		if name, ok := x.names[bid]; ok && strings.Contains(name, strings.ToLower(query)) {
			hits = append(hits, bid)
		}
	}
	total := len(hits)
	if offset >= total {
		return []string{}, total, nil
	}
	end := min(offset+limit, total)
	return hits[offset:end], total, nil
}

func (x *fakeIndex) has(bookID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	_, ok := x.names[bookID]
	return ok
}
