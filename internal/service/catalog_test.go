package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
)

func TestCatalogService_CreateAuthor(t *testing.T) {
	f := newFixture(t)
	birthday := time.Date(1920, 10, 8, 0, 0, 0, 0, time.UTC)

	a, err := f.catalog.CreateAuthor(f.ctx, f.admin, CreateAuthorRequest{
		Username:  "  Frank   Herbert ",
		Biography: "<p>American <strong>science fiction</strong> author.</p>",
		Birthday:  &birthday,
	})
	require.NoError(t, err)

	assert.Equal(t, "Frank Herbert", a.Username)
	assert.Equal(t, "American **science fiction** author.", a.Biography)
	assert.False(t, a.HasAccount())

	got, err := f.catalog.GetAuthor(f.ctx, nil, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	require.NotNil(t, got.Birthday)
	assert.True(t, birthday.Equal(*got.Birthday))
}

func TestCatalogService_CreateAuthor_DuplicateUsernamesAllowed(t *testing.T) {
	f := newFixture(t)

	f.author(t, "Anonymous")
	f.author(t, "Anonymous")

	authors, err := f.catalog.ListAuthors(f.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, authors, 2)
}

func TestCatalogService_CreateAuthor_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.CreateAuthor(f.ctx, f.admin, CreateAuthorRequest{Username: "   "})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestCatalogService_GetAuthor_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.GetAuthor(f.ctx, nil, "missing")
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestCatalogService_CreateGenres_PartialSuccess(t *testing.T) {
	f := newFixture(t)
	f.genres(t, "Fantasy")

	res, err := f.catalog.CreateGenres(f.ctx, f.admin, CreateGenresRequest{
		Names: []string{"Science Fiction", "fantasy", "Horror", "science fiction"},
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrConflict))
	assert.True(t, domainerrors.Is(err, domainerrors.ErrDuplicateGenre))

	require.NotNil(t, res)
	assert.Equal(t, []string{"fantasy", "science fiction"}, res.Duplicates)
	require.Len(t, res.Created, 2)
	assert.Equal(t, "Science Fiction", res.Created[0].Name)
	assert.Equal(t, "Horror", res.Created[1].Name)

	var de *domainerrors.Error
	require.True(t, domainerrors.As(err, &de))
	assert.Same(t, res, de.Details)

	genres, err := f.catalog.ListGenres(f.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, genres, 3, "genres created before and after the duplicate stay committed")
}

func TestCatalogService_CreateGenres_RejectsSymbolOnlyNames(t *testing.T) {
	f := newFixture(t)

	_, err := f.catalog.CreateGenres(f.ctx, f.admin, CreateGenresRequest{Names: []string{"Drama", "!!!"}})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	genres, err := f.catalog.ListGenres(f.ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, genres)
}

func TestCatalogService_CreateBook(t *testing.T) {
	f := newFixture(t)
	f.author(t, "Frank Herbert")
	f.genres(t, "Science Fiction", "Classics")

	published := time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)
	b, err := f.catalog.CreateBook(f.ctx, f.admin, CreateBookRequest{
		Name:           "Dune",
		Description:    "Desert planet.",
		PublishedAt:    &published,
		CountAvailable: 3,
		AuthorNames:    []string{"Frank Herbert", "Frank Herbert"},
		GenreNames:     []string{"science fiction", "Classics"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Dune", b.Name)
	assert.Equal(t, 3, b.TotalCopies)
	assert.Equal(t, 3, b.CountAvailable)
	require.Len(t, b.Authors, 1, "duplicate names collapse to one association")
	assert.Equal(t, "Frank Herbert", b.Authors[0].Username)
	require.Len(t, b.Genres, 2)
	assert.True(t, f.index.has(b.ID))

	got, err := f.catalog.GetBook(f.ctx, nil, b.ID)
	require.NoError(t, err)
	assert.Equal(t, b.AuthorIDs(), got.AuthorIDs())
	assert.ElementsMatch(t, b.GenreIDs(), got.GenreIDs())
}

func TestCatalogService_CreateBook_UnresolvedReferenceWritesNothing(t *testing.T) {
	f := newFixture(t)
	f.author(t, "Frank Herbert")
	f.genres(t, "Science Fiction")

	_, err := f.catalog.CreateBook(f.ctx, f.admin, CreateBookRequest{
		Name:           "Dune Messiah",
		CountAvailable: 1,
		AuthorNames:    []string{"Frank Herbert", "Brian Herbert"},
		GenreNames:     []string{"Science Fiction", "Space Opera"},
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnresolvedReference))

	var de *domainerrors.Error
	require.True(t, domainerrors.As(err, &de))
	assert.Equal(t, UnresolvedNames{Authors: []string{"Brian Herbert"}, Genres: []string{"Space Opera"}}, de.Details)

	page, err := f.catalog.ListBooks(f.ctx, nil, ListBooksRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.Total)

	authors, err := f.catalog.ListAuthors(f.ctx, nil)
	require.NoError(t, err)
	assert.Len(t, authors, 1, "resolution never creates authors")
}

func TestCatalogService_CreateBook_PicksOldestAuthorOnDuplicateName(t *testing.T) {
	f := newFixture(t)
	first := f.author(t, "Anonymous")
	f.author(t, "Anonymous")

	b := f.book(t, "Beowulf", 1, []string{"Anonymous"}, nil)

	require.Len(t, b.Authors, 1)
	assert.Equal(t, first.ID, b.Authors[0].ID)
}

func TestCatalogService_ReaderCannotCreateBook(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, "alice", domain.DefaultQuota)

	_, err := f.catalog.CreateBook(f.ctx, domain.ReaderPrincipal(r), CreateBookRequest{Name: "Dune", CountAvailable: 1})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrForbidden))

	_, err = f.catalog.CreateBook(f.ctx, nil, CreateBookRequest{Name: "Dune", CountAvailable: 1})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrForbidden))

	b, err := f.catalog.CreateBook(f.ctx, f.admin, CreateBookRequest{Name: "Dune", CountAvailable: 1})
	require.NoError(t, err)
	assert.Equal(t, "Dune", b.Name)
}

func TestCatalogService_ForbiddenBeforeValidation(t *testing.T) {
	f := newFixture(t)
	r := f.reader(t, "alice", domain.DefaultQuota)

	// An invalid request from a reader is still Forbidden, not a validation error.
	_, err := f.catalog.CreateGenres(f.ctx, domain.ReaderPrincipal(r), CreateGenresRequest{})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrForbidden))
}

func TestCatalogService_ListBooks_Pagination(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		f.book(t, name, 1, nil, nil)
	}

	page, err := f.catalog.ListBooks(f.ctx, nil, ListBooksRequest{Offset: 1, Limit: 3})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	require.Len(t, page.Books, 3)
	assert.Equal(t, "B", page.Books[0].Name)
	assert.Equal(t, "D", page.Books[2].Name)

	page, err = f.catalog.ListBooks(f.ctx, nil, ListBooksRequest{Offset: 4, Limit: 3})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, "E", page.Books[0].Name)

	page, err = f.catalog.ListBooks(f.ctx, nil, ListBooksRequest{})
	require.NoError(t, err)
	assert.Equal(t, 10, page.Limit)
	assert.Len(t, page.Books, 5)

	_, err = f.catalog.ListBooks(f.ctx, nil, ListBooksRequest{Offset: -1})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	_, err = f.catalog.ListBooks(f.ctx, nil, ListBooksRequest{Limit: 101})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestCatalogService_UpdateBook_ReplacesGenres(t *testing.T) {
	f := newFixture(t)
	gs := f.genres(t, "A", "B", "C")
	a, b, c := gs[0], gs[1], gs[2]
	book := f.book(t, "Dune", 1, nil, nil)

	updated, err := f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{GenreIDs: &[]string{a.ID, b.ID}})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, updated.GenreIDs())

	updated, err = f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{GenreIDs: &[]string{c.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, updated.GenreIDs())

	got, err := f.catalog.GetBook(f.ctx, nil, book.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c.ID}, got.GenreIDs())
}

func TestCatalogService_UpdateBook_ReplacesAuthorsAndClears(t *testing.T) {
	f := newFixture(t)
	herbert := f.author(t, "Frank Herbert")
	brian := f.author(t, "Brian Herbert")
	book := f.book(t, "Dune", 1, []string{"Frank Herbert"}, nil)

	updated, err := f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{AuthorIDs: &[]string{brian.ID, herbert.ID}})
	require.NoError(t, err)
	assert.Equal(t, []string{brian.ID, herbert.ID}, updated.AuthorIDs())

	updated, err = f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{AuthorIDs: &[]string{}})
	require.NoError(t, err)
	assert.Empty(t, updated.Authors)
}

func TestCatalogService_UpdateBook_UnknownIDsRollBack(t *testing.T) {
	f := newFixture(t)
	gs := f.genres(t, "A")
	book := f.book(t, "Dune", 1, nil, []string{"A"})
	name := "Dune (renamed)"

	_, err := f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{
		Name:     &name,
		GenreIDs: &[]string{"missing-genre"},
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnresolvedReference))

	got, err := f.catalog.GetBook(f.ctx, nil, book.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Name)
	assert.Equal(t, []string{gs[0].ID}, got.GenreIDs())
}

func TestCatalogService_UpdateBook_Fields(t *testing.T) {
	f := newFixture(t)
	published := time.Date(1965, 8, 1, 0, 0, 0, 0, time.UTC)
	book, err := f.catalog.CreateBook(f.ctx, f.admin, CreateBookRequest{Name: "Dune", CountAvailable: 1, PublishedAt: &published})
	require.NoError(t, err)

	desc := "A <em>desert</em> planet."
	updated, err := f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{Description: &desc, ClearPublishedAt: true})
	require.NoError(t, err)
	assert.Equal(t, "Dune", updated.Name)
	assert.NotContains(t, updated.Description, "<em>")
	assert.Contains(t, updated.Description, "desert")
	assert.Nil(t, updated.PublishedAt)
	assert.False(t, updated.UpdatedAt.Before(book.UpdatedAt))
}

func TestCatalogService_UpdateBook_CopyAccounting(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, "Dune", 3, nil, nil)
	r1 := f.reader(t, "r1", 5)
	r2 := f.reader(t, "r2", 5)
	_, err := f.ledger.Checkout(f.ctx, f.admin, LoanRequest{Reader: r1.ID, BookID: book.ID})
	require.NoError(t, err)
	_, err = f.ledger.Checkout(f.ctx, f.admin, LoanRequest{Reader: r2.ID, BookID: book.ID})
	require.NoError(t, err)

	// Two copies out, one on the shelf. Setting the shelf count moves the total.
	four := 4
	updated, err := f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{CountAvailable: &four})
	require.NoError(t, err)
	assert.Equal(t, 6, updated.TotalCopies)
	assert.Equal(t, 4, updated.CountAvailable)

	// Setting the total moves the shelf count.
	three := 3
	updated, err = f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{TotalCopies: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.TotalCopies)
	assert.Equal(t, 1, updated.CountAvailable)

	one := 1
	_, err = f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{TotalCopies: &one})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrConflict))

	_, err = f.catalog.UpdateBook(f.ctx, f.admin, book.ID, UpdateBookRequest{TotalCopies: &three, CountAvailable: &one})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	total, available := f.stock(t, book.ID)
	assert.Equal(t, 3, total)
	assert.Equal(t, 1, available)
}

func TestCatalogService_UpdateBook_NotFound(t *testing.T) {
	f := newFixture(t)
	name := "x"

	_, err := f.catalog.UpdateBook(f.ctx, f.admin, "missing", UpdateBookRequest{Name: &name})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))

	_, err = f.catalog.UpdateBook(f.ctx, f.admin, "missing", UpdateBookRequest{})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
}

func TestCatalogService_DeleteBook(t *testing.T) {
	f := newFixture(t)
	f.author(t, "Frank Herbert")
	f.genres(t, "Science Fiction")
	book := f.book(t, "Dune", 1, []string{"Frank Herbert"}, []string{"Science Fiction"})

	deleted, err := f.catalog.DeleteBook(f.ctx, f.admin, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book.ID, deleted.ID)
	assert.Len(t, deleted.Authors, 1)
	assert.False(t, f.index.has(book.ID))

	_, err = f.catalog.GetBook(f.ctx, nil, book.ID)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))

	_, err = f.catalog.DeleteBook(f.ctx, f.admin, book.ID)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))

	// Authors and genres outlive the book.
	authors, _ := f.catalog.ListAuthors(f.ctx, nil)
	genres, _ := f.catalog.ListGenres(f.ctx, nil)
	assert.Len(t, authors, 1)
	assert.Len(t, genres, 1)
}

func TestCatalogService_DeleteBook_WithOpenLoans(t *testing.T) {
	f := newFixture(t)
	book := f.book(t, "Dune", 1, nil, nil)
	r := f.reader(t, "alice", 5)

	_, err := f.ledger.Checkout(f.ctx, f.admin, LoanRequest{Reader: r.ID, BookID: book.ID})
	require.NoError(t, err)

	_, err = f.catalog.DeleteBook(f.ctx, f.admin, book.ID)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrBookHasOpenLoans))

	_, err = f.ledger.ReturnBook(f.ctx, f.admin, LoanRequest{Reader: r.ID, BookID: book.ID})
	require.NoError(t, err)

	// Returned loans still pin the book.
	_, err = f.catalog.DeleteBook(f.ctx, f.admin, book.ID)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrBookHasLoans))
	assert.False(t, domainerrors.Is(err, domainerrors.ErrBookHasOpenLoans))

	loans, err := f.ledger.ListLoansForBook(f.ctx, f.admin, book.ID)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.False(t, loans[0].IsOpen())

	_, err = f.catalog.GetBook(f.ctx, nil, book.ID)
	assert.NoError(t, err)
}

func TestCatalogService_SearchBooks(t *testing.T) {
	f := newFixture(t)
	dune := f.book(t, "Dune", 1, nil, nil)
	messiah := f.book(t, "Dune Messiah", 1, nil, nil)
	f.book(t, "Hyperion", 1, nil, nil)

	page, err := f.catalog.SearchBooks(f.ctx, nil, SearchBooksRequest{Query: "dune"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Books, 2)
	assert.Equal(t, dune.ID, page.Books[0].ID)
	assert.Equal(t, messiah.ID, page.Books[1].ID)

	// A stale hit for a deleted book is dropped.
	require.NoError(t, f.store.DeleteBook(f.ctx, dune.ID))
	page, err = f.catalog.SearchBooks(f.ctx, nil, SearchBooksRequest{Query: "dune"})
	require.NoError(t, err)
	require.Len(t, page.Books, 1)
	assert.Equal(t, messiah.ID, page.Books[0].ID)

	_, err = f.catalog.SearchBooks(f.ctx, nil, SearchBooksRequest{Query: " "})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestCatalogService_SearchDisabled(t *testing.T) {
	f := newFixture(t)
	catalog := NewCatalogService(f.store, nil, nil)

	_, err := catalog.SearchBooks(f.ctx, nil, SearchBooksRequest{Query: "dune"})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))

	n, err := catalog.RebuildIndex(f.ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCatalogService_RebuildIndex(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"A", "B", "C"} {
		f.book(t, name, 1, nil, nil)
	}

	fresh := newFakeIndex()
	catalog := NewCatalogService(f.store, fresh, nil)
	n, err := catalog.RebuildIndex(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, fresh.order, 3)
}
