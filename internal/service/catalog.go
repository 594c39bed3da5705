package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/id"
	"github.com/libris/libris-server/internal/normalize"
	"github.com/libris/libris-server/internal/store"
	"github.com/libris/libris-server/internal/validation"
)

// BookIndex is a full-text index kept in step with the catalog.
// It only ever answers with book ids; books themselves are loaded from the store.
type BookIndex interface {
	IndexBook(b *domain.Book) error
	DeleteBook(id string) error
	SearchBooks(ctx context.Context, query string, offset, limit int) (ids []string, total int, err error)
}

// CatalogService owns books, authors, genres, and their associations.
type CatalogService struct {
	store     store.Store
	index     BookIndex
	logger    *slog.Logger
	validator *validation.Validator
}

// NewCatalogService creates a catalog service. index may be nil, which disables search.
func NewCatalogService(s store.Store, index BookIndex, logger *slog.Logger) *CatalogService {
	return &CatalogService{
		store:     s,
		index:     index,
		logger:    orDiscard(logger),
		validator: validation.New(),
	}
}

// CreateAuthorRequest contains fields for creating an author.
type CreateAuthorRequest struct {
	Username  string     `json:"username" validate:"required,notblank,max=200"`
	Biography string     `json:"biography" validate:"max=20000"`
	Birthday  *time.Time `json:"birthday"`
}

// CreateAuthor adds a catalog author. Usernames are not unique among authors.
func (s *CatalogService) CreateAuthor(ctx context.Context, actor *domain.Principal, req CreateAuthorRequest) (*domain.Author, error) {
	if err := authorize(actor, access.OpCreateAuthor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	a := &domain.Author{
		ID:        id.New(),
		Username:  normalize.Name(req.Username),
		Biography: cleanText(req.Biography),
		Birthday:  req.Birthday,
	}
	a.InitTimestamps()

	if err := s.store.CreateAuthor(ctx, a); err != nil {
		err = storeError(err, "author")
		logStoreFailure(ctx, s.logger, "create_author", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "author created", "author_id", a.ID, "username", a.Username)
	return a, nil
}

// ListAuthors returns every author in creation order.
func (s *CatalogService) ListAuthors(ctx context.Context, actor *domain.Principal) ([]*domain.Author, error) {
	if err := authorize(actor, access.OpListAuthors); err != nil {
		return nil, err
	}
	authors, err := s.store.ListAuthors(ctx)
	if err != nil {
		return nil, storeError(err, "authors")
	}
	return authors, nil
}

// GetAuthor returns a single author.
func (s *CatalogService) GetAuthor(ctx context.Context, actor *domain.Principal, authorID string) (*domain.Author, error) {
	if err := authorize(actor, access.OpGetAuthor); err != nil {
		return nil, err
	}
	a, err := s.store.GetAuthor(ctx, authorID)
	if err != nil {
		return nil, storeError(err, "author")
	}
	return a, nil
}

// CreateGenresRequest lists genre names to create.
type CreateGenresRequest struct {
	Names []string `json:"names" validate:"required,min=1,max=100,dive,notblank,max=100"`
}

// GenreBatchResult reports the outcome of CreateGenres per name.
type GenreBatchResult struct {
	Created    []*domain.Genre `json:"created"`
	Duplicates []string        `json:"duplicates"`
}

// CreateGenres creates each named genre independently.
//
// A name whose slug is already taken is skipped and reported; genres created
// earlier in the same call stay committed. When any name was a duplicate the
// result is returned together with ErrDuplicateGenre carrying it as details.
func (s *CatalogService) CreateGenres(ctx context.Context, actor *domain.Principal, req CreateGenresRequest) (*GenreBatchResult, error) {
	if err := authorize(actor, access.OpCreateGenre); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(req.Names))
	invalid := map[string]string{}
	for _, raw := range req.Names {
		name := normalize.Name(raw)
		if normalize.Slug(name) == "" {
			invalid[raw] = "must contain at least one letter or digit"
			continue
		}
		names = append(names, name)
	}
	if len(invalid) > 0 {
		return nil, domainerrors.ValidationWithDetails("invalid genre names", invalid)
	}

	result := &GenreBatchResult{Created: []*domain.Genre{}, Duplicates: []string{}}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		slug := normalize.Slug(name)
		if seen[slug] {
			result.Duplicates = append(result.Duplicates, name)
			continue
		}
		seen[slug] = true

		g := &domain.Genre{
			ID:        id.New(),
			Name:      name,
			Slug:      slug,
			CreatedAt: time.Now().UTC(),
		}
		err := s.store.CreateGenre(ctx, g)
		switch {
		case err == nil:
			result.Created = append(result.Created, g)
			s.logger.InfoContext(ctx, "genre created", "genre_id", g.ID, "name", g.Name)
		case domainerrors.Is(storeError(err, "genre"), domainerrors.ErrAlreadyExists):
			result.Duplicates = append(result.Duplicates, name)
			s.logger.DebugContext(ctx, "genre already exists", "name", name, "slug", slug)
		default:
			err = storeError(err, "genre")
			logStoreFailure(ctx, s.logger, "create_genre", err)
			return result, err
		}
	}

	if len(result.Duplicates) > 0 {
		return result, domainerrors.ErrDuplicateGenre.WithDetails(result)
	}
	return result, nil
}

// ListGenres returns every genre ordered by name.
func (s *CatalogService) ListGenres(ctx context.Context, actor *domain.Principal) ([]*domain.Genre, error) {
	if err := authorize(actor, access.OpListGenres); err != nil {
		return nil, err
	}
	genres, err := s.store.ListGenres(ctx)
	if err != nil {
		return nil, storeError(err, "genres")
	}
	return genres, nil
}

// CreateBookRequest contains fields for creating a book.
// Authors are named by username and genres by name; every name must already exist.
type CreateBookRequest struct {
	Name           string     `json:"name" validate:"required,notblank,max=300"`
	Description    string     `json:"description" validate:"max=20000"`
	PublishedAt    *time.Time `json:"published_at"`
	CountAvailable int        `json:"count_available" validate:"gte=0,lte=100000"`
	AuthorNames    []string   `json:"author_names" validate:"max=50,dive,notblank,max=200"`
	GenreNames     []string   `json:"genre_names" validate:"max=50,dive,notblank,max=100"`
}

// UnresolvedNames lists the names create_book could not match.
type UnresolvedNames struct {
	Authors []string `json:"authors,omitempty"`
	Genres  []string `json:"genres,omitempty"`
}

// CreateBook inserts a book with its author and genre associations in one transaction.
// No author or genre is ever created as a side effect; an unknown name fails the
// whole call with ErrUnresolvedReference and nothing is written.
func (s *CatalogService) CreateBook(ctx context.Context, actor *domain.Principal, req CreateBookRequest) (*domain.Book, error) {
	if err := authorize(actor, access.OpCreateBook); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	authorNames := normalize.Names(req.AuthorNames, normalize.Identity)
	genreNames := normalize.Names(req.GenreNames, normalize.Slug)

	b := &domain.Book{
		ID:             id.New(),
		Name:           normalize.Name(req.Name),
		Description:    cleanText(req.Description),
		PublishedAt:    req.PublishedAt,
		TotalCopies:    req.CountAvailable,
		CountAvailable: req.CountAvailable,
	}
	b.InitTimestamps()

	var created *domain.Book
	err := s.store.InTx(ctx, func(q store.Queries) error {
		authorIDs, genreIDs, err := resolveNames(ctx, q, authorNames, genreNames)
		if err != nil {
			return err
		}
		if err := q.CreateBook(ctx, b); err != nil {
			return storeError(err, "book")
		}
		if err := q.SetBookAuthors(ctx, b.ID, authorIDs); err != nil {
			return storeError(err, "author")
		}
		if err := q.SetBookGenres(ctx, b.ID, genreIDs); err != nil {
			return storeError(err, "genre")
		}
		created, err = q.GetBook(ctx, b.ID)
		return err
	})
	if err != nil {
		err = storeError(err, "book")
		logStoreFailure(ctx, s.logger, "create_book", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "book created",
		"book_id", created.ID,
		"name", created.Name,
		"copies", created.TotalCopies,
		"authors", len(created.Authors),
		"genres", len(created.Genres),
	)
	s.reindex(ctx, created)
	return created, nil
}

// resolveNames maps author usernames and genre names to ids, in input order.
func resolveNames(ctx context.Context, q store.Queries, authorNames, genreNames []string) (authorIDs, genreIDs []string, err error) {
	authors, err := q.FindAuthorsByUsernames(ctx, authorNames)
	if err != nil {
		return nil, nil, err
	}

	slugs := make([]string, len(genreNames))
	for i, n := range genreNames {
		slugs[i] = normalize.Slug(n)
	}
	genres, err := q.FindGenresBySlugs(ctx, slugs)
	if err != nil {
		return nil, nil, err
	}

	var missing UnresolvedNames
	for _, n := range authorNames {
		if a, ok := authors[n]; ok {
			authorIDs = append(authorIDs, a.ID)
		} else {
			missing.Authors = append(missing.Authors, n)
		}
	}
	for i, slug := range slugs {
		if g, ok := genres[slug]; ok {
			genreIDs = append(genreIDs, g.ID)
		} else {
			missing.Genres = append(missing.Genres, genreNames[i])
		}
	}

	if len(missing.Authors) > 0 || len(missing.Genres) > 0 {
		return nil, nil, domainerrors.UnresolvedReferencef("unknown authors or genres").WithDetails(missing)
	}
	return dedupe(authorIDs), dedupe(genreIDs), nil
}

// GetBook returns a single book with its authors and genres.
func (s *CatalogService) GetBook(ctx context.Context, actor *domain.Principal, bookID string) (*domain.Book, error) {
	if err := authorize(actor, access.OpGetBook); err != nil {
		return nil, err
	}
	b, err := s.store.GetBook(ctx, bookID)
	if err != nil {
		return nil, storeError(err, "book")
	}
	return b, nil
}

// BookPage is one window of a book listing.
type BookPage struct {
	Books  []*domain.Book `json:"books"`
	Total  int            `json:"total"`
	Offset int            `json:"offset"`
	Limit  int            `json:"limit"`
}

// ListBooksRequest selects a page of books. A zero limit means the default.
type ListBooksRequest struct {
	Offset int `json:"offset" validate:"gte=0"`
	Limit  int `json:"limit" validate:"gte=0,lte=100"`
}

// ListBooks returns books in insertion order.
func (s *CatalogService) ListBooks(ctx context.Context, actor *domain.Principal, req ListBooksRequest) (*BookPage, error) {
	if err := authorize(actor, access.OpListBooks); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	page := store.Page{Offset: req.Offset, Limit: req.Limit}.Normalize()
	books, err := s.store.ListBooks(ctx, page)
	if err != nil {
		return nil, storeError(err, "books")
	}
	total, err := s.store.CountBooks(ctx)
	if err != nil {
		return nil, storeError(err, "books")
	}
	return &BookPage{Books: books, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// UpdateBookRequest carries a partial book update. Nil fields are left as they are.
//
// CountAvailable sets how many copies are on the shelf; the owned total follows
// from it and the open loans. TotalCopies sets the owned total; the shelf count
// follows. The two cannot be combined. AuthorIDs and GenreIDs replace the
// current association sets.
type UpdateBookRequest struct {
	Name             *string    `json:"name" validate:"omitempty,notblank,max=300"`
	Description      *string    `json:"description" validate:"omitempty,max=20000"`
	PublishedAt      *time.Time `json:"published_at"`
	ClearPublishedAt bool       `json:"clear_published_at"`
	CountAvailable   *int       `json:"count_available" validate:"omitempty,gte=0,lte=100000"`
	TotalCopies      *int       `json:"total_copies" validate:"omitempty,gte=0,lte=100000"`
	AuthorIDs        *[]string  `json:"author_ids"`
	GenreIDs         *[]string  `json:"genre_ids"`
}

// UpdateBook applies the supplied fields and returns the updated book.
func (s *CatalogService) UpdateBook(ctx context.Context, actor *domain.Principal, bookID string, req UpdateBookRequest) (*domain.Book, error) {
	if err := authorize(actor, access.OpUpdateBook); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if req.CountAvailable != nil && req.TotalCopies != nil {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
			"total_copies": "cannot be combined with count_available",
		})
	}
	if req.PublishedAt != nil && req.ClearPublishedAt {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
			"clear_published_at": "cannot be combined with published_at",
		})
	}

	update := domain.BookUpdate{
		PublishedAt:    req.PublishedAt,
		ClearPublished: req.ClearPublishedAt,
		CountAvailable: req.CountAvailable,
		TotalCopies:    req.TotalCopies,
		AuthorIDs:      req.AuthorIDs,
		GenreIDs:       req.GenreIDs,
	}
	if req.Name != nil {
		name := normalize.Name(*req.Name)
		update.Name = &name
	}
	if req.Description != nil {
		desc := cleanText(*req.Description)
		update.Description = &desc
	}

	var updated *domain.Book
	err := s.store.InTx(ctx, func(q store.Queries) error {
		var err error
		updated, err = applyBookUpdate(ctx, q, bookID, update)
		return err
	})
	if err != nil {
		err = storeError(err, "book")
		logStoreFailure(ctx, s.logger, "update_book", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "book updated",
		"book_id", updated.ID,
		"copies", updated.TotalCopies,
		"available", updated.CountAvailable,
	)
	s.reindex(ctx, updated)
	return updated, nil
}

// applyBookUpdate runs inside the update transaction.
func applyBookUpdate(ctx context.Context, q store.Queries, bookID string, u domain.BookUpdate) (*domain.Book, error) {
	if _, err := q.GetBookStock(ctx, bookID); err != nil {
		return nil, storeError(err, "book")
	}

	patch := store.BookPatch{
		Name:           u.Name,
		Description:    u.Description,
		PublishedAt:    u.PublishedAt,
		ClearPublished: u.ClearPublished,
	}

	if u.CountAvailable != nil || u.TotalCopies != nil {
		open, err := q.CountOpenLoansByBook(ctx, bookID)
		if err != nil {
			return nil, err
		}
		var total, available int
		if u.CountAvailable != nil {
			available = *u.CountAvailable
			total = available + open
		} else {
			total = *u.TotalCopies
			if total < open {
				return nil, domainerrors.Conflictf("cannot set total copies to %d: %d copies are on loan", total, open).
					WithDetails(map[string]int{"open_loans": open})
			}
			available = total - open
		}
		patch.TotalCopies = &total
		patch.CountAvailable = &available
	}

	if u.AuthorIDs != nil {
		ids := dedupe(*u.AuthorIDs)
		found, err := q.GetAuthorsByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if missing := missingIDs(ids, authorIDsOf(found)); len(missing) > 0 {
			return nil, domainerrors.UnresolvedReferencef("unknown author ids").
				WithDetails(map[string][]string{"author_ids": missing})
		}
		if err := q.SetBookAuthors(ctx, bookID, ids); err != nil {
			return nil, storeError(err, "author")
		}
	}

	if u.GenreIDs != nil {
		ids := dedupe(*u.GenreIDs)
		found, err := q.GetGenresByIDs(ctx, ids)
		if err != nil {
			return nil, err
		}
		if missing := missingIDs(ids, genreIDsOf(found)); len(missing) > 0 {
			return nil, domainerrors.UnresolvedReferencef("unknown genre ids").
				WithDetails(map[string][]string{"genre_ids": missing})
		}
		if err := q.SetBookGenres(ctx, bookID, ids); err != nil {
			return nil, storeError(err, "genre")
		}
	}

	// Always write so updated_at moves, even for association-only changes.
	if err := q.UpdateBook(ctx, bookID, patch); err != nil {
		return nil, storeError(err, "book")
	}
	return q.GetBook(ctx, bookID)
}

// DeleteBook removes a book together with its author and genre associations.
// Loans are never deleted, so a book that has ever been lent cannot be.
func (s *CatalogService) DeleteBook(ctx context.Context, actor *domain.Principal, bookID string) (*domain.Book, error) {
	if err := authorize(actor, access.OpDeleteBook); err != nil {
		return nil, err
	}

	var deleted *domain.Book
	err := s.store.InTx(ctx, func(q store.Queries) error {
		b, err := q.GetBook(ctx, bookID)
		if err != nil {
			return storeError(err, "book")
		}
		open, err := q.CountOpenLoansByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if open > 0 {
			return domainerrors.ErrBookHasOpenLoans.WithDetails(map[string]int{"open_loans": open})
		}
		lent, err := q.CountLoansByBook(ctx, bookID)
		if err != nil {
			return err
		}
		if lent > 0 {
			return domainerrors.ErrBookHasLoans.WithDetails(map[string]int{"loans": lent})
		}
		if err := q.DeleteBook(ctx, bookID); err != nil {
			return storeError(err, "book")
		}
		deleted = b
		return nil
	})
	if err != nil {
		err = storeError(err, "book")
		logStoreFailure(ctx, s.logger, "delete_book", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "book deleted", "book_id", deleted.ID, "name", deleted.Name)
	if s.index != nil {
		if err := s.index.DeleteBook(deleted.ID); err != nil {
			s.logger.WarnContext(ctx, "failed to remove book from search index", "book_id", deleted.ID, "error", err)
		}
	}
	return deleted, nil
}

// SearchBooksRequest is a full-text query over names, descriptions, authors, and genres.
type SearchBooksRequest struct {
	Query  string `json:"query" validate:"required,notblank,max=500"`
	Offset int    `json:"offset" validate:"gte=0"`
	Limit  int    `json:"limit" validate:"gte=0,lte=100"`
}

// SearchBooks runs a full-text query and loads the matching books from the store.
// Hits whose book no longer exists are dropped.
func (s *CatalogService) SearchBooks(ctx context.Context, actor *domain.Principal, req SearchBooksRequest) (*BookPage, error) {
	if err := authorize(actor, access.OpSearchBooks); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if s.index == nil {
		return nil, domainerrors.NotFound("search is disabled")
	}

	page := store.Page{Offset: req.Offset, Limit: req.Limit}.Normalize()
	ids, total, err := s.index.SearchBooks(ctx, req.Query, page.Offset, page.Limit)
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "search failed")
	}

	books, err := s.store.GetBooksByIDs(ctx, ids)
	if err != nil {
		return nil, storeError(err, "books")
	}
	byID := make(map[string]*domain.Book, len(books))
	for _, b := range books {
		byID[b.ID] = b
	}
	ordered := make([]*domain.Book, 0, len(ids))
	for _, bid := range ids {
		if b, ok := byID[bid]; ok {
			ordered = append(ordered, b)
		}
	}

	return &BookPage{Books: ordered, Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

// RebuildIndex indexes every book in the store. It returns the number of books indexed.
func (s *CatalogService) RebuildIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	n := 0
	page := store.Page{Limit: store.MaxLimit}
	for {
		books, err := s.store.ListBooks(ctx, page)
		if err != nil {
			return n, storeError(err, "books")
		}
		for _, b := range books {
			if err := s.index.IndexBook(b); err != nil {
				return n, domainerrors.Wrapf(err, domainerrors.CodeInternal, "index book %s", b.ID)
			}
			n++
		}
		if len(books) < page.Limit {
			break
		}
		page.Offset += page.Limit
	}
	s.logger.InfoContext(ctx, "search index rebuilt", "books", n)
	return n, nil
}

func (s *CatalogService) reindex(ctx context.Context, b *domain.Book) {
	if s.index == nil {
		return
	}
	if err := s.index.IndexBook(b); err != nil {
		s.logger.WarnContext(ctx, "failed to index book", "book_id", b.ID, "error", err)
	}
}

// cleanText stores HTML input as Markdown.
func cleanText(s string) string {
	return normalize.Markdown(s)
}

func authorIDsOf(authors []*domain.Author) []string {
	ids := make([]string, len(authors))
	for i, a := range authors {
		ids[i] = a.ID
	}
	return ids
}

func genreIDsOf(genres []*domain.Genre) []string {
	ids := make([]string, len(genres))
	for i, g := range genres {
		ids[i] = g.ID
	}
	return ids
}

func missingIDs(want, have []string) []string {
	found := make(map[string]bool, len(have))
	for _, id := range have {
		found[id] = true
	}
	var missing []string
	for _, id := range want {
		if !found[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
