package api

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/service"
)

func (s *Server) registerBookRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        s.path("/books"),
		Summary:     "List books",
		Description: "Returns a page of books in catalog order",
		Tags:        []string{"Books"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "searchBooks",
		Method:      http.MethodGet,
		Path:        s.path("/books/search"),
		Summary:     "Search books",
		Description: "Full-text search over titles, descriptions, authors, and genres",
		Tags:        []string{"Books"},
	}, s.handleSearchBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "getBook",
		Method:      http.MethodGet,
		Path:        s.path("/books/{id}"),
		Summary:     "Get book",
		Description: "Returns a book with its authors and genres",
		Tags:        []string{"Books"},
	}, s.handleGetBook)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createBook",
		Method:        http.MethodPost,
		Path:          s.path("/books"),
		Summary:       "Create book",
		Description:   "Creates a book. Authors and genres are named and must already exist.",
		Tags:          []string{"Books"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "updateBook",
		Method:      http.MethodPatch,
		Path:        s.path("/books/{id}"),
		Summary:     "Update book",
		Description: "Applies the supplied fields. Author and genre id lists replace the current ones.",
		Tags:        []string{"Books"},
		Security:    bearerAuth,
	}, s.handleUpdateBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "deleteBook",
		Method:      http.MethodDelete,
		Path:        s.path("/books/{id}"),
		Summary:     "Delete book",
		Description: "Deletes a book and its loan history. Fails while copies are on loan.",
		Tags:        []string{"Books"},
		Security:    bearerAuth,
	}, s.handleDeleteBook)

	huma.Register(s.api, huma.Operation{
		OperationID: "listBookLoans",
		Method:      http.MethodGet,
		Path:        s.path("/books/{id}/loans"),
		Summary:     "List loans of a book",
		Description: "Returns open and closed loans of a book, oldest first",
		Tags:        []string{"Loans"},
		Security:    bearerAuth,
	}, s.handleListBookLoans)
}

// === DTOs ===

// PageParams are the pagination query parameters.
type PageParams struct {
	Offset int `query:"offset" minimum:"0" default:"0" doc:"Number of books to skip"`
	Limit  int `query:"limit" minimum:"1" maximum:"100" default:"10" doc:"Maximum number of books to return"`
}

// ListBooksInput contains parameters for listing books.
type ListBooksInput struct {
	PageParams
}

// SearchBooksInput contains parameters for searching books.
type SearchBooksInput struct {
	Query string `query:"q" required:"true" maxLength:"500" doc:"Search terms"`
	PageParams
}

// BookIDInput selects a book by id.
type BookIDInput struct {
	ID string `path:"id" doc:"Book ID"`
}

// CreateBookRequest is the request body for creating a book.
type CreateBookRequest struct {
	Name           string     `json:"name" doc:"Title"`
	Description    string     `json:"description,omitempty" doc:"Description, HTML or Markdown; stored as Markdown"`
	PublishedAt    *time.Time `json:"published_at,omitempty" doc:"Publication date"`
	CountAvailable int        `json:"count_available" minimum:"0" doc:"Copies owned; all start on the shelf"`
	AuthorNames    []string   `json:"author_names,omitempty" doc:"Usernames of existing authors"`
	GenreNames     []string   `json:"genre_names,omitempty" doc:"Names of existing genres"`
}

// CreateBookInput wraps the create request for Huma.
type CreateBookInput struct {
	Body CreateBookRequest
}

// UpdateBookRequest is the request body for a partial book update.
type UpdateBookRequest struct {
	Name             *string    `json:"name,omitempty" doc:"Title"`
	Description      *string    `json:"description,omitempty" doc:"Description, HTML or Markdown"`
	PublishedAt      *time.Time `json:"published_at,omitempty" doc:"Publication date"`
	ClearPublishedAt bool       `json:"clear_published_at,omitempty" doc:"Remove the publication date"`
	CountAvailable   *int       `json:"count_available,omitempty" minimum:"0" doc:"Copies on the shelf; the owned total follows"`
	TotalCopies      *int       `json:"total_copies,omitempty" minimum:"0" doc:"Copies owned; the shelf count follows"`
	AuthorIDs        *[]string  `json:"author_ids,omitempty" doc:"Replaces the book's authors"`
	GenreIDs         *[]string  `json:"genre_ids,omitempty" doc:"Replaces the book's genres"`
}

// UpdateBookInput wraps the update request for Huma.
type UpdateBookInput struct {
	ID   string `path:"id" doc:"Book ID"`
	Body UpdateBookRequest
}

// BookOutput wraps a book for Huma.
type BookOutput struct {
	Body *domain.Book
}

// BookPageOutput wraps a page of books for Huma.
type BookPageOutput struct {
	Body *service.BookPage
}

// LoansOutput wraps a list of loans for Huma.
type LoansOutput struct {
	Body []LoanResponse
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*BookPageOutput, error) {
	actor, err := s.actor(ctx, access.OpListBooks)
	if err != nil {
		return nil, err
	}
	page, err := s.services.Catalog.ListBooks(ctx, actor, service.ListBooksRequest{
		Offset: input.Offset,
		Limit:  input.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &BookPageOutput{Body: page}, nil
}

func (s *Server) handleSearchBooks(ctx context.Context, input *SearchBooksInput) (*BookPageOutput, error) {
	actor, err := s.actor(ctx, access.OpSearchBooks)
	if err != nil {
		return nil, err
	}
	page, err := s.services.Catalog.SearchBooks(ctx, actor, service.SearchBooksRequest{
		Query:  input.Query,
		Offset: input.Offset,
		Limit:  input.Limit,
	})
	if err != nil {
		return nil, err
	}
	return &BookPageOutput{Body: page}, nil
}

func (s *Server) handleGetBook(ctx context.Context, input *BookIDInput) (*BookOutput, error) {
	actor, err := s.actor(ctx, access.OpGetBook)
	if err != nil {
		return nil, err
	}
	book, err := s.services.Catalog.GetBook(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleCreateBook(ctx context.Context, input *CreateBookInput) (*BookOutput, error) {
	actor, err := s.actor(ctx, access.OpCreateBook)
	if err != nil {
		return nil, err
	}

	body := input.Body
	book, err := s.services.Catalog.CreateBook(ctx, actor, service.CreateBookRequest{
		Name:           body.Name,
		Description:    body.Description,
		PublishedAt:    body.PublishedAt,
		CountAvailable: body.CountAvailable,
		AuthorNames:    body.AuthorNames,
		GenreNames:     body.GenreNames,
	})
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleUpdateBook(ctx context.Context, input *UpdateBookInput) (*BookOutput, error) {
	actor, err := s.actor(ctx, access.OpUpdateBook)
	if err != nil {
		return nil, err
	}

	body := input.Body
	book, err := s.services.Catalog.UpdateBook(ctx, actor, input.ID, service.UpdateBookRequest{
		Name:             body.Name,
		Description:      body.Description,
		PublishedAt:      body.PublishedAt,
		ClearPublishedAt: body.ClearPublishedAt,
		CountAvailable:   body.CountAvailable,
		TotalCopies:      body.TotalCopies,
		AuthorIDs:        body.AuthorIDs,
		GenreIDs:         body.GenreIDs,
	})
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleDeleteBook(ctx context.Context, input *BookIDInput) (*BookOutput, error) {
	actor, err := s.actor(ctx, access.OpDeleteBook)
	if err != nil {
		return nil, err
	}
	book, err := s.services.Catalog.DeleteBook(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}
	return &BookOutput{Body: book}, nil
}

func (s *Server) handleListBookLoans(ctx context.Context, input *BookIDInput) (*LoansOutput, error) {
	actor, err := s.actor(ctx, access.OpListBookLoans)
	if err != nil {
		return nil, err
	}
	loans, err := s.services.Ledger.ListLoansForBook(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}
	return &LoansOutput{Body: loanResponses(loans)}, nil
}
