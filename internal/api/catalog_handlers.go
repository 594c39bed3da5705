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

func (s *Server) registerAuthorRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listAuthors",
		Method:      http.MethodGet,
		Path:        s.path("/authors"),
		Summary:     "List authors",
		Description: "Returns every author in creation order",
		Tags:        []string{"Authors"},
	}, s.handleListAuthors)

	huma.Register(s.api, huma.Operation{
		OperationID: "getAuthor",
		Method:      http.MethodGet,
		Path:        s.path("/authors/{id}"),
		Summary:     "Get author",
		Tags:        []string{"Authors"},
	}, s.handleGetAuthor)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createAuthor",
		Method:        http.MethodPost,
		Path:          s.path("/authors"),
		Summary:       "Create author",
		Description:   "Adds a catalog author. Several authors may share a username.",
		Tags:          []string{"Authors"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAuthor)
}

func (s *Server) registerGenreRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listGenres",
		Method:      http.MethodGet,
		Path:        s.path("/genres"),
		Summary:     "List genres",
		Tags:        []string{"Genres"},
	}, s.handleListGenres)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createGenres",
		Method:        http.MethodPost,
		Path:          s.path("/genres"),
		Summary:       "Create genres",
		Description:   "Creates each named genre independently. Duplicates are reported with a 409 whose details list what was created anyway.",
		Tags:          []string{"Genres"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateGenres)
}

// === DTOs ===

// AuthorIDInput selects an author by id.
type AuthorIDInput struct {
	ID string `path:"id" doc:"Author ID"`
}

// CreateAuthorRequest is the request body for creating an author.
type CreateAuthorRequest struct {
	Username  string     `json:"username" doc:"Display name"`
	Biography string     `json:"biography,omitempty" doc:"Biography, HTML or Markdown"`
	Birthday  *time.Time `json:"birthday,omitempty" doc:"Birthday"`
}

// CreateAuthorInput wraps the create request for Huma.
type CreateAuthorInput struct {
	Body CreateAuthorRequest
}

// AuthorOutput wraps an author for Huma.
type AuthorOutput struct {
	Body *domain.Author
}

// AuthorsOutput wraps a list of authors for Huma.
type AuthorsOutput struct {
	Body []*domain.Author
}

// CreateGenresRequest is the request body for creating genres.
type CreateGenresRequest struct {
	Names []string `json:"names" minItems:"1" maxItems:"100" doc:"Genre names"`
}

// CreateGenresInput wraps the create request for Huma.
type CreateGenresInput struct {
	Body CreateGenresRequest
}

// GenresOutput wraps a list of genres for Huma.
type GenresOutput struct {
	Body []*domain.Genre
}

// GenreBatchOutput wraps the result of a genre batch for Huma.
type GenreBatchOutput struct {
	Body *service.GenreBatchResult
}

// === Handlers ===

func (s *Server) handleListAuthors(ctx context.Context, _ *struct{}) (*AuthorsOutput, error) {
	actor, err := s.actor(ctx, access.OpListAuthors)
	if err != nil {
		return nil, err
	}
	authors, err := s.services.Catalog.ListAuthors(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &AuthorsOutput{Body: authors}, nil
}

func (s *Server) handleGetAuthor(ctx context.Context, input *AuthorIDInput) (*AuthorOutput, error) {
	actor, err := s.actor(ctx, access.OpGetAuthor)
	if err != nil {
		return nil, err
	}
	author, err := s.services.Catalog.GetAuthor(ctx, actor, input.ID)
	if err != nil {
		return nil, err
	}
	return &AuthorOutput{Body: author}, nil
}

func (s *Server) handleCreateAuthor(ctx context.Context, input *CreateAuthorInput) (*AuthorOutput, error) {
	actor, err := s.actor(ctx, access.OpCreateAuthor)
	if err != nil {
		return nil, err
	}
	author, err := s.services.Catalog.CreateAuthor(ctx, actor, service.CreateAuthorRequest{
		Username:  input.Body.Username,
		Biography: input.Body.Biography,
		Birthday:  input.Body.Birthday,
	})
	if err != nil {
		return nil, err
	}
	return &AuthorOutput{Body: author}, nil
}

func (s *Server) handleListGenres(ctx context.Context, _ *struct{}) (*GenresOutput, error) {
	actor, err := s.actor(ctx, access.OpListGenres)
	if err != nil {
		return nil, err
	}
	genres, err := s.services.Catalog.ListGenres(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &GenresOutput{Body: genres}, nil
}

func (s *Server) handleCreateGenres(ctx context.Context, input *CreateGenresInput) (*GenreBatchOutput, error) {
	actor, err := s.actor(ctx, access.OpCreateGenre)
	if err != nil {
		return nil, err
	}
	res, err := s.services.Catalog.CreateGenres(ctx, actor, service.CreateGenresRequest{Names: input.Body.Names})
	if err != nil {
		return nil, err
	}
	return &GenreBatchOutput{Body: res}, nil
}
