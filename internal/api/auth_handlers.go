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

func (s *Server) registerAuthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "setup",
		Method:      http.MethodPost,
		Path:        s.path("/auth/setup"),
		Summary:     "Initial server setup",
		Description: "Creates the first admin and logs them in. Only works while no admin exists.",
		Tags:        []string{"Authentication"},
		Middlewares: huma.Middlewares{s.rateLimited},
	}, s.handleSetup)

	huma.Register(s.api, huma.Operation{
		OperationID:   "register",
		Method:        http.MethodPost,
		Path:          s.path("/auth/register"),
		Summary:       "Register an account",
		Description:   "Creates a reader or author account. Usernames are unique per role.",
		Tags:          []string{"Authentication"},
		DefaultStatus: http.StatusCreated,
		Middlewares:   huma.Middlewares{s.rateLimited},
	}, s.handleRegister)

	huma.Register(s.api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        s.path("/auth/login"),
		Summary:     "Log in",
		Description: "Verifies credentials for the given role and returns an access token. The token is also set as the access_token cookie.",
		Tags:        []string{"Authentication"},
		Middlewares: huma.Middlewares{s.rateLimited},
	}, s.handleLogin)

	huma.Register(s.api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        s.path("/auth/me"),
		Summary:     "Current principal",
		Description: "Returns the authenticated reader, author, or admin",
		Tags:        []string{"Authentication"},
		Security:    bearerAuth,
	}, s.handleMe)

	huma.Register(s.api, huma.Operation{
		OperationID:   "createAdmin",
		Method:        http.MethodPost,
		Path:          s.path("/admins"),
		Summary:       "Create admin",
		Description:   "Creates another admin account",
		Tags:          []string{"Admin"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCreateAdmin)
}

// === DTOs ===

// CredentialsRequest is a username and password.
type CredentialsRequest struct {
	Username string `json:"username" doc:"Account username"`
	Password string `json:"password" doc:"Password, at least 8 characters"`
}

func (r CredentialsRequest) toService() service.Credentials {
	return service.Credentials{Username: r.Username, Password: r.Password}
}

// CredentialsInput wraps a credentials body for Huma.
type CredentialsInput struct {
	Body CredentialsRequest
}

// RegisterRequest is the request body for open registration.
type RegisterRequest struct {
	Username  string     `json:"username" doc:"Username, unique among accounts of the same role"`
	Password  string     `json:"password" doc:"Password, at least 8 characters"`
	Role      string     `json:"role" enum:"reader,author" doc:"Account kind"`
	Email     string     `json:"email,omitempty" doc:"Reader email"`
	Info      string     `json:"info,omitempty" doc:"Free-text reader notes"`
	Biography string     `json:"biography,omitempty" doc:"Author biography, HTML or Markdown"`
	Birthday  *time.Time `json:"birthday,omitempty" doc:"Author birthday"`
}

// RegisterInput wraps the registration request for Huma.
type RegisterInput struct {
	Body RegisterRequest
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Username string `json:"username" doc:"Account username"`
	Password string `json:"password" doc:"Account password"`
	Role     string `json:"role" enum:"reader,author,admin" doc:"Account kind to log in as"`
}

// LoginInput wraps the login request for Huma.
type LoginInput struct {
	Body LoginRequest
}

// AuthOutput carries a freshly issued token in the body and as a cookie.
type AuthOutput struct {
	SetCookie http.Cookie `header:"Set-Cookie"`
	Body      *service.AuthResult
}

// PrincipalOutput wraps a principal for Huma.
type PrincipalOutput struct {
	Body *domain.Principal
}

// AdminOutput wraps an admin for Huma.
type AdminOutput struct {
	Body *domain.Admin
}

// === Handlers ===

func (s *Server) handleSetup(ctx context.Context, input *CredentialsInput) (*AuthOutput, error) {
	res, err := s.services.Auth.Setup(ctx, input.Body.toService())
	if err != nil {
		return nil, err
	}
	return s.authOutput(res), nil
}

func (s *Server) handleRegister(ctx context.Context, input *RegisterInput) (*PrincipalOutput, error) {
	if _, err := s.actor(ctx, access.OpRegister); err != nil {
		return nil, err
	}

	body := input.Body
	p, err := s.services.Auth.Register(ctx, service.RegisterRequest{
		Username:  body.Username,
		Password:  body.Password,
		Role:      body.Role,
		Email:     body.Email,
		Info:      body.Info,
		Biography: body.Biography,
		Birthday:  body.Birthday,
	})
	if err != nil {
		return nil, err
	}
	return &PrincipalOutput{Body: p}, nil
}

func (s *Server) handleLogin(ctx context.Context, input *LoginInput) (*AuthOutput, error) {
	if _, err := s.actor(ctx, access.OpLogin); err != nil {
		return nil, err
	}

	res, err := s.services.Auth.Login(ctx, service.LoginRequest{
		Username: input.Body.Username,
		Password: input.Body.Password,
		Role:     input.Body.Role,
	})
	if err != nil {
		return nil, err
	}
	return s.authOutput(res), nil
}

func (s *Server) handleMe(ctx context.Context, _ *struct{}) (*PrincipalOutput, error) {
	actor, err := s.authenticated(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.services.Auth.Me(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &PrincipalOutput{Body: p}, nil
}

func (s *Server) handleCreateAdmin(ctx context.Context, input *CredentialsInput) (*AdminOutput, error) {
	actor, err := s.actor(ctx, access.OpCreateAdmin)
	if err != nil {
		return nil, err
	}
	admin, err := s.services.Auth.CreateAdmin(ctx, actor, input.Body.toService())
	if err != nil {
		return nil, err
	}
	return &AdminOutput{Body: admin}, nil
}

func (s *Server) authOutput(res *service.AuthResult) *AuthOutput {
	return &AuthOutput{
		SetCookie: http.Cookie{
			Name:     accessTokenCookie,
			Value:    res.Token,
			Path:     "/",
			Expires:  res.ExpiresAt,
			HttpOnly: true,
			Secure:   s.secureCookies,
			SameSite: http.SameSiteLaxMode,
		},
		Body: res,
	}
}
