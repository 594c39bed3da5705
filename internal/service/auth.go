package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/id"
	"github.com/libris/libris-server/internal/normalize"
	"github.com/libris/libris-server/internal/store"
	"github.com/libris/libris-server/internal/validation"
)

// dummyHash is verified against when a login names an unknown account, so
// unknown and known usernames take the same time to reject.
var dummyHash = sync.OnceValue(func() string {
	h, _ := auth.HashPassword("libris-timing-equalizer")
	return h
})

// AuthService handles accounts: first-run setup, registration, login, and
// turning access tokens back into principals.
type AuthService struct {
	store        store.Store
	tokenService *auth.TokenService
	logger       *slog.Logger
	validator    *validation.Validator
	defaultQuota int
}

// NewAuthService creates a new authentication service.
// defaultQuota is the can_get_more given to newly registered readers.
func NewAuthService(s store.Store, tokenService *auth.TokenService, defaultQuota int, logger *slog.Logger) *AuthService {
	if defaultQuota <= 0 {
		defaultQuota = domain.DefaultQuota
	}
	return &AuthService{
		store:        s,
		tokenService: tokenService,
		logger:       orDiscard(logger),
		validator:    validation.New(),
		defaultQuota: defaultQuota,
	}
}

// Credentials is a username and password pair.
type Credentials struct {
	Username string `json:"username" validate:"required,notblank,username,max=100"`
	Password string `json:"password" validate:"required,min=8,max=1024"`
}

// RegisterRequest contains the data for open registration as a reader or an author.
type RegisterRequest struct {
	Username  string     `json:"username" validate:"required,notblank,username,max=100"`
	Password  string     `json:"password" validate:"required,min=8,max=1024"`
	Role      string     `json:"role" validate:"required,oneof=reader author"`
	Email     string     `json:"email" validate:"omitempty,email,max=254"`
	Info      string     `json:"info" validate:"max=2000"`
	Biography string     `json:"biography" validate:"max=20000"`
	Birthday  *time.Time `json:"birthday"`
}

// LoginRequest contains credentials and the account kind to log in as.
type LoginRequest struct {
	Username string `json:"username" validate:"required,notblank,max=100"`
	Password string `json:"password" validate:"required,max=1024"`
	Role     string `json:"role" validate:"required,oneof=reader author admin"`
}

// AuthResult is a freshly issued access token and who it belongs to.
type AuthResult struct {
	Token     string            `json:"access_token"`
	TokenType string            `json:"token_type"`
	ExpiresAt time.Time         `json:"expires_at"`
	Principal *domain.Principal `json:"principal"`
}

// IsConfigured reports whether an admin exists yet.
func (s *AuthService) IsConfigured(ctx context.Context) (bool, error) {
	n, err := s.store.CountAdmins(ctx)
	if err != nil {
		return false, storeError(err, "admins")
	}
	return n > 0, nil
}

// Setup creates the first admin and logs them in.
// It only works while no admin exists; afterwards it returns ErrAlreadyConfigured.
func (s *AuthService) Setup(ctx context.Context, req Credentials) (*AuthResult, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	admin, err := newAdmin(req)
	if err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(q store.Queries) error {
		n, err := q.CountAdmins(ctx)
		if err != nil {
			return err
		}
		if n > 0 {
			return domainerrors.ErrAlreadyConfigured
		}
		return q.CreateAdmin(ctx, admin)
	})
	if err != nil {
		err = storeError(err, "admin")
		logStoreFailure(ctx, s.logger, "setup", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "server setup complete", "admin_id", admin.ID, "username", admin.Username)
	return s.issue(domain.AdminPrincipal(admin))
}

// CreateAdmin adds another admin. Only admins may do this.
func (s *AuthService) CreateAdmin(ctx context.Context, actor *domain.Principal, req Credentials) (*domain.Admin, error) {
	if err := authorize(actor, access.OpCreateAdmin); err != nil {
		return nil, err
	}
	return s.CreateAdminUnchecked(ctx, req)
}

// CreateAdminUnchecked adds an admin without an acting principal. It backs the
// offline operator CLI, which runs with direct access to the database.
func (s *AuthService) CreateAdminUnchecked(ctx context.Context, req Credentials) (*domain.Admin, error) {
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	admin, err := newAdmin(req)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateAdmin(ctx, admin); err != nil {
		err = storeError(err, "admin")
		logStoreFailure(ctx, s.logger, "create_admin", err)
		return nil, err
	}
	s.logger.InfoContext(ctx, "admin created", "admin_id", admin.ID, "username", admin.Username)
	return admin, nil
}

func newAdmin(req Credentials) (*domain.Admin, error) {
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	a := &domain.Admin{
		ID:           id.New(),
		Username:     normalize.Name(req.Username),
		PasswordHash: hash,
	}
	a.InitTimestamps()
	return a, nil
}

// Register creates a reader or author account. Usernames are unique per role.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*domain.Principal, error) {
	if err := authorize(nil, access.OpRegister); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	username := normalize.Name(req.Username)

	var p *domain.Principal
	switch domain.Role(req.Role) {
	case domain.RoleReader:
		r := &domain.Reader{
			ID:           id.New(),
			Username:     username,
			PasswordHash: hash,
			Email:        req.Email,
			Info:         normalize.Markdown(req.Info),
			CanGetMore:   s.defaultQuota,
		}
		r.InitTimestamps()
		if err := s.store.CreateReader(ctx, r); err != nil {
			return nil, s.registerError(ctx, err)
		}
		p = domain.ReaderPrincipal(r)

	case domain.RoleAuthor:
		a := &domain.Author{
			ID:           id.New(),
			Username:     username,
			PasswordHash: &hash,
			Biography:    normalize.Markdown(req.Biography),
			Birthday:     req.Birthday,
		}
		a.InitTimestamps()
		err := s.store.InTx(ctx, func(q store.Queries) error {
			switch _, err := q.GetAuthorAccount(ctx, username); {
			case err == nil:
				return store.ErrAlreadyExists
			case !errors.Is(err, store.ErrNotFound):
				return err
			}
			return q.CreateAuthor(ctx, a)
		})
		if err != nil {
			return nil, s.registerError(ctx, err)
		}
		p = domain.AuthorPrincipal(a)
	}

	s.logger.InfoContext(ctx, "account registered", "role", p.Role(), "id", p.ID(), "username", p.Username())
	return p, nil
}

// ImportReaderRequest creates a reader whose password was hashed elsewhere,
// for example by an older deployment using bcrypt.
type ImportReaderRequest struct {
	Username     string `json:"username" validate:"required,notblank,username,max=100"`
	PasswordHash string `json:"password_hash" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email,max=254"`
	Info         string `json:"info" validate:"max=2000"`
	CanGetMore   *int   `json:"can_get_more" validate:"omitempty,gte=0"`
}

// ImportReader creates a reader from an existing password hash. The hash is
// upgraded to argon2id on the reader's first successful login.
func (s *AuthService) ImportReader(ctx context.Context, actor *domain.Principal, req ImportReaderRequest) (*domain.Reader, error) {
	if err := authorize(actor, access.OpImportReader); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	if !auth.ValidHash(req.PasswordHash) {
		return nil, domainerrors.ValidationWithDetails("validation failed", map[string]string{
			"password_hash": "must be an argon2id or bcrypt hash",
		})
	}

	quota := s.defaultQuota
	if req.CanGetMore != nil {
		quota = *req.CanGetMore
	}
	r := &domain.Reader{
		ID:           id.New(),
		Username:     normalize.Name(req.Username),
		PasswordHash: req.PasswordHash,
		Email:        req.Email,
		Info:         normalize.Markdown(req.Info),
		CanGetMore:   quota,
	}
	r.InitTimestamps()
	if err := s.store.CreateReader(ctx, r); err != nil {
		return nil, s.registerError(ctx, err)
	}

	s.logger.InfoContext(ctx, "reader imported", "reader_id", r.ID, "username", r.Username)
	return r, nil
}

func (s *AuthService) registerError(ctx context.Context, err error) error {
	if errors.Is(err, store.ErrAlreadyExists) {
		return domainerrors.AlreadyExistsf("username is already taken").WithCause(err)
	}
	err = storeError(err, "account")
	logStoreFailure(ctx, s.logger, "register", err)
	return err
}

// Login checks credentials for the given account kind and issues an access token.
// Unknown usernames and wrong passwords fail identically with ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (*AuthResult, error) {
	if err := authorize(nil, access.OpLogin); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(req); err != nil {
		return nil, err
	}
	username := normalize.Name(req.Username)

	var (
		p    *domain.Principal
		hash string
		err  error
	)
	switch domain.Role(req.Role) {
	case domain.RoleReader:
		var r *domain.Reader
		if r, err = s.store.GetReaderByUsername(ctx, username); err == nil {
			p, hash = domain.ReaderPrincipal(r), r.PasswordHash
		}
	case domain.RoleAuthor:
		var a *domain.Author
		if a, err = s.store.GetAuthorAccount(ctx, username); err == nil {
			p, hash = domain.AuthorPrincipal(a), *a.PasswordHash
		}
	case domain.RoleAdmin:
		var a *domain.Admin
		if a, err = s.store.GetAdminByUsername(ctx, username); err == nil {
			p, hash = domain.AdminPrincipal(a), a.PasswordHash
		}
	}

	switch {
	case errors.Is(err, store.ErrNotFound):
		auth.VerifyPassword(dummyHash(), req.Password)
		s.logger.DebugContext(ctx, "login failed", "username", username, "role", req.Role, "reason", "unknown account")
		return nil, domainerrors.ErrInvalidCredentials
	case err != nil:
		err = storeError(err, "account")
		logStoreFailure(ctx, s.logger, "login", err)
		return nil, err
	}

	if !auth.VerifyPassword(hash, req.Password) {
		s.logger.DebugContext(ctx, "login failed", "username", username, "role", req.Role, "reason", "bad password")
		return nil, domainerrors.ErrInvalidCredentials
	}

	if auth.NeedsRehash(hash) {
		s.upgradeHash(ctx, p, req.Password)
	}

	s.logger.InfoContext(ctx, "user logged in", "role", p.Role(), "id", p.ID())
	return s.issue(p)
}

// upgradeHash replaces a legacy password hash after a successful login.
// Failure is logged and otherwise ignored; the old hash keeps working.
func (s *AuthService) upgradeHash(ctx context.Context, p *domain.Principal, password string) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to rehash password", "id", p.ID(), "error", err)
		return
	}
	if err := s.store.SetPasswordHash(ctx, p.Role(), p.ID(), hash); err != nil {
		s.logger.WarnContext(ctx, "failed to store upgraded password hash", "id", p.ID(), "error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "role", p.Role(), "id", p.ID())
}

func (s *AuthService) issue(p *domain.Principal) (*AuthResult, error) {
	token, expires, err := s.tokenService.Issue(auth.IdentityOf(p))
	if err != nil {
		return nil, domainerrors.Wrap(err, domainerrors.CodeInternal, "failed to issue token")
	}
	return &AuthResult{Token: token, TokenType: "Bearer", ExpiresAt: expires, Principal: p}, nil
}

// Authenticate verifies an access token and loads the principal it names.
// Tokens for accounts that no longer exist are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.Principal, error) {
	claims, err := s.tokenService.Verify(token)
	if err != nil {
		if errors.Is(err, auth.ErrTokenExpired) {
			return nil, domainerrors.Unauthenticated("token expired")
		}
		return nil, domainerrors.Unauthenticated("invalid token")
	}

	var p *domain.Principal
	switch claims.Role {
	case domain.RoleReader:
		var r *domain.Reader
		if r, err = s.store.GetReader(ctx, claims.Subject); err == nil {
			p = domain.ReaderPrincipal(r)
		}
	case domain.RoleAuthor:
		var a *domain.Author
		if a, err = s.store.GetAuthor(ctx, claims.Subject); err == nil {
			p = domain.AuthorPrincipal(a)
		}
	case domain.RoleAdmin:
		var a *domain.Admin
		if a, err = s.store.GetAdmin(ctx, claims.Subject); err == nil {
			p = domain.AdminPrincipal(a)
		}
	default:
		return nil, domainerrors.Unauthenticated("invalid token")
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, domainerrors.Unauthenticated("account no longer exists")
	}
	if err != nil {
		return nil, storeError(err, "account")
	}
	return p, nil
}

// Me returns the caller's principal, or ErrUnauthenticated for anonymous callers.
func (s *AuthService) Me(_ context.Context, actor *domain.Principal) (*domain.Principal, error) {
	if actor == nil {
		return nil, domainerrors.ErrUnauthenticated
	}
	return actor, nil
}
