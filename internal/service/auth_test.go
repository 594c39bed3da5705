package service

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/libris/libris-server/internal/auth"
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
	"github.com/libris/libris-server/internal/id"
	"github.com/libris/libris-server/internal/store/sqlite"
)

// setupAuthTest creates an auth service over an empty database.
func setupAuthTest(t *testing.T) (*AuthService, *sqlite.Store) {
	t.Helper()

	s, err := sqlite.Open(filepath.Join(t.TempDir(), "auth.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	tokens, err := auth.NewTokenService(bytes.Repeat([]byte{3}, 32), 15*time.Minute)
	require.NoError(t, err)

	return NewAuthService(s, tokens, 4, nil), s
}

func TestAuthService_Setup_Success(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	configured, err := svc.IsConfigured(ctx)
	require.NoError(t, err)
	assert.False(t, configured)

	res, err := svc.Setup(ctx, Credentials{Username: "root", Password: "correct horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.Equal(t, "Bearer", res.TokenType)
	assert.True(t, res.ExpiresAt.After(time.Now()))
	assert.Equal(t, domain.RoleAdmin, res.Principal.Role())

	configured, err = svc.IsConfigured(ctx)
	require.NoError(t, err)
	assert.True(t, configured)

	p, err := svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.Principal.ID(), p.ID())
}

func TestAuthService_Setup_AlreadyConfigured(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	_, err := svc.Setup(ctx, Credentials{Username: "root", Password: "correct horse"})
	require.NoError(t, err)

	_, err = svc.Setup(ctx, Credentials{Username: "other", Password: "correct horse"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrAlreadyConfigured))
}

func TestAuthService_Setup_ValidationErrors(t *testing.T) {
	svc, _ := setupAuthTest(t)

	tests := []struct {
		name  string
		creds Credentials
	}{
		{"empty username", Credentials{Username: "", Password: "correct horse"}},
		{"short password", Credentials{Username: "root", Password: "short"}},
		{"bad username", Credentials{Username: "<script>", Password: "correct horse"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Setup(context.Background(), tt.creds)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
		})
	}
}

func TestAuthService_CreateAdmin(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	res, err := svc.Setup(ctx, Credentials{Username: "root", Password: "correct horse"})
	require.NoError(t, err)

	admin, err := svc.CreateAdmin(ctx, res.Principal, Credentials{Username: "second", Password: "battery staple"})
	require.NoError(t, err)
	assert.Equal(t, "second", admin.Username)

	_, err = svc.CreateAdmin(ctx, res.Principal, Credentials{Username: "second", Password: "battery staple"})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrAlreadyExists))

	reader, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)
	_, err = svc.CreateAdmin(ctx, reader, Credentials{Username: "third", Password: "battery staple"})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrForbidden))
}

func TestAuthService_Register_Reader(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	p, err := svc.Register(ctx, RegisterRequest{
		Username: "alice",
		Password: "correct horse",
		Role:     "reader",
		Email:    "alice@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReader, p.Role())
	require.NotNil(t, p.Reader)
	assert.Equal(t, 4, p.Reader.CanGetMore, "new readers get the configured default quota")
	assert.NotEqual(t, "correct horse", p.Reader.PasswordHash)

	_, err = svc.Register(ctx, RegisterRequest{Username: "alice", Password: "another one", Role: "reader"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrAlreadyExists))
}

func TestAuthService_Register_Author(t *testing.T) {
	svc, s := setupAuthTest(t)
	ctx := context.Background()

	// A catalog-only author of the same name does not block registration.
	catalogOnly := &domain.Author{ID: id.New(), Username: "Ursula"}
	catalogOnly.InitTimestamps()
	require.NoError(t, s.CreateAuthor(ctx, catalogOnly))

	p, err := svc.Register(ctx, RegisterRequest{
		Username:  "Ursula",
		Password:  "correct horse",
		Role:      "author",
		Biography: "<p>Wrote <em>Earthsea</em>.</p>",
	})
	require.NoError(t, err)
	require.NotNil(t, p.Author)
	assert.True(t, p.Author.HasAccount())
	assert.NotEqual(t, catalogOnly.ID, p.Author.ID)
	assert.NotContains(t, p.Author.Biography, "<p>")

	_, err = svc.Register(ctx, RegisterRequest{Username: "Ursula", Password: "correct horse", Role: "author"})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrAlreadyExists))

	// The same username may exist once per role.
	_, err = svc.Register(ctx, RegisterRequest{Username: "Ursula", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)
}

func TestAuthService_Register_RejectsAdminRole(t *testing.T) {
	svc, _ := setupAuthTest(t)

	_, err := svc.Register(context.Background(), RegisterRequest{Username: "mallory", Password: "correct horse", Role: "admin"})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestAuthService_Login_Success(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	registered, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)

	res, err := svc.Login(ctx, LoginRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)
	assert.Equal(t, registered.ID(), res.Principal.ID())

	p, err := svc.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleReader, p.Role())
	assert.Equal(t, "alice", p.Username())
}

func TestAuthService_Login_InvalidCredentials(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)

	tests := []struct {
		name string
		req  LoginRequest
	}{
		{"wrong password", LoginRequest{Username: "alice", Password: "wrong horse", Role: "reader"}},
		{"unknown user", LoginRequest{Username: "bob", Password: "correct horse", Role: "reader"}},
		{"wrong role", LoginRequest{Username: "alice", Password: "correct horse", Role: "author"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidCredentials))
		})
	}
}

func TestAuthService_Login_CatalogOnlyAuthor(t *testing.T) {
	svc, s := setupAuthTest(t)
	ctx := context.Background()

	a := &domain.Author{ID: id.New(), Username: "Homer"}
	a.InitTimestamps()
	require.NoError(t, s.CreateAuthor(ctx, a))

	_, err := svc.Login(ctx, LoginRequest{Username: "Homer", Password: "whatever1", Role: "author"})
	assert.True(t, domainerrors.Is(err, domainerrors.ErrInvalidCredentials))
}

func TestAuthService_Login_UpgradesLegacyHash(t *testing.T) {
	svc, s := setupAuthTest(t)
	ctx := context.Background()

	legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	r := &domain.Reader{ID: id.New(), Username: "alice", PasswordHash: string(legacy), CanGetMore: 5}
	r.InitTimestamps()
	require.NoError(t, s.CreateReader(ctx, r))

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)

	stored, err := s.GetReader(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.PasswordHash, "$argon2id$"))

	// The upgraded hash still verifies.
	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)
}

func TestAuthService_ImportReader(t *testing.T) {
	svc, s := setupAuthTest(t)
	ctx := context.Background()
	admin := domain.AdminPrincipal(&domain.Admin{ID: id.New(), Username: "root"})

	legacy, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)
	quota := 2

	r, err := svc.ImportReader(ctx, admin, ImportReaderRequest{
		Username:     "alice",
		PasswordHash: string(legacy),
		Info:         "<p>Night owl</p>",
		CanGetMore:   &quota,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, r.CanGetMore)
	assert.Equal(t, "Night owl", r.Info)

	stored, err := s.GetReaderByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, string(legacy), stored.PasswordHash)

	_, err = svc.Login(ctx, LoginRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)

	t.Run("default quota", func(t *testing.T) {
		r, err := svc.ImportReader(ctx, admin, ImportReaderRequest{Username: "bob", PasswordHash: string(legacy)})
		require.NoError(t, err)
		assert.Equal(t, 4, r.CanGetMore)
	})

	t.Run("unknown hash format", func(t *testing.T) {
		_, err := svc.ImportReader(ctx, admin, ImportReaderRequest{Username: "carol", PasswordHash: "plaintext"})
		assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
	})

	t.Run("duplicate username", func(t *testing.T) {
		_, err := svc.ImportReader(ctx, admin, ImportReaderRequest{Username: "alice", PasswordHash: string(legacy)})
		assert.True(t, domainerrors.Is(err, domainerrors.ErrAlreadyExists))
	})

	t.Run("readers cannot import", func(t *testing.T) {
		reader := domain.ReaderPrincipal(r)
		_, err := svc.ImportReader(ctx, reader, ImportReaderRequest{Username: "dave", PasswordHash: string(legacy)})
		assert.True(t, domainerrors.Is(err, domainerrors.ErrForbidden))
	})
}

func TestAuthService_Authenticate_InvalidToken(t *testing.T) {
	svc, _ := setupAuthTest(t)

	_, err := svc.Authenticate(context.Background(), "v4.local.garbage")
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthenticated))
}

func TestAuthService_Authenticate_ForeignKey(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	other, err := auth.NewTokenService(bytes.Repeat([]byte{9}, 32), time.Minute)
	require.NoError(t, err)
	token, _, err := other.Issue(auth.Identity{ID: "x", Username: "x", Role: domain.RoleAdmin})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, token)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthenticated))
}

func TestAuthService_Authenticate_DeletedAccount(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	// A token for an account this database never had.
	token, _, err := svc.tokenService.Issue(auth.Identity{ID: id.New(), Username: "ghost", Role: domain.RoleReader})
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, token)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthenticated))
}

func TestAuthService_Me(t *testing.T) {
	svc, _ := setupAuthTest(t)
	ctx := context.Background()

	_, err := svc.Me(ctx, nil)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnauthenticated))

	p, err := svc.Register(ctx, RegisterRequest{Username: "alice", Password: "correct horse", Role: "reader"})
	require.NoError(t, err)
	me, err := svc.Me(ctx, p)
	require.NoError(t, err)
	assert.Same(t, p, me)
}
