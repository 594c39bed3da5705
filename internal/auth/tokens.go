package auth

import (
	"errors"
	"fmt"
	"time"

	"aidanwoods.dev/go-paseto"
	jsoniter "github.com/json-iterator/go"

	"github.com/libris/libris-server/internal/id"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	tokenIssuer   = "libris-server"
	tokenAudience = "libris-client"
)

// Token verification failures.
var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// TokenService issues and verifies PASETO v4.local access tokens.
type TokenService struct {
	key paseto.V4SymmetricKey
	ttl time.Duration
	now func() time.Time
}

// NewTokenService creates a token service from a 32-byte key.
func NewTokenService(key []byte, ttl time.Duration) (*TokenService, error) {
	if len(key) != keyLength {
		return nil, fmt.Errorf("PASETO v4 key must be exactly %d bytes, got %d", keyLength, len(key))
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("token lifetime must be positive, got %s", ttl)
	}
	k, err := paseto.V4SymmetricKeyFromBytes(key)
	if err != nil {
		return nil, fmt.Errorf("create PASETO key: %w", err)
	}
	return &TokenService{key: k, ttl: ttl, now: time.Now}, nil
}

// Issue creates a token for the identity and returns it with its expiry.
func (s *TokenService) Issue(ident Identity) (string, time.Time, error) {
	if !ident.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("cannot issue token for role %q", ident.Role)
	}

	now := s.now()
	expires := now.Add(s.ttl)

	jti, err := id.Generate("tok")
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate token ID: %w", err)
	}

	token := paseto.NewToken()
	token.SetIssuer(tokenIssuer)
	token.SetSubject(ident.ID)
	token.SetAudience(tokenAudience)
	token.SetIssuedAt(now)
	token.SetNotBefore(now)
	token.SetExpiration(expires)
	token.SetJti(jti)
	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("username", ident.Username)
	//nolint:errcheck // Set only fails for values that cannot be marshalled
	_ = token.Set("role", string(ident.Role))

	return token.V4Encrypt(s.key, nil), expires, nil
}

// Verify decrypts a token and returns its claims.
// It returns ErrTokenExpired for an expired token and ErrInvalidToken for
// anything else that does not verify.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	parser := paseto.NewParserWithoutExpiryCheck()
	parser.AddRule(paseto.ForAudience(tokenAudience))
	parser.AddRule(paseto.IssuedBy(tokenIssuer))

	token, err := parser.ParseV4Local(s.key, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var claims Claims
	if err := json.Unmarshal(token.ClaimsJSON(), &claims); err != nil {
		return nil, fmt.Errorf("%w: parse claims: %v", ErrInvalidToken, err)
	}

	now := s.now()
	if !claims.Expiration.IsZero() && !now.Before(claims.Expiration) {
		return nil, ErrTokenExpired
	}
	if now.Before(claims.NotBefore) {
		return nil, fmt.Errorf("%w: not valid yet", ErrInvalidToken)
	}
	if !claims.Role.Valid() || claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing identity", ErrInvalidToken)
	}
	return &claims, nil
}

// TTL returns the lifetime of issued tokens.
func (s *TokenService) TTL() time.Duration {
	return s.ttl
}
