package auth

import (
	"time"

	"github.com/libris/libris-server/internal/domain"
)

// Claims are the contents of an access token. Tokens are v4.local, so the
// claims are encrypted and only readable with the server key.
type Claims struct {
	Username string      `json:"username"`
	Role     domain.Role `json:"role"`

	Issuer     string    `json:"iss"`
	Subject    string    `json:"sub"`
	Audience   string    `json:"aud"`
	Expiration time.Time `json:"exp"`
	NotBefore  time.Time `json:"nbf"`
	IssuedAt   time.Time `json:"iat"`
	TokenID    string    `json:"jti"`
}

// Identity is what a token asserts about its bearer.
type Identity struct {
	ID       string
	Username string
	Role     domain.Role
}

// IdentityOf returns the identity carried by a principal.
func IdentityOf(p *domain.Principal) Identity {
	return Identity{ID: p.ID(), Username: p.Username(), Role: p.Role()}
}
