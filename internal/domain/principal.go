package domain

// Role identifies the kind of principal making a request.
type Role string

// The set of roles is closed.
const (
	RoleReader Role = "reader"
	RoleAuthor Role = "author"
	RoleAdmin  Role = "admin"
)

// Roles lists every role.
var Roles = []Role{RoleReader, RoleAuthor, RoleAdmin}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleReader, RoleAuthor, RoleAdmin:
		return true
	}
	return false
}

// ParseRole converts s to a Role. ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(s)
	return r, r.Valid()
}

// Principal is an authenticated caller. Exactly one of Reader, Author and
// Admin is set, matching Kind.
type Principal struct {
	Kind   Role    `json:"role"`
	Reader *Reader `json:"reader,omitempty"`
	Author *Author `json:"author,omitempty"`
	Admin  *Admin  `json:"admin,omitempty"`
}

// ReaderPrincipal wraps a reader.
func ReaderPrincipal(r *Reader) *Principal { return &Principal{Kind: RoleReader, Reader: r} }

// AuthorPrincipal wraps an author account.
func AuthorPrincipal(a *Author) *Principal { return &Principal{Kind: RoleAuthor, Author: a} }

// AdminPrincipal wraps an admin.
func AdminPrincipal(a *Admin) *Principal { return &Principal{Kind: RoleAdmin, Admin: a} }

// Role returns the principal's role. A nil principal has no role.
func (p *Principal) Role() Role {
	if p == nil {
		return ""
	}
	return p.Kind
}

// ID returns the id of the wrapped entity.
func (p *Principal) ID() string {
	switch {
	case p == nil:
		return ""
	case p.Reader != nil:
		return p.Reader.ID
	case p.Author != nil:
		return p.Author.ID
	case p.Admin != nil:
		return p.Admin.ID
	}
	return ""
}

// Username returns the username of the wrapped entity.
func (p *Principal) Username() string {
	switch {
	case p == nil:
		return ""
	case p.Reader != nil:
		return p.Reader.Username
	case p.Author != nil:
		return p.Author.Username
	case p.Admin != nil:
		return p.Admin.Username
	}
	return ""
}
