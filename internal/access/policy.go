// Package access decides which roles may perform which operations.
//
// The policy is a static table; Authorize does no I/O so callers can run it
// before touching the store.
package access

import (
	"github.com/libris/libris-server/internal/domain"
	domainerrors "github.com/libris/libris-server/internal/errors"
)

// Operation names an action guarded by the policy.
type Operation string

// Catalog operations.
const (
	OpCreateBook  Operation = "create_book"
	OpUpdateBook  Operation = "update_book"
	OpDeleteBook  Operation = "delete_book"
	OpListBooks   Operation = "list_books"
	OpGetBook     Operation = "get_book"
	OpSearchBooks Operation = "search_books"

	OpCreateAuthor Operation = "create_author"
	OpListAuthors  Operation = "list_authors"
	OpGetAuthor    Operation = "get_author"

	OpCreateGenre Operation = "create_genre"
	OpListGenres  Operation = "list_genres"
)

// Lending operations.
const (
	OpCheckout        Operation = "checkout"
	OpReturnBook      Operation = "return_book"
	OpListReaderLoans Operation = "list_reader_loans"
	OpListBookLoans   Operation = "list_book_loans"
	OpReconcile       Operation = "reconcile_availability"
	OpListReaders     Operation = "list_readers"
	OpGetReader       Operation = "get_reader"
	OpSetReaderQuota  Operation = "set_reader_quota"
)

// Account and operator operations.
const (
	OpRegister     Operation = "register"
	OpLogin        Operation = "login"
	OpCreateAdmin  Operation = "create_admin"
	OpImportReader Operation = "import_reader"
	OpListAudit    Operation = "list_audit"
)

// audience describes who may perform an operation.
type audience struct {
	public bool
	roles  map[domain.Role]bool
}

func anyone() audience { return audience{public: true} }

func only(roles ...domain.Role) audience {
	a := audience{roles: make(map[domain.Role]bool, len(roles))}
	for _, r := range roles {
		a.roles[r] = true
	}
	return a
}

var table = map[Operation]audience{
	OpCreateBook:      only(domain.RoleAdmin),
	OpUpdateBook:      only(domain.RoleAdmin),
	OpDeleteBook:      only(domain.RoleAdmin),
	OpCreateAuthor:    only(domain.RoleAdmin),
	OpCreateGenre:     only(domain.RoleAdmin),
	OpCheckout:        only(domain.RoleAdmin),
	OpReturnBook:      only(domain.RoleAdmin),
	OpListReaders:     only(domain.RoleAdmin),
	OpGetReader:       only(domain.RoleAdmin),
	OpSetReaderQuota:  only(domain.RoleAdmin),
	OpListReaderLoans: only(domain.RoleAdmin),
	OpListBookLoans:   only(domain.RoleAdmin),
	OpReconcile:       only(domain.RoleAdmin),
	OpCreateAdmin:     only(domain.RoleAdmin),
	OpImportReader:    only(domain.RoleAdmin),
	OpListAudit:       only(domain.RoleAdmin),

	OpListBooks:   anyone(),
	OpGetBook:     anyone(),
	OpSearchBooks: anyone(),
	OpListAuthors: anyone(),
	OpGetAuthor:   anyone(),
	OpListGenres:  anyone(),
	OpRegister:    anyone(),
	OpLogin:       anyone(),
}

// Authorize reports whether role may perform op.
//
// Public operations are allowed for every caller, including one without a
// role. Every other operation requires a known role listed for it; an unknown
// operation is always forbidden.
func Authorize(role domain.Role, op Operation) error {
	a, ok := table[op]
	if !ok {
		return domainerrors.Forbidden("unknown operation: " + string(op))
	}
	if a.public {
		return nil
	}
	if !role.Valid() || !a.roles[role] {
		return domainerrors.Forbidden("not allowed to " + string(op))
	}
	return nil
}

// IsPublic reports whether op is open to unauthenticated callers.
func IsPublic(op Operation) bool {
	return table[op].public
}

// Operations returns every operation in the policy table.
func Operations() []Operation {
	ops := make([]Operation, 0, len(table))
	for op := range table {
		ops = append(ops, op)
	}
	return ops
}

// Allowed returns the roles that may perform op, or nil for a public operation.
func Allowed(op Operation) []domain.Role {
	a, ok := table[op]
	if !ok || a.public {
		return nil
	}
	var roles []domain.Role
	for _, r := range domain.Roles {
		if a.roles[r] {
			roles = append(roles, r)
		}
	}
	return roles
}
