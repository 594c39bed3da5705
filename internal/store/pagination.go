package store

// Pagination defaults.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Page selects a window of an ordered listing.
type Page struct {
	Offset int
	Limit  int
}

// DefaultPage returns the first page with the default limit.
func DefaultPage() Page {
	return Page{Offset: 0, Limit: DefaultLimit}
}

// Normalize clamps the page into range: a negative offset becomes zero, a
// non-positive limit becomes DefaultLimit, and the limit is capped at MaxLimit.
func (p Page) Normalize() Page {
	if p.Offset < 0 {
		p.Offset = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}
