package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoan_State(t *testing.T) {
	l := Loan{OutputDate: time.Now()}
	assert.True(t, l.IsOpen())
	assert.Equal(t, LoanOpen, l.State())

	now := time.Now()
	l.InputDate = &now
	assert.False(t, l.IsOpen())
	assert.Equal(t, LoanClosed, l.State())
}

func TestBook_OnLoan(t *testing.T) {
	b := Book{TotalCopies: 3, CountAvailable: 1}
	assert.Equal(t, 2, b.OnLoan())
}

func TestBookUpdate_IsEmpty(t *testing.T) {
	assert.True(t, BookUpdate{}.IsEmpty())

	name := "Dune"
	assert.False(t, BookUpdate{Name: &name}.IsEmpty())

	ids := []string{}
	assert.False(t, BookUpdate{GenreIDs: &ids}.IsEmpty(), "an empty replacement set is still an update")
}

func TestParseRole(t *testing.T) {
	for _, r := range Roles {
		got, ok := ParseRole(string(r))
		assert.True(t, ok)
		assert.Equal(t, r, got)
	}

	_, ok := ParseRole("librarian")
	assert.False(t, ok)
	_, ok = ParseRole("")
	assert.False(t, ok)
}

func TestPrincipal_Accessors(t *testing.T) {
	var nobody *Principal
	assert.Equal(t, Role(""), nobody.Role())
	assert.Empty(t, nobody.ID())
	assert.Empty(t, nobody.Username())

	p := ReaderPrincipal(&Reader{ID: "r1", Username: "alice"})
	assert.Equal(t, RoleReader, p.Role())
	assert.Equal(t, "r1", p.ID())
	assert.Equal(t, "alice", p.Username())

	a := AdminPrincipal(&Admin{ID: "a1", Username: "root"})
	assert.Equal(t, RoleAdmin, a.Role())
	assert.Equal(t, "root", a.Username())

	hash := "x"
	au := AuthorPrincipal(&Author{ID: "w1", Username: "herbert", PasswordHash: &hash})
	assert.Equal(t, RoleAuthor, au.Role())
	assert.True(t, au.Author.HasAccount())
}
