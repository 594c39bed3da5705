package domain

import "time"

// LoanState is the state of a single loan.
type LoanState string

const (
	// LoanOpen means the copy is out with the reader.
	LoanOpen LoanState = "open"
	// LoanClosed means the copy was returned. Closed loans never reopen.
	LoanClosed LoanState = "closed"
)

// Loan records one checkout of a book by a reader.
// OutputDate is when the copy left the shelf; InputDate is when it came back
// and stays nil while the loan is open.
type Loan struct {
	ID         string     `json:"id"`
	ReaderID   string     `json:"reader_id"`
	BookID     string     `json:"book_id"`
	OutputDate time.Time  `json:"output_date"`
	InputDate  *time.Time `json:"input_date,omitempty"`
}

// IsOpen reports whether the copy has not been returned yet.
func (l *Loan) IsOpen() bool {
	return l.InputDate == nil
}

// State returns the loan's state.
func (l *Loan) State() LoanState {
	if l.IsOpen() {
		return LoanOpen
	}
	return LoanClosed
}
