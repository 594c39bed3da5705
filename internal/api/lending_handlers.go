package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/libris/libris-server/internal/access"
	"github.com/libris/libris-server/internal/domain"
	"github.com/libris/libris-server/internal/service"
)

func (s *Server) registerReaderRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listReaders",
		Method:      http.MethodGet,
		Path:        s.path("/readers"),
		Summary:     "List readers",
		Tags:        []string{"Readers"},
		Security:    bearerAuth,
	}, s.handleListReaders)

	huma.Register(s.api, huma.Operation{
		OperationID: "getReader",
		Method:      http.MethodGet,
		Path:        s.path("/readers/{reader}"),
		Summary:     "Get reader",
		Description: "Looks a reader up by id or username",
		Tags:        []string{"Readers"},
		Security:    bearerAuth,
	}, s.handleGetReader)

	huma.Register(s.api, huma.Operation{
		OperationID: "setReaderQuota",
		Method:      http.MethodPut,
		Path:        s.path("/readers/{reader}/quota"),
		Summary:     "Set reader quota",
		Description: "Sets how many loans the reader may hold at once. Lowering it never closes loans.",
		Tags:        []string{"Readers"},
		Security:    bearerAuth,
	}, s.handleSetReaderQuota)

	huma.Register(s.api, huma.Operation{
		OperationID: "listReaderLoans",
		Method:      http.MethodGet,
		Path:        s.path("/readers/{reader}/loans"),
		Summary:     "List open loans of a reader",
		Tags:        []string{"Loans"},
		Security:    bearerAuth,
	}, s.handleListReaderLoans)
}

func (s *Server) registerLoanRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID:   "checkout",
		Method:        http.MethodPost,
		Path:          s.path("/loans/checkout"),
		Summary:       "Check out a book",
		Description:   "Lends one copy of a book to a reader",
		Tags:          []string{"Loans"},
		Security:      bearerAuth,
		DefaultStatus: http.StatusCreated,
	}, s.handleCheckout)

	huma.Register(s.api, huma.Operation{
		OperationID: "returnBook",
		Method:      http.MethodPost,
		Path:        s.path("/loans/return"),
		Summary:     "Return a book",
		Description: "Closes the reader's open loan of a book",
		Tags:        []string{"Loans"},
		Security:    bearerAuth,
	}, s.handleReturnBook)
}

// === DTOs ===

// ReaderInput selects a reader by id or username.
type ReaderInput struct {
	Reader string `path:"reader" doc:"Reader ID or username"`
}

// SetQuotaRequest is the request body for changing a reader's quota.
type SetQuotaRequest struct {
	CanGetMore int `json:"can_get_more" minimum:"0" doc:"Maximum simultaneous loans"`
}

// SetQuotaInput wraps the quota request for Huma.
type SetQuotaInput struct {
	Reader string `path:"reader" doc:"Reader ID or username"`
	Body   SetQuotaRequest
}

// ReaderOutput wraps a reader for Huma.
type ReaderOutput struct {
	Body *domain.Reader
}

// ReadersOutput wraps a list of readers for Huma.
type ReadersOutput struct {
	Body []*domain.Reader
}

// LoanRequest names the reader and book of a checkout or return.
type LoanRequest struct {
	Reader string `json:"reader" doc:"Reader ID or username"`
	BookID string `json:"book_id" doc:"Book ID"`
}

// LoanInput wraps a loan request for Huma.
type LoanInput struct {
	Body LoanRequest
}

// LoanResponse is a loan with its derived state.
type LoanResponse struct {
	domain.Loan
	State domain.LoanState `json:"state" enum:"open,closed" doc:"open while the copy is out"`
}

// LoanOutput wraps a loan for Huma.
type LoanOutput struct {
	Body LoanResponse
}

func loanResponse(l *domain.Loan) LoanResponse {
	return LoanResponse{Loan: *l, State: l.State()}
}

func loanResponses(loans []*domain.Loan) []LoanResponse {
	out := make([]LoanResponse, len(loans))
	for i, l := range loans {
		out[i] = loanResponse(l)
	}
	return out
}

// === Handlers ===

func (s *Server) handleListReaders(ctx context.Context, _ *struct{}) (*ReadersOutput, error) {
	actor, err := s.actor(ctx, access.OpListReaders)
	if err != nil {
		return nil, err
	}
	readers, err := s.services.Readers.ListReaders(ctx, actor)
	if err != nil {
		return nil, err
	}
	return &ReadersOutput{Body: readers}, nil
}

func (s *Server) handleGetReader(ctx context.Context, input *ReaderInput) (*ReaderOutput, error) {
	actor, err := s.actor(ctx, access.OpGetReader)
	if err != nil {
		return nil, err
	}
	reader, err := s.services.Readers.GetReader(ctx, actor, input.Reader)
	if err != nil {
		return nil, err
	}
	return &ReaderOutput{Body: reader}, nil
}

func (s *Server) handleSetReaderQuota(ctx context.Context, input *SetQuotaInput) (*ReaderOutput, error) {
	actor, err := s.actor(ctx, access.OpSetReaderQuota)
	if err != nil {
		return nil, err
	}
	reader, err := s.services.Readers.SetReaderQuota(ctx, actor, input.Reader, service.SetQuotaRequest{
		CanGetMore: input.Body.CanGetMore,
	})
	if err != nil {
		return nil, err
	}
	return &ReaderOutput{Body: reader}, nil
}

func (s *Server) handleListReaderLoans(ctx context.Context, input *ReaderInput) (*LoansOutput, error) {
	actor, err := s.actor(ctx, access.OpListReaderLoans)
	if err != nil {
		return nil, err
	}
	loans, err := s.services.Ledger.ListOpenLoansForReader(ctx, actor, input.Reader)
	if err != nil {
		return nil, err
	}
	return &LoansOutput{Body: loanResponses(loans)}, nil
}

func (s *Server) handleCheckout(ctx context.Context, input *LoanInput) (*LoanOutput, error) {
	actor, err := s.actor(ctx, access.OpCheckout)
	if err != nil {
		return nil, err
	}
	loan, err := s.services.Ledger.Checkout(ctx, actor, service.LoanRequest{
		Reader: input.Body.Reader,
		BookID: input.Body.BookID,
	})
	if err != nil {
		return nil, err
	}
	return &LoanOutput{Body: loanResponse(loan)}, nil
}

func (s *Server) handleReturnBook(ctx context.Context, input *LoanInput) (*LoanOutput, error) {
	actor, err := s.actor(ctx, access.OpReturnBook)
	if err != nil {
		return nil, err
	}
	loan, err := s.services.Ledger.ReturnBook(ctx, actor, service.LoanRequest{
		Reader: input.Body.Reader,
		BookID: input.Body.BookID,
	})
	if err != nil {
		return nil, err
	}
	return &LoanOutput{Body: loanResponse(loan)}, nil
}
