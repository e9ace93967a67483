package game

import (
	"context"
	"errors"
	"log/slog"

	"github.com/talgya/tycoon/internal/economy"
)

// ApplyLoan issues a loan of amount for days and credits the principal.
// The cap for the loan type is the only gate.
func (s *Service) ApplyLoan(ctx context.Context, agentID string, t economy.LoanType, amount int64, days int) (*economy.Loan, error) {
	if !t.Valid() {
		return nil, invalid("unknown loan type %q", t)
	}
	if amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	terms := s.Catalog.Loans[t]
	l, err := economy.NewLoan(s.NewID(), agentID, t, terms, amount, days, s.Clock(), s.Game.DayLength())
	if errors.Is(err, economy.ErrLoanAmount) {
		return nil, &Error{Code: CodeInsufficientResource, Message: err.Error(), Err: err}
	}
	if err != nil {
		return nil, &Error{Code: CodeValidation, Message: err.Error(), Err: err}
	}
	if err := s.DB.CreateLoan(ctx, l); err != nil {
		return nil, translate(err, "agent "+agentID)
	}
	slog.Info("loan issued", "agent", agentID, "loan", l.ID, "type", t, "amount", amount, "days", days, "total_due", l.TotalDue)
	return l, nil
}

// RepayLoan pays amount towards a loan. Paying off the loan raises the
// agent's credit tier.
func (s *Service) RepayLoan(ctx context.Context, agentID, loanID string, amount int64) (*economy.Loan, error) {
	if amount <= 0 {
		return nil, invalid("amount must be positive")
	}
	l, err := s.DB.RepayLoan(ctx, loanID, agentID, amount)
	switch {
	case errors.Is(err, economy.ErrLoanClosed):
		return nil, &Error{Code: CodeConflict, Message: "loan is not active", Err: err}
	case errors.Is(err, economy.ErrOverpayment):
		return nil, &Error{Code: CodeConflict, Message: "payment exceeds the remaining balance", Err: err}
	case err != nil:
		return nil, translate(err, "loan "+loanID)
	}
	if l.Status == economy.LoanRepaid {
		slog.Info("loan repaid", "agent", agentID, "loan", loanID)
	}
	return l, nil
}

// CreditStatus is an agent's credit position.
type CreditStatus struct {
	Tier        economy.Tier                           `json:"tier"`
	MaxAmount   int64                                  `json:"max_amount"`
	Outstanding int64                                  `json:"outstanding"`
	Active      []*economy.Loan                        `json:"active_loans"`
	Terms       map[economy.LoanType]economy.LoanTerms `json:"terms"`
}

// LoanStatus returns the agent's active loans and borrowing ceiling.
func (s *Service) LoanStatus(ctx context.Context, agentID string) (*CreditStatus, error) {
	a, err := s.DB.GetAgent(ctx, agentID)
	if err != nil {
		return nil, translate(err, "agent "+agentID)
	}
	loans, err := s.DB.LoansByAgent(ctx, agentID)
	if err != nil {
		return nil, translate(err, "loans")
	}
	st := &CreditStatus{
		Tier:      a.Tier,
		MaxAmount: a.Tier.MaxLoan(),
		Active:    []*economy.Loan{},
		Terms:     s.Catalog.Loans,
	}
	for _, l := range loans {
		if l.Status != economy.LoanActive {
			continue
		}
		st.Active = append(st.Active, l)
		st.Outstanding += l.Remaining()
	}
	return st, nil
}
