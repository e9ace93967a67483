package economy

import (
	"errors"
	"testing"
	"time"
)

const day = 10 * time.Minute

func shortLoan(t *testing.T, amount int64, days int) *Loan {
	t.Helper()
	cat := DefaultCatalog()
	l, err := NewLoan("l1", "a1", LoanShort, cat.Loans[LoanShort], amount, days, epoch, day)
	if err != nil {
		t.Fatalf("NewLoan: %v", err)
	}
	return l
}

func TestNewLoanPricing(t *testing.T) {
	l := shortLoan(t, 1000, 7)
	// ceil(1000 × 0.005) = 5 per day
	if l.DailyInterest != 5 || l.TotalDue != 1035 {
		t.Fatalf("daily=%d total=%d, want 5/1035", l.DailyInterest, l.TotalDue)
	}
	if l.DueAt != epoch.Add(7*day).UnixMilli() {
		t.Fatalf("due date not seven simulated days out")
	}

	odd := shortLoan(t, 333, 3)
	// 333 × 0.005 = 1.665 → 2
	if odd.DailyInterest != 2 || odd.TotalDue != 339 {
		t.Fatalf("daily=%d total=%d, want 2/339", odd.DailyInterest, odd.TotalDue)
	}
}

func TestNewLoanRejectsOutOfRange(t *testing.T) {
	terms := DefaultCatalog().Loans[LoanEmergency]
	if _, err := NewLoan("l", "a", LoanEmergency, terms, 2001, 1, epoch, day); !errors.Is(err, ErrLoanAmount) {
		t.Fatalf("expected ErrLoanAmount, got %v", err)
	}
	if _, err := NewLoan("l", "a", LoanEmergency, terms, 0, 1, epoch, day); !errors.Is(err, ErrLoanAmount) {
		t.Fatalf("expected ErrLoanAmount for zero, got %v", err)
	}
	if _, err := NewLoan("l", "a", LoanEmergency, terms, 100, 4, epoch, day); !errors.Is(err, ErrLoanDuration) {
		t.Fatalf("expected ErrLoanDuration, got %v", err)
	}
}

func TestRepayInFull(t *testing.T) {
	l := shortLoan(t, 1000, 7)
	if err := l.Repay(l.TotalDue); err != nil {
		t.Fatalf("repay: %v", err)
	}
	if l.Status != LoanRepaid || l.Remaining() != 0 {
		t.Fatalf("status=%s remaining=%d", l.Status, l.Remaining())
	}
	if err := l.Repay(1); !errors.Is(err, ErrLoanClosed) {
		t.Fatalf("expected ErrLoanClosed, got %v", err)
	}
}

func TestRepayRejectsOverpayment(t *testing.T) {
	l := shortLoan(t, 1000, 7)
	if err := l.Repay(l.TotalDue + 1); !errors.Is(err, ErrOverpayment) {
		t.Fatalf("expected ErrOverpayment, got %v", err)
	}
	if l.Repaid != 0 {
		t.Fatalf("rejected repayment mutated loan")
	}
}

func TestAccrueInterestClampsAtTotal(t *testing.T) {
	l := shortLoan(t, 1000, 7)
	if err := l.Repay(1030); err != nil {
		t.Fatalf("repay: %v", err)
	}
	added := l.AccrueInterest(3)
	if added != 5 || l.Repaid != l.TotalDue || l.Status != LoanRepaid {
		t.Fatalf("added=%d repaid=%d status=%s", added, l.Repaid, l.Status)
	}
	if got := l.AccrueInterest(1); got != 0 || l.Repaid != l.TotalDue {
		t.Fatalf("terminal loan accrued %d", got)
	}
}

func TestOverdue(t *testing.T) {
	l := shortLoan(t, 500, 2)
	if l.Overdue(epoch.Add(2 * day)) {
		t.Fatalf("loan overdue exactly at due date")
	}
	if !l.Overdue(epoch.Add(2*day + time.Millisecond)) {
		t.Fatalf("loan should be overdue after due date")
	}
	l.Status = LoanDefaulted
	if l.Overdue(epoch.Add(10 * day)) {
		t.Fatalf("defaulted loan reported overdue again")
	}
}

func TestTierSteps(t *testing.T) {
	if TierB.Upgrade() != TierA || TierB.Downgrade() != TierC {
		t.Fatalf("tier does not move one step")
	}
	if TierS.Upgrade() != TierS || TierD.Downgrade() != TierD {
		t.Fatalf("tier does not saturate")
	}
	if TierS.MaxLoan() != 50000 || TierD.MaxLoan() != 0 {
		t.Fatalf("unexpected tier limits")
	}
}
