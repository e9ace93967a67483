package economy

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tier is a creditworthiness rating, S best and D worst.
type Tier string

const (
	TierS Tier = "S"
	TierA Tier = "A"
	TierB Tier = "B"
	TierC Tier = "C"
	TierD Tier = "D"
)

var tiers = []Tier{TierS, TierA, TierB, TierC, TierD}

func (t Tier) index() int {
	for i, x := range tiers {
		if x == t {
			return i
		}
	}
	return len(tiers) - 1
}

// Upgrade moves one step towards S.
func (t Tier) Upgrade() Tier {
	return tiers[Clamp(t.index()-1, 0, len(tiers)-1)]
}

// Downgrade moves one step towards D.
func (t Tier) Downgrade() Tier {
	return tiers[Clamp(t.index()+1, 0, len(tiers)-1)]
}

// Valid reports whether t is a known rating.
func (t Tier) Valid() bool {
	for _, x := range tiers {
		if x == t {
			return true
		}
	}
	return false
}

// MaxLoan is the borrowing ceiling reported for the tier.
// Applications are capped by loan type, not by this figure.
func (t Tier) MaxLoan() int64 {
	switch t {
	case TierS:
		return 50000
	case TierA:
		return 20000
	case TierB:
		return 10000
	case TierC:
		return 5000
	}
	return 0
}

// LoanType selects a row of the loan terms table.
type LoanType string

const (
	LoanShort     LoanType = "short"
	LoanMedium    LoanType = "medium"
	LoanLong      LoanType = "long"
	LoanEmergency LoanType = "emergency"
)

// LoanTypes lists every loan type.
var LoanTypes = []LoanType{LoanShort, LoanMedium, LoanLong, LoanEmergency}

// Valid reports whether t is a known loan type.
func (t LoanType) Valid() bool {
	for _, x := range LoanTypes {
		if x == t {
			return true
		}
	}
	return false
}

// LoanTerms is the cap, rate and longest duration for one loan type.
type LoanTerms struct {
	MaxAmount int64   `yaml:"max_amount" json:"max_amount"`
	DailyRate float64 `yaml:"daily_rate" json:"daily_rate"`
	MaxDays   int     `yaml:"max_days" json:"max_days"`
}

// LoanStatus moves active → repaid or active → defaulted, never back.
type LoanStatus string

const (
	LoanActive    LoanStatus = "active"
	LoanRepaid    LoanStatus = "repaid"
	LoanDefaulted LoanStatus = "defaulted"
)

var (
	ErrLoanAmount   = errors.New("loan amount exceeds the cap for its type")
	ErrLoanDuration = errors.New("loan duration out of range")
	ErrLoanClosed   = errors.New("loan is not active")
	ErrOverpayment  = errors.New("repayment exceeds the remaining balance")
)

// Loan is a credit line with a fixed repayment target.
type Loan struct {
	ID            string     `db:"id" json:"id"`
	AgentID       string     `db:"agent_id" json:"agent_id"`
	Type          LoanType   `db:"type" json:"type"`
	Principal     int64      `db:"principal" json:"principal"`
	DurationDays  int        `db:"duration_days" json:"duration_days"`
	DailyInterest int64      `db:"daily_interest" json:"daily_interest"`
	TotalDue      int64      `db:"total_due" json:"total_due"`
	Repaid        int64      `db:"repaid" json:"repaid"`
	Status        LoanStatus `db:"status" json:"status"`
	DueAt         int64      `db:"due_at" json:"due_at"`
	CreatedAt     int64      `db:"created_at" json:"created_at"`
}

// DailyInterestFor is ceil(amount × rate) in exact decimal arithmetic.
func DailyInterestFor(amount int64, rate float64) int64 {
	return decimal.NewFromInt(amount).Mul(decimal.NewFromFloat(rate)).Ceil().IntPart()
}

// NewLoan prices a loan. dayLength is the wall-clock length of one
// simulated day and sets the due date.
func NewLoan(id, agentID string, t LoanType, terms LoanTerms, amount int64, days int, now time.Time, dayLength time.Duration) (*Loan, error) {
	if amount <= 0 || amount > terms.MaxAmount {
		return nil, fmt.Errorf("%w: %d > %d", ErrLoanAmount, amount, terms.MaxAmount)
	}
	if days <= 0 || days > terms.MaxDays {
		return nil, fmt.Errorf("%w: %d days (max %d)", ErrLoanDuration, days, terms.MaxDays)
	}
	daily := DailyInterestFor(amount, terms.DailyRate)
	return &Loan{
		ID:            id,
		AgentID:       agentID,
		Type:          t,
		Principal:     amount,
		DurationDays:  days,
		DailyInterest: daily,
		TotalDue:      amount + int64(days)*daily,
		Status:        LoanActive,
		DueAt:         now.Add(time.Duration(days) * dayLength).UnixMilli(),
		CreatedAt:     now.UnixMilli(),
	}, nil
}

// Remaining is what is left before the loan is repaid.
func (l *Loan) Remaining() int64 {
	return l.TotalDue - l.Repaid
}

// InterestFor is ceil(dailyInterest × days).
func InterestFor(dailyInterest int64, days int) int64 {
	return decimal.NewFromInt(dailyInterest).Mul(decimal.NewFromInt(int64(days))).Ceil().IntPart()
}

// AccrueInterest credits interest against the repayment target, clamped
// at the total. It returns the amount actually added.
func (l *Loan) AccrueInterest(days int) int64 {
	if l.Status != LoanActive {
		return 0
	}
	add := Clamp(InterestFor(l.DailyInterest, days), 0, l.Remaining())
	l.Repaid += add
	if l.Repaid >= l.TotalDue {
		l.Status = LoanRepaid
	}
	return add
}

// Repay applies a payment. Reaching the total closes the loan.
func (l *Loan) Repay(amount int64) error {
	if l.Status != LoanActive {
		return ErrLoanClosed
	}
	if amount <= 0 || amount > l.Remaining() {
		return ErrOverpayment
	}
	l.Repaid += amount
	if l.Repaid >= l.TotalDue {
		l.Status = LoanRepaid
	}
	return nil
}

// Overdue reports an active loan past its due date.
func (l *Loan) Overdue(now time.Time) bool {
	return l.Status == LoanActive && now.UnixMilli() > l.DueAt
}
