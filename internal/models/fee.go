package models

import (
	"math"
	"time"
)

// FeeStatus enumerates monthly fee states.
type FeeStatus string

const (
	FeeStatusPending FeeStatus = "PENDING"
	FeeStatusPaid    FeeStatus = "PAID"
	FeeStatusOverdue FeeStatus = "OVERDUE"
)

// FeeStructure is the monthly rate charged for a class.
type FeeStructure struct {
	ID            string    `db:"id" json:"id"`
	ClassID       string    `db:"class_id" json:"class_id"`
	MonthlyAmount float64   `db:"monthly_amount" json:"monthly_amount"`
	Currency      string    `db:"currency" json:"currency"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at" json:"updated_at"`
}

// FeeStructureDetail adds the class name for listings.
type FeeStructureDetail struct {
	FeeStructure
	ClassName string `db:"class_name" json:"class_name"`
	SessionID string `db:"session_id" json:"session_id"`
}

// MonthlyFee is one month of a student's schedule within a session.
type MonthlyFee struct {
	ID            string     `db:"id" json:"id"`
	StudentID     string     `db:"student_id" json:"student_id"`
	ClassID       string     `db:"class_id" json:"class_id"`
	SessionID     string     `db:"session_id" json:"session_id"`
	MonthIndex    int        `db:"month_index" json:"month_index"`
	MonthName     string     `db:"month_name" json:"month_name"`
	Year          int        `db:"year" json:"year"`
	Amount        float64    `db:"amount" json:"amount"`
	DueDate       time.Time  `db:"due_date" json:"due_date"`
	Status        FeeStatus  `db:"status" json:"status"`
	PaymentDate   *time.Time `db:"payment_date" json:"payment_date,omitempty"`
	ReceiptNumber *string    `db:"receipt_number" json:"receipt_number,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Outstanding reports whether the entry still awaits payment.
func (f MonthlyFee) Outstanding() bool {
	return f.Status != FeeStatusPaid
}

// EffectiveStatus reports OVERDUE for pending entries past their due date.
func (f MonthlyFee) EffectiveStatus(now time.Time) FeeStatus {
	if f.Status == FeeStatusPending && dateOnly(now).After(dateOnly(f.DueDate)) {
		return FeeStatusOverdue
	}
	return f.Status
}

// FeeCatalog is the derived view of a student's schedule for a session.
type FeeCatalog struct {
	StudentID    string       `json:"student_id"`
	SessionID    string       `json:"session_id"`
	ClassID      string       `json:"class_id,omitempty"`
	Fees         []MonthlyFee `json:"fees"`
	TotalAmount  float64      `json:"total_amount"`
	TotalPaid    float64      `json:"total_paid"`
	TotalPending float64      `json:"total_pending"`
	TotalOverdue float64      `json:"total_overdue"`
}

// Consistent reports whether every month appears once and the totals add up
// to the cent.
func (c FeeCatalog) Consistent() bool {
	if len(c.Fees) == 0 {
		return false
	}
	seen := make(map[int]struct{}, len(c.Fees))
	var sum int64
	for _, fee := range c.Fees {
		if _, dup := seen[fee.MonthIndex]; dup {
			return false
		}
		seen[fee.MonthIndex] = struct{}{}
		sum += MinorUnits(fee.Amount)
	}
	total := MinorUnits(c.TotalAmount)
	parts := MinorUnits(c.TotalPaid) + MinorUnits(c.TotalPending) + MinorUnits(c.TotalOverdue)
	return sum == total && parts == total
}

// OverallStatus folds the schedule into a single student-level fee status.
func (c FeeCatalog) OverallStatus() FeeStatus {
	if c.TotalOverdue > 0 {
		return FeeStatusOverdue
	}
	if c.TotalPending > 0 {
		return FeeStatusPending
	}
	return FeeStatusPaid
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MinorUnits converts a NUMERIC(12,2) amount to whole cents.
func MinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// FromMinorUnits converts cents back to the decimal amount exposed over JSON.
func FromMinorUnits(cents int64) float64 {
	return float64(cents) / 100
}

// HasSubCentPrecision reports whether amount carries more than two decimals.
func HasSubCentPrecision(amount float64) bool {
	return math.Abs(amount*100-math.Round(amount*100)) > 1e-6
}
