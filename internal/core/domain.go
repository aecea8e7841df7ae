package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	RoleStudent Role = "student"
	RoleAdmin   Role = "admin"

	FeePending FeeStatus = "pending"
	FeePaid    FeeStatus = "paid"

	PaymentCompleted PaymentStatus = "completed"

	StatusPending EffectiveStatus = "pending"
	StatusPaid    EffectiveStatus = "paid"
	StatusOverdue EffectiveStatus = "overdue"
)

type (
	Role            string
	FeeStatus       string
	PaymentStatus   string
	EffectiveStatus string

	// Profile is a person known to the system. Student fields are optional;
	// the zero value means absent.
	Profile struct {
		ID         string
		UserID     string
		FullName   string
		Email      string
		Role       Role
		StudentID  string
		Department string
		Semester   int
		Phone      string
	}

	// Breakdown splits a fee amount into its parts.
	Breakdown struct {
		Tuition Money
		Library Money
		Lab     Money
		Other   Money
	}

	// Fee is an amount a student owes. Overdue is never stored, see EffectiveStatusOf.
	Fee struct {
		ID           string
		UserID       string
		FeeType      string
		Amount       Money
		DueDate      time.Time
		AcademicYear string
		Semester     int
		Breakdown    Breakdown
		Status       FeeStatus
	}

	// Payment is an immutable record of a settled fee.
	Payment struct {
		ID            string
		UserID        string
		FeeID         string
		Amount        Money
		Method        string
		TransactionID string
		ReceiptNumber string
		PaidAt        time.Time
		Status        PaymentStatus
	}

	// Session identifies the caller of a service operation.
	Session struct {
		UserID string
		Role   Role
	}
)

var (
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrBreakdownMismatch  = errors.New("breakdown does not sum to fee amount")
	ErrEmptyOwner         = errors.New("empty owner")
	ErrEmptyFeeType       = errors.New("empty fee type")
	ErrEmptyFeeReference  = errors.New("empty fee reference")
	ErrMissingDueDate     = errors.New("missing due date")
	ErrInvalidStatus      = errors.New("invalid status")
	ErrInvalidRole        = errors.New("invalid role")
	ErrMissingIdentifiers = errors.New("missing transaction id or receipt number")
)

func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleAdmin
}

func (s FeeStatus) Valid() bool {
	return s == FeePending || s == FeePaid
}

// IsAdmin reports whether the session carries the admin role.
func (s Session) IsAdmin() bool {
	return s.Role == RoleAdmin
}

// Total returns the sum of all breakdown parts.
func (b Breakdown) Total() Money {
	return b.Tuition.Add(b.Library).Add(b.Lab).Add(b.Other)
}

func (b Breakdown) Validate() error {
	for _, part := range []Money{b.Tuition, b.Library, b.Lab, b.Other} {
		if err := part.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks a fee before it is created. The breakdown must sum to the amount.
func (f Fee) Validate() error {
	if strings.TrimSpace(f.UserID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(f.FeeType) == "" {
		return ErrEmptyFeeType
	}
	if len(f.FeeType) > 100 {
		return errors.New("fee type too long (max 100 characters)")
	}
	if err := f.Amount.Validate(); err != nil {
		return err
	}
	if f.DueDate.IsZero() {
		return ErrMissingDueDate
	}
	if f.Semester < 0 {
		return fmt.Errorf("invalid semester %d", f.Semester)
	}
	if !f.Status.Valid() {
		return ErrInvalidStatus
	}
	if err := f.Breakdown.Validate(); err != nil {
		return err
	}
	if f.Breakdown.Total() != f.Amount {
		return fmt.Errorf("%w: parts %s, amount %s", ErrBreakdownMismatch, f.Breakdown.Total(), f.Amount)
	}
	return nil
}

// Validate checks that a payment carries an amount, an owner, a fee
// reference and both identifiers.
func (p Payment) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyOwner
	}
	if strings.TrimSpace(p.FeeID) == "" {
		return ErrEmptyFeeReference
	}
	if err := p.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(p.TransactionID) == "" || strings.TrimSpace(p.ReceiptNumber) == "" {
		return ErrMissingIdentifiers
	}
	if p.Status != PaymentCompleted {
		return ErrInvalidStatus
	}
	return nil
}

// Validate checks the fields every profile needs.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.UserID) == "" {
		return ErrEmptyOwner
	}
	if !p.Role.Valid() {
		return ErrInvalidRole
	}
	if p.Semester < 0 {
		return fmt.Errorf("invalid semester %d", p.Semester)
	}
	return nil
}

// DateOnly truncates t to midnight UTC of its calendar day.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDate creates a UTC date from year, month, day.
func NewDate(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
