package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

// StudentInput is the admin form for registering a student.
type StudentInput struct {
	UserID     string `json:"user_id" validate:"omitempty,max=64"`
	Email      string `json:"email" validate:"required,email,max=254"`
	FullName   string `json:"full_name" validate:"notblank,max=120"`
	StudentID  string `json:"student_id" validate:"omitempty,max=32"`
	Department string `json:"department" validate:"omitempty,max=120"`
	Semester   int    `json:"semester" validate:"omitempty,min=1,max=12"`
	Phone      string `json:"phone" validate:"omitempty,max=20"`
}

// FeeInput is the admin form for assigning a fee. Amounts are decimal
// strings; when every breakdown part is blank the whole amount is tuition.
type FeeInput struct {
	UserID       string `json:"user_id" validate:"notblank"`
	FeeType      string `json:"fee_type" validate:"notblank,max=100"`
	Amount       string `json:"amount" validate:"required"`
	DueDate      string `json:"due_date" validate:"required,datetime=2006-01-02"`
	AcademicYear string `json:"academic_year" validate:"omitempty,max=16"`
	Semester     int    `json:"semester" validate:"omitempty,min=1,max=12"`
	Tuition      string `json:"tuition_fee"`
	Library      string `json:"library_fee"`
	Lab          string `json:"lab_fee"`
	Other        string `json:"other_charges"`
}

// RosterService is the admin surface over student profiles and their fees.
type RosterService struct {
	store    ledger.Store
	validate *validator.Validate
	trans    ut.Translator
}

func NewRosterService(store ledger.Store) *RosterService {
	v, trans := newValidator()
	return &RosterService{store: store, validate: v, trans: trans}
}

// ListStudents returns every student with total due and total paid.
func (s *RosterService) ListStudents(ctx context.Context, session core.Session) ([]core.RosterEntry, error) {
	if !session.IsAdmin() {
		return nil, ErrForbidden
	}
	var (
		profiles []core.Profile
		fees     []core.Fee
		payments []core.Payment
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		profiles, err = s.store.ListProfiles(gctx)
		return err
	})
	g.Go(func() (err error) {
		fees, err = s.store.ListFees(gctx, ledger.FeeQuery{Status: core.FeePending})
		return err
	})
	g.Go(func() (err error) {
		payments, err = s.store.ListPayments(gctx, ledger.PaymentQuery{})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load roster: %w", err)
	}
	return core.ComputeRoster(profiles, fees, payments), nil
}

// RegisterStudent creates a student profile. A blank UserID gets a new UUID.
func (s *RosterService) RegisterStudent(ctx context.Context, session core.Session, in StudentInput) (core.Profile, error) {
	if !session.IsAdmin() {
		return core.Profile{}, ErrForbidden
	}
	in = in.normalized()
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return core.Profile{}, invalidInput(err, s.trans)
	}

	userID := in.UserID
	if userID == "" {
		userID = uuid.NewString()
	}
	p, err := s.store.CreateProfile(ctx, core.Profile{
		UserID:     userID,
		FullName:   in.FullName,
		Email:      in.Email,
		Role:       core.RoleStudent,
		StudentID:  in.StudentID,
		Department: in.Department,
		Semester:   in.Semester,
		Phone:      in.Phone,
	})
	if err != nil {
		return core.Profile{}, fmt.Errorf("create student: %w", err)
	}
	slog.InfoContext(ctx, "Student registered", "user_id", p.UserID, "by", session.UserID)
	return p, nil
}

// AssignFee creates a pending fee for an existing profile. The breakdown
// must add up to the amount.
func (s *RosterService) AssignFee(ctx context.Context, session core.Session, in FeeInput) (core.Fee, error) {
	if !session.IsAdmin() {
		return core.Fee{}, ErrForbidden
	}
	in = in.normalized()
	if err := s.validate.StructCtx(ctx, in); err != nil {
		return core.Fee{}, invalidInput(err, s.trans)
	}

	fee, err := in.toFee()
	if err != nil {
		return core.Fee{}, invalidInput(err, s.trans)
	}
	if err := fee.Validate(); err != nil {
		return core.Fee{}, invalidInput(err, s.trans)
	}
	if _, err := s.store.GetProfile(ctx, fee.UserID); err != nil {
		return core.Fee{}, fmt.Errorf("assign fee to %s: %w", fee.UserID, err)
	}

	created, err := s.store.CreateFee(ctx, fee)
	if err != nil {
		return core.Fee{}, fmt.Errorf("create fee: %w", err)
	}
	slog.InfoContext(ctx, "Fee assigned",
		"fee_id", created.ID, "user_id", created.UserID, "amount", created.Amount.String(), "due", created.DueDate.Format(time.DateOnly))
	return created, nil
}

// normalized trims every text field and lowercases the email.
func (in StudentInput) normalized() StudentInput {
	in.UserID = strings.TrimSpace(in.UserID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FullName = strings.TrimSpace(in.FullName)
	in.StudentID = strings.TrimSpace(in.StudentID)
	in.Department = strings.TrimSpace(in.Department)
	in.Phone = strings.TrimSpace(in.Phone)
	return in
}

func (in FeeInput) normalized() FeeInput {
	for _, f := range []*string{
		&in.UserID, &in.FeeType, &in.Amount, &in.DueDate, &in.AcademicYear,
		&in.Tuition, &in.Library, &in.Lab, &in.Other,
	} {
		*f = strings.TrimSpace(*f)
	}
	return in
}

func (in FeeInput) toFee() (core.Fee, error) {
	amount, err := core.ParseMoney(in.Amount)
	if err != nil {
		return core.Fee{}, fmt.Errorf("amount: %w", err)
	}
	due, err := time.Parse(time.DateOnly, in.DueDate)
	if err != nil {
		return core.Fee{}, fmt.Errorf("due_date: %w", err)
	}

	var b core.Breakdown
	parts := []struct {
		name string
		raw  string
		dst  *core.Money
	}{
		{"tuition_fee", in.Tuition, &b.Tuition},
		{"library_fee", in.Library, &b.Library},
		{"lab_fee", in.Lab, &b.Lab},
		{"other_charges", in.Other, &b.Other},
	}
	blank := true
	for _, p := range parts {
		if p.raw == "" {
			continue
		}
		blank = false
		m, err := core.ParseMoney(p.raw)
		if err != nil {
			return core.Fee{}, fmt.Errorf("%s: %w", p.name, err)
		}
		*p.dst = m
	}
	if blank {
		b.Tuition = amount
	}

	return core.Fee{
		UserID:       in.UserID,
		FeeType:      in.FeeType,
		Amount:       amount,
		DueDate:      due,
		AcademicYear: in.AcademicYear,
		Semester:     in.Semester,
		Breakdown:    b,
		Status:       core.FeePending,
	}, nil
}
