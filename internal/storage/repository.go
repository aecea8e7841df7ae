// Package storage persists the fee ledger in SQLite.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"feedesk/internal/core"
	"feedesk/internal/ledger"

	_ "modernc.org/sqlite"
)

const (
	dateLayout = "2006-01-02"
	// Fixed width keeps lexicographic order equal to chronological order.
	timestampLayout = "2006-01-02T15:04:05.000000000Z"
)

type SQLiteRepository struct {
	db      *sql.DB
	queries *Queries
	now     func() time.Time
}

var _ ledger.Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{
		db:      db,
		queries: New(db),
		now:     time.Now,
	}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) ListProfiles(ctx context.Context) ([]core.Profile, error) {
	rows, err := r.queries.ListProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	profiles := make([]core.Profile, len(rows))
	for i, row := range rows {
		profiles[i] = profileFromRow(row)
	}
	return profiles, nil
}

func (r *SQLiteRepository) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	row, err := r.queries.GetProfileByUserID(ctx, userID)
	if err != nil {
		return core.Profile{}, notFound(err, "profile", userID)
	}
	return profileFromRow(row), nil
}

func (r *SQLiteRepository) CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	err := r.queries.CreateProfile(ctx, ProfileRow{
		ID:         p.ID,
		UserID:     p.UserID,
		FullName:   p.FullName,
		Email:      p.Email,
		Role:       string(p.Role),
		StudentID:  p.StudentID,
		Department: p.Department,
		Semester:   int64(p.Semester),
		Phone:      p.Phone,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Profile{}, fmt.Errorf("profile for user %s: %w", p.UserID, ledger.ErrConflict)
		}
		return core.Profile{}, fmt.Errorf("create profile: %w", err)
	}

	slog.InfoContext(ctx, "Profile saved to SQLite", "user_id", p.UserID, "role", p.Role)
	return p, nil
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	row, err := r.queries.UpdateProfile(ctx, UpdateProfileParams{
		UserID:     p.UserID,
		FullName:   p.FullName,
		StudentID:  p.StudentID,
		Department: p.Department,
		Semester:   int64(p.Semester),
		Phone:      p.Phone,
	})
	if errors.Is(err, sql.ErrNoRows) {
		return core.Profile{}, notFound(err, "profile", p.UserID)
	}
	if err != nil {
		return core.Profile{}, fmt.Errorf("update profile: %w", err)
	}

	slog.InfoContext(ctx, "Profile updated in SQLite", "user_id", row.UserID)
	return profileFromRow(row), nil
}

func (r *SQLiteRepository) ListFees(ctx context.Context, q ledger.FeeQuery) ([]core.Fee, error) {
	rows, err := r.queries.ListFees(ctx, ListFeesParams{UserID: q.UserID, Status: string(q.Status)})
	if err != nil {
		return nil, fmt.Errorf("list fees: %w", err)
	}
	fees := make([]core.Fee, 0, len(rows))
	for _, row := range rows {
		f, err := feeFromRow(row)
		if err != nil {
			return nil, err
		}
		fees = append(fees, f)
	}
	return fees, nil
}

func (r *SQLiteRepository) GetFee(ctx context.Context, id string) (core.Fee, error) {
	row, err := r.queries.GetFee(ctx, id)
	if err != nil {
		return core.Fee{}, notFound(err, "fee", id)
	}
	return feeFromRow(row)
}

func (r *SQLiteRepository) CreateFee(ctx context.Context, f core.Fee) (core.Fee, error) {
	if err := f.Validate(); err != nil {
		return core.Fee{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.DueDate = core.DateOnly(f.DueDate)
	err := r.queries.CreateFee(ctx, FeeRow{
		ID:           f.ID,
		UserID:       f.UserID,
		FeeType:      f.FeeType,
		Amount:       f.Amount.Cents,
		DueDate:      f.DueDate.Format(dateLayout),
		AcademicYear: f.AcademicYear,
		Semester:     int64(f.Semester),
		TuitionFee:   f.Breakdown.Tuition.Cents,
		LibraryFee:   f.Breakdown.Library.Cents,
		LabFee:       f.Breakdown.Lab.Cents,
		OtherCharges: f.Breakdown.Other.Cents,
		Status:       string(f.Status),
	})
	if err != nil {
		return core.Fee{}, fmt.Errorf("create fee: %w", err)
	}

	slog.InfoContext(ctx, "Fee saved to SQLite",
		"id", f.ID,
		"user_id", f.UserID,
		"fee_type", f.FeeType,
		"amount_cents", f.Amount.Cents,
		"due_date", f.DueDate.Format(dateLayout))
	return f, nil
}

func (r *SQLiteRepository) MarkFeePaid(ctx context.Context, id string) error {
	n, err := r.queries.MarkFeePaid(ctx, id)
	if err != nil {
		return fmt.Errorf("mark fee paid: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("fee %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

func (r *SQLiteRepository) ListPayments(ctx context.Context, q ledger.PaymentQuery) ([]core.Payment, error) {
	limit := int64(q.Limit)
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.queries.ListPayments(ctx, ListPaymentsParams{UserID: q.UserID, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	payments := make([]core.Payment, 0, len(rows))
	for _, row := range rows {
		p, err := paymentFromRow(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, nil
}

func (r *SQLiteRepository) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	row, err := r.queries.GetPayment(ctx, id)
	if err != nil {
		return core.Payment{}, notFound(err, "payment", id)
	}
	return paymentFromRow(row)
}

func (r *SQLiteRepository) GetPaymentByReceipt(ctx context.Context, receiptNumber string) (core.Payment, error) {
	row, err := r.queries.GetPaymentByReceipt(ctx, receiptNumber)
	if err != nil {
		return core.Payment{}, notFound(err, "receipt", receiptNumber)
	}
	return paymentFromRow(row)
}

func (r *SQLiteRepository) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = r.now()
	}
	p.PaidAt = p.PaidAt.UTC()
	err := r.queries.CreatePayment(ctx, PaymentRow{
		ID:            p.ID,
		UserID:        p.UserID,
		FeeID:         p.FeeID,
		Amount:        p.Amount.Cents,
		PaymentMethod: p.Method,
		TransactionID: p.TransactionID,
		ReceiptNumber: p.ReceiptNumber,
		Status:        string(p.Status),
		PaidAt:        p.PaidAt.Format(timestampLayout),
	})
	if err != nil {
		return core.Payment{}, fmt.Errorf("create payment: %w", err)
	}

	slog.InfoContext(ctx, "Payment saved to SQLite",
		"id", p.ID,
		"fee_id", p.FeeID,
		"receipt_number", p.ReceiptNumber,
		"amount_cents", p.Amount.Cents)
	return p, nil
}

func notFound(err error, kind, key string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, ledger.ErrNotFound)
	}
	return fmt.Errorf("get %s %s: %w", kind, key, err)
}

func profileFromRow(row ProfileRow) core.Profile {
	return core.Profile{
		ID:         row.ID,
		UserID:     row.UserID,
		FullName:   row.FullName,
		Email:      row.Email,
		Role:       core.Role(row.Role),
		StudentID:  row.StudentID,
		Department: row.Department,
		Semester:   int(row.Semester),
		Phone:      row.Phone,
	}
}

func feeFromRow(row FeeRow) (core.Fee, error) {
	due, err := time.Parse(dateLayout, row.DueDate)
	if err != nil {
		return core.Fee{}, fmt.Errorf("fee %s: parse due date %q: %w", row.ID, row.DueDate, err)
	}
	return core.Fee{
		ID:           row.ID,
		UserID:       row.UserID,
		FeeType:      row.FeeType,
		Amount:       core.Money{Cents: row.Amount},
		DueDate:      due,
		AcademicYear: row.AcademicYear,
		Semester:     int(row.Semester),
		Breakdown: core.Breakdown{
			Tuition: core.Money{Cents: row.TuitionFee},
			Library: core.Money{Cents: row.LibraryFee},
			Lab:     core.Money{Cents: row.LabFee},
			Other:   core.Money{Cents: row.OtherCharges},
		},
		Status: core.FeeStatus(row.Status),
	}, nil
}

func paymentFromRow(row PaymentRow) (core.Payment, error) {
	paidAt, err := time.Parse(timestampLayout, row.PaidAt)
	if err != nil {
		return core.Payment{}, fmt.Errorf("payment %s: parse paid_at %q: %w", row.ID, row.PaidAt, err)
	}
	return core.Payment{
		ID:            row.ID,
		UserID:        row.UserID,
		FeeID:         row.FeeID,
		Amount:        core.Money{Cents: row.Amount},
		Method:        row.PaymentMethod,
		TransactionID: row.TransactionID,
		ReceiptNumber: row.ReceiptNumber,
		PaidAt:        paidAt,
		Status:        core.PaymentStatus(row.Status),
	}, nil
}

// isUniqueViolation matches SQLite's constraint message; the driver exposes
// no typed code for it.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
