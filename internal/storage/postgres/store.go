// Package postgres is the shared ledger store. Payment changes are pushed by a
// database trigger and delivered through Feed.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

var _ ledger.Store = (*Store)(nil)

// uniqueViolation is the SQLSTATE for a unique_violation.
const uniqueViolation = "23505"

// Open creates a connection pool for databaseURL and checks it with a ping.
// It does not run migrations; call Migrate first.
func Open(ctx context.Context, databaseURL string, maxConns int) (*Store, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = int32(maxConns)
	}
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.InfoContext(ctx, "Connected to postgres", "database", config.ConnConfig.Database, "max_conns", config.MaxConns)
	return &Store{pool: pool, now: time.Now}, nil
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

const profileColumns = `id, user_id, full_name, email, role, student_id, department, semester, phone`

func scanProfile(row pgx.CollectableRow) (core.Profile, error) {
	var (
		p    core.Profile
		role string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.FullName, &p.Email, &role, &p.StudentID, &p.Department, &p.Semester, &p.Phone)
	p.Role = core.Role(role)
	return p, err
}

func (s *Store) ListProfiles(ctx context.Context) ([]core.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	profiles, err := pgx.CollectRows(rows, scanProfile)
	if err != nil {
		return nil, fmt.Errorf("failed to scan profiles: %w", err)
	}
	return profiles, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (core.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`, userID)
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to get profile: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanProfile)
	if err != nil {
		return core.Profile{}, notFound(err, "profile", userID)
	}
	return p, nil
}

func (s *Store) CreateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.FullName, p.Email, string(p.Role), p.StudentID, p.Department, p.Semester, p.Phone)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return core.Profile{}, fmt.Errorf("profile for user %s: %w", p.UserID, ledger.ErrConflict)
		}
		return core.Profile{}, fmt.Errorf("failed to create profile: %w", err)
	}
	slog.InfoContext(ctx, "Profile saved to postgres", "user_id", p.UserID, "role", p.Role)
	return p, nil
}

func (s *Store) UpdateProfile(ctx context.Context, p core.Profile) (core.Profile, error) {
	if err := p.Validate(); err != nil {
		return core.Profile{}, err
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE profiles
		SET full_name = $2, student_id = $3, department = $4, semester = $5, phone = $6
		WHERE user_id = $1
		RETURNING `+profileColumns,
		p.UserID, p.FullName, p.StudentID, p.Department, p.Semester, p.Phone)
	if err != nil {
		return core.Profile{}, fmt.Errorf("failed to update profile: %w", err)
	}
	updated, err := pgx.CollectExactlyOneRow(rows, scanProfile)
	if err != nil {
		return core.Profile{}, notFound(err, "profile", p.UserID)
	}
	slog.InfoContext(ctx, "Profile updated in postgres", "user_id", p.UserID)
	return updated, nil
}

const feeColumns = `id, user_id, fee_type, amount, due_date, academic_year, semester,
	tuition_fee, library_fee, lab_fee, other_charges, status`

func scanFee(row pgx.CollectableRow) (core.Fee, error) {
	var (
		f      core.Fee
		status string
	)
	err := row.Scan(
		&f.ID, &f.UserID, &f.FeeType, &f.Amount.Cents, &f.DueDate, &f.AcademicYear, &f.Semester,
		&f.Breakdown.Tuition.Cents, &f.Breakdown.Library.Cents, &f.Breakdown.Lab.Cents, &f.Breakdown.Other.Cents,
		&status,
	)
	f.Status = core.FeeStatus(status)
	f.DueDate = core.DateOnly(f.DueDate)
	return f, err
}

func (s *Store) ListFees(ctx context.Context, q ledger.FeeQuery) ([]core.Fee, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+feeColumns+`
		FROM fees
		WHERE ($1 = '' OR user_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY due_date ASC, id ASC`,
		q.UserID, string(q.Status))
	if err != nil {
		return nil, fmt.Errorf("failed to list fees: %w", err)
	}
	fees, err := pgx.CollectRows(rows, scanFee)
	if err != nil {
		return nil, fmt.Errorf("failed to scan fees: %w", err)
	}
	return fees, nil
}

func (s *Store) GetFee(ctx context.Context, id string) (core.Fee, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+feeColumns+` FROM fees WHERE id = $1`, id)
	if err != nil {
		return core.Fee{}, fmt.Errorf("failed to get fee: %w", err)
	}
	f, err := pgx.CollectExactlyOneRow(rows, scanFee)
	if err != nil {
		return core.Fee{}, notFound(err, "fee", id)
	}
	return f, nil
}

func (s *Store) CreateFee(ctx context.Context, f core.Fee) (core.Fee, error) {
	if err := f.Validate(); err != nil {
		return core.Fee{}, err
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.DueDate = core.DateOnly(f.DueDate)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fees (`+feeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		f.ID, f.UserID, f.FeeType, f.Amount.Cents, f.DueDate, f.AcademicYear, f.Semester,
		f.Breakdown.Tuition.Cents, f.Breakdown.Library.Cents, f.Breakdown.Lab.Cents, f.Breakdown.Other.Cents,
		string(f.Status))
	if err != nil {
		return core.Fee{}, fmt.Errorf("failed to create fee: %w", err)
	}
	slog.InfoContext(ctx, "Fee saved to postgres",
		"id", f.ID,
		"user_id", f.UserID,
		"fee_type", f.FeeType,
		"amount_cents", f.Amount.Cents)
	return f, nil
}

func (s *Store) MarkFeePaid(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE fees SET status = 'paid' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to mark fee paid: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fee %s: %w", id, ledger.ErrNotFound)
	}
	return nil
}

const paymentColumns = `id, user_id, fee_id, amount, payment_method, transaction_id,
	receipt_number, status, paid_at`

func scanPayment(row pgx.CollectableRow) (core.Payment, error) {
	var (
		p      core.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.UserID, &p.FeeID, &p.Amount.Cents, &p.Method, &p.TransactionID,
		&p.ReceiptNumber, &status, &p.PaidAt)
	p.Status = core.PaymentStatus(status)
	return p, err
}

func (s *Store) ListPayments(ctx context.Context, q ledger.PaymentQuery) ([]core.Payment, error) {
	// NULL disables the limit.
	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE ($1 = '' OR user_id = $1)
		ORDER BY paid_at DESC, id DESC
		LIMIT $2`,
		q.UserID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	payments, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, fmt.Errorf("failed to scan payments: %w", err)
	}
	return payments, nil
}

func (s *Store) GetPayment(ctx context.Context, id string) (core.Payment, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = $1`, id)
	if err != nil {
		return core.Payment{}, fmt.Errorf("failed to get payment: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		return core.Payment{}, notFound(err, "payment", id)
	}
	return p, nil
}

func (s *Store) GetPaymentByReceipt(ctx context.Context, receiptNumber string) (core.Payment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE receipt_number = $1
		ORDER BY paid_at ASC, id ASC
		LIMIT 1`, receiptNumber)
	if err != nil {
		return core.Payment{}, fmt.Errorf("failed to get payment by receipt: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		return core.Payment{}, notFound(err, "receipt", receiptNumber)
	}
	return p, nil
}

// CreatePayment inserts p. The payments trigger announces the insert on the
// change channel.
func (s *Store) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if err := p.Validate(); err != nil {
		return core.Payment{}, err
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.PaidAt.IsZero() {
		p.PaidAt = s.now()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.UserID, p.FeeID, p.Amount.Cents, p.Method, p.TransactionID,
		p.ReceiptNumber, string(p.Status), p.PaidAt)
	if err != nil {
		return core.Payment{}, fmt.Errorf("failed to create payment: %w", err)
	}
	slog.InfoContext(ctx, "Payment saved to postgres",
		"id", p.ID,
		"fee_id", p.FeeID,
		"receipt_number", p.ReceiptNumber,
		"amount_cents", p.Amount.Cents)
	return p, nil
}

func notFound(err error, kind, key string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, key, ledger.ErrNotFound)
	}
	return fmt.Errorf("failed to get %s %s: %w", kind, key, err)
}
