package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type ProfileRow struct {
	ID         string
	UserID     string
	FullName   string
	Email      string
	Role       string
	StudentID  string
	Department string
	Semester   int64
	Phone      string
}

type FeeRow struct {
	ID           string
	UserID       string
	FeeType      string
	Amount       int64
	DueDate      string
	AcademicYear string
	Semester     int64
	TuitionFee   int64
	LibraryFee   int64
	LabFee       int64
	OtherCharges int64
	Status       string
}

type PaymentRow struct {
	ID            string
	UserID        string
	FeeID         string
	Amount        int64
	PaymentMethod string
	TransactionID string
	ReceiptNumber string
	Status        string
	PaidAt        string
}

type scanner interface {
	Scan(dest ...interface{}) error
}

const profileColumns = `id, user_id, full_name, email, role, student_id, department, semester, phone`

func scanProfile(s scanner) (ProfileRow, error) {
	var i ProfileRow
	err := s.Scan(
		&i.ID,
		&i.UserID,
		&i.FullName,
		&i.Email,
		&i.Role,
		&i.StudentID,
		&i.Department,
		&i.Semester,
		&i.Phone,
	)
	return i, err
}

const listProfiles = `SELECT ` + profileColumns + ` FROM profiles ORDER BY created_at, id`

func (q *Queries) ListProfiles(ctx context.Context) ([]ProfileRow, error) {
	rows, err := q.db.QueryContext(ctx, listProfiles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []ProfileRow
	for rows.Next() {
		i, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getProfileByUserID = `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = ?1`

func (q *Queries) GetProfileByUserID(ctx context.Context, userID string) (ProfileRow, error) {
	return scanProfile(q.db.QueryRowContext(ctx, getProfileByUserID, userID))
}

const createProfile = `INSERT INTO profiles (` + profileColumns + `)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`

func (q *Queries) CreateProfile(ctx context.Context, arg ProfileRow) error {
	_, err := q.db.ExecContext(ctx, createProfile,
		arg.ID,
		arg.UserID,
		arg.FullName,
		arg.Email,
		arg.Role,
		arg.StudentID,
		arg.Department,
		arg.Semester,
		arg.Phone,
	)
	return err
}

const updateProfile = `UPDATE profiles
SET full_name = ?2, student_id = ?3, department = ?4, semester = ?5, phone = ?6
WHERE user_id = ?1
RETURNING ` + profileColumns

type UpdateProfileParams struct {
	UserID     string
	FullName   string
	StudentID  string
	Department string
	Semester   int64
	Phone      string
}

func (q *Queries) UpdateProfile(ctx context.Context, arg UpdateProfileParams) (ProfileRow, error) {
	return scanProfile(q.db.QueryRowContext(ctx, updateProfile,
		arg.UserID,
		arg.FullName,
		arg.StudentID,
		arg.Department,
		arg.Semester,
		arg.Phone,
	))
}

const feeColumns = `id, user_id, fee_type, amount, due_date, academic_year, semester,
       tuition_fee, library_fee, lab_fee, other_charges, status`

func scanFee(s scanner) (FeeRow, error) {
	var i FeeRow
	err := s.Scan(
		&i.ID,
		&i.UserID,
		&i.FeeType,
		&i.Amount,
		&i.DueDate,
		&i.AcademicYear,
		&i.Semester,
		&i.TuitionFee,
		&i.LibraryFee,
		&i.LabFee,
		&i.OtherCharges,
		&i.Status,
	)
	return i, err
}

const listFees = `SELECT ` + feeColumns + `
FROM fees
WHERE (?1 = '' OR user_id = ?1)
  AND (?2 = '' OR status = ?2)
ORDER BY due_date ASC, id ASC`

type ListFeesParams struct {
	UserID string
	Status string
}

func (q *Queries) ListFees(ctx context.Context, arg ListFeesParams) ([]FeeRow, error) {
	rows, err := q.db.QueryContext(ctx, listFees, arg.UserID, arg.Status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []FeeRow
	for rows.Next() {
		i, err := scanFee(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getFee = `SELECT ` + feeColumns + ` FROM fees WHERE id = ?1`

func (q *Queries) GetFee(ctx context.Context, id string) (FeeRow, error) {
	return scanFee(q.db.QueryRowContext(ctx, getFee, id))
}

const createFee = `INSERT INTO fees (` + feeColumns + `)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12)`

func (q *Queries) CreateFee(ctx context.Context, arg FeeRow) error {
	_, err := q.db.ExecContext(ctx, createFee,
		arg.ID,
		arg.UserID,
		arg.FeeType,
		arg.Amount,
		arg.DueDate,
		arg.AcademicYear,
		arg.Semester,
		arg.TuitionFee,
		arg.LibraryFee,
		arg.LabFee,
		arg.OtherCharges,
		arg.Status,
	)
	return err
}

const markFeePaid = `UPDATE fees SET status = 'paid' WHERE id = ?1`

func (q *Queries) MarkFeePaid(ctx context.Context, id string) (int64, error) {
	result, err := q.db.ExecContext(ctx, markFeePaid, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const paymentColumns = `id, user_id, fee_id, amount, payment_method, transaction_id,
       receipt_number, status, paid_at`

func scanPayment(s scanner) (PaymentRow, error) {
	var i PaymentRow
	err := s.Scan(
		&i.ID,
		&i.UserID,
		&i.FeeID,
		&i.Amount,
		&i.PaymentMethod,
		&i.TransactionID,
		&i.ReceiptNumber,
		&i.Status,
		&i.PaidAt,
	)
	return i, err
}

// A negative limit means no limit in SQLite.
const listPayments = `SELECT ` + paymentColumns + `
FROM payments
WHERE (?1 = '' OR user_id = ?1)
ORDER BY paid_at DESC, id DESC
LIMIT ?2`

type ListPaymentsParams struct {
	UserID string
	Limit  int64
}

func (q *Queries) ListPayments(ctx context.Context, arg ListPaymentsParams) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayments, arg.UserID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PaymentRow
	for rows.Next() {
		i, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const getPayment = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?1`

func (q *Queries) GetPayment(ctx context.Context, id string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getPayment, id))
}

const getPaymentByReceipt = `SELECT ` + paymentColumns + `
FROM payments
WHERE receipt_number = ?1
ORDER BY paid_at ASC, id ASC
LIMIT 1`

func (q *Queries) GetPaymentByReceipt(ctx context.Context, receiptNumber string) (PaymentRow, error) {
	return scanPayment(q.db.QueryRowContext(ctx, getPaymentByReceipt, receiptNumber))
}

const createPayment = `INSERT INTO payments (` + paymentColumns + `)
VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9)`

func (q *Queries) CreatePayment(ctx context.Context, arg PaymentRow) error {
	_, err := q.db.ExecContext(ctx, createPayment,
		arg.ID,
		arg.UserID,
		arg.FeeID,
		arg.Amount,
		arg.PaymentMethod,
		arg.TransactionID,
		arg.ReceiptNumber,
		arg.Status,
		arg.PaidAt,
	)
	return err
}
