package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
)

const DefaultPaymentMethod = "card"

var (
	// ErrPaymentFailed means the payment row was not written. Nothing changed
	// and the caller may retry.
	ErrPaymentFailed = errors.New("payment failed, try again")
	// ErrForbidden is returned when the session may not act on the target.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidInput wraps every validation failure raised by services.
	ErrInvalidInput = errors.New("invalid input")
	// ErrFeeAlreadyPaid rejects a submission for a fee the caller already sees as paid.
	ErrFeeAlreadyPaid = errors.New("fee already paid")
)

// Settlement is the outcome of a successful submission. FeeMarkErr is set
// when the payment was recorded but the fee could not be marked paid.
type Settlement struct {
	Payment    core.Payment
	FeeMarkErr error
}

// PaymentService records payments against fees.
type PaymentService struct {
	fees     ledger.FeeStore
	payments ledger.PaymentStore
	ids      *core.IdentityGenerator
	method   string
}

func NewPaymentService(fees ledger.FeeStore, payments ledger.PaymentStore, ids *core.IdentityGenerator, method string) *PaymentService {
	if ids == nil {
		ids = core.NewIdentityGenerator()
	}
	if strings.TrimSpace(method) == "" {
		method = DefaultPaymentMethod
	}
	return &PaymentService{fees: fees, payments: payments, ids: ids, method: method}
}

// Submit settles fee for the session's user.
//
// Identifiers are generated before any write. The payment insert comes
// first; if it fails nothing else is attempted. If marking the fee paid
// fails afterwards the submission still succeeds and the gap is reported in
// Settlement.FeeMarkErr. Once started, the writes ignore cancellation of ctx.
// Concurrent submissions for the same fee are not excluded.
func (s *PaymentService) Submit(ctx context.Context, session core.Session, fee core.Fee, method string) (Settlement, error) {
	if session.UserID == "" || fee.UserID != session.UserID {
		return Settlement{}, ErrForbidden
	}
	if fee.Status == core.FeePaid {
		return Settlement{}, ErrFeeAlreadyPaid
	}
	if strings.TrimSpace(method) == "" {
		method = s.method
	}

	id := s.ids.Next()
	payment := core.Payment{
		UserID:        session.UserID,
		FeeID:         fee.ID,
		Amount:        fee.Amount,
		Method:        method,
		TransactionID: id.TransactionID,
		ReceiptNumber: id.ReceiptNumber,
		Status:        core.PaymentCompleted,
	}
	if err := payment.Validate(); err != nil {
		return Settlement{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	wctx := context.WithoutCancel(ctx)

	created, err := s.payments.CreatePayment(wctx, payment)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to record payment",
			"fee_id", fee.ID, "user_id", session.UserID, "transaction_id", id.TransactionID, "error", err)
		return Settlement{}, fmt.Errorf("%w: %w", ErrPaymentFailed, err)
	}

	result := Settlement{Payment: created}
	if err := s.fees.MarkFeePaid(wctx, fee.ID); err != nil {
		slog.WarnContext(ctx, "Payment recorded but fee not marked paid",
			"fee_id", fee.ID, "payment_id", created.ID, "receipt_number", created.ReceiptNumber, "error", err)
		result.FeeMarkErr = fmt.Errorf("mark fee %s paid: %w", fee.ID, err)
	}

	slog.InfoContext(ctx, "Payment recorded",
		"fee_id", fee.ID,
		"payment_id", created.ID,
		"amount", created.Amount.String(),
		"receipt_number", created.ReceiptNumber)
	return result, nil
}
