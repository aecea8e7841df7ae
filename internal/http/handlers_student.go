package http

import (
	"context"
	"errors"
	"net/http"

	"feedesk/internal/core"
	applog "feedesk/internal/log"
	"feedesk/internal/services"
)

type payRequest struct {
	Method string `json:"payment_method"`
}

// loadLedger builds the caller's ledger from the store.
func (s *Server) loadLedger(ctx context.Context, session core.Session) (*services.StudentLedger, error) {
	l, err := services.NewStudentLedger(session, s.deps.Store, s.deps.Store, s.deps.Payments)
	if err != nil {
		return nil, err
	}
	if err := l.Refresh(ctx); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Server) handleStudentDashboard(w http.ResponseWriter, r *http.Request, session core.Session) {
	l, err := s.loadLedger(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toStudentDashboardView(l.Dashboard()))
}

func (s *Server) handlePendingFees(w http.ResponseWriter, r *http.Request, session core.Session) {
	l, err := s.loadLedger(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	d := l.Dashboard()
	pending := make([]feeView, 0, len(d.Fees))
	for _, line := range d.Fees {
		if line.Fee.Status == core.FeePending {
			pending = append(pending, toFeeView(line.Fee, line.EffectiveStatus))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"fees": pending})
}

// handlePayFee settles one of the caller's fees. The fee is looked up in a
// freshly loaded ledger, so a fee already paid elsewhere is rejected with 409.
func (s *Server) handlePayFee(w http.ResponseWriter, r *http.Request, session core.Session) {
	feeID := sanitizeInput(r.PathValue("id"))
	var req payRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	l, err := s.loadLedger(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	settlement, err := l.SubmitPayment(r.Context(), feeID, sanitizeInput(req.Method))
	if err != nil {
		if errors.Is(err, services.ErrPaymentFailed) {
			s.recordPayment(false, false)
		}
		writeError(w, r, err)
		return
	}
	s.recordPayment(true, settlement.FeeMarkErr != nil)

	resp := settlementView{Payment: toPaymentView(settlement.Payment)}
	if settlement.FeeMarkErr != nil {
		resp.Warning = "payment recorded; fee status will update shortly"
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Fee paid",
		applog.FieldFeeID, feeID,
		applog.FieldPaymentID, settlement.Payment.ID,
		applog.FieldReceiptNumber, settlement.Payment.ReceiptNumber,
		applog.FieldAmount, settlement.Payment.Amount.String())
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleReceipts(w http.ResponseWriter, r *http.Request, session core.Session) {
	receipts, err := s.deps.Receipts.Receipts(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]receiptView, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, toReceiptView(rc))
	}
	writeJSON(w, http.StatusOK, map[string]any{"receipts": out})
}

// handleReceipt serves one receipt; admins may read any student's.
func (s *Server) handleReceipt(w http.ResponseWriter, r *http.Request, session core.Session) {
	rc, err := s.deps.Receipts.Receipt(r.Context(), session, sanitizeInput(r.PathValue("number")))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReceiptView(rc))
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, session core.Session) {
	p, err := s.deps.Profiles.Get(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(p))
}

// handleUpdateProfile edits the caller's own profile. Unknown fields such as
// role or email are rejected by the decoder.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, session core.Session) {
	var in services.ProfileInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.deps.Profiles.UpdateOwn(r.Context(), session, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(p))
}
