package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"feedesk/internal/core"
	applog "feedesk/internal/log"
	"feedesk/internal/services"
)

// handleAdminDashboard returns the last computed snapshot, computing one
// first if the dashboard has never refreshed.
func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request, _ core.Session) {
	snap := s.deps.Dashboard.Snapshot()
	if snap.RefreshedAt.IsZero() {
		var err error
		if snap, err = s.deps.Dashboard.Refresh(r.Context()); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toDashboardView(snap, ""))
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, session core.Session) {
	tx, err := s.deps.Dashboard.Transactions(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": toTransactionViews(tx)})
}

func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request, session core.Session) {
	entries, err := s.deps.Roster.ListStudents(r.Context(), session)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]rosterEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, rosterEntryView{
			profileView: toProfileView(e.Profile),
			TotalDue:    e.TotalDue.String(),
			TotalPaid:   e.TotalPaid.String(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"students": out})
}

func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request, session core.Session) {
	var in services.StudentInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	p, err := s.deps.Roster.RegisterStudent(r.Context(), session, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toProfileView(p))
}

func (s *Server) handleAssignFee(w http.ResponseWriter, r *http.Request, session core.Session) {
	var in services.FeeInput
	if err := decodeJSON(r, &in, false); err != nil {
		writeError(w, r, err)
		return
	}
	fee, err := s.deps.Roster.AssignFee(r.Context(), session, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeeView(fee, ""))
}

// handleAdminEvents streams dashboard snapshots as Server-Sent Events: the
// current snapshot on connect, then one "snapshot" event per refresh. A
// refresh caused by a new payment also carries a "notice" event. Updates are
// dropped for a client that falls behind.
func (s *Server) handleAdminEvents(w http.ResponseWriter, r *http.Request, _ core.Session) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, r, fmt.Errorf("streaming unsupported"))
		return
	}
	ctx := r.Context()
	logger := applog.FromContext(ctx).WithComponent(applog.ComponentDashboard)

	updates := make(chan services.DashboardUpdate, 8)
	cancel := s.deps.Dashboard.Watch(func(u services.DashboardUpdate) {
		select {
		case updates <- u:
		default:
			logger.WarnContext(ctx, "Dropping dashboard update for slow client")
		}
	})
	defer cancel()
	atomic.AddInt64(&s.metrics.streams, 1)
	defer atomic.AddInt64(&s.metrics.streams, -1)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	if err := writeEvent(w, "snapshot", toDashboardView(s.deps.Dashboard.Snapshot(), "")); err != nil {
		return
	}
	flusher.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			if u.Notice != "" {
				if err := writeEvent(w, "notice", map[string]string{"message": u.Notice}); err != nil {
					return
				}
			}
			if err := writeEvent(w, "snapshot", toDashboardView(u.Snapshot, u.Notice)); err != nil {
				logger.DebugContext(ctx, "Event stream closed", applog.FieldError, err)
				return
			}
			flusher.Flush()
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w http.ResponseWriter, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
