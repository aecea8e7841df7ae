package http

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/ledger"
	"feedesk/internal/services"
	"feedesk/internal/storage/memory"
)

var (
	studentHeaders = map[string]string{HeaderUserID: ledger.DemoStudentUserID, HeaderUserRole: "student"}
	student2       = map[string]string{HeaderUserID: ledger.DemoStudent2UserID, HeaderUserRole: "student"}
	adminHeaders   = map[string]string{HeaderUserID: ledger.DemoAdminUserID, HeaderUserRole: "admin"}
)

// failingPayments rejects payment inserts while fail is set.
type failingPayments struct {
	*memory.Store
	fail bool
}

func (f *failingPayments) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if f.fail {
		return core.Payment{}, errors.New("disk full")
	}
	return f.Store.CreatePayment(ctx, p)
}

type testEnv struct {
	srv       *Server
	store     *failingPayments
	dashboard *services.AdminDashboard
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	ctx := context.Background()
	mem := memory.New()
	if err := ledger.SeedDemo(ctx, mem, time.Now()); err != nil {
		t.Fatalf("seed: %v", err)
	}
	store := &failingPayments{Store: mem}

	var ms int64 = 1742032800000
	ids := &core.IdentityGenerator{Now: func() time.Time {
		return time.UnixMilli(atomic.AddInt64(&ms, 1))
	}}
	dashboard := services.NewAdminDashboard(store, mem.Feed(), 50)
	deps := Deps{
		Store:     store,
		Payments:  services.NewPaymentService(store, store, ids, "card"),
		Receipts:  services.NewReceiptService(store, 16, time.Hour),
		Roster:    services.NewRosterService(store),
		Dashboard: dashboard,
		Profiles:  services.NewProfileService(store),
		Ping:      func(context.Context) error { return nil },
	}
	if opts.PaymentRateLimit == 0 {
		opts.PaymentRateLimit = 100
	}
	srv := NewServer(":0", deps, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{srv: srv, store: store, dashboard: dashboard}
}

func (e *testEnv) do(t *testing.T, method, path string, headers map[string]string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.RemoteAddr = "203.0.113.10:5555"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func (e *testEnv) feeID(t *testing.T, userID, feeType string) string {
	t.Helper()
	fees, err := e.store.ListFees(context.Background(), ledger.FeeQuery{UserID: userID})
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range fees {
		if f.FeeType == feeType {
			return f.ID
		}
	}
	t.Fatalf("no %s fee for %s", feeType, userID)
	return ""
}

func TestHealthReadyAndMetrics(t *testing.T) {
	env := newTestEnv(t, Options{})
	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		rr := env.do(t, http.MethodGet, path, nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	env.srv.deps.Ping = func(context.Context) error { return errors.New("db gone") }
	rr := env.do(t, http.MethodGet, "/readyz", nil, "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 when storage is down, got %d", rr.Code)
	}
}

func TestSessionRequired(t *testing.T) {
	env := newTestEnv(t, Options{})
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"no headers", "/api/student/dashboard", nil, http.StatusUnauthorized},
		{"unknown role", "/api/student/dashboard", map[string]string{HeaderUserID: "x", HeaderUserRole: "root"}, http.StatusUnauthorized},
		{"student on admin route", "/api/admin/dashboard", studentHeaders, http.StatusForbidden},
		{"admin on student route", "/api/student/dashboard", adminHeaders, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodGet, tt.path, tt.headers, "")
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d", rr.Code, tt.want)
			}
			if rr.Header().Get("X-Content-Type-Options") != "nosniff" {
				t.Errorf("security headers missing")
			}
		})
	}
}

func TestStudentDashboard(t *testing.T) {
	env := newTestEnv(t, Options{})
	rr := env.do(t, http.MethodGet, "/api/student/dashboard", studentHeaders, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	got := decode[studentDashboardView](t, rr)
	if len(got.Fees) != 2 {
		t.Fatalf("expected 2 fees, got %d", len(got.Fees))
	}
	if got.Fees[0].FeeType != "Semester Fee" || got.Fees[0].EffectiveStatus != "overdue" || got.Fees[0].Status != "pending" {
		t.Errorf("unexpected first fee %+v", got.Fees[0])
	}
	want := studentTotalsView{TotalOutstanding: "47500.00", TotalPaid: "0.00", PendingCount: 1, OverdueCount: 1}
	if got.Totals != want {
		t.Errorf("totals = %+v, want %+v", got.Totals, want)
	}
}

func TestPayFeeFlow(t *testing.T) {
	env := newTestEnv(t, Options{})
	feeID := env.feeID(t, ledger.DemoStudentUserID, "Semester Fee")
	payPath := "/api/student/fees/" + feeID + "/pay"

	rr := env.do(t, http.MethodPost, payPath, studentHeaders, `{"payment_method":"upi"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("pay status=%d body=%s", rr.Code, rr.Body.String())
	}
	settled := decode[settlementView](t, rr)
	p := settled.Payment
	if p.Amount != "45000.00" || p.Method != "upi" || !strings.HasPrefix(p.ReceiptNumber, "RCP") ||
		strings.TrimPrefix(p.ReceiptNumber, "RCP") != strings.TrimPrefix(p.TransactionID, "TXN") {
		t.Fatalf("unexpected payment %+v", p)
	}
	if settled.Warning != "" {
		t.Errorf("unexpected warning %q", settled.Warning)
	}

	t.Run("paying twice is a conflict", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, payPath, studentHeaders, "")
		if rr.Code != http.StatusConflict {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("another student's fee is not found", func(t *testing.T) {
		other := env.feeID(t, ledger.DemoStudent2UserID, "Semester Fee")
		rr := env.do(t, http.MethodPost, "/api/student/fees/"+other+"/pay", studentHeaders, "")
		if rr.Code != http.StatusNotFound {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("malformed body", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/api/student/fees/x/pay", studentHeaders, `{"payment_method":`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("status=%d", rr.Code)
		}
	})

	t.Run("pending list and totals reflect the payment", func(t *testing.T) {
		rr := env.do(t, http.MethodGet, "/api/student/fees/pending", studentHeaders, "")
		pending := decode[struct {
			Fees []feeView `json:"fees"`
		}](t, rr)
		if len(pending.Fees) != 1 || pending.Fees[0].FeeType != "Examination Fee" {
			t.Fatalf("unexpected pending fees %+v", pending.Fees)
		}
		dash := decode[studentDashboardView](t, env.do(t, http.MethodGet, "/api/student/dashboard", studentHeaders, ""))
		if dash.Totals.TotalPaid != "45000.00" || dash.Totals.TotalOutstanding != "2500.00" {
			t.Fatalf("unexpected totals %+v", dash.Totals)
		}
		if len(dash.Payments) != 1 || dash.Payments[0].FeeType != "Semester Fee" {
			t.Fatalf("unexpected payments %+v", dash.Payments)
		}
	})

	t.Run("receipts", func(t *testing.T) {
		list := decode[struct {
			Receipts []receiptView `json:"receipts"`
		}](t, env.do(t, http.MethodGet, "/api/student/receipts", studentHeaders, ""))
		if len(list.Receipts) != 1 || list.Receipts[0].StudentName != "Asha Rao" {
			t.Fatalf("unexpected receipts %+v", list.Receipts)
		}

		path := "/api/student/receipts/" + p.ReceiptNumber
		rr := env.do(t, http.MethodGet, path, studentHeaders, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d", rr.Code)
		}
		rc := decode[receiptView](t, rr)
		if rc.Breakdown == nil || rc.Breakdown.Tuition != "30000.00" || rc.Department != "Computer Science" {
			t.Fatalf("unexpected receipt %+v", rc)
		}

		if rr := env.do(t, http.MethodGet, path, student2, ""); rr.Code != http.StatusForbidden {
			t.Fatalf("other student status=%d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, path, adminHeaders, ""); rr.Code != http.StatusOK {
			t.Fatalf("admin status=%d", rr.Code)
		}
		if rr := env.do(t, http.MethodGet, "/api/student/receipts/RCP0", studentHeaders, ""); rr.Code != http.StatusNotFound {
			t.Fatalf("missing receipt status=%d", rr.Code)
		}
	})
}

func TestPayFeeStoreFailure(t *testing.T) {
	env := newTestEnv(t, Options{})
	env.store.fail = true
	feeID := env.feeID(t, ledger.DemoStudentUserID, "Semester Fee")

	rr := env.do(t, http.MethodPost, "/api/student/fees/"+feeID+"/pay", studentHeaders, "")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status=%d", rr.Code)
	}
	body := decode[errorBody](t, rr)
	if body.Error != services.ErrPaymentFailed.Error() || body.RequestID == "" {
		t.Fatalf("unexpected error body %+v", body)
	}
	fee, _ := env.store.GetFee(context.Background(), feeID)
	if fee.Status != core.FeePending {
		t.Fatalf("fee must stay pending after a failed payment")
	}
}

func TestPaymentFailureMetricCountsStoreFailuresOnly(t *testing.T) {
	env := newTestEnv(t, Options{})
	feeID := env.feeID(t, ledger.DemoStudentUserID, "Semester Fee")
	other := env.feeID(t, ledger.DemoStudent2UserID, "Semester Fee")
	if rr := env.do(t, http.MethodPost, "/api/student/fees/"+feeID+"/pay", studentHeaders, ""); rr.Code != http.StatusCreated {
		t.Fatalf("pay status=%d", rr.Code)
	}

	tests := []struct {
		name         string
		path         string
		headers      map[string]string
		failStore    bool
		wantCode     int
		wantFailures int64
	}{
		{"already paid", "/api/student/fees/" + feeID + "/pay", studentHeaders, false, http.StatusConflict, 0},
		{"unknown fee", "/api/student/fees/missing/pay", studentHeaders, false, http.StatusNotFound, 0},
		{"another student's fee", "/api/student/fees/" + other + "/pay", studentHeaders, false, http.StatusNotFound, 0},
		{"wrong role", "/api/student/fees/" + other + "/pay", adminHeaders, false, http.StatusForbidden, 0},
		{"store rejects insert", "/api/student/fees/" + other + "/pay", student2, true, http.StatusBadGateway, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.store.fail = tt.failStore
			defer func() { env.store.fail = false }()
			before := atomic.LoadInt64(&env.srv.metrics.paymentFailures)
			rr := env.do(t, http.MethodPost, tt.path, tt.headers, "")
			if rr.Code != tt.wantCode {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.wantCode, rr.Body.String())
			}
			if got := atomic.LoadInt64(&env.srv.metrics.paymentFailures) - before; got != tt.wantFailures {
				t.Fatalf("payment failures grew by %d, want %d", got, tt.wantFailures)
			}
		})
	}
	if got := atomic.LoadInt64(&env.srv.metrics.payments); got != 1 {
		t.Fatalf("expected one settled payment, got %d", got)
	}
}

func TestStudentProfile(t *testing.T) {
	env := newTestEnv(t, Options{})
	before := decode[profileView](t, env.do(t, http.MethodGet, "/api/student/profile", studentHeaders, ""))
	if before.UserID != ledger.DemoStudentUserID || before.Role != "student" || before.Email == "" {
		t.Fatalf("unexpected profile %+v", before)
	}
	other := decode[profileView](t, env.do(t, http.MethodGet, "/api/student/profile", student2, ""))

	tests := []struct {
		name    string
		headers map[string]string
		body    string
		want    int
	}{
		{"role is not editable", studentHeaders, `{"role":"admin"}`, http.StatusBadRequest},
		{"email is not editable", studentHeaders, `{"email":"root@example.edu"}`, http.StatusBadRequest},
		{"blank name", studentHeaders, `{"full_name":"  "}`, http.StatusUnprocessableEntity},
		{"semester out of range", studentHeaders, `{"semester":13}`, http.StatusUnprocessableEntity},
		{"admin on student route", adminHeaders, `{"phone":"1"}`, http.StatusForbidden},
		{"no session", nil, `{"phone":"1"}`, http.StatusUnauthorized},
		{"owner edit", studentHeaders, `{"full_name":" Asha R. Rao ","phone":"+91 98450 00000","semester":5}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPatch, "/api/student/profile", tt.headers, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	after := decode[profileView](t, env.do(t, http.MethodGet, "/api/student/profile", studentHeaders, ""))
	if after.FullName != "Asha R. Rao" || after.Phone != "+91 98450 00000" || after.Semester != 5 {
		t.Fatalf("edit not applied: %+v", after)
	}
	if after.ID != before.ID || after.Role != before.Role || after.Email != before.Email ||
		after.StudentID != before.StudentID || after.Department != before.Department {
		t.Fatalf("untouched fields changed:\n got %+v\nwant %+v", after, before)
	}
	if got := decode[profileView](t, env.do(t, http.MethodGet, "/api/student/profile", student2, "")); got != other {
		t.Fatalf("another student's profile changed: %+v", got)
	}
}

func TestPayFeeRateLimited(t *testing.T) {
	env := newTestEnv(t, Options{PaymentRateLimit: 1})
	path := "/api/student/fees/none/pay"
	if rr := env.do(t, http.MethodPost, path, studentHeaders, ""); rr.Code != http.StatusNotFound {
		t.Fatalf("first status=%d", rr.Code)
	}
	rr := env.do(t, http.MethodPost, path, studentHeaders, "")
	if rr.Code != http.StatusTooManyRequests || rr.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d", rr.Code)
	}
}

func TestAdminRoster(t *testing.T) {
	env := newTestEnv(t, Options{})

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"student invalid email", "/api/admin/students", `{"email":"nope","full_name":"X"}`, http.StatusUnprocessableEntity},
		{"student unknown field", "/api/admin/students", `{"email":"a@b.c","full_name":"X","role":"admin"}`, http.StatusBadRequest},
		{"student padded email", "/api/admin/students", `{"email":" Dev@Example.edu ","full_name":" Dev Shah "}`, http.StatusCreated},
		{"student ok", "/api/admin/students", `{"user_id":"stu-9","email":"Meera@Example.edu","full_name":"Meera Iyer","semester":1}`, http.StatusCreated},
		{"student duplicate", "/api/admin/students", `{"user_id":"stu-9","email":"m@example.edu","full_name":"Meera"}`, http.StatusConflict},
		{"fee breakdown mismatch", "/api/admin/fees", `{"user_id":"stu-9","fee_type":"Hostel","amount":"1000","due_date":"2030-01-01","tuition_fee":"400","other_charges":"500"}`, http.StatusUnprocessableEntity},
		{"fee unknown student", "/api/admin/fees", `{"user_id":"ghost","fee_type":"Hostel","amount":"1000","due_date":"2030-01-01"}`, http.StatusNotFound},
		{"fee ok", "/api/admin/fees", `{"user_id":"stu-9","fee_type":"Hostel","amount":"1000","due_date":"2030-01-01"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, tt.path, adminHeaders, tt.body)
			if rr.Code != tt.want {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tt.want, rr.Body.String())
			}
		})
	}

	roster := decode[struct {
		Students []rosterEntryView `json:"students"`
	}](t, env.do(t, http.MethodGet, "/api/admin/students", adminHeaders, ""))
	var found bool
	for _, s := range roster.Students {
		if s.Role != "student" {
			t.Errorf("roster lists non-student %+v", s)
		}
		if s.UserID == "stu-9" {
			found = true
			if s.Email != "meera@example.edu" || s.TotalDue != "1000.00" || s.TotalPaid != "0.00" {
				t.Errorf("unexpected roster entry %+v", s)
			}
		}
	}
	if !found {
		t.Fatal("registered student missing from roster")
	}
}

func TestAdminDashboardAndTransactions(t *testing.T) {
	env := newTestEnv(t, Options{})
	feeID := env.feeID(t, ledger.DemoStudentUserID, "Semester Fee")
	if rr := env.do(t, http.MethodPost, "/api/student/fees/"+feeID+"/pay", studentHeaders, ""); rr.Code != http.StatusCreated {
		t.Fatalf("pay status=%d", rr.Code)
	}

	dash := decode[dashboardView](t, env.do(t, http.MethodGet, "/api/admin/dashboard", adminHeaders, ""))
	want := orgStatsView{TotalRevenue: "45000.00", PendingDues: "44500.00", ActiveStudents: 2, TransactionCount: 1}
	if dash.Stats != want {
		t.Fatalf("stats = %+v, want %+v", dash.Stats, want)
	}
	if len(dash.Recent) != 1 || dash.Recent[0].StudentName != "Asha Rao" || dash.Recent[0].StudentEmail != "asha@example.edu" {
		t.Fatalf("unexpected recent %+v", dash.Recent)
	}

	tx := decode[struct {
		Transactions []transactionView `json:"transactions"`
	}](t, env.do(t, http.MethodGet, "/api/admin/transactions", adminHeaders, ""))
	if len(tx.Transactions) != 1 || tx.Transactions[0].FeeType != "Semester Fee" {
		t.Fatalf("unexpected transactions %+v", tx.Transactions)
	}
}

func TestAdminEventsStream(t *testing.T) {
	env := newTestEnv(t, Options{HeartbeatInterval: time.Hour})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.dashboard.Start(ctx); err != nil {
		t.Fatalf("start dashboard: %v", err)
	}
	defer env.dashboard.Stop()

	ts := httptest.NewServer(env.srv.Handler)
	defer ts.Close()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/admin/events", nil)
	for k, v := range adminHeaders {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type %q", ct)
	}

	events := make(chan string, 16)
	go func() {
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				events <- name
			}
		}
		close(events)
	}()

	next := func() string {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("stream closed")
			}
			return ev
		case <-ctx.Done():
			t.Fatal("timed out waiting for event")
		}
		return ""
	}
	if ev := next(); ev != "snapshot" {
		t.Fatalf("first event %q, want snapshot", ev)
	}

	feeID := env.feeID(t, ledger.DemoStudentUserID, "Semester Fee")
	if rr := env.do(t, http.MethodPost, "/api/student/fees/"+feeID+"/pay", studentHeaders, ""); rr.Code != http.StatusCreated {
		t.Fatalf("pay status=%d", rr.Code)
	}
	if ev := next(); ev != "notice" {
		t.Fatalf("expected notice after a payment, got %q", ev)
	}
	if ev := next(); ev != "snapshot" {
		t.Fatalf("expected snapshot after notice, got %q", ev)
	}
}
