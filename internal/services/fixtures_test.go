package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedesk/internal/core"
	"feedesk/internal/storage/memory"
)

var errStoreDown = errors.New("store down")

// faultyStore injects write failures and honours cancellation, unlike the
// plain memory store.
type faultyStore struct {
	*memory.Store
	createPaymentErr error
	markFeePaidErr   error
}

func (f *faultyStore) CreatePayment(ctx context.Context, p core.Payment) (core.Payment, error) {
	if f.createPaymentErr != nil {
		return core.Payment{}, f.createPaymentErr
	}
	if err := ctx.Err(); err != nil {
		return core.Payment{}, err
	}
	return f.Store.CreatePayment(ctx, p)
}

func (f *faultyStore) MarkFeePaid(ctx context.Context, id string) error {
	if f.markFeePaidErr != nil {
		return f.markFeePaidErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.Store.MarkFeePaid(ctx, id)
}

var (
	studentSession = core.Session{UserID: "stu-1", Role: core.RoleStudent}
	adminSession   = core.Session{UserID: "adm-1", Role: core.RoleAdmin}
	fixedNow       = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
)

// newFixture seeds a student with the 45000 semester fee due yesterday.
func newFixture(t *testing.T) (*faultyStore, core.Fee) {
	t.Helper()
	ctx := context.Background()
	store := &faultyStore{Store: memory.New()}
	store.Now = func() time.Time { return fixedNow }

	for _, p := range []core.Profile{
		{UserID: adminSession.UserID, FullName: "Finance Office", Role: core.RoleAdmin},
		{UserID: studentSession.UserID, FullName: "Asha Rao", Email: "asha@example.edu", Role: core.RoleStudent,
			StudentID: "CS-042", Department: "CSE", Semester: 4},
	} {
		if _, err := store.CreateProfile(ctx, p); err != nil {
			t.Fatalf("create profile: %v", err)
		}
	}

	fee, err := store.CreateFee(ctx, core.Fee{
		UserID:       studentSession.UserID,
		FeeType:      "Semester Fee",
		Amount:       core.Rupees(45000),
		DueDate:      fixedNow.AddDate(0, 0, -1),
		AcademicYear: "2024-25",
		Semester:     4,
		Breakdown: core.Breakdown{
			Tuition: core.Rupees(30000),
			Library: core.Rupees(5000),
			Lab:     core.Rupees(5000),
			Other:   core.Rupees(5000),
		},
		Status: core.FeePending,
	})
	if err != nil {
		t.Fatalf("create fee: %v", err)
	}
	return store, fee
}

func fixedIDs() *core.IdentityGenerator {
	return &core.IdentityGenerator{Now: func() time.Time { return fixedNow }}
}

func newLedger(t *testing.T, store *faultyStore, svc *PaymentService) *StudentLedger {
	t.Helper()
	l, err := NewStudentLedger(studentSession, store, store, svc)
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	l.now = func() time.Time { return fixedNow }
	if err := l.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	return l
}
