package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"feedesk/internal/core"
)

// DemoAdminUserID and the student IDs below are stable so that local clients
// can send them as session headers.
const (
	DemoAdminUserID    = "demo-admin"
	DemoStudentUserID  = "demo-student-1"
	DemoStudent2UserID = "demo-student-2"
)

// SeedDemo fills an empty store with one admin, two students and a few fees.
// It does nothing when any profile already exists.
func SeedDemo(ctx context.Context, store Store, now time.Time) error {
	existing, err := store.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("list profiles: %w", err)
	}
	if len(existing) > 0 {
		slog.InfoContext(ctx, "Store already seeded, skipping", "profiles", len(existing))
		return nil
	}

	profiles := []core.Profile{
		{UserID: DemoAdminUserID, FullName: "Finance Office", Email: "finance@example.edu", Role: core.RoleAdmin},
		{UserID: DemoStudentUserID, FullName: "Asha Rao", Email: "asha@example.edu", Role: core.RoleStudent,
			StudentID: "CS-2022-042", Department: "Computer Science", Semester: 4, Phone: "+91 98450 00042"},
		{UserID: DemoStudent2UserID, FullName: "Ravi Kumar", Email: "ravi@example.edu", Role: core.RoleStudent,
			StudentID: "ME-2023-007", Department: "Mechanical Engineering", Semester: 2},
	}
	for _, p := range profiles {
		if _, err := store.CreateProfile(ctx, p); err != nil {
			return fmt.Errorf("create profile %s: %w", p.UserID, err)
		}
	}

	today := core.DateOnly(now)
	fees := []core.Fee{
		{
			UserID: DemoStudentUserID, FeeType: "Semester Fee", Amount: core.Rupees(45000),
			DueDate: today.AddDate(0, 0, -1), AcademicYear: "2024-25", Semester: 4,
			Breakdown: core.Breakdown{
				Tuition: core.Rupees(30000), Library: core.Rupees(5000),
				Lab: core.Rupees(5000), Other: core.Rupees(5000),
			},
			Status: core.FeePending,
		},
		{
			UserID: DemoStudentUserID, FeeType: "Examination Fee", Amount: core.Rupees(2500),
			DueDate: today.AddDate(0, 1, 0), AcademicYear: "2024-25", Semester: 4,
			Breakdown: core.Breakdown{Other: core.Rupees(2500)},
			Status:    core.FeePending,
		},
		{
			UserID: DemoStudent2UserID, FeeType: "Semester Fee", Amount: core.Rupees(42000),
			DueDate: today.AddDate(0, 0, 14), AcademicYear: "2024-25", Semester: 2,
			Breakdown: core.Breakdown{
				Tuition: core.Rupees(30000), Library: core.Rupees(4000),
				Lab: core.Rupees(6000), Other: core.Rupees(2000),
			},
			Status: core.FeePending,
		},
	}
	for _, f := range fees {
		if _, err := store.CreateFee(ctx, f); err != nil {
			return fmt.Errorf("create fee %s for %s: %w", f.FeeType, f.UserID, err)
		}
	}

	slog.InfoContext(ctx, "Seeded demo ledger", "profiles", len(profiles), "fees", len(fees))
	return nil
}
