package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v3"

	"feedesk/internal/backend"
	"feedesk/internal/config"
	"feedesk/internal/ledger"
	"feedesk/internal/services"
)

var cmdSeed = &cli.Command{
	Name:  "seed",
	Usage: "Load the demo admin, students and fees into an empty store",
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return withBackend(ctx, cmd, func(_ *config.Config, be *backend.Result) error {
			return ledger.SeedDemo(ctx, be.Store, time.Now())
		})
	},
}

var cmdAddStudent = &cli.Command{
	Name:  "add-student",
	Usage: "Register a student profile",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "email", Required: true, Usage: "student email"},
		&cli.StringFlag{Name: "name", Required: true, Usage: "full name"},
		&cli.StringFlag{Name: "user-id", Usage: "identity provider user ID (default: new UUID)"},
		&cli.StringFlag{Name: "student-id", Usage: "institution roll number"},
		&cli.StringFlag{Name: "department"},
		&cli.IntFlag{Name: "semester"},
		&cli.StringFlag{Name: "phone"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return withBackend(ctx, cmd, func(_ *config.Config, be *backend.Result) error {
			p, err := services.NewRosterService(be.Store).RegisterStudent(ctx, ctlSession, services.StudentInput{
				UserID:     cmd.String("user-id"),
				Email:      cmd.String("email"),
				FullName:   cmd.String("name"),
				StudentID:  cmd.String("student-id"),
				Department: cmd.String("department"),
				Semester:   cmd.Int("semester"),
				Phone:      cmd.String("phone"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Registered %s (%s) as %s\n", p.FullName, p.Email, p.UserID)
			return nil
		})
	},
}

var cmdAssignFee = &cli.Command{
	Name:  "assign-fee",
	Usage: "Assign a pending fee to a student",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "user-id", Required: true},
		&cli.StringFlag{Name: "type", Required: true, Usage: "fee type, e.g. \"Semester Fee\""},
		&cli.StringFlag{Name: "amount", Required: true, Usage: "decimal amount, e.g. 45000.00"},
		&cli.StringFlag{Name: "due", Required: true, Usage: "due date (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "academic-year"},
		&cli.IntFlag{Name: "semester"},
		&cli.StringFlag{Name: "tuition"},
		&cli.StringFlag{Name: "library"},
		&cli.StringFlag{Name: "lab"},
		&cli.StringFlag{Name: "other"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return withBackend(ctx, cmd, func(_ *config.Config, be *backend.Result) error {
			fee, err := services.NewRosterService(be.Store).AssignFee(ctx, ctlSession, services.FeeInput{
				UserID:       cmd.String("user-id"),
				FeeType:      cmd.String("type"),
				Amount:       cmd.String("amount"),
				DueDate:      cmd.String("due"),
				AcademicYear: cmd.String("academic-year"),
				Semester:     cmd.Int("semester"),
				Tuition:      cmd.String("tuition"),
				Library:      cmd.String("library"),
				Lab:          cmd.String("lab"),
				Other:        cmd.String("other"),
			})
			if err != nil {
				return err
			}
			fmt.Printf("Assigned %s %s to %s, due %s (fee %s)\n",
				fee.FeeType, fee.Amount, fee.UserID, fee.DueDate.Format(time.DateOnly), fee.ID)
			return nil
		})
	},
}

var cmdStats = &cli.Command{
	Name:  "stats",
	Usage: "Print organization totals and the most recent payments",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "limit", Value: services.DefaultDashboardLimit, Usage: "recent payments to list"},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return withBackend(ctx, cmd, func(_ *config.Config, be *backend.Result) error {
			snap, err := services.NewAdminDashboard(be.Store, nil, cmd.Int("limit")).Refresh(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Total revenue:   %s\n", snap.Stats.TotalRevenue)
			fmt.Printf("Pending dues:    %s\n", snap.Stats.PendingDues)
			fmt.Printf("Active students: %d\n", snap.Stats.ActiveStudents)
			fmt.Printf("Transactions:    %d\n\n", snap.Stats.TransactionCount)

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "RECEIPT\tPAID AT\tSTUDENT\tFEE\tAMOUNT\tMETHOD")
			for _, t := range snap.Recent {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					t.Payment.ReceiptNumber, t.Payment.PaidAt.Format(time.DateTime),
					t.StudentName, t.FeeType, t.Payment.Amount, t.Payment.Method)
			}
			return tw.Flush()
		})
	},
}
