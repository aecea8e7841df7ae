package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"feedesk/internal/backend"
	"feedesk/internal/config"
	"feedesk/internal/sheets"
	gsheet "feedesk/internal/sheets/google"
	memsheet "feedesk/internal/sheets/memory"
	"feedesk/internal/worker"
)

var cmdExport = &cli.Command{
	Name:  "export",
	Usage: "Export payments to the spreadsheet ledger",
	Flags: []cli.Flag{
		&cli.DurationFlag{
			Name:  "since",
			Value: 24 * time.Hour,
			Usage: "export payments made within this window",
		},
		&cli.BoolFlag{
			Name:  "dry-run",
			Usage: "print rows instead of writing to Google Sheets",
		},
	},
	Action: func(ctx context.Context, cmd *cli.Command) error {
		return withBackend(ctx, cmd, func(cfg *config.Config, be *backend.Result) error {
			dry := cmd.Bool("dry-run") || cfg.GoogleSpreadsheetID == ""

			var writer sheets.LedgerWriter
			var rows *memsheet.Writer
			if dry {
				rows = memsheet.New()
				writer = rows
			} else {
				client, err := gsheet.New(ctx, gsheet.Config{
					SpreadsheetID:      cfg.GoogleSpreadsheetID,
					SheetName:          cfg.GoogleSheetName,
					ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
					ServiceAccountFile: cfg.GoogleServiceAccountFile,
				})
				if err != nil {
					return err
				}
				if err := client.EnsureHeader(ctx); err != nil {
					return err
				}
				writer = client
			}

			n, err := worker.NewExportWorker(be.Store, writer).ExportSince(ctx, time.Now().Add(-cmd.Duration("since")))
			if err != nil {
				return err
			}
			if rows != nil {
				w := csv.NewWriter(os.Stdout)
				_ = w.Write(sheets.ReceiptHeader)
				for _, row := range rows.Rows() {
					_ = w.Write(row)
				}
				w.Flush()
				if err := w.Error(); err != nil {
					return err
				}
			}
			fmt.Fprintf(os.Stderr, "Exported %d payments\n", n)
			return nil
		})
	},
}
