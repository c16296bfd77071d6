package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/export"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
	"github.com/Veraticus/the-receipts-must-flow/internal/sheets"
)

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export receipts|links|sheets",
		Short: "Export receipts or enrichment links as CSV, or publish both to Google Sheets",
		Long: `Export stored data.

  receipts  one CSV row per receipt with its primary bank link
  links     one CSV row per enrichment link (--status, default suggested)
  sheets    replace the Receipts, Suggested Links and Confirmed Links tabs of the
            configured spreadsheet (sheets.* configuration)`,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"receipts", "links", "sheets"},
		RunE:      runExport,
	}
	cmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	cmd.Flags().String("status", "", "Receipts: parsed|unparseable. Links: suggested|confirmed")
	cmd.Flags().Bool("unmatched", false, "Receipts without any link only")
	return cmd
}

func runExport(cmd *cobra.Command, args []string) error {
	outPath, _ := cmd.Flags().GetString("out")
	status, _ := cmd.Flags().GetString("status")
	unmatched, _ := cmd.Flags().GetBool("unmatched")

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	exporter := export.New(store, slog.Default())
	if args[0] == "sheets" {
		return publishSheets(cmd, exporter, service.ReceiptFilter{
			Status:    model.ParseStatus(status),
			Unmatched: unmatched,
		})
	}

	var w io.Writer = cmd.OutOrStdout()
	if outPath != "" {
		f, err := os.Create(outPath) //nolint:gosec // user-chosen output path
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", outPath, err)
		}
		defer f.Close() //nolint:errcheck
		w = f
	}

	var n int
	switch args[0] {
	case "receipts":
		n, err = exporter.WriteReceipts(ctx, w, service.ReceiptFilter{
			Status:    model.ParseStatus(status),
			Unmatched: unmatched,
		})
	case "links":
		linkStatus := model.LinkSuggested
		if status != "" {
			linkStatus = model.LinkStatus(status)
		}
		n, err = exporter.WriteLinks(ctx, w, linkStatus)
	}
	if err != nil {
		return err
	}

	if outPath != "" {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Wrote %d row(s) to %s", n, outPath)))
	}
	return nil
}

func publishSheets(cmd *cobra.Command, exporter *export.Exporter, filter service.ReceiptFilter) error {
	ctx := cmd.Context()
	writer, err := sheets.NewWriter(ctx, appCfg.Sheets, slog.Default())
	if err != nil {
		return common.NewUserError("Google Sheets is not configured", err)
	}

	receipts, err := exporter.ReceiptRows(ctx, filter)
	if err != nil {
		return err
	}
	tabs := make([]sheets.Tab, 0, 3)
	records, err := export.Records(receipts)
	if err != nil {
		return err
	}
	tabs = append(tabs, sheets.Tab{Title: "Receipts", Records: records})

	for _, tab := range []struct {
		title  string
		status model.LinkStatus
	}{
		{"Suggested Links", model.LinkSuggested},
		{"Confirmed Links", model.LinkConfirmed},
	} {
		links, err := exporter.LinkRows(ctx, tab.status)
		if err != nil {
			return err
		}
		records, err := export.Records(links)
		if err != nil {
			return err
		}
		tabs = append(tabs, sheets.Tab{Title: tab.title, Records: records})
	}

	id, err := writer.Write(ctx, tabs...)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Published %d receipt(s) to spreadsheet %s", len(receipts), id)))
	return nil
}
