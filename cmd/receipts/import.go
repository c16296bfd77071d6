package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/ofx"
	"github.com/Veraticus/the-receipts-must-flow/internal/plaid"
)

func importCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Copy bank transactions into the local database",
		Long: `Store bank transactions locally so matching can run against the database
(bank.source unset) without reaching the bank on every run.`,
	}
	cmd.PersistentFlags().String("user", "", "Owner of the imported transactions (default: bank.user_id)")
	cmd.PersistentFlags().BoolP("dry-run", "d", false, "Preview import without saving")
	cmd.AddCommand(importOFXCmd())
	cmd.AddCommand(importPlaidCmd())
	return cmd
}

func importOFXCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ofx [files...]",
		Short: "Import purchases from OFX/QFX files",
		Long: `Import card and account purchases from OFX or QFX (Quicken) exports.

Examples:
  # Import a single file
  receipts import ofx ~/Downloads/chase_jan_2024.qfx

  # Import every export in a directory
  receipts import ofx ~/Downloads/Chase/`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			logger := slog.Default()
			src, err := ofx.NewSource(matchUser(cmd), paths, ofx.NewParser(appCfg.Parser.DefaultCurrency, logger), logger)
			if err != nil {
				return err
			}
			txns, err := src.ListTransactions(cmd.Context(), matchUser(cmd), time.Time{}, time.Now().AddDate(1, 0, 0))
			if err != nil {
				return err
			}
			return saveImported(cmd, txns)
		},
	}
}

func importPlaidCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plaid",
		Short: "Import recent purchases from Plaid",
		RunE: func(cmd *cobra.Command, _ []string) error {
			days, _ := cmd.Flags().GetInt("days")
			if days <= 0 {
				return common.NewUserError("--days must be positive", common.ErrInvalidConfig)
			}
			cfg := appCfg.Bank.Plaid
			cfg.UserID = matchUser(cmd)
			client, err := plaid.NewClient(cfg, slog.Default())
			if err != nil {
				return common.NewUserError("plaid is not configured", err)
			}
			now := time.Now()
			txns, err := client.ListTransactions(cmd.Context(), cfg.UserID, now.AddDate(0, 0, -days), now)
			if err != nil {
				return err
			}
			return saveImported(cmd, txns)
		},
	}
	cmd.Flags().Int("days", 90, "How many days back to fetch")
	return cmd
}

// expandPatterns resolves globs; arguments without glob matches are kept when they exist.
func expandPatterns(patterns []string) ([]string, error) {
	var paths []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", pattern, err)
		}
		if len(matches) > 0 {
			paths = append(paths, matches...)
			continue
		}
		if _, err := os.Stat(pattern); err == nil {
			paths = append(paths, pattern)
		} else {
			slog.Warn("No files found matching pattern", "pattern", pattern)
		}
	}
	if len(paths) == 0 {
		return nil, common.NewUserError("no files found to import", nil)
	}
	return paths, nil
}

func saveImported(cmd *cobra.Command, txns []model.Transaction) error {
	out := cmd.OutOrStdout()
	if len(txns) == 0 {
		fmt.Fprintln(out, cli.FormatWarning("No purchases found"))
		return nil
	}

	oldest, newest := txns[0].Date, txns[0].Date
	for _, t := range txns[1:] {
		if t.Date.Before(oldest) {
			oldest = t.Date
		}
		if t.Date.After(newest) {
			newest = t.Date
		}
	}
	summary := fmt.Sprintf("%d purchase(s) from %s to %s", len(txns), oldest.Format("2006-01-02"), newest.Format("2006-01-02"))

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintln(out, cli.FormatInfo("Dry run: "+summary))
		return nil
	}

	store, err := initStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close() //nolint:errcheck

	if err := store.SaveTransactions(cmd.Context(), txns); err != nil {
		return err
	}
	fmt.Fprintln(out, cli.FormatSuccess("Imported "+summary))
	return nil
}
