package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/orchestrator"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull new receipts from Gmail",
		Long: `Fetch purchase emails from one or more Gmail accounts, classify them, parse
receipts and store the results. Incremental syncs resume from the cursor of the last
completed job; the first sync of an account is always a full scan.

Re-running a sync is safe: messages already stored are counted as duplicates.`,
		RunE: runSync,
	}

	cmd.Flags().StringSlice("account", nil, "Gmail account(s) to sync (default: gmail.accounts)")
	cmd.Flags().Bool("full", false, "Scan the whole search window instead of resuming from the last cursor")
	cmd.Flags().Bool("no-match", false, "Skip matching receipts to bank transactions after the sync")
	cmd.Flags().Bool("no-progress", false, "Disable the progress bar")
	cmd.Flags().String("user", "", "Owner of the bank transactions to match against (default: bank.user_id)")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	flagAccounts, _ := cmd.Flags().GetStringSlice("account")
	full, _ := cmd.Flags().GetBool("full")
	noMatch, _ := cmd.Flags().GetBool("no-match")
	noProgress, _ := cmd.Flags().GetBool("no-progress")
	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = appCfg.Bank.UserID
	}

	accounts, err := accountsFrom(flagAccounts)
	if err != nil {
		return err
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), true)

	opts := appOptions{withMatch: !noMatch}
	var progress *cli.SyncProgress
	if !noProgress {
		progress = cli.NewSyncProgress(os.Stderr)
		opts.progress = progress.Update
	}

	a, err := newApp(ctx, opts)
	if err != nil {
		return err
	}
	defer a.close()

	mode := model.SyncIncremental
	if full {
		mode = model.SyncFull
	}
	reqs := make([]orchestrator.JobRequest, 0, len(accounts))
	for _, account := range accounts {
		reqs = append(reqs, orchestrator.JobRequest{AccountID: account, UserID: userID, Mode: mode})
	}

	slog.Info("Starting sync", "accounts", len(reqs), "mode", mode)
	jobs, runErr := a.orch.RunConcurrent(ctx, reqs)
	if progress != nil {
		progress.Finish()
	}

	out := cmd.OutOrStdout()
	for _, job := range jobs {
		if job == nil {
			continue
		}
		fmt.Fprintln(out, cli.RenderJobSummary(job))
	}

	if interrupts.WasInterrupted() {
		return nil
	}
	if runErr != nil {
		return fmt.Errorf("sync failed: %w", runErr)
	}
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Synced %d account(s)", len(jobs))))
	return nil
}
