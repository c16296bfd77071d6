package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
)

func jobsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect sync job history",
	}
	cmd.AddCommand(jobsListCmd())
	cmd.AddCommand(jobsShowCmd())
	return cmd
}

func jobsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent sync jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, _ := cmd.Flags().GetString("account")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			jobs, err := store.ListJobs(ctx, account, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(jobs) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No sync jobs yet"))
				return nil
			}
			fmt.Fprintln(out, cli.RenderTable(cli.JobHeaders, cli.JobRows(jobs)))
			return nil
		},
	}
	cmd.Flags().String("account", "", "Only jobs for this account")
	cmd.Flags().Int("limit", 20, "Maximum jobs to show")
	return cmd
}

func jobsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <job-id>",
		Short: "Show one job and its progress log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck

			job, err := store.GetJob(ctx, args[0])
			if err != nil {
				return fmt.Errorf("failed to load job %s: %w", args[0], err)
			}
			events, err := store.ListJobEvents(ctx, job.ID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.RenderJobSummary(job))
			if len(events) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(events))
			for _, e := range events {
				rows = append(rows, []string{
					e.CreatedAt.Local().Format("15:04:05"),
					fmt.Sprintf("%d/%d", e.Processed, e.TotalMessages),
					fmt.Sprint(e.Parsed),
					fmt.Sprint(e.Unparseable),
					fmt.Sprint(e.Failed),
					e.Note,
				})
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, cli.RenderTable([]string{"Time", "Processed", "Parsed", "Unparseable", "Failed", "Note"}, rows))
			return nil
		},
	}
}
