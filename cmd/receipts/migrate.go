package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			statusOnly, _ := cmd.Flags().GetBool("status")
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			if statusOnly {
				version, err := schemaVersion(ctx)
				if err != nil {
					return err
				}
				msg := fmt.Sprintf("Schema version %d of %d", version, storage.ExpectedSchemaVersion)
				if version < storage.ExpectedSchemaVersion {
					fmt.Fprintln(out, cli.FormatWarning(msg+"; run 'receipts migrate'"))
				} else {
					fmt.Fprintln(out, cli.FormatSuccess(msg))
				}
				return nil
			}

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer store.Close() //nolint:errcheck
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Database at %s is up to date", appCfg.Database.Path)))
			return nil
		},
	}
	cmd.Flags().Bool("status", false, "Report the schema version without migrating")
	return cmd
}

// schemaVersion reads the version without creating a database that does not exist yet.
func schemaVersion(ctx context.Context) (int, error) {
	if _, err := os.Stat(appCfg.Database.Path); errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	store, err := storage.NewSQLiteStorage(appCfg.Database.Path)
	if err != nil {
		return 0, err
	}
	defer store.Close() //nolint:errcheck
	return store.SchemaVersion(ctx)
}
