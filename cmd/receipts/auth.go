package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/gmail"
)

func authCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authenticate with external services",
	}
	cmd.AddCommand(authGmailCmd())
	return cmd
}

func authGmailCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gmail",
		Short: "Authorize read-only access to a Gmail account",
		Long: `Run the OAuth consent flow for one Gmail account. A local callback server
listens on gmail.callback_port; open the printed URL in a browser. The token is
saved under gmail.token_dir and refreshed automatically afterwards.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			account, _ := cmd.Flags().GetString("account")
			if account == "" {
				return common.NewUserError("--account is required", nil)
			}
			if appCfg.Gmail.ClientID == "" || appCfg.Gmail.ClientSecret == "" {
				return common.NewUserError("set gmail.client_id and gmail.client_secret (or RECEIPTS_GMAIL_CLIENT_ID / RECEIPTS_GMAIL_CLIENT_SECRET)", common.ErrMissingConfig)
			}

			oauth := gmailOAuth(account)
			if _, err := gmail.LoadToken(oauth.TokenFile); err == nil {
				force, _ := cmd.Flags().GetBool("force")
				if !force {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(fmt.Sprintf("%s is already authorized; use --force to redo", account)))
					return nil
				}
			}

			if _, err := gmail.AuthenticateInteractive(cmd.Context(), oauth); err != nil {
				return fmt.Errorf("gmail authentication failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Authorized %s", account)))
			return nil
		},
	}
	cmd.Flags().String("account", "", "Gmail address to authorize")
	cmd.Flags().Bool("force", false, "Re-run consent even when a token exists")
	return cmd
}
