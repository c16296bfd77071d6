package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/common"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

func reparseCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reparse [message-id...]",
		Short: "Parse stored messages again with the LLM fallback enabled",
		Long: `Re-fetch messages from Gmail and parse them again, this time allowing the LLM
fallback. The stored receipt for each message is overwritten.

With --unparseable every receipt that previously failed to parse is retried.`,
		RunE: runReparse,
	}

	cmd.Flags().String("account", "", "Gmail account the messages belong to (default: first of gmail.accounts)")
	cmd.Flags().Bool("unparseable", false, "Retry every unparseable receipt")
	cmd.Flags().Int("limit", 0, "Maximum receipts to retry with --unparseable")

	return cmd
}

func runReparse(cmd *cobra.Command, args []string) error {
	account, _ := cmd.Flags().GetString("account")
	unparseable, _ := cmd.Flags().GetBool("unparseable")
	limit, _ := cmd.Flags().GetInt("limit")

	if len(args) == 0 && !unparseable {
		return common.NewUserError("give one or more message ids, or --unparseable", nil)
	}
	if appCfg.LLM.Provider == "" {
		return common.NewUserError("reparse needs an LLM; set llm.provider", common.ErrMissingConfig)
	}

	var flagAccounts []string
	if account != "" {
		flagAccounts = []string{account}
	}
	accounts, err := accountsFrom(flagAccounts)
	if err != nil {
		return err
	}
	account = accounts[0]

	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.close()

	ids := args
	if unparseable {
		receipts, err := a.store.ListReceipts(ctx, service.ReceiptFilter{Status: model.ParseStatusUnparseable, Limit: limit})
		if err != nil {
			return err
		}
		for _, r := range receipts {
			ids = append(ids, r.MessageID)
		}
	}

	out := cmd.OutOrStdout()
	var parsed, failed int
	for _, id := range ids {
		receipt, err := a.orch.Reparse(ctx, account, id)
		if err != nil {
			if errors.Is(err, common.ErrAuth) || ctx.Err() != nil {
				return err
			}
			failed++
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", id, err)))
			continue
		}
		if receipt.ParseStatus == model.ParseStatusParsed {
			parsed++
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%s: %s %s via %s",
				id, receipt.Merchant, cli.FormatAmount(receipt.Total, receipt.Currency), receipt.ParseMethod)))
			continue
		}
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%s: still unparseable (%s)", id, receipt.ParseError)))
	}

	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Re-parsed %d of %d message(s), %d failed", parsed, len(ids), failed)))
	return nil
}
