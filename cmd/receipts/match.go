package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/the-receipts-must-flow/internal/cli"
	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

func matchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Link stored receipts to bank transactions",
		Long: `Score every parsed receipt without a link against bank transactions from the
configured source (bank.source: plaid, ofx, or the local database) and store
confirmed and suggested links.`,
		RunE: runMatch,
	}
	cmd.PersistentFlags().String("user", "", "Owner of the bank transactions (default: bank.user_id)")

	cmd.AddCommand(matchReviewCmd())
	cmd.AddCommand(matchConfirmCmd())
	return cmd
}

func matchUser(cmd *cobra.Command) string {
	userID, _ := cmd.Flags().GetString("user")
	if userID == "" {
		userID = appCfg.Bank.UserID
	}
	return userID
}

func runMatch(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withMatch: true})
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.orch.MatchPending(ctx, matchUser(cmd))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("%d confirmed, %d suggested", result.Confirmed, result.Suggested)))
	if result.Failed > 0 {
		fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d receipt(s) could not be matched; see the log", result.Failed)))
	}
	if result.Suggested > 0 {
		fmt.Fprintln(out, cli.FormatInfo("Review suggestions with: receipts match review"))
	}
	return nil
}

func matchReviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "review",
		Short: "Confirm or skip suggested links interactively",
		Long: `Walk through suggested links one at a time. Confirming a link also teaches the
matcher that the receipt merchant appears on statements under the bank's name.`,
		RunE: runMatchReview,
	}
}

func runMatchReview(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, appOptions{withMatch: true})
	if err != nil {
		return err
	}
	defer a.close()

	links, err := a.store.ListLinksByStatus(ctx, model.LinkSuggested)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(links) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No suggested links to review"))
		return nil
	}

	reviewer := cli.NewLinkReviewer(os.Stdin, out)
	userID := matchUser(cmd)
	confirmed := 0
	for i, link := range links {
		item, err := a.reviewItem(ctx, link, userID)
		if err != nil {
			return err
		}

		decision, err := reviewer.Review(ctx, item, i+1, len(links))
		if err != nil {
			if errors.Is(err, cli.ErrInputCancelled) {
				break
			}
			return err
		}
		if decision == cli.DecisionQuit {
			break
		}
		if decision == cli.DecisionConfirm {
			if err := a.confirm(ctx, item); err != nil {
				return err
			}
			confirmed++
		}
	}

	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Confirmed %d link(s)", confirmed)))
	return nil
}

func matchConfirmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <receipt-id> <transaction-id>",
		Short: "Confirm one suggested link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, appOptions{withMatch: true})
			if err != nil {
				return err
			}
			defer a.close()

			link := model.EnrichmentLink{ReceiptID: args[0], TransactionID: args[1], SourceType: model.SourceReceipt}
			item, err := a.reviewItem(ctx, link, matchUser(cmd))
			if err != nil {
				return err
			}
			if err := a.confirm(ctx, item); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Confirmed %s → %s", args[0], args[1])))
			return nil
		},
	}
}

// reviewItem loads the receipt and, when the source still has it, the transaction.
func (a *app) reviewItem(ctx context.Context, link model.EnrichmentLink, userID string) (cli.ReviewItem, error) {
	receipt, err := a.store.GetReceipt(ctx, link.ReceiptID)
	if err != nil {
		return cli.ReviewItem{}, fmt.Errorf("failed to load receipt %s: %w", link.ReceiptID, err)
	}
	item := cli.ReviewItem{Link: link, Receipt: receipt}

	anchor := receipt.ReceivedAt
	if receipt.PurchaseDate != nil {
		anchor = *receipt.PurchaseDate
	}
	window := time.Duration(a.matcher.Config().WindowDays) * 24 * time.Hour
	txns, err := a.transactions.ListTransactions(ctx, userID, anchor.Add(-window), anchor.Add(window+24*time.Hour))
	if err != nil {
		a.logger.Warn("Failed to load transaction for review", "transaction_id", link.TransactionID, "error", err)
		return item, nil
	}
	for i := range txns {
		if txns[i].ID == link.TransactionID {
			item.Transaction = &txns[i]
			break
		}
	}
	return item, nil
}

// confirm marks the link confirmed and learns the merchant alias it implies.
func (a *app) confirm(ctx context.Context, item cli.ReviewItem) error {
	sourceType := item.Link.SourceType
	if sourceType == "" {
		sourceType = model.SourceReceipt
	}
	if err := a.store.ConfirmLink(ctx, item.Link.ReceiptID, item.Link.TransactionID, sourceType); err != nil {
		return fmt.Errorf("failed to confirm link: %w", err)
	}

	if item.Receipt == nil || item.Transaction == nil {
		return nil
	}
	bankMerchant := item.Transaction.MerchantName
	if bankMerchant == "" {
		bankMerchant = item.Transaction.Description
	}
	if item.Receipt.Merchant == "" || bankMerchant == "" {
		return nil
	}
	if err := a.matcher.LearnAlias(ctx, item.Receipt.Merchant, bankMerchant); err != nil {
		a.logger.Warn("Failed to learn merchant alias", "receipt_merchant", item.Receipt.Merchant, "error", err)
	}
	return nil
}
