// Package ofx reads bank and credit card statements exported as OFX/QFX files and
// serves their purchases as a transaction source for receipt matching.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	tagFixRegex   = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger          *slog.Logger
	defaultCurrency string
}

// NewParser creates a new OFX parser. Statements without a CURDEF use defaultCurrency.
func NewParser(defaultCurrency string, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	if defaultCurrency == "" {
		defaultCurrency = "USD"
	}
	return &Parser{
		logger:          logger.With("component", "ofx"),
		defaultCurrency: strings.ToUpper(defaultCurrency),
	}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	// SEVERITY must be INFO, WARN or ERROR
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	// SGML exports sometimes drop the closing bracket of a bare tag line
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses an OFX/QFX statement and returns its purchases. Credits, deposits
// and zero-amount lines are skipped.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) ([]model.Transaction, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	var transactions []model.Transaction
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			bankStmts++
			if stmt.BankTranList == nil {
				continue
			}
			currency := p.currency(stmt.CurDef)
			accountID := string(stmt.BankAcctFrom.AcctID)
			transactions = append(transactions, p.convertAll(stmt.BankTranList.Transactions, accountID, currency)...)
		}
	}

	for _, msg := range resp.CreditCard {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			ccStmts++
			if stmt.BankTranList == nil {
				continue
			}
			currency := p.currency(stmt.CurDef)
			accountID := string(stmt.CCAcctFrom.AcctID)
			transactions = append(transactions, p.convertAll(stmt.BankTranList.Transactions, accountID, currency)...)
		}
	}

	p.logger.Info("Parsed OFX file",
		"purchases", len(transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return transactions, nil
}

func (p *Parser) parse(reader io.Reader) (*ofxgo.Response, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}
	return resp, nil
}

func (p *Parser) currency(curDef ofxgo.CurrSymbol) string {
	code := strings.ToUpper(strings.TrimSpace(curDef.String()))
	if code == "" || code == "XXX" {
		return p.defaultCurrency
	}
	return code
}

func (p *Parser) convertAll(txns []ofxgo.Transaction, accountID, currency string) []model.Transaction {
	out := make([]model.Transaction, 0, len(txns))
	for _, ofxTx := range txns {
		tx, ok := p.convertTransaction(ofxTx, accountID, currency)
		if !ok {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// convertTransaction converts an OFX purchase to our model. OFX signs debits negative.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID, currency string) (model.Transaction, bool) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		p.logger.Warn("Skipping transaction with unreadable amount", "fitid", ofxTx.FiTID, "error", err)
		return model.Transaction{}, false
	}
	if !amount.IsNegative() {
		return model.Transaction{}, false
	}

	description := strings.TrimSpace(string(ofxTx.Name))
	if memo := strings.TrimSpace(string(ofxTx.Memo)); memo != "" {
		description = strings.TrimSpace(description + " " + memo)
	}

	tx := model.Transaction{
		ID:           string(ofxTx.FiTID),
		AccountID:    accountID,
		Date:         ofxTx.DtPosted.Time,
		Amount:       amount.Abs(),
		Currency:     currency,
		Description:  description,
		MerchantName: extractMerchantName(ofxTx),
	}
	tx.Hash = tx.GenerateHash()
	if tx.ID == "" {
		tx.ID = tx.Hash[:16]
	}
	return tx, true
}

var purchasePrefixes = []string{
	"POS PURCHASE ",
	"PURCHASE AUTHORIZED ON ",
	"DEBIT CARD PURCHASE ",
	"ACH DEBIT ",
	"CHECK CARD ",
	"VISA PURCHASE ",
	"MC PURCHASE ",
	"DEBIT PURCHASE ",
}

// extractMerchantName tries to get a clean merchant name from OFX data.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	for _, prefix := range purchasePrefixes {
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Leading MM/DD
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// GetAccounts extracts unique account IDs from the OFX file.
func (p *Parser) GetAccounts(reader io.Reader) ([]string, error) {
	resp, err := p.parse(reader)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var accounts []string
	add := func(id ofxgo.String) {
		if id == "" || seen[string(id)] {
			return
		}
		seen[string(id)] = true
		accounts = append(accounts, string(id))
	}

	for _, msg := range resp.Bank {
		if stmt, ok := msg.(*ofxgo.StatementResponse); ok {
			add(stmt.BankAcctFrom.AcctID)
		}
	}
	for _, msg := range resp.CreditCard {
		if stmt, ok := msg.(*ofxgo.CCStatementResponse); ok {
			add(stmt.CCAcctFrom.AcctID)
		}
	}
	return accounts, nil
}
