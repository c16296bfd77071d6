package ofx

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testParser() *Parser {
	return NewParser("", slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Sample OFX data for testing.
const sampleBankOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>USD
<BANKACCTFROM>
<BANKID>123456789
<ACCTID>1234567890
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-25.50
<FITID>2024011501
<NAME>STARBUCKS STORE #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240120120000[0:GMT]
<TRNAMT>-125.00
<FITID>2024012001
<NAME>Whole Foods Market
</STMTTRN>
<STMTTRN>
<TRNTYPE>CHECK
<DTPOSTED>20240125120000[0:GMT]
<TRNAMT>-500.00
<FITID>2024012501
<CHECKNUM>1234
<NAME>CHECK #1234
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20240128120000[0:GMT]
<TRNAMT>2500.00
<FITID>2024012801
<NAME>PAYROLL DEPOSIT
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240129120000[0:GMT]
<TRNAMT>-18.25
<FITID>2024012901
<NAME>PURCHASE
<MEMO>CORNER BAKERY SEATTLE WA
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>1000.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const sampleCreditCardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20240315120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>USD
<CCACCTFROM>
<ACCTID>4111111111111111
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20240101120000[0:GMT]
<DTEND>20240131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240110120000[0:GMT]
<TRNAMT>-45.99
<FITID>CC2024011001
<NAME>AMAZON.COM*RT4Y7HG2
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20240115120000[0:GMT]
<TRNAMT>-15.00
<FITID>CC2024011501
<NAME>NETFLIX.COM
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-500.00
<DTASOF>20240131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestParseFile(t *testing.T) {
	tests := []struct {
		name          string
		ofxData       string
		expectedCount int
		expectedError bool
	}{
		{
			name:          "bank statement keeps purchases only",
			ofxData:       sampleBankOFX,
			expectedCount: 4,
		},
		{
			name:          "credit card statement",
			ofxData:       sampleCreditCardOFX,
			expectedCount: 2,
		},
		{
			name:          "invalid OFX data",
			ofxData:       "not valid OFX",
			expectedError: true,
		},
		{
			name:          "empty OFX",
			ofxData:       "",
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transactions, err := testParser().ParseFile(context.Background(), strings.NewReader(tt.ofxData))
			if tt.expectedError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, transactions, tt.expectedCount)
		})
	}
}

func TestParseBankTransactions(t *testing.T) {
	transactions, err := testParser().ParseFile(context.Background(), strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 4)

	tx1 := transactions[0]
	assert.Equal(t, "2024011501", tx1.ID)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.Description)
	assert.Equal(t, "STARBUCKS STORE #1234", tx1.MerchantName)
	assert.Equal(t, "25.50", tx1.Amount.StringFixed(2))
	assert.Equal(t, "USD", tx1.Currency)
	assert.Equal(t, "1234567890", tx1.AccountID)
	assert.Equal(t, 2024, tx1.Date.Year())
	assert.Equal(t, time.January, tx1.Date.Month())
	assert.Equal(t, 15, tx1.Date.Day())
	assert.NotEmpty(t, tx1.Hash)

	assert.Equal(t, "125.00", transactions[1].Amount.StringFixed(2))
	assert.Equal(t, "500.00", transactions[2].Amount.StringFixed(2))

	// Generic NAME falls back to MEMO
	tx4 := transactions[3]
	assert.Equal(t, "2024012901", tx4.ID)
	assert.Equal(t, "CORNER BAKERY SEATTLE WA", tx4.MerchantName)
	assert.Equal(t, "PURCHASE CORNER BAKERY SEATTLE WA", tx4.Description)
	assert.Equal(t, "18.25", tx4.Amount.StringFixed(2))
}

func TestParseCreditCardTransactions(t *testing.T) {
	transactions, err := testParser().ParseFile(context.Background(), strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	require.Len(t, transactions, 2)

	assert.Equal(t, "CC2024011001", transactions[0].ID)
	assert.Equal(t, "AMAZON.COM*RT4Y7HG2", transactions[0].MerchantName)
	assert.Equal(t, "45.99", transactions[0].Amount.StringFixed(2))
	assert.Equal(t, "4111111111111111", transactions[0].AccountID)

	assert.Equal(t, "NETFLIX.COM", transactions[1].MerchantName)
	assert.Equal(t, "15.00", transactions[1].Amount.StringFixed(2))
}

func TestParseFile_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := testParser().ParseFile(ctx, strings.NewReader(sampleBankOFX))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExtractMerchantName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		memo     string
		expected string
	}{
		{name: "remove POS prefix", input: "POS PURCHASE STARBUCKS", expected: "STARBUCKS"},
		{name: "remove DEBIT CARD prefix", input: "DEBIT CARD PURCHASE WHOLE FOODS", expected: "WHOLE FOODS"},
		{name: "strip leading date", input: "03/08 CORNER BAKERY", expected: "CORNER BAKERY"},
		{name: "keep clean name", input: "NETFLIX.COM", expected: "NETFLIX.COM"},
		{name: "trim whitespace", input: "  AMAZON.COM  ", expected: "AMAZON.COM"},
		{name: "generic name uses memo", input: "DEBIT", memo: "ACME HARDWARE", expected: "ACME HARDWARE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := ofxgo.Transaction{
				Name: ofxgo.String(tt.input),
				Memo: ofxgo.String(tt.memo),
			}
			assert.Equal(t, tt.expected, extractMerchantName(tx))
		})
	}
}

func TestExtractMerchantName_PrefersPayee(t *testing.T) {
	tx := ofxgo.Transaction{
		Name:  ofxgo.String("SQ *CRNR BKRY"),
		Payee: &ofxgo.Payee{Name: ofxgo.String("Corner Bakery")},
	}
	assert.Equal(t, "Corner Bakery", extractMerchantName(tx))
}

func TestGetAccounts(t *testing.T) {
	parser := testParser()

	accounts, err := parser.GetAccounts(strings.NewReader(sampleBankOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"1234567890"}, accounts)

	accounts, err = parser.GetAccounts(strings.NewReader(sampleCreditCardOFX))
	require.NoError(t, err)
	assert.Equal(t, []string{"4111111111111111"}, accounts)
}

func writeStatement(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestSource_ListTransactions(t *testing.T) {
	dir := t.TempDir()
	writeStatement(t, dir, "checking.ofx", sampleBankOFX)
	writeStatement(t, dir, "card.QFX", sampleCreditCardOFX)
	writeStatement(t, dir, "notes.txt", "ignored")
	// A re-download of the same statement adds nothing.
	other := writeStatement(t, t.TempDir(), "checking-again.ofx", sampleBankOFX)

	src, err := NewSource("u1", []string{dir, other}, testParser(), nil)
	require.NoError(t, err)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC)
	txns, err := src.ListTransactions(context.Background(), "u1", from, to)
	require.NoError(t, err)
	require.Len(t, txns, 6)
	for i := 1; i < len(txns); i++ {
		assert.False(t, txns[i].Date.Before(txns[i-1].Date), "transactions are date ordered")
	}
	for _, tx := range txns {
		assert.Equal(t, "u1", tx.UserID)
	}

	narrow, err := src.ListTransactions(context.Background(), "u1",
		time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Date(2024, 1, 15, 23, 59, 59, 0, time.UTC))
	require.NoError(t, err)
	assert.Len(t, narrow, 2)

	none, err := src.ListTransactions(context.Background(), "someone-else", from, to)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSource_Errors(t *testing.T) {
	_, err := NewSource("u1", nil, nil, nil)
	assert.Error(t, err)

	src, err := NewSource("u1", []string{filepath.Join(t.TempDir(), "missing.ofx")}, nil, nil)
	require.NoError(t, err)
	_, err = src.ListTransactions(context.Background(), "u1", time.Time{}, time.Now())
	assert.Error(t, err)

	bad := writeStatement(t, t.TempDir(), "bad.ofx", "not valid OFX")
	src, err = NewSource("u1", []string{bad}, nil, nil)
	require.NoError(t, err)
	_, err = src.ListTransactions(context.Background(), "u1", time.Time{}, time.Now())
	assert.ErrorContains(t, err, "bad.ofx")
}
