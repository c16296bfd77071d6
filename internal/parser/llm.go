package parser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
	"github.com/Veraticus/the-receipts-must-flow/internal/service"
)

// LLMConfidence is the confidence assigned to a model-extracted receipt.
const LLMConfidence = 70

const maxPromptBody = 8000

// ErrMalformedResponse is returned when the model reply is not the requested JSON.
var ErrMalformedResponse = errors.New("malformed LLM response")

// LLMStrategy asks a completion model to fill a fixed JSON schema.
type LLMStrategy struct {
	completer service.Completer
}

// NewLLMStrategy wraps a completer.
func NewLLMStrategy(completer service.Completer) *LLMStrategy {
	return &LLMStrategy{completer: completer}
}

// Name identifies the strategy in logs.
func (s *LLMStrategy) Name() string { return "llm" }

// llmReceipt is the schema the model must answer with.
type llmReceipt struct {
	Merchant string     `json:"merchant"`
	Total    flexAmount `json:"total"`
	Currency string     `json:"currency"`
	Date     string     `json:"date"`
	OrderID  string     `json:"order_id"`
	Items    []struct {
		Name         string       `json:"name"`
		Description  string       `json:"description"`
		CategoryHint string       `json:"category_hint"`
		Quantity     flexQuantity `json:"quantity"`
		UnitPrice    flexAmount   `json:"unit_price"`
	} `json:"items"`
}

// flexAmount accepts an amount written as a JSON string, number or null.
type flexAmount string

func (f *flexAmount) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexAmount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexAmount(n.String())
	return nil
}

// flexQuantity accepts a count written as a JSON number or string. Anything it
// cannot read as a positive whole number decodes to zero rather than failing the reply.
type flexQuantity int

func (q *flexQuantity) UnmarshalJSON(b []byte) error {
	*q = 0
	raw := strings.TrimSpace(string(b))
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		raw = strings.TrimSpace(s)
	}
	n, err := decimal.NewFromString(raw)
	if err != nil || !n.IsPositive() {
		return nil
	}
	*q = flexQuantity(n.IntPart())
	return nil
}

// Extract sends the document to the model and decodes its answer.
func (s *LLMStrategy) Extract(ctx context.Context, doc *Document) (*Extraction, error) {
	if s.completer == nil {
		return nil, nil //nolint:nilnil // no completer configured is a miss
	}

	reply, err := s.completer.Complete(ctx, buildReceiptPrompt(doc))
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}

	var parsed llmReceipt
	if err := json.Unmarshal([]byte(cleanJSONReply(reply)), &parsed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}

	ext := &Extraction{
		Method:       model.MethodLLM,
		Confidence:   LLMConfidence,
		Merchant:     strings.TrimSpace(parsed.Merchant),
		Currency:     strings.ToUpper(strings.TrimSpace(parsed.Currency)),
		OrderID:      strings.TrimSpace(parsed.OrderID),
		PurchaseDate: ParseDate(parsed.Date),
	}
	if parsed.Total != "" {
		if amt, cur, ok := ParseAmount(string(parsed.Total)); ok {
			ext.Total = decimal.NewNullDecimal(amt.Abs())
			if ext.Currency == "" {
				ext.Currency = cur
			}
		}
	}
	for _, it := range parsed.Items {
		if strings.TrimSpace(it.Name) == "" {
			continue
		}
		item := model.LineItem{
			Name:         strings.TrimSpace(it.Name),
			Description:  strings.TrimSpace(it.Description),
			CategoryHint: strings.ToLower(strings.TrimSpace(it.CategoryHint)),
			Quantity:     max(int(it.Quantity), 1),
		}
		if it.UnitPrice != "" {
			if amt, _, ok := ParseAmount(string(it.UnitPrice)); ok {
				item.UnitPrice = amt
			}
		}
		ext.LineItems = append(ext.LineItems, item)
	}
	return ext, nil
}

func (s *LLMStrategy) viable(ext *Extraction) bool {
	return ext != nil && ext.Total.Valid
}

func buildReceiptPrompt(doc *Document) string {
	body := truncateRunes(doc.Text, maxPromptBody)
	from := ""
	if doc.Message != nil {
		from = doc.Message.From.Address
	}

	return fmt.Sprintf(`Extract the purchase details from this email receipt.

Respond with ONLY a JSON object in exactly this format, with no other text:
{"merchant": "<store name>", "total": "<final amount charged, digits and decimal point only, or null>", "currency": "<ISO 4217 code>", "date": "<purchase date as YYYY-MM-DD, or empty>", "order_id": "<order number, or empty>", "items": [{"name": "<item>", "description": "<size, variant or other detail, or empty>", "category_hint": "<one or two word spending category such as groceries, electronics, travel>", "quantity": <integer>, "unit_price": "<amount>"}]}

Use null for total if the email does not state what was charged. Do not guess.

From: %s
Subject: %s

%s`, from, doc.Subject, body)
}

// truncateRunes cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// cleanJSONReply strips markdown code fences and any prose around the JSON object.
func cleanJSONReply(reply string) string {
	s := strings.TrimSpace(reply)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	if start, end := strings.Index(s, "{"), strings.LastIndex(s, "}"); start >= 0 && end > start {
		s = s[start : end+1]
	}
	return strings.TrimSpace(s)
}
