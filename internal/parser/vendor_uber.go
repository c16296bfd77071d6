package parser

import (
	"context"
	"strings"
)

// Uber message sub-types.
const (
	UberRide         = "ride"
	UberFoodDelivery = "food_delivery"
)

// UberStrategy parses Uber ride and Uber Eats receipts.
type UberStrategy struct{}

// NewUberStrategy returns the Uber vendor strategy.
func NewUberStrategy() *UberStrategy { return &UberStrategy{} }

// Name identifies the strategy in logs.
func (*UberStrategy) Name() string { return "uber" }

// Domains lists Uber's receipt senders.
func (*UberStrategy) Domains() []string { return []string{"uber.com", "ubereats.com"} }

// Extract reads a ride or food delivery receipt.
func (*UberStrategy) Extract(_ context.Context, doc *Document) (*Extraction, error) {
	var ext *Extraction
	if strings.HasSuffix(doc.SenderDomain, "ubereats.com") ||
		containsAnyFold(doc.Subject+"\n"+doc.Text, "uber eats", "ubereats", "your order from") {
		ext = vendorBase(doc, "Uber Eats", UberFoodDelivery, 90)
	} else {
		ext = vendorBase(doc, "Uber", UberRide, 95)
	}
	ext.OrderID = FindOrderID(doc.Text)
	ext.Identified = containsAnyFold(doc.Subject, "receipt", "uber eats order")

	// Trip summaries without a fare, order id or receipt subject are not receipts.
	if !ext.found() {
		return nil, nil //nolint:nilnil // nothing recognisable
	}
	return ext, nil
}
