package parser

import (
	"context"
	"regexp"
)

// Apple message sub-types.
const (
	AppleDigital      = "digital"
	AppleSubscription = "subscription"
)

var appleOrderIDRE = regexp.MustCompile(`(?i)\b(?:order id|document no\.?)\s*:?\s*([A-Z0-9]{8,14})\b`)

// AppleStrategy parses App Store, iTunes and subscription receipts.
type AppleStrategy struct{}

// NewAppleStrategy returns the Apple vendor strategy.
func NewAppleStrategy() *AppleStrategy { return &AppleStrategy{} }

// Name identifies the strategy in logs.
func (*AppleStrategy) Name() string { return "apple" }

// Domains lists Apple's receipt senders.
func (*AppleStrategy) Domains() []string { return []string{"apple.com", "itunes.com"} }

// Extract reads an Apple receipt.
func (*AppleStrategy) Extract(_ context.Context, doc *Document) (*Extraction, error) {
	subType, confidence := AppleDigital, 90
	if containsAnyFold(doc.Subject+"\n"+doc.Text, "subscription", "renewal", "renews") {
		subType, confidence = AppleSubscription, 85
	}

	ext := vendorBase(doc, "Apple", subType, confidence)
	if m := appleOrderIDRE.FindStringSubmatch(doc.Text); m != nil {
		ext.OrderID = m[1]
	}
	if ext.Total.Valid && ext.OrderID != "" {
		ext.Confidence = 95
	}
	ext.Identified = containsAnyFold(doc.Subject, "receipt from apple", "invoice from apple", "subscription confirmation")

	if !ext.found() {
		return nil, nil //nolint:nilnil // nothing recognisable
	}
	return ext, nil
}
