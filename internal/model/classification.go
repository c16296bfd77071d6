// Package model defines the core domain models used throughout the application.
package model

// ReasonCode identifies which classifier rule group produced a verdict.
type ReasonCode string

// Classifier reason codes.
const (
	ReasonStructuredMarkup ReasonCode = "structured_markup"
	ReasonBlockedSender    ReasonCode = "blocked_sender"
	ReasonMerchantAccept   ReasonCode = "merchant_accept"
	ReasonMerchantReject   ReasonCode = "merchant_reject"
	ReasonScoreAccept      ReasonCode = "score_accept"
	ReasonScoreReject      ReasonCode = "score_reject"
	ReasonAmbiguous        ReasonCode = "ambiguous"
)

// ClassificationResult is the receipt/non-receipt verdict for a single message.
type ClassificationResult struct {
	Reason     ReasonCode
	Detail     string // Human-readable explanation for logs
	Confidence int
	IsReceipt  bool
}
