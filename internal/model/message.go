package model

import (
	"strings"
	"time"
)

// Address is an email address with its optional display name.
type Address struct {
	Address string
	Name    string
}

// Domain returns the lowercase domain part of the address.
func (a Address) Domain() string {
	at := strings.LastIndex(a.Address, "@")
	if at < 0 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(strings.Trim(a.Address[at+1:], "<> ")))
}

// Attachment describes a binary part of a message without its content.
type Attachment struct {
	Filename     string
	MimeType     string
	AttachmentID string // Provider-internal blob id
	Size         int64
}

// InboundMessage is a mail message as fetched from the provider.
// It is never mutated and never persisted in raw form.
type InboundMessage struct {
	ReceivedAt         time.Time
	From               Address
	ID                 string
	ThreadID           string
	Subject            string
	HTMLBody           string
	TextBody           string
	Attachments        []Attachment
	HasListUnsubscribe bool
}
