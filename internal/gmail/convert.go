package gmail

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/mail"
	"strings"
	"time"

	gmailapi "google.golang.org/api/gmail/v1"

	"github.com/Veraticus/the-receipts-must-flow/internal/model"
)

var errNoPayload = errors.New("message has no payload")

// toInboundMessage flattens a full-format Gmail message into the provider-neutral shape.
func toInboundMessage(msg *gmailapi.Message) (*model.InboundMessage, error) {
	if msg == nil || msg.Payload == nil {
		return nil, errNoPayload
	}

	out := &model.InboundMessage{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			out.From = parseAddress(h.Value)
		case "subject":
			out.Subject = decodeHeader(h.Value)
		case "list-unsubscribe":
			out.HasListUnsubscribe = strings.TrimSpace(h.Value) != ""
		case "date":
			if msg.InternalDate == 0 {
				if t, err := mail.ParseDate(h.Value); err == nil {
					out.ReceivedAt = t.UTC()
				}
			}
		}
	}

	if err := walkParts(msg.Payload, out); err != nil {
		return nil, fmt.Errorf("message %s: %w", msg.Id, err)
	}
	return out, nil
}

// walkParts collects the first text/plain and text/html bodies and every named attachment.
func walkParts(part *gmailapi.MessagePart, out *model.InboundMessage) error {
	if part == nil {
		return nil
	}

	if part.Filename != "" && part.Body != nil && part.Body.AttachmentId != "" {
		out.Attachments = append(out.Attachments, model.Attachment{
			Filename:     part.Filename,
			MimeType:     part.MimeType,
			AttachmentID: part.Body.AttachmentId,
			Size:         part.Body.Size,
		})
		return nil
	}

	mimeType := strings.ToLower(part.MimeType)
	if part.Body != nil && part.Body.Data != "" {
		switch {
		case strings.HasPrefix(mimeType, "text/html") && out.HTMLBody == "":
			body, err := decodeData(part.Body.Data)
			if err != nil {
				return fmt.Errorf("html body: %w", err)
			}
			out.HTMLBody = string(body)
		case strings.HasPrefix(mimeType, "text/plain") && out.TextBody == "":
			body, err := decodeData(part.Body.Data)
			if err != nil {
				return fmt.Errorf("text body: %w", err)
			}
			out.TextBody = string(body)
		}
	}

	for _, child := range part.Parts {
		if err := walkParts(child, out); err != nil {
			return err
		}
	}
	return nil
}

// decodeData decodes Gmail's base64url payloads, which may or may not be padded.
func decodeData(data string) ([]byte, error) {
	data = strings.TrimRight(data, "=")
	return base64.RawURLEncoding.DecodeString(data)
}

func parseAddress(value string) model.Address {
	addr, err := mail.ParseAddress(value)
	if err != nil {
		value = strings.TrimSpace(value)
		if start, end := strings.LastIndex(value, "<"), strings.LastIndex(value, ">"); start >= 0 && end > start {
			return model.Address{
				Address: strings.ToLower(value[start+1 : end]),
				Name:    strings.Trim(strings.TrimSpace(value[:start]), `"`),
			}
		}
		return model.Address{Address: strings.ToLower(value)}
	}
	return model.Address{Address: strings.ToLower(addr.Address), Name: addr.Name}
}

var wordDecoder = new(mime.WordDecoder)

// decodeHeader expands RFC 2047 encoded words; undecodable headers are returned as-is.
func decodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
