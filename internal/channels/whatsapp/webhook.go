package whatsapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrMalformedPayload means the webhook body is not valid JSON.
	ErrMalformedPayload = errors.New("whatsapp: malformed payload")
	// ErrMissingField means a message event lacks a sender or text.
	ErrMissingField = errors.New("whatsapp: missing field")
)

// ParsePayload decodes a raw webhook body.
func ParsePayload(raw []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	return &payload, nil
}

// IsStatusEvent reports whether the payload only carries delivery receipts.
func IsStatusEvent(p *WebhookPayload) bool {
	if p == nil {
		return false
	}
	hasStatuses := false
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return false
			}
			if len(change.Value.Statuses) > 0 {
				hasStatuses = true
			}
		}
	}
	return hasStatuses
}

// IsMessageEvent reports whether the payload carries at least one inbound message.
func IsMessageEvent(p *WebhookPayload) bool {
	if p == nil || p.Object == "" {
		return false
	}
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				return true
			}
		}
	}
	return false
}

// ExtractSenderAndMessage returns the first text message in the payload.
func ExtractSenderAndMessage(p *WebhookPayload) (InboundMessage, error) {
	msgs, err := ExtractMessages(p)
	if err != nil {
		return InboundMessage{}, err
	}
	return msgs[0], nil
}

// ExtractMessages returns every text message in the payload in arrival order.
// Messages without a sender or text body are skipped; ErrMissingField is
// returned when none remain.
func ExtractMessages(p *WebhookPayload) ([]InboundMessage, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: empty payload", ErrMissingField)
	}

	var out []InboundMessage
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			value := change.Value
			for _, msg := range value.Messages {
				if msg.Text == nil || strings.TrimSpace(msg.Text.Body) == "" {
					continue
				}
				senderID, name := resolveSender(value.Contacts, msg.From)
				if senderID == "" {
					continue
				}
				out = append(out, InboundMessage{
					SenderID:  senderID,
					Name:      name,
					Text:      msg.Text.Body,
					MessageID: msg.ID,
				})
			}
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no text message with a sender", ErrMissingField)
	}
	return out, nil
}

// resolveSender prefers the contact matching the message author, then the
// first contact, then the message's from field.
func resolveSender(contacts []Contact, from string) (string, string) {
	for _, c := range contacts {
		if from != "" && c.WaID == from {
			return c.WaID, c.Profile.Name
		}
	}
	if len(contacts) > 0 && contacts[0].WaID != "" {
		return contacts[0].WaID, contacts[0].Profile.Name
	}
	return from, ""
}

// VerifySignature checks an X-Hub-Signature-256 header against the body.
func VerifySignature(appSecret string, body []byte, signature string) bool {
	if appSecret == "" || signature == "" {
		return false
	}

	const prefix = "sha256="
	if !strings.HasPrefix(signature, prefix) || len(signature) == len(prefix) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature[len(prefix):]))
}
