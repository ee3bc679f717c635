// Package session maps WhatsApp sender identities to the conversation
// context the AI backend holds for them.
package session

import (
	"context"
	"errors"
	"strings"
)

// ErrInvalidKey is returned when a sender or context identifier is blank.
var ErrInvalidKey = errors.New("session: sender and context ids are required")

// Store is the durable senderID -> contextID mapping.
//
// Lookup reports absence with found == false and a nil error; a non-nil
// error means the backend itself could not be reached. Store overwrites any
// previous mapping and returns only once the write is durable. Concurrent
// writes for one sender are last-writer-wins.
type Store interface {
	Lookup(ctx context.Context, senderID string) (contextID string, found bool, err error)
	Store(ctx context.Context, senderID, contextID string) error
}

func validateKeys(senderID, contextID string) error {
	if strings.TrimSpace(senderID) == "" || strings.TrimSpace(contextID) == "" {
		return ErrInvalidKey
	}
	return nil
}
