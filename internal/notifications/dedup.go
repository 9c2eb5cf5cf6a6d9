// Package notifications turns dispatch events into durable, per-channel
// deliveries and drives them to the providers with bounded retries.
package notifications

import (
	"crypto/sha256"
	"encoding/hex"

	"mission-dispatch/internal/models"
)

// DedupKey is the stable identity of a notification's content. Two requests
// with the same key for the same recipient collapse into one record.
func DedupKey(eventType models.EventType, relatedEntityID, title, message string) string {
	h := sha256.New()
	for _, part := range []string{string(eventType), relatedEntityID, title, message} {
		h.Write([]byte(part))
		// Separator keeps ("ab","c") and ("a","bc") apart.
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
