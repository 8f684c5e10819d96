package events

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// FallbackKeyPrefix marks ledger keys derived from payload content rather
// than a provider-assigned event id.
const FallbackKeyPrefix = "hash_"

// FallbackKey derives a stable ledger key for an event without an id. Fields
// are hashed in the order given.
func FallbackKey(provider Provider, eventType string, fields ...string) string {
	var builder strings.Builder

	builder.WriteString(string(provider))
	builder.WriteString("|")
	builder.WriteString(eventType)
	for _, field := range fields {
		builder.WriteString("|")
		builder.WriteString(field)
	}

	sum := sha256.Sum256([]byte(builder.String()))
	return FallbackKeyPrefix + hex.EncodeToString(sum[:])
}
