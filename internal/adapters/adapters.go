// Package adapters normalizes per-channel raw records into canonical
// messages. One adapter per channel family, registered in a dispatch table so
// adding a channel means adding a table entry, not touching existing logic.
//
// Adapters are pure and total: they perform no I/O, preserve input order, and
// never drop a record. A record that cannot be parsed degrades to a text
// placeholder (dropping would break pagination counts).
package adapters

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/MikeSquared-Agency/loom/internal/message"
	"github.com/MikeSquared-Agency/loom/internal/metrics"
)

// Adapter converts one channel's raw records into canonical messages and
// extracts reference linkage for the assembler.
type Adapter interface {
	ChannelType() message.ChannelType
	Normalize(records []json.RawMessage) []message.Message
	ExtractReferences(record json.RawMessage) message.References
}

// Identity tells an adapter which sender ids map to which author roles.
type Identity struct {
	OwnAccountID string
	CustomerID   string
}

// Role derives the author role for a sender id.
func (id Identity) Role(senderID string) message.AuthorRole {
	switch senderID {
	case id.OwnAccountID:
		return message.RoleOwnAccount
	case id.CustomerID:
		return message.RoleCustomer
	default:
		return message.RoleThirdParty
	}
}

var registry = map[message.ChannelType]func(Identity, *slog.Logger) Adapter{}

// Register adds an adapter constructor to the dispatch table. Called from the
// adapter files' init functions.
func Register(ct message.ChannelType, build func(Identity, *slog.Logger) Adapter) {
	registry[ct] = build
}

// For builds the adapter registered for a channel type.
func For(ct message.ChannelType, id Identity, logger *slog.Logger) (Adapter, bool) {
	build, ok := registry[ct]
	if !ok {
		return nil, false
	}
	return build(id, logger), true
}

// degrade logs and counts a record that could not be normalized, and returns
// the placeholder message standing in for it.
func degrade(ct message.ChannelType, id, senderID string, role message.AuthorRole, ts time.Time, logger *slog.Logger, reason string) message.Message {
	logger.Warn("degrading malformed record", "channel", ct, "record_id", id, "reason", reason)
	metrics.DegradedRecords.WithLabelValues(string(ct)).Inc()
	return message.Degrade(ct, id, senderID, role, ts)
}
