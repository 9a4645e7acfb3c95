package types

import (
	"maps"
	"slices"
)

// Scope identifies one (collection, channel) pair. Each scope owns exactly
// one Mapping.
type Scope struct {
	Collection string
	ChannelID  string
}

func (s Scope) String() string {
	return s.Collection + "/" + s.ChannelID
}

type TrackedMessage struct {
	MessageID string
	Signature string
}

// Mapping is the key -> tracked message table of one scope. A key is
// present at most once by construction.
type Mapping map[string]TrackedMessage

func (m Mapping) Keys() []string {
	return slices.Sorted(maps.Keys(m))
}

// Split returns the two parallel persisted structures: key -> message id
// and key -> signature.
func (m Mapping) Split() (messages map[string]string, signatures map[string]string) {
	messages = make(map[string]string, len(m))
	signatures = make(map[string]string, len(m))
	for key, tracked := range m {
		messages[key] = tracked.MessageID
		signatures[key] = tracked.Signature
	}
	return messages, signatures
}

// JoinMapping rebuilds a Mapping from its persisted halves. Keys without a
// message id are dropped; a missing signature is kept as empty so the next
// pass re-edits the message.
func JoinMapping(messages, signatures map[string]string) Mapping {
	out := make(Mapping, len(messages))
	for key, messageID := range messages {
		if messageID == "" {
			continue
		}
		out[key] = TrackedMessage{MessageID: messageID, Signature: signatures[key]}
	}
	return out
}
