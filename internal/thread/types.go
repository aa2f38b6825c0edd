// Package thread persists conversation history in PostgreSQL.
//
// A thread is an append-only sequence of messages identified by a
// caller-supplied string ID. Messages carry genkit content parts so
// tool requests and responses survive a round trip unchanged.
package thread

import (
	"time"

	"github.com/firebase/genkit/go/ai"
)

// Message is a single conversation entry.
type Message struct {
	Role           ai.Role
	Content        []*ai.Part
	SequenceNumber int32
}

// Thread is the metadata row for a conversation.
type Thread struct {
	ID           string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	MessageCount int32
}

// History converts stored messages to the genkit message form expected
// by model calls.
func History(messages []*Message) []*ai.Message {
	out := make([]*ai.Message, len(messages))
	for i, msg := range messages {
		out[i] = &ai.Message{Role: msg.Role, Content: msg.Content}
	}
	return out
}
