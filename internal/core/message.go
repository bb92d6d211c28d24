package core

import (
	"time"

	"github.com/heyitswither/rwci/internal/proto"
)

// Message is the read-only view of a chat or direct message.
type Message struct {
	Direct     bool
	Content    string
	Author     string // empty for system messages
	Channel    string
	Recipient  string
	ReceivedAt time.Time
}

// MessageFromEnvelope projects a message or direct_message envelope.
func MessageFromEnvelope(env proto.Envelope) Message {
	return Message{
		Direct:     env.Type == proto.TypeDirectMessage,
		Content:    env.Message,
		Author:     env.Author,
		Channel:    env.Channel,
		Recipient:  env.Recipient,
		ReceivedAt: env.ReceivedAt,
	}
}

// System reports whether the message has no author.
func (m Message) System() bool {
	return m.Author == ""
}
