package proto

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Envelope types carried in the "type" field.
const (
	TypeAuth           = "auth"
	TypeMessage        = "message"
	TypeDirectMessage  = "direct_message"
	TypeJoin           = "join"
	TypeQuit           = "quit"
	TypeUserList       = "user_list"
	TypeTyping         = "typing"
	TypeBroadcast      = "broadcast"
	TypeChannelList    = "channel_list"
	TypeChannelCreate  = "channel_create"
	TypeChannelDelete  = "channel_delete"
	TypeDefaultChannel = "default_channel"
)

// ErrDecode marks an inbound frame that could not be turned into an Envelope.
var ErrDecode = errors.New("decode envelope")

// Envelope is one decoded inbound frame. Only the fields relevant to Type are set.
type Envelope struct {
	Type      string   `json:"type"`
	Success   *bool    `json:"success,omitempty"`
	Author    string   `json:"author,omitempty"`
	Message   string   `json:"message,omitempty"`
	Channel   string   `json:"channel,omitempty"`
	Recipient string   `json:"recipient,omitempty"`
	Username  string   `json:"username,omitempty"`
	Users     []string `json:"users,omitempty"`
	Channels  []string `json:"channels,omitempty"`

	// ReceivedAt is stamped by Decode, never read from the wire.
	ReceivedAt time.Time `json:"-"`
	// Raw is the frame as received.
	Raw json.RawMessage `json:"-"`
}

// Known reports whether the envelope type is part of the protocol.
func (e Envelope) Known() bool {
	switch e.Type {
	case TypeAuth, TypeMessage, TypeDirectMessage, TypeJoin, TypeQuit, TypeUserList,
		TypeTyping, TypeBroadcast, TypeChannelList, TypeChannelCreate, TypeChannelDelete,
		TypeDefaultChannel:
		return true
	}
	return false
}

// AuthRejected is true only for an auth ack that explicitly carries success=false.
func (e Envelope) AuthRejected() bool {
	return e.Type == TypeAuth && e.Success != nil && !*e.Success
}

// Decode parses a single frame. Unknown types decode fine; a missing type does not.
// A field with the wrong JSON type is left empty rather than failing the frame,
// and list fields keep only their string elements.
func Decode(data []byte, receivedAt time.Time) (Envelope, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Envelope{}, fmt.Errorf("%w: not a json object", ErrDecode)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	typ, ok := stringField(fields["type"])
	if !ok || typ == "" {
		return Envelope{}, fmt.Errorf("%w: missing type", ErrDecode)
	}

	env := Envelope{Type: typ}
	env.Author, _ = stringField(fields["author"])
	env.Message, _ = stringField(fields["message"])
	env.Channel, _ = stringField(fields["channel"])
	env.Recipient, _ = stringField(fields["recipient"])
	env.Username, _ = stringField(fields["username"])
	env.Users = stringsField(fields["users"])
	env.Channels = stringsField(fields["channels"])
	switch string(bytes.TrimSpace(fields["success"])) {
	case "true":
		env.Success = new(bool)
		*env.Success = true
	case "false":
		env.Success = new(bool)
	}

	env.ReceivedAt = receivedAt
	env.Raw = append(json.RawMessage(nil), trimmed...)
	return env, nil
}

// stringField decodes raw only when it holds a JSON string.
func stringField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// stringsField decodes a JSON array, dropping elements that are not strings.
func stringsField(raw json.RawMessage) []string {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || items == nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := stringField(item); ok {
			out = append(out, s)
		}
	}
	return out
}

// Request is an outbound payload the client is allowed to send.
type Request interface {
	requestType() string
}

// AuthRequest opens the session.
type AuthRequest struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// MessageRequest posts to a channel, or to the default channel when Channel is empty.
type MessageRequest struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Channel string `json:"channel,omitempty"`
}

// DirectMessageRequest sends a private message to one user.
type DirectMessageRequest struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Recipient string `json:"recipient"`
}

// TypingRequest announces that the local user is typing.
type TypingRequest struct {
	Type string `json:"type"`
}

func (AuthRequest) requestType() string          { return TypeAuth }
func (MessageRequest) requestType() string       { return TypeMessage }
func (DirectMessageRequest) requestType() string { return TypeDirectMessage }
func (TypingRequest) requestType() string        { return TypeTyping }

// NewAuth builds an auth request.
func NewAuth(username, password string) AuthRequest {
	return AuthRequest{Type: TypeAuth, Username: username, Password: password}
}

// NewMessage builds a channel message request.
func NewMessage(content, channel string) MessageRequest {
	return MessageRequest{Type: TypeMessage, Message: content, Channel: channel}
}

// NewDirectMessage builds a direct message request.
func NewDirectMessage(content, recipient string) DirectMessageRequest {
	return DirectMessageRequest{Type: TypeDirectMessage, Message: content, Recipient: recipient}
}

// NewTyping builds a typing notification.
func NewTyping() TypingRequest {
	return TypingRequest{Type: TypeTyping}
}

// Encode serializes an outbound request. The type field always matches the request kind.
func Encode(req Request) ([]byte, error) {
	if req == nil {
		return nil, errors.New("encode: nil request")
	}
	switch r := req.(type) {
	case AuthRequest:
		r.Type = TypeAuth
		req = r
	case MessageRequest:
		r.Type = TypeMessage
		req = r
	case DirectMessageRequest:
		r.Type = TypeDirectMessage
		req = r
	case TypingRequest:
		r.Type = TypeTyping
		req = r
	}
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", req.requestType(), err)
	}
	return data, nil
}

// TypeOf returns the envelope type of an outbound request.
func TypeOf(req Request) string {
	if req == nil {
		return ""
	}
	return req.requestType()
}
