package core

import (
	"fmt"
	"strings"

	"github.com/heyitswither/rwci/internal/proto"
)

// EventKind identifies a dispatch point a handler can be attached to.
type EventKind int

const (
	// EventReady fires once, when the server first announces our own join.
	EventReady EventKind = iota
	// EventMessage delivers a channel message.
	EventMessage
	// EventDirectMessage delivers a private message.
	EventDirectMessage
	// EventJoin delivers the username that joined.
	EventJoin
	// EventQuit delivers the username that left.
	EventQuit
	// EventUserList delivers the full set of online users.
	EventUserList
	// EventTyping delivers the username that is typing.
	EventTyping
	// EventBroadcast delivers a server-wide announcement.
	EventBroadcast
	// EventChannelList delivers the full set of channels.
	EventChannelList
	// EventChannelCreate delivers a new channel identifier.
	EventChannelCreate
	// EventChannelDelete delivers a removed channel identifier.
	EventChannelDelete
	// EventDefaultChannel delivers the new default channel.
	EventDefaultChannel
	// EventRawReceive delivers every decoded envelope, known or not.
	EventRawReceive

	eventCount
)

const eventPrefix = "on_"

var eventNames = [eventCount]string{
	EventReady:          "on_ready",
	EventMessage:        "on_message",
	EventDirectMessage:  "on_direct_message",
	EventJoin:           "on_join",
	EventQuit:           "on_quit",
	EventUserList:       "on_user_list",
	EventTyping:         "on_typing",
	EventBroadcast:      "on_broadcast",
	EventChannelList:    "on_channel_list",
	EventChannelCreate:  "on_channel_create",
	EventChannelDelete:  "on_channel_delete",
	EventDefaultChannel: "on_default_channel",
	EventRawReceive:     "on_raw_receive",
}

// String returns the handler name, e.g. "on_message".
func (k EventKind) String() string {
	if k < 0 || k >= eventCount {
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
	return eventNames[k]
}

// ParseEvent maps a handler name to its EventKind.
func ParseEvent(name string) (EventKind, error) {
	if !strings.HasPrefix(name, eventPrefix) {
		return 0, fmt.Errorf("%w: %q must start with %q followed by the payload type", ErrInvalidEventName, name, eventPrefix)
	}
	for k, n := range eventNames {
		if n == name {
			return EventKind(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown payload type in %q", ErrInvalidEventName, name)
}

// eventForType returns the typed dispatch point for an envelope type.
// auth acks and unknown types have none.
func eventForType(typ string) (EventKind, bool) {
	switch typ {
	case proto.TypeMessage:
		return EventMessage, true
	case proto.TypeDirectMessage:
		return EventDirectMessage, true
	case proto.TypeJoin:
		return EventJoin, true
	case proto.TypeQuit:
		return EventQuit, true
	case proto.TypeUserList:
		return EventUserList, true
	case proto.TypeTyping:
		return EventTyping, true
	case proto.TypeBroadcast:
		return EventBroadcast, true
	case proto.TypeChannelList:
		return EventChannelList, true
	case proto.TypeChannelCreate:
		return EventChannelCreate, true
	case proto.TypeChannelDelete:
		return EventChannelDelete, true
	case proto.TypeDefaultChannel:
		return EventDefaultChannel, true
	}
	return 0, false
}
