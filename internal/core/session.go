package core

import (
	"maps"
	"slices"
	"sync"

	"github.com/heyitswither/rwci/internal/proto"
)

// Session is the locally cached view of the chat server.
//
// Only the dispatch loop mutates it. Readers on other goroutines get copies.
// The transcript is append-only and unbounded, so memory grows with traffic
// for the lifetime of the session.
type Session struct {
	mu             sync.RWMutex
	username       string
	users          map[string]struct{}
	channels       map[string]struct{}
	defaultChannel string
	transcript     []Message
	ready          bool
}

// Snapshot is a point-in-time copy of a Session.
type Snapshot struct {
	Username       string   `json:"username"`
	Ready          bool     `json:"ready"`
	Users          []string `json:"users"`
	Channels       []string `json:"channels"`
	DefaultChannel string   `json:"default_channel,omitempty"`
	Messages       int      `json:"messages"`
}

// NewSession constructs an empty session for the given local username.
func NewSession(username string) *Session {
	return &Session{
		username: username,
		users:    make(map[string]struct{}),
		channels: make(map[string]struct{}),
	}
}

// Username returns the authenticating user.
func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.username
}

// Ready reports whether the server has announced our own join.
func (s *Session) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Users returns the known online users, sorted.
func (s *Session) Users() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.users))
}

// HasUser reports whether name is in the users set.
func (s *Session) HasUser(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[name]
	return ok
}

// Channels returns the known channels, sorted.
func (s *Session) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Sorted(maps.Keys(s.channels))
}

// DefaultChannel returns the default channel, if the server announced one.
func (s *Session) DefaultChannel() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultChannel, s.defaultChannel != ""
}

// Transcript returns a copy of every message received so far, oldest first.
func (s *Session) Transcript() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transcript)
}

// Snapshot copies the whole session under one lock.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Username:       s.username,
		Ready:          s.ready,
		Users:          slices.Sorted(maps.Keys(s.users)),
		Channels:       slices.Sorted(maps.Keys(s.channels)),
		DefaultChannel: s.defaultChannel,
		Messages:       len(s.transcript),
	}
}

// apply folds one envelope into the session. It returns true when the
// envelope is the first self-join, i.e. the session just became ready.
func (s *Session) apply(env proto.Envelope) (becameReady bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch env.Type {
	case proto.TypeJoin:
		if env.Username == "" {
			return false
		}
		s.users[env.Username] = struct{}{}
		if env.Username == s.username && !s.ready {
			s.ready = true
			return true
		}
	case proto.TypeQuit:
		delete(s.users, env.Username)
	case proto.TypeUserList:
		s.users = toSet(env.Users)
	case proto.TypeChannelList:
		s.channels = toSet(env.Channels)
	case proto.TypeChannelCreate:
		if env.Channel != "" {
			s.channels[env.Channel] = struct{}{}
		}
	case proto.TypeChannelDelete:
		delete(s.channels, env.Channel)
	case proto.TypeDefaultChannel:
		s.defaultChannel = env.Channel
	case proto.TypeMessage, proto.TypeDirectMessage:
		s.transcript = append(s.transcript, MessageFromEnvelope(env))
	}
	return false
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, item := range items {
		if item == "" {
			continue
		}
		set[item] = struct{}{}
	}
	return set
}
