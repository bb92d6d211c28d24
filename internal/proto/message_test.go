package proto

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"
)

func TestDecodeKnownTypes(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	tests := []struct {
		name string
		raw  string
		want Envelope
	}{
		{
			name: "message with channel",
			raw:  `{"type":"message","message":"hi","author":"bob","channel":"general"}`,
			want: Envelope{Type: TypeMessage, Message: "hi", Author: "bob", Channel: "general"},
		},
		{
			name: "direct message",
			raw:  `{"type":"direct_message","message":"psst","author":"eve"}`,
			want: Envelope{Type: TypeDirectMessage, Message: "psst", Author: "eve"},
		},
		{
			name: "user list",
			raw:  `{"type":"user_list","users":["a","b"]}`,
			want: Envelope{Type: TypeUserList, Users: []string{"a", "b"}},
		},
		{
			name: "channel list",
			raw:  `{"type":"channel_list","channels":["general","random"]}`,
			want: Envelope{Type: TypeChannelList, Channels: []string{"general", "random"}},
		},
		{
			name: "join",
			raw:  `{"type":"join","username":"alice"}`,
			want: Envelope{Type: TypeJoin, Username: "alice"},
		},
		{
			name: "broadcast",
			raw:  ` {"type":"broadcast","message":"maintenance at noon"}` + "\n",
			want: Envelope{Type: TypeBroadcast, Message: "maintenance at noon"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw), now)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !got.ReceivedAt.Equal(now) {
				t.Fatalf("expected received-at %v, got %v", now, got.ReceivedAt)
			}
			if !got.Known() {
				t.Fatalf("expected %q to be a known type", got.Type)
			}
			got.ReceivedAt = time.Time{}
			got.Raw = nil
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected envelope:\n got  %+v\n want %+v", got, tt.want)
			}
		})
	}
}

func TestDecodeAuthAck(t *testing.T) {
	rejected, err := Decode([]byte(`{"type":"auth","success":false}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rejected.AuthRejected() {
		t.Fatalf("expected success=false to be a rejection")
	}

	accepted, err := Decode([]byte(`{"type":"auth","success":true}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if accepted.AuthRejected() {
		t.Fatalf("success=true must not be a rejection")
	}

	bare, err := Decode([]byte(`{"type":"auth"}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if bare.AuthRejected() {
		t.Fatalf("an ack without success must not be a rejection")
	}
}

func TestDecodeUnknownTypeIsNotAnError(t *testing.T) {
	env, err := Decode([]byte(`{"type":"emoji_reaction","emoji":"+1"}`), time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Known() {
		t.Fatalf("expected unknown type")
	}
	if string(env.Raw) != `{"type":"emoji_reaction","emoji":"+1"}` {
		t.Fatalf("raw frame not preserved: %s", env.Raw)
	}
}

func TestDecodeErrors(t *testing.T) {
	cases := []string{
		``,
		`not json`,
		`[1,2,3]`,
		`"message"`,
		`{"message":"no type"}`,
		`{"type":""}`,
		`{"type":7,"message":"numeric type"}`,
		`{"type":null}`,
		`{"type":"message",}`,
	}
	for _, raw := range cases {
		if _, err := Decode([]byte(raw), time.Now()); !errors.Is(err, ErrDecode) {
			t.Fatalf("decode(%q): expected ErrDecode, got %v", raw, err)
		}
	}
}

func TestDecodeMalformedSubfieldsDegrade(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Envelope
	}{
		{
			name: "numeric channel",
			raw:  `{"type":"message","message":"hi","author":"bob","channel":7}`,
			want: Envelope{Type: TypeMessage, Message: "hi", Author: "bob"},
		},
		{
			name: "null author",
			raw:  `{"type":"message","message":"system notice","author":null}`,
			want: Envelope{Type: TypeMessage, Message: "system notice"},
		},
		{
			name: "mixed user list",
			raw:  `{"type":"user_list","users":["a",null,3,"b",{"x":1}]}`,
			want: Envelope{Type: TypeUserList, Users: []string{"a", "b"}},
		},
		{
			name: "users not a list",
			raw:  `{"type":"user_list","users":"a,b"}`,
			want: Envelope{Type: TypeUserList},
		},
		{
			name: "channels object",
			raw:  `{"type":"channel_list","channels":{"general":true}}`,
			want: Envelope{Type: TypeChannelList},
		},
		{
			name: "username as list",
			raw:  `{"type":"join","username":["alice"]}`,
			want: Envelope{Type: TypeJoin},
		},
		{
			name: "success as string",
			raw:  `{"type":"auth","success":"false"}`,
			want: Envelope{Type: TypeAuth},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw), time.Now())
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(got.Raw) != tt.raw {
				t.Fatalf("raw frame not preserved: %s", got.Raw)
			}
			got.ReceivedAt = time.Time{}
			got.Raw = nil
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected envelope:\n got  %+v\n want %+v", got, tt.want)
			}
		})
	}
}

func TestEncodeEmitsOnlyProtocolFields(t *testing.T) {
	tests := []struct {
		name string
		req  Request
		want map[string]any
	}{
		{
			name: "auth",
			req:  NewAuth("alice", "secret"),
			want: map[string]any{"type": "auth", "username": "alice", "password": "secret"},
		},
		{
			name: "message without channel",
			req:  NewMessage("hello", ""),
			want: map[string]any{"type": "message", "message": "hello"},
		},
		{
			name: "message with channel",
			req:  NewMessage("hello", "random"),
			want: map[string]any{"type": "message", "message": "hello", "channel": "random"},
		},
		{
			name: "direct message",
			req:  NewDirectMessage("psst", "bob"),
			want: map[string]any{"type": "direct_message", "message": "psst", "recipient": "bob"},
		},
		{
			name: "typing",
			req:  NewTyping(),
			want: map[string]any{"type": "typing"},
		},
		{
			name: "zero value still carries its type",
			req:  MessageRequest{Message: "x"},
			want: map[string]any{"type": "message", "message": "x"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.req)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("unexpected payload:\n got  %v\n want %v", got, tt.want)
			}
		})
	}
}

func TestEncodeThenDecodeKeepsProtocolFields(t *testing.T) {
	data, err := Encode(NewMessage("round trip", "general"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err := Decode(data, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeMessage || env.Message != "round trip" || env.Channel != "general" {
		t.Fatalf("fields lost: %+v", env)
	}

	data, err = Encode(NewDirectMessage("hey", "bob"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	env, err = Decode(data, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Type != TypeDirectMessage || env.Message != "hey" || env.Recipient != "bob" {
		t.Fatalf("fields lost: %+v", env)
	}
}

func TestEncodeNil(t *testing.T) {
	if _, err := Encode(nil); err == nil {
		t.Fatalf("expected error for nil request")
	}
}
