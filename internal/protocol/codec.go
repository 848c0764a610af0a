package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/matheus3301/chatsync/internal/chat"
)

// ErrUnknownEvent is returned by Decode for event names it has no payload type for.
var ErrUnknownEvent = errors.New("unknown event")

// Envelope is the JSON frame exchanged on the realtime channel.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode wraps an outbound event into a wire frame.
func Encode(out Outbound) ([]byte, error) {
	if err := chat.Validate(out); err != nil {
		return nil, fmt.Errorf("encode %q: %w", out.EventName(), err)
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %q: %w", out.EventName(), err)
	}
	return json.Marshal(Envelope{Event: out.EventName(), Data: data})
}

// Unwrap parses a wire frame without decoding its payload.
func Unwrap(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("unwrap frame: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, errors.New("unwrap frame: missing event name")
	}
	return env, nil
}

// Decode turns a named payload into its tagged, validated structure.
func Decode(event string, data json.RawMessage) (Inbound, error) {
	switch event {
	case EventMessageReceived:
		var m chat.Message
		if err := unmarshal(event, data, &m); err != nil {
			return nil, err
		}
		if err := chat.ValidateMessage(&m); err != nil {
			return nil, fmt.Errorf("decode %q: %w", event, err)
		}
		return MessageReceived{Message: m}, nil
	case EventGroupCreated:
		var g GroupCreated
		if err := unmarshal(event, data, &g); err != nil {
			return nil, err
		}
		if err := chat.ValidateConversation(&g.Conversation); err != nil {
			return nil, fmt.Errorf("decode %q: %w", event, err)
		}
		return g, nil
	case EventConnected:
		return Connected{}, nil
	case EventTyping:
		return decodeInto[Typing](event, data)
	case EventStopTyping:
		return decodeInto[StopTyping](event, data)
	case EventMessageRead:
		return decodeInto[MessageRead](event, data)
	case EventOnlineStatus:
		return decodeInto[OnlineStatus](event, data)
	case EventUserOnline:
		return decodeInto[UserOnline](event, data)
	case EventUserOffline:
		return decodeInto[UserOffline](event, data)
	case EventOnlineUsers:
		return decodeInto[OnlineUsers](event, data)
	case EventGroupRenamed:
		return decodeInto[GroupRenamed](event, data)
	case EventGroupDeleted:
		return decodeInto[GroupDeleted](event, data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, event)
	}
}

func decodeInto[T Inbound](event string, data json.RawMessage) (Inbound, error) {
	var v T
	if err := unmarshal(event, data, &v); err != nil {
		return nil, err
	}
	if err := chat.Validate(v); err != nil {
		return nil, fmt.Errorf("decode %q: %w", event, err)
	}
	return v, nil
}

func unmarshal(event string, data json.RawMessage, v any) error {
	if len(data) == 0 {
		return fmt.Errorf("decode %q: empty payload", event)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %q: %w", event, err)
	}
	return nil
}
