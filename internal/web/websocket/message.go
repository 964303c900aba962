package websocket

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// Codec names accepted by CodecByName
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// ErrUnknownCodec is returned by CodecByName for unsupported names
var ErrUnknownCodec = errors.New("unknown codec")

// Message is one frame exchanged with a browser
type Message struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Payload any             `json:"-"`
}

// NewMessage builds a message whose data is payload
func NewMessage(messageType string, payload any) *Message {
	return &Message{Type: messageType, Payload: payload}
}

// Decode unmarshals the message data into v
func (m *Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("message %q has no data", m.Type)
	}
	if err := json.Unmarshal(m.Data, v); err != nil {
		return fmt.Errorf("invalid %s message: %w", m.Type, err)
	}
	return nil
}

// data returns the JSON form of the message data, marshaling Payload when set
func (m *Message) data() (json.RawMessage, error) {
	if m.Payload == nil {
		return m.Data, nil
	}
	data, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return data, nil
}

// Codec converts messages to and from websocket frames
type Codec interface {
	Name() string
	FrameType() int
	Encode(msg *Message) ([]byte, error)
	Decode(data []byte) (*Message, error)
}

// CodecByName returns the codec registered under name
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCodec, name)
	}
}

// JSONCodec sends messages as text frames
type JSONCodec struct{}

func (JSONCodec) Name() string   { return CodecJSON }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(msg *Message) ([]byte, error) {
	data, err := msg.data()
	if err != nil {
		return nil, err
	}
	return json.Marshal(Message{Type: msg.Type, Data: data})
}

func (JSONCodec) Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}
	return &msg, nil
}

// MsgpackCodec sends messages as binary frames. Data still goes through its
// JSON form so custom MarshalJSON methods shape the payload.
type MsgpackCodec struct{}

type msgpackFrame struct {
	Type string `msgpack:"type"`
	Data any    `msgpack:"data,omitempty"`
}

func (MsgpackCodec) Name() string   { return CodecMsgpack }
func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(msg *Message) ([]byte, error) {
	data, err := msg.data()
	if err != nil {
		return nil, err
	}

	frame := msgpackFrame{Type: msg.Type}
	if len(data) > 0 {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var v any
		if err := dec.Decode(&v); err != nil {
			return nil, fmt.Errorf("failed to decode payload: %w", err)
		}
		frame.Data = numbers(v)
	}
	return msgpack.Marshal(&frame)
}

func (MsgpackCodec) Decode(data []byte) (*Message, error) {
	var frame msgpackFrame
	if err := msgpack.Unmarshal(data, &frame); err != nil {
		return nil, fmt.Errorf("malformed message: %w", err)
	}

	msg := &Message{Type: frame.Type}
	if frame.Data != nil {
		raw, err := json.Marshal(frame.Data)
		if err != nil {
			return nil, fmt.Errorf("unsupported %s payload: %w", frame.Type, err)
		}
		msg.Data = raw
	}
	return msg, nil
}

// numbers replaces json.Number values with int64 or float64 so msgpack
// encodes them as numbers rather than strings
func numbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		f, _ := t.Float64()
		return f
	case []any:
		for i := range t {
			t[i] = numbers(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = numbers(t[k])
		}
		return t
	default:
		return v
	}
}
