package relayhook

import (
	"bytes"
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec serializes event envelopes.
type Codec interface {
	// Marshal encodes v.
	Marshal(v any) ([]byte, error)

	// Name returns the codec identifier ("json", "msgpack").
	Name() string
}

// Codec name constants.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return MsgpackCodec{}
	default:
		return JSONCodec{}
	}
}

// JSONCodec encodes envelopes as JSON.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Name() string { return CodecNameJSON }

// MsgpackCodec encodes envelopes as MessagePack. Field names follow the
// json tags so that both encodings carry the same keys.
type MsgpackCodec struct{}

func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Name() string { return CodecNameMsgpack }
