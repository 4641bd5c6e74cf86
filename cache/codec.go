package cache

import "github.com/vmihailenco/msgpack/v5"

// Codec turns cached values into bytes and back.
type Codec interface {
	Encode(v any) ([]byte, error)
	Decode(data []byte, v any) error
}

// MsgpackCodec encodes values with msgpack. Struct fields are matched by
// their msgpack tags, falling back to field names.
type MsgpackCodec struct{}

func (MsgpackCodec) Encode(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (MsgpackCodec) Decode(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}

// DefaultCodec is the codec used when none is configured.
var DefaultCodec Codec = MsgpackCodec{}
