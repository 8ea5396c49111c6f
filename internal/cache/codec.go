package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"animelight/internal/config"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec turns values into the strings stored in a KV.
type Codec interface {
	Name() string
	Encode(v interface{}) (string, error)
	Decode(data string, v interface{}) error
}

// NewCodec returns the codec configured by CACHE_CODEC.
func NewCodec(name string) (Codec, error) {
	switch name {
	case config.CacheCodecJSON, "":
		return JSONCodec{}, nil
	case config.CacheCodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown cache codec %q", name)
	}
}

type JSONCodec struct{}

func (JSONCodec) Name() string { return config.CacheCodecJSON }

func (JSONCodec) Encode(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (JSONCodec) Decode(data string, v interface{}) error {
	return json.Unmarshal([]byte(data), v)
}

// MsgpackCodec stores msgpack bytes base64-encoded so every KV can hold them as text.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return config.CacheCodecMsgpack }

func (MsgpackCodec) Encode(v interface{}) (string, error) {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func (MsgpackCodec) Decode(data string, v interface{}) error {
	b, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	return msgpack.Unmarshal(b, v)
}
