package cache

import (
	"fetchguard/internal/types"

	"github.com/klauspost/compress/zstd"
)

// Codec compresses response bodies before they go into the cache.
// The zero value is not usable; use NewCodec.
type Codec struct {
	enc *zstd.Encoder
	dec *zstd.Decoder
}

func NewCodec() (*Codec, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, types.Err(types.ErrEncode, err, "zstd writer")
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, types.Err(types.ErrEncode, err, "zstd reader")
	}
	return &Codec{enc: enc, dec: dec}, nil
}

// Encode compresses b. EncodeAll is safe for concurrent use.
func (c *Codec) Encode(b []byte) []byte {
	return c.enc.EncodeAll(b, make([]byte, 0, len(b)))
}

func (c *Codec) Decode(b []byte) ([]byte, error) {
	out, err := c.dec.DecodeAll(b, nil)
	if err != nil {
		return nil, types.Err(types.ErrEncode, err, "")
	}
	return out, nil
}
