package frame

import "github.com/klauspost/compress/zstd"

// Payloads at or below this size go out uncompressed; the header overhead
// is not worth it for short JSON bodies.
const compressMin = 1024

var (
	zstdEnc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	zstdDec, _ = zstd.NewReader(nil)
)

// Compress applies zstd to payload when it is large enough and the result
// actually shrinks. The second return value reports whether the caller must
// set FlagCompressed.
func Compress(payload []byte) ([]byte, bool) {
	if len(payload) <= compressMin {
		return payload, false
	}
	out := zstdEnc.EncodeAll(payload, make([]byte, 0, len(payload)))
	if len(out) >= len(payload) {
		return payload, false
	}
	return out, true
}

// Decompress reverses Compress.
func Decompress(data []byte) ([]byte, error) {
	return zstdDec.DecodeAll(data, nil)
}
