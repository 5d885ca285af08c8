package logs

import (
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
	"github.com/pkg/errors"
)

// Compression is the codec applied to the payload of a redo frame.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionSnappy
	CompressionLZ4
)

var ErrUnknownCompression = errors.New("unknown redo log compression")

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	}
	return CompressionNone, errors.Wrap(ErrUnknownCompression, s)
}

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	}
	return "unknown"
}

// compress returns the stored payload and the codec actually used. A block
// lz4 cannot shrink is kept raw.
func compress(c Compression, raw []byte) ([]byte, Compression, error) {
	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionSnappy:
		return snappy.Encode(nil, raw), CompressionSnappy, nil
	case CompressionLZ4:
		dst := make([]byte, lz4.CompressBlockBound(len(raw)))
		n, err := lz4.CompressBlock(raw, dst, nil)
		if err != nil {
			return nil, c, errors.Wrap(err, "lz4 compress")
		}
		if n == 0 || n >= len(raw) {
			return raw, CompressionNone, nil
		}
		return dst[:n], CompressionLZ4, nil
	}
	return nil, c, errors.Wrapf(ErrUnknownCompression, "%d", c)
}

func decompress(c Compression, stored []byte, rawLen int) ([]byte, error) {
	switch c {
	case CompressionNone:
		return stored, nil
	case CompressionSnappy:
		raw, err := snappy.Decode(nil, stored)
		if err != nil {
			return nil, errors.Wrap(err, "snappy decode")
		}
		return raw, nil
	case CompressionLZ4:
		raw := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(stored, raw)
		if err != nil {
			return nil, errors.Wrap(err, "lz4 decode")
		}
		return raw[:n], nil
	}
	return nil, errors.Wrapf(ErrUnknownCompression, "%d", c)
}
