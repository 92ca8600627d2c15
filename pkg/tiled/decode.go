package tiled

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Tile payload encodings and compressions as declared in map files.
const (
	EncodingCSV    = "csv"
	EncodingBase64 = "base64"

	CompressionNone = ""
	CompressionGzip = "gzip"
	CompressionZlib = "zlib"
)

// DefaultMaxDecompressedBytes caps how much a compressed tile payload may
// expand to. A small adversarial stream can otherwise claim an enormous
// decompressed size.
const DefaultMaxDecompressedBytes = 64 << 20

// Decode errors.
var (
	ErrInvalidBase64      = errors.New("invalid base64 tile data")
	ErrTruncatedTileData  = errors.New("tile data length is not a multiple of 4")
	ErrUnknownEncoding    = errors.New("unknown tile data encoding")
	ErrUnknownCompression = errors.New("unknown tile data compression")
	ErrPayloadTooLarge    = errors.New("decompressed tile data exceeds limit")
)

// DecodeBase64 decodes a standard-alphabet base64 payload, ignoring any
// whitespace the document formatter inserted.
func DecodeBase64(s string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)

	data, err := base64.StdEncoding.DecodeString(clean)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return data, nil
}

// Decompress inflates a gzip- or zlib-framed payload. The output is capped
// at maxBytes (DefaultMaxDecompressedBytes when <= 0) and decompression
// fails fast beyond it.
func Decompress(data []byte, compression string, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxDecompressedBytes
	}

	var (
		r   io.ReadCloser
		err error
	)
	switch compression {
	case CompressionGzip:
		r, err = gzip.NewReader(bytes.NewReader(data))
	case CompressionZlib:
		r, err = zlib.NewReader(bytes.NewReader(data))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s stream (%d bytes in): %w", compression, len(data), err)
	}
	defer r.Close()

	out, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s stream (%d bytes in, %d bytes out): %w",
			compression, len(data), len(out), err)
	}
	if int64(len(out)) > maxBytes {
		return nil, fmt.Errorf("%w: %s stream from %d input bytes passed %d bytes",
			ErrPayloadTooLarge, compression, len(data), maxBytes)
	}
	return out, nil
}

// BytesToGIDs reinterprets a decoded byte stream as little-endian 4-byte
// gids. A byte count that is not a multiple of 4 is a hard error; the
// remainder is never silently dropped.
func BytesToGIDs(data []byte) ([]GID, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: got %d bytes (%d complete ids, %d bytes over)",
			ErrTruncatedTileData, len(data), len(data)/4, len(data)%4)
	}

	gids := make([]GID, len(data)/4)
	for i := range gids {
		gids[i] = GID(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return gids, nil
}

// ParseCSV parses a comma-separated decimal gid list. Unlike the binary
// path this is lenient: a malformed token is logged and skipped, never
// fatal, with one aggregate warning when anything was dropped.
func ParseCSV(s string, log *zap.Logger) []GID {
	if log == nil {
		log = zap.NewNop()
	}

	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}

	fields := strings.Split(s, ",")
	gids := make([]GID, 0, len(fields))
	dropped := 0
	for i, f := range fields {
		tok := strings.TrimSpace(f)
		v, err := strconv.ParseUint(tok, 10, 32)
		if err != nil {
			log.Warn("skipping malformed csv tile token",
				zap.Int("index", i), zap.String("token", tok))
			dropped++
			continue
		}
		gids = append(gids, GID(v))
	}
	if dropped > 0 {
		log.Warn("csv tile data contained malformed tokens",
			zap.Int("dropped", dropped), zap.Int("kept", len(gids)))
	}
	return gids
}

// DecodeTileData converts a layer's raw tile-payload text into gids,
// dispatching on the declared encoding and compression. Unknown identifiers
// are a hard failure.
func DecodeTileData(text, encoding, compression string, maxBytes int64, log *zap.Logger) ([]GID, error) {
	switch encoding {
	case EncodingCSV:
		return ParseCSV(text, log), nil

	case EncodingBase64:
		raw, err := DecodeBase64(text)
		if err != nil {
			return nil, err
		}
		switch compression {
		case CompressionNone:
		case CompressionGzip, CompressionZlib:
			raw, err = Decompress(raw, compression, maxBytes)
			if err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownCompression, compression)
		}
		return BytesToGIDs(raw)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEncoding, encoding)
	}
}
