package silica

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	lz4 "github.com/pierrec/lz4/v4"
	lzo "github.com/rasky/go-lzo"
)

// Tile payloads come in two codec variants selected by file extension:
// ".lz4" is a stream of self-describing LZ4 blocks, ".chunk" is a raw LZO
// stream decompressed to a known exact size.
const (
	chunkExtLZ4 = ".lz4"
	chunkExtLZO = ".chunk"
)

// Block magics of the framed LZ4 stream. Every block starts with a 4-byte
// tag; compressed and uncompressed blocks carry the decoded and encoded
// byte counts as little-endian u32 values.
var (
	blockMagicCompressed   = [4]byte{'b', 'v', '4', '1'}
	blockMagicUncompressed = [4]byte{'b', 'v', '4', '-'}
	blockMagicEnd          = [4]byte{'b', 'v', '4', '$'}
)

// decompressChunk decodes one tile payload to exactly decodedLen bytes.
func decompressChunk(name string, data []byte, decodedLen int) ([]byte, error) {
	switch {
	case strings.HasSuffix(name, chunkExtLZ4):
		return decompressLZ4(data, decodedLen)
	case strings.HasSuffix(name, chunkExtLZO):
		return decompressLZO(data, decodedLen)
	default:
		return nil, fmt.Errorf("chunk %q: unknown codec extension: %w", name, ErrInvalidValue)
	}
}

// decompressLZ4 decodes a framed LZ4 block stream. Each block declares its
// decoded and encoded lengths; a compressed block whose actual output size
// differs from the declared size fails with ErrContentLength, and an
// unknown magic fails with ErrWrongMagicNumber. The stream must end with an
// end-mark block and decode to exactly decodedLen bytes.
func decompressLZ4(src []byte, decodedLen int) ([]byte, error) {
	out := make([]byte, 0, decodedLen)
	for {
		if len(src) < 4 {
			return nil, fmt.Errorf("truncated block header: %w", ErrCorruptedFormat)
		}
		var magic [4]byte
		copy(magic[:], src)
		src = src[4:]

		switch magic {
		case blockMagicEnd:
			if len(out) != decodedLen {
				return nil, fmt.Errorf("decoded %d bytes, expected %d: %w",
					len(out), decodedLen, ErrContentLength)
			}
			return out, nil

		case blockMagicCompressed:
			dlen, elen, rest, err := readBlockLens(src)
			if err != nil {
				return nil, err
			}
			if elen > dlen {
				return nil, fmt.Errorf("encoded %d > decoded %d: %w", elen, dlen, ErrBlockTooBig)
			}
			if uint32(len(rest)) < elen {
				return nil, fmt.Errorf("truncated block body: %w", ErrCorruptedFormat)
			}
			dst := make([]byte, dlen)
			n, err := lz4.UncompressBlock(rest[:elen], dst)
			if err != nil {
				return nil, fmt.Errorf("lz4 block: %w", err)
			}
			if uint32(n) != dlen {
				return nil, fmt.Errorf("block decoded %d bytes, declared %d: %w",
					n, dlen, ErrContentLength)
			}
			out = append(out, dst...)
			src = rest[elen:]

		case blockMagicUncompressed:
			dlen, elen, rest, err := readBlockLens(src)
			if err != nil {
				return nil, err
			}
			if dlen != elen {
				return nil, fmt.Errorf("uncompressed block %d != %d: %w", dlen, elen, ErrBlockTooBig)
			}
			if uint32(len(rest)) < dlen {
				return nil, fmt.Errorf("truncated block body: %w", ErrCorruptedFormat)
			}
			out = append(out, rest[:dlen]...)
			src = rest[dlen:]

		default:
			return nil, fmt.Errorf("block magic %q: %w", magic[:], ErrWrongMagicNumber)
		}
	}
}

func readBlockLens(src []byte) (dlen, elen uint32, rest []byte, err error) {
	if len(src) < 8 {
		return 0, 0, nil, fmt.Errorf("truncated block header: %w", ErrCorruptedFormat)
	}
	dlen = binary.LittleEndian.Uint32(src)
	elen = binary.LittleEndian.Uint32(src[4:])
	return dlen, elen, src[8:], nil
}

// decompressLZO decodes a raw LZO1X stream into exactly decodedLen bytes.
func decompressLZO(src []byte, decodedLen int) ([]byte, error) {
	out, err := lzo.Decompress1X(bytes.NewReader(src), len(src), decodedLen)
	if err != nil {
		return nil, fmt.Errorf("lzo: %w", err)
	}
	if len(out) != decodedLen {
		return nil, fmt.Errorf("decoded %d bytes, expected %d: %w",
			len(out), decodedLen, ErrContentLength)
	}
	return out, nil
}
