package silica

import "errors"

// Sentinel errors for document decoding. Callers match them with errors.Is;
// load paths wrap them with the failing key or stage.
var (
	// ErrMissingKey reports a keyed-archive dictionary without an
	// expected key.
	ErrMissingKey = errors.New("missing key")

	// ErrTypeMismatch reports a keyed-archive value of the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrBadIndex reports a keyed-archive uid pointing outside the
	// object table.
	ErrBadIndex = errors.New("bad object index")

	// ErrInvalidValue reports a well-typed value outside its domain,
	// such as an unknown blend mode or orientation.
	ErrInvalidValue = errors.New("invalid value")

	// ErrCorruptedFormat reports structural damage: a malformed chunk
	// filename, a truncated block stream, or a broken archive.
	ErrCorruptedFormat = errors.New("corrupted format")

	// ErrWrongMagicNumber reports an unrecognized block magic in a tile
	// stream.
	ErrWrongMagicNumber = errors.New("wrong magic number")

	// ErrContentLength reports a decompressed size that does not match
	// the declared size.
	ErrContentLength = errors.New("content length mismatch")

	// ErrBlockTooBig reports a block whose encoded size exceeds its
	// declared decoded size.
	ErrBlockTooBig = errors.New("block too big")
)
