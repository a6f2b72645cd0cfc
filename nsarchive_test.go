package silica

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"howett.net/plist"
)

// marshalArchive serializes a keyed-archive object table the way
// NSKeyedArchiver lays it out: a flat $objects list with uid references and
// a $top dictionary pointing at the root.
func marshalArchive(t *testing.T, objects []any) []byte {
	t.Helper()
	data, err := plist.Marshal(map[string]any{
		"$archiver": "NSKeyedArchiver",
		"$version":  100000,
		"$top":      map[string]any{"root": plist.UID(1)},
		"$objects":  objects,
	}, plist.XMLFormat)
	require.NoError(t, err)
	return data
}

func TestDecodeKeyedArchive(t *testing.T) {
	data := marshalArchive(t, []any{
		"$null",
		map[string]any{"name": plist.UID(2), "count": 7},
		"Alice",
	})
	a, err := decodeKeyedArchive(data)
	require.NoError(t, err)

	name, err := a.String(a.Root(), "name")
	require.NoError(t, err)
	assert.Equal(t, "Alice", name)

	count, err := a.Uint(a.Root(), "count")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), count)
}

func TestDecodeKeyedArchiveWrongArchiver(t *testing.T) {
	data, err := plist.Marshal(map[string]any{
		"$archiver": "SomethingElse",
		"$top":      map[string]any{"root": plist.UID(1)},
		"$objects":  []any{"$null", map[string]any{}},
	}, plist.XMLFormat)
	require.NoError(t, err)

	_, err = decodeKeyedArchive(data)
	assert.ErrorIs(t, err, ErrCorruptedFormat)
}

func TestDecodeKeyedArchiveNotAPlist(t *testing.T) {
	_, err := decodeKeyedArchive([]byte("not a plist"))
	assert.Error(t, err)
}

func TestResolveBadIndex(t *testing.T) {
	data := marshalArchive(t, []any{
		"$null",
		map[string]any{"dangling": plist.UID(9)},
	})
	a, err := decodeKeyedArchive(data)
	require.NoError(t, err)

	_, err = a.String(a.Root(), "dangling")
	assert.ErrorIs(t, err, ErrBadIndex)
}

func TestNullReferences(t *testing.T) {
	data := marshalArchive(t, []any{
		"$null",
		map[string]any{"maybe": plist.UID(0), "nulled": plist.UID(2)},
		"$null",
	})
	a, err := decodeKeyedArchive(data)
	require.NoError(t, err)

	// Both uid 0 and a reference to the "$null" marker read as absent.
	s, err := a.OptString(a.Root(), "maybe")
	require.NoError(t, err)
	assert.Empty(t, s)

	s, err = a.OptString(a.Root(), "nulled")
	require.NoError(t, err)
	assert.Empty(t, s)

	// Absent key is fine for the optional variants only.
	s, err = a.OptString(a.Root(), "missing")
	require.NoError(t, err)
	assert.Empty(t, s)

	_, err = a.String(a.Root(), "missing")
	assert.ErrorIs(t, err, ErrMissingKey)

	_, present, err := a.OptUint(a.Root(), "missing")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestTypedFetches(t *testing.T) {
	data := marshalArchive(t, []any{
		"$null",
		map[string]any{
			"flag":  true,
			"ratio": 0.5,
			"count": 12,
			"blob":  []byte{1, 2, 3},
		},
	})
	a, err := decodeKeyedArchive(data)
	require.NoError(t, err)
	root := a.Root()

	flag, err := a.Bool(root, "flag")
	require.NoError(t, err)
	assert.True(t, flag)

	ratio, err := a.Float(root, "ratio")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, ratio, 1e-9)

	blob, err := a.Bytes(root, "blob")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, blob)

	// Type mismatches are reported, not coerced.
	_, err = a.Bool(root, "count")
	assert.ErrorIs(t, err, ErrTypeMismatch)
	_, err = a.String(root, "flag")
	assert.ErrorIs(t, err, ErrTypeMismatch)
}

func TestObjectsArray(t *testing.T) {
	data := marshalArchive(t, []any{
		"$null",
		map[string]any{"children": plist.UID(2)},
		map[string]any{"NS.objects": []any{plist.UID(3), plist.UID(4)}},
		"first",
		"second",
	})
	a, err := decodeKeyedArchive(data)
	require.NoError(t, err)

	items, err := a.Objects(a.Root(), "children")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "first", items[0])
	assert.Equal(t, "second", items[1])
}

func TestClassName(t *testing.T) {
	data := marshalArchive(t, []any{
		"$null",
		map[string]any{"$class": plist.UID(2)},
		map[string]any{"$classname": "SilicaLayer"},
	})
	a, err := decodeKeyedArchive(data)
	require.NoError(t, err)

	name, err := a.ClassName(a.Root())
	require.NoError(t, err)
	assert.Equal(t, "SilicaLayer", name)
}

func TestParseSize(t *testing.T) {
	w, h, err := parseSize("{2048, 1536}")
	require.NoError(t, err)
	assert.Equal(t, uint32(2048), w)
	assert.Equal(t, uint32(1536), h)

	// The space after the comma is optional.
	w, h, err = parseSize("{4,4}")
	require.NoError(t, err)
	assert.Equal(t, uint32(4), w)
	assert.Equal(t, uint32(4), h)

	for _, bad := range []string{"", "4x4", "{4, }", "{-1, 4}", "{4, 4} "} {
		_, _, err := parseSize(bad)
		assert.ErrorIs(t, err, ErrInvalidValue, "input %q", bad)
	}
}
