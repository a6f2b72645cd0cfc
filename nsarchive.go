package silica

import (
	"fmt"
	"regexp"
	"strconv"

	"howett.net/plist"
)

// keyedArchive is a decoded NSKeyedArchiver object graph: a flat object
// table addressed by 1-based uid references, with a $top dictionary pointing
// at the root object. Index 0 is reserved ($null) and resolves to nil.
type keyedArchive struct {
	objects []any
	root    map[string]any
}

// decodeKeyedArchive parses a property-list keyed archive and resolves its
// root dictionary.
func decodeKeyedArchive(data []byte) (*keyedArchive, error) {
	var raw struct {
		Archiver string         `plist:"$archiver"`
		Version  uint64         `plist:"$version"`
		Top      map[string]any `plist:"$top"`
		Objects  []any          `plist:"$objects"`
	}
	if _, err := plist.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse keyed archive: %w", err)
	}
	if raw.Archiver != "NSKeyedArchiver" {
		return nil, fmt.Errorf("archiver %q: %w", raw.Archiver, ErrCorruptedFormat)
	}
	if len(raw.Objects) == 0 {
		return nil, fmt.Errorf("empty object table: %w", ErrCorruptedFormat)
	}

	a := &keyedArchive{objects: raw.Objects}

	ref, ok := raw.Top["root"]
	if !ok {
		return nil, fmt.Errorf("$top root: %w", ErrMissingKey)
	}
	rootVal, err := a.resolve(ref)
	if err != nil {
		return nil, err
	}
	root, ok := rootVal.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("$top root: %w", ErrTypeMismatch)
	}
	a.root = root
	return a, nil
}

// Root returns the archive's root dictionary.
func (a *keyedArchive) Root() map[string]any { return a.root }

// resolve follows a uid indirection into the object table. Non-uid values
// pass through unchanged. Uid 0 and the "$null" marker resolve to nil.
func (a *keyedArchive) resolve(v any) (any, error) {
	uid, ok := v.(plist.UID)
	if !ok {
		return v, nil
	}
	idx := uint64(uid)
	if idx == 0 {
		return nil, nil
	}
	if idx >= uint64(len(a.objects)) {
		return nil, fmt.Errorf("object %d of %d: %w", idx, len(a.objects), ErrBadIndex)
	}
	obj := a.objects[idx]
	if s, ok := obj.(string); ok && s == "$null" {
		return nil, nil
	}
	return obj, nil
}

// value fetches a key and resolves indirection. Missing keys error; a key
// holding a null reference returns nil.
func (a *keyedArchive) value(d map[string]any, key string) (any, error) {
	v, ok := d[key]
	if !ok {
		return nil, fmt.Errorf("key %q: %w", key, ErrMissingKey)
	}
	return a.resolve(v)
}

// Dict fetches a dictionary value.
func (a *keyedArchive) Dict(d map[string]any, key string) (map[string]any, error) {
	v, err := a.value(d, key)
	if err != nil {
		return nil, err
	}
	dict, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("key %q: expected dictionary, got %T: %w", key, v, ErrTypeMismatch)
	}
	return dict, nil
}

// String fetches a string value.
func (a *keyedArchive) String(d map[string]any, key string) (string, error) {
	v, err := a.value(d, key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("key %q: expected string, got %T: %w", key, v, ErrTypeMismatch)
	}
	return s, nil
}

// OptString fetches a string that may be absent or null.
func (a *keyedArchive) OptString(d map[string]any, key string) (string, error) {
	v, ok := d[key]
	if !ok {
		return "", nil
	}
	rv, err := a.resolve(v)
	if err != nil || rv == nil {
		return "", err
	}
	s, ok := rv.(string)
	if !ok {
		return "", fmt.Errorf("key %q: expected string, got %T: %w", key, rv, ErrTypeMismatch)
	}
	return s, nil
}

// Bool fetches a boolean value.
func (a *keyedArchive) Bool(d map[string]any, key string) (bool, error) {
	v, err := a.value(d, key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("key %q: expected bool, got %T: %w", key, v, ErrTypeMismatch)
	}
	return b, nil
}

// Uint fetches an unsigned integer, accepting any plist numeric encoding.
func (a *keyedArchive) Uint(d map[string]any, key string) (uint64, error) {
	v, err := a.value(d, key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case uint64:
		return n, nil
	case int64:
		if n < 0 {
			return 0, fmt.Errorf("key %q: negative value %d: %w", key, n, ErrTypeMismatch)
		}
		return uint64(n), nil
	case uint32:
		return uint64(n), nil
	case int:
		if n < 0 {
			return 0, fmt.Errorf("key %q: negative value %d: %w", key, n, ErrTypeMismatch)
		}
		return uint64(n), nil
	default:
		return 0, fmt.Errorf("key %q: expected integer, got %T: %w", key, v, ErrTypeMismatch)
	}
}

// OptUint fetches an unsigned integer that may be absent or null. The
// second return value reports presence.
func (a *keyedArchive) OptUint(d map[string]any, key string) (uint64, bool, error) {
	v, ok := d[key]
	if !ok {
		return 0, false, nil
	}
	rv, err := a.resolve(v)
	if err != nil {
		return 0, false, err
	}
	if rv == nil {
		return 0, false, nil
	}
	n, err := a.Uint(d, key)
	if err != nil {
		return 0, false, err
	}
	return n, true, nil
}

// Float fetches a floating-point value, accepting integer encodings too.
func (a *keyedArchive) Float(d map[string]any, key string) (float64, error) {
	v, err := a.value(d, key)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("key %q: expected number, got %T: %w", key, v, ErrTypeMismatch)
	}
}

// Bytes fetches a data value.
func (a *keyedArchive) Bytes(d map[string]any, key string) ([]byte, error) {
	v, err := a.value(d, key)
	if err != nil {
		return nil, err
	}
	b, ok := v.([]byte)
	if !ok {
		return nil, fmt.Errorf("key %q: expected data, got %T: %w", key, v, ErrTypeMismatch)
	}
	return b, nil
}

// Objects fetches an NS.objects array and resolves each element.
func (a *keyedArchive) Objects(d map[string]any, key string) ([]any, error) {
	wrapper, err := a.Dict(d, key)
	if err != nil {
		return nil, err
	}
	v, err := a.value(wrapper, "NS.objects")
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("key %q: expected NS.objects array, got %T: %w", key, v, ErrTypeMismatch)
	}
	out := make([]any, len(arr))
	for i, e := range arr {
		r, err := a.resolve(e)
		if err != nil {
			return nil, fmt.Errorf("key %q element %d: %w", key, i, err)
		}
		out[i] = r
	}
	return out, nil
}

// ClassName resolves a dictionary's $class reference to its class name.
func (a *keyedArchive) ClassName(d map[string]any) (string, error) {
	cls, err := a.Dict(d, "$class")
	if err != nil {
		return "", err
	}
	return a.String(cls, "$classname")
}

var sizeRe = regexp.MustCompile(`^\{(\d+), ?(\d+)\}$`)

// parseSize parses a CGSize-style "{width, height}" string.
func parseSize(s string) (w, h uint32, err error) {
	m := sizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, ErrInvalidValue)
	}
	w64, err := strconv.ParseUint(m[1], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, ErrInvalidValue)
	}
	h64, err := strconv.ParseUint(m[2], 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("size %q: %w", s, ErrInvalidValue)
	}
	return uint32(w64), uint32(h64), nil
}
