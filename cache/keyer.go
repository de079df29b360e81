package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode/utf8"
)

// maxParamDepth bounds nesting of params. Deeper values are treated as cyclic.
const maxParamDepth = 32

// Keyer maps request coordinates to a cache key. Equal requests must map to
// equal keys whatever the params' map iteration order. Implementations must
// be safe for concurrent use.
type Keyer interface {
	Key(method, path string, params Params) (string, error)
}

// DefaultKeyer produces BuildKey keys.
type DefaultKeyer struct{}

func NewDefaultKeyer() *DefaultKeyer { return &DefaultKeyer{} }

func (*DefaultKeyer) Key(method, path string, params Params) (string, error) {
	return BuildKey(method, path, params)
}

// BuildKey returns METHOD:path:params with the method upper-cased and params
// in canonical JSON. Strings that are not valid UTF-8 are written as 0x plus
// their hex bytes, so distinct byte strings never share a key.
//
// When the key would exceed MaxKeyLength the params segment becomes # plus
// 16 hex chars of its SHA-256, keeping the path prefix invalidatable. If the
// path alone is still too long, it is cut to fit and the hash covers the
// whole path as well.
func BuildKey(method, path string, params Params) (string, error) {
	method = strings.ToUpper(strings.TrimSpace(method))
	path = strings.TrimSpace(path)
	if method == "" || path == "" {
		return "", ErrInvalidKey
	}

	canonical := []byte("{}")
	if len(params) > 0 {
		var err error
		canonical, err = canonicalParams(params)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
	}

	key := method + ":" + path + ":" + string(canonical)
	if len(key) > MaxKeyLength {
		key = hashedKey(method, path, canonical)
	}

	if err := ValidateKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// hashedKeySuffix is the length of ":#" plus 16 hex chars.
const hashedKeySuffix = 2 + 16

func hashedKey(method, path string, canonical []byte) string {
	room := MaxKeyLength - len(method) - 1 - hashedKeySuffix
	if len(path) <= room {
		hash := sha256.Sum256(canonical)
		return method + ":" + path + ":#" + hex.EncodeToString(hash[:8])
	}

	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(canonical)
	return method + ":" + path[:max(room, 0)] + ":#" + hex.EncodeToString(h.Sum(nil)[:8])
}

// RedactKey returns a BuildKey key with a literal params segment replaced by
// its hash, for logs and traces. Keys in any other shape are hashed whole.
func RedactKey(key string) string {
	method, rest, ok := strings.Cut(key, ":")
	if !ok {
		return hashSegment(key)
	}
	i := strings.Index(rest, ":{")
	if i < 0 {
		if strings.Contains(rest, ":#") {
			return key
		}
		return hashSegment(key)
	}
	params := rest[i+1:]
	if params == "{}" {
		return key
	}
	return method + ":" + rest[:i] + ":" + hashSegment(params)
}

func hashSegment(s string) string {
	hash := sha256.Sum256([]byte(s))
	return "#" + hex.EncodeToString(hash[:8])
}

// canonicalParams writes params as compact JSON with map keys sorted at
// every depth.
func canonicalParams(params Params) ([]byte, error) {
	var enc canonicalEncoder
	if err := enc.encodeMap(params, 0); err != nil {
		return nil, err
	}
	return enc.buf.Bytes(), nil
}

type canonicalEncoder struct {
	buf bytes.Buffer
}

func (e *canonicalEncoder) encode(v any, depth int) error {
	if depth > maxParamDepth {
		return fmt.Errorf("nesting exceeds %d levels", maxParamDepth)
	}
	switch val := v.(type) {
	case nil:
		e.buf.WriteString("null")
	case string:
		return e.encodeString(val)
	case []string:
		if val == nil {
			e.buf.WriteString("null")
			return nil
		}
		e.buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.encodeString(item); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
	case map[string]string:
		if val == nil {
			e.buf.WriteString("null")
			return nil
		}
		m := make(map[string]any, len(val))
		for k, v := range val {
			m[k] = v
		}
		return e.encodeMap(m, depth)
	case map[string]any:
		return e.encodeMap(val, depth)
	case []any:
		e.buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				e.buf.WriteByte(',')
			}
			if err := e.encode(item, depth+1); err != nil {
				return err
			}
		}
		e.buf.WriteByte(']')
	default:
		// encoding/json sorts keys of other map types and rejects channels,
		// funcs and NaN.
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		e.buf.Write(b)
	}
	return nil
}

func (e *canonicalEncoder) encodeMap(m map[string]any, depth int) error {
	e.buf.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(m)) {
		if i > 0 {
			e.buf.WriteByte(',')
		}
		if err := e.encodeString(k); err != nil {
			return err
		}
		e.buf.WriteByte(':')
		if err := e.encode(m[k], depth+1); err != nil {
			return err
		}
	}
	e.buf.WriteByte('}')
	return nil
}

// encodeString writes s as a JSON string. encoding/json would replace invalid
// UTF-8 with U+FFFD, so such strings are written as 0x<hex>, a form no JSON
// value takes.
func (e *canonicalEncoder) encodeString(s string) error {
	if !utf8.ValidString(s) {
		e.buf.WriteString("0x")
		e.buf.WriteString(hex.EncodeToString([]byte(s)))
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	e.buf.Write(b)
	return nil
}
