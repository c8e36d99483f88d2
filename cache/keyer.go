package cache

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Well-known namespaces used by upstream callers.
const (
	NamespaceOCR      = "ocr"
	NamespaceAnalysis = "analysis"
	NamespacePath     = "path"
)

// Keyer generates deterministic cache keys from request payloads.
//
// Contract:
// - Determinism: same inputs must produce same key, regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Key generates a cache key from a namespace and payload.
	Key(namespace string, payload any) (string, error)
}

// KeyerFunc adapts a plain function to the Keyer interface.
type KeyerFunc func(namespace string, payload any) (string, error)

// Key calls f.
func (f KeyerFunc) Key(namespace string, payload any) (string, error) {
	return f(namespace, payload)
}

// DefaultKeyer generates SHA-256 based cache keys.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key generates a deterministic cache key.
// Format: <namespace>:<hash>
// where hash is the hex SHA-256 of the canonical JSON form of payload.
func (k *DefaultKeyer) Key(namespace string, payload any) (string, error) {
	if strings.TrimSpace(namespace) == "" || strings.Contains(namespace, ":") {
		return "", fmt.Errorf("%w: namespace %q", ErrInvalidKey, namespace)
	}

	canonical, err := Canonicalize(payload)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize payload: %w", err)
	}

	sum := sha256.Sum256(canonical)
	return namespace + ":" + hex.EncodeToString(sum[:]), nil
}

// Canonicalize produces a deterministic JSON representation of v.
// Object keys are sorted at every depth; array order is preserved.
// Structs and other typed values are normalized through JSON first so a
// struct and a map with the same fields canonicalize identically.
func Canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	case string, bool, json.Number:
		return json.Marshal(val)
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	switch generic.(type) {
	case map[string]any, []any:
		return Canonicalize(generic)
	default:
		// Scalars are already canonical.
		return raw, nil
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := Canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := Canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
