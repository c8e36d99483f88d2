package cache

import (
	"errors"
	"strings"
	"testing"
)

func TestKeyer_DeterministicForMaps(t *testing.T) {
	keyer := NewDefaultKeyer()

	// Same content, different insertion order
	map1 := map[string]any{"b": 2, "a": 1, "c": 3}
	map2 := map[string]any{"a": 1, "c": 3, "b": 2}
	map3 := map[string]any{"c": 3, "b": 2, "a": 1}

	key1, err := keyer.Key(NamespaceAnalysis, map1)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key(NamespaceAnalysis, map2)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key3, err := keyer.Key(NamespaceAnalysis, map3)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 != key2 || key2 != key3 {
		t.Errorf("Keys should be equal for same content:\n  key1=%s\n  key2=%s\n  key3=%s", key1, key2, key3)
	}
}

func TestKeyer_ArrayOrderPreserved(t *testing.T) {
	keyer := NewDefaultKeyer()

	input1 := map[string]any{"items": []any{1, 2, 3}}
	input2 := map[string]any{"items": []any{3, 2, 1}}

	key1, err := keyer.Key(NamespacePath, input1)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key(NamespacePath, input2)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 == key2 {
		t.Errorf("Keys should differ for different array order:\n  key1=%s\n  key2=%s", key1, key2)
	}
}

func TestKeyer_DifferentNamespacesDifferentKeys(t *testing.T) {
	keyer := NewDefaultKeyer()
	input := map[string]any{"image": "abc"}

	key1, err := keyer.Key(NamespaceOCR, input)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key(NamespaceAnalysis, input)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 == key2 {
		t.Errorf("Keys should differ for different namespaces:\n  key1=%s\n  key2=%s", key1, key2)
	}
}

func TestKeyer_KeyFormat(t *testing.T) {
	keyer := NewDefaultKeyer()

	key, err := keyer.Key(NamespaceOCR, map[string]any{"image": "base64"})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	// Format: <namespace>:<sha256 hex>
	prefix := NamespaceOCR + ":"
	if !strings.HasPrefix(key, prefix) {
		t.Errorf("Key should have prefix %q, got %q", prefix, key)
	}

	hash := strings.TrimPrefix(key, prefix)
	if len(hash) != 64 {
		t.Errorf("Hash should be 64 characters, got %d: %q", len(hash), hash)
	}
	for _, c := range hash {
		isLowerHex := (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')
		if !isLowerHex {
			t.Errorf("Hash should be lowercase hex, got character %q in %q", string(c), hash)
			break
		}
	}

	if err := ValidateKey(key); err != nil {
		t.Errorf("generated key failed validation: %v", err)
	}
}

func TestKeyer_NestedMaps(t *testing.T) {
	keyer := NewDefaultKeyer()

	nested1 := map[string]any{
		"outer": map[string]any{"z": 26, "a": 1, "m": 13},
		"other": "value",
	}
	nested2 := map[string]any{
		"other": "value",
		"outer": map[string]any{"a": 1, "m": 13, "z": 26},
	}

	key1, err := keyer.Key(NamespaceAnalysis, nested1)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key(NamespaceAnalysis, nested2)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 != key2 {
		t.Errorf("Keys should be equal for nested maps with same content:\n  key1=%s\n  key2=%s", key1, key2)
	}
}

func TestKeyer_StructMatchesMap(t *testing.T) {
	keyer := NewDefaultKeyer()

	type wrongAnswer struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	type analysisPayload struct {
		TotalScore   int           `json:"totalScore"`
		WrongAnswers []wrongAnswer `json:"wrongAnswers"`
	}

	fromStruct, err := keyer.Key(NamespaceAnalysis, analysisPayload{
		TotalScore:   85,
		WrongAnswers: []wrongAnswer{{Question: "q1", Answer: "b"}},
	})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	fromMap, err := keyer.Key(NamespaceAnalysis, map[string]any{
		"wrongAnswers": []any{map[string]any{"answer": "b", "question": "q1"}},
		"totalScore":   85,
	})
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if fromStruct != fromMap {
		t.Errorf("struct and map payloads should share a key:\n  struct=%s\n  map=%s", fromStruct, fromMap)
	}
}

func TestKeyer_NilAndEmptyInput(t *testing.T) {
	keyer := NewDefaultKeyer()

	keyNil1, err := keyer.Key(NamespacePath, nil)
	if err != nil {
		t.Fatalf("Key() for nil error = %v", err)
	}
	keyNil2, _ := keyer.Key(NamespacePath, nil)
	if keyNil1 != keyNil2 {
		t.Errorf("Keys should be equal for nil input:\n  key1=%s\n  key2=%s", keyNil1, keyNil2)
	}

	keyEmpty, err := keyer.Key(NamespacePath, map[string]any{})
	if err != nil {
		t.Fatalf("Key() for empty map error = %v", err)
	}
	if keyNil1 == keyEmpty {
		t.Errorf("Keys should differ for nil vs empty map:\n  keyNil=%s\n  keyEmpty=%s", keyNil1, keyEmpty)
	}
}

func TestKeyer_InvalidNamespace(t *testing.T) {
	keyer := NewDefaultKeyer()

	for _, ns := range []string{"", "  ", "a:b"} {
		_, err := keyer.Key(ns, map[string]any{"x": 1})
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("Key(%q) error = %v, want ErrInvalidKey", ns, err)
		}
	}
}

func TestKeyer_UnencodablePayload(t *testing.T) {
	keyer := NewDefaultKeyer()

	_, err := keyer.Key(NamespaceAnalysis, map[string]any{"ch": make(chan int)})
	if err == nil {
		t.Error("Key() with channel payload should fail")
	}
}

func TestCanonicalize(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "null"},
		{"string", "hi", `"hi"`},
		{"number", 42, "42"},
		{"sorted map", map[string]any{"b": 2, "a": 1}, `{"a":1,"b":2}`},
		{"typed map", map[string]int{"z": 1, "y": 2}, `{"y":2,"z":1}`},
		{"slice", []any{"x", 1, true}, `["x",1,true]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Canonicalize(tt.input)
			if err != nil {
				t.Fatalf("Canonicalize() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("Canonicalize() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestKeyerFunc(t *testing.T) {
	var k Keyer = KeyerFunc(func(namespace string, _ any) (string, error) {
		return namespace + ":fixed", nil
	})

	key, err := k.Key(NamespaceOCR, nil)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if key != "ocr:fixed" {
		t.Errorf("Key() = %q, want %q", key, "ocr:fixed")
	}
}
