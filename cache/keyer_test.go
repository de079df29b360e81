package cache

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestKeyer_DeterministicForMaps(t *testing.T) {
	keyer := NewDefaultKeyer()

	// Same content, different insertion order
	map1 := Params{"b": 2, "a": 1, "c": 3}
	map2 := Params{"a": 1, "c": 3, "b": 2}
	map3 := Params{"c": 3, "b": 2, "a": 1}

	key1, err := keyer.Key("GET", "/problem", map1)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key2, err := keyer.Key("GET", "/problem", map2)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	key3, err := keyer.Key("GET", "/problem", map3)
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}

	if key1 != key2 || key2 != key3 {
		t.Errorf("Keys should be equal for same content:\n  key1=%s\n  key2=%s\n  key3=%s", key1, key2, key3)
	}
}

func TestKeyer_NestedMapsSorted(t *testing.T) {
	input1 := Params{"filter": map[string]any{"z": 1, "a": []any{map[string]any{"y": 1, "b": 2}}}}
	input2 := Params{"filter": map[string]any{"a": []any{map[string]any{"b": 2, "y": 1}}, "z": 1}}

	key1, err := BuildKey("GET", "/contest", input1)
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}
	key2, err := BuildKey("GET", "/contest", input2)
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}

	if key1 != key2 {
		t.Errorf("nested keys differ:\n  key1=%s\n  key2=%s", key1, key2)
	}
	want := `GET:/contest:{"filter":{"a":[{"b":2,"y":1}],"z":1}}`
	if key1 != want {
		t.Errorf("BuildKey() = %s, want %s", key1, want)
	}
}

func TestKeyer_ArrayOrderPreserved(t *testing.T) {
	key1, err := BuildKey("GET", "/problem", Params{"items": []any{1, 2, 3}})
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}
	key2, err := BuildKey("GET", "/problem", Params{"items": []any{3, 2, 1}})
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}

	if key1 == key2 {
		t.Errorf("Keys should differ for different array order:\n  key1=%s\n  key2=%s", key1, key2)
	}
}

func TestKeyer_KeyFormat(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		params Params
		want   string
	}{
		{"nil params", "GET", "/problem/1", nil, "GET:/problem/1:{}"},
		{"empty params", "get", "/problem/1", Params{}, "GET:/problem/1:{}"},
		{"method case folded", "gEt", "/website", Params{"a": "b"}, `GET:/website:{"a":"b"}`},
		{"path trimmed", "GET", "  /languages ", nil, "GET:/languages:{}"},
		{"typed map value", "GET", "/x", Params{"m": map[string]string{"b": "2", "a": "1"}}, `GET:/x:{"m":{"a":"1","b":"2"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildKey(tt.method, tt.path, tt.params)
			if err != nil {
				t.Fatalf("BuildKey() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyer_DifferentMethodsDifferentKeys(t *testing.T) {
	key1, _ := BuildKey("GET", "/problem", nil)
	key2, _ := BuildKey("HEAD", "/problem", nil)
	if key1 == key2 {
		t.Errorf("Keys should differ for different methods: %s", key1)
	}
}

func TestKeyer_LongParamsHashed(t *testing.T) {
	params := Params{"q": strings.Repeat("x", MaxKeyLength)}

	key, err := BuildKey("GET", "/problem", params)
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}

	prefix := "GET:/problem:#"
	if !strings.HasPrefix(key, prefix) {
		t.Fatalf("Key should have prefix %q, got %q", prefix, key)
	}
	hash := strings.TrimPrefix(key, prefix)
	if len(hash) != 16 {
		t.Errorf("hash length = %d, want 16", len(hash))
	}

	again, _ := BuildKey("GET", "/problem", Params{"q": strings.Repeat("x", MaxKeyLength)})
	if again != key {
		t.Errorf("hashed key not deterministic: %s vs %s", key, again)
	}
}

func TestKeyer_InvalidInputs(t *testing.T) {
	cyclic := map[string]any{}
	cyclic["self"] = cyclic

	tests := []struct {
		name    string
		method  string
		path    string
		params  Params
		wantErr error
	}{
		{"empty method", "", "/x", nil, ErrInvalidKey},
		{"empty path", "GET", " ", nil, ErrInvalidKey},
		{"newline in path", "GET", "/x\n/y", nil, ErrInvalidKey},
		{"cyclic params", "GET", "/x", cyclic, ErrInvalidParams},
		{"channel value", "GET", "/x", Params{"ch": make(chan int)}, ErrInvalidParams},
		{"func value", "GET", "/x", Params{"fn": func() {}}, ErrInvalidParams},
		{"NaN value", "GET", "/x", Params{"n": math.NaN()}, ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildKey(tt.method, tt.path, tt.params)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("BuildKey() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestKeyer_NilInsideParams(t *testing.T) {
	key, err := BuildKey("GET", "/x", Params{"a": nil, "b": []any{nil}})
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}
	want := `GET:/x:{"a":null,"b":[null]}`
	if key != want {
		t.Errorf("BuildKey() = %s, want %s", key, want)
	}
}

func TestKeyer_InvalidUTF8KeptDistinct(t *testing.T) {
	tests := []struct {
		name string
		a, b Params
	}{
		{"string values", Params{"q": "\xff"}, Params{"q": "\xfe"}},
		{"map keys", Params{"\xff": 1}, Params{"\xfe": 1}},
		{"string lists", Params{"q": []string{"\xff"}}, Params{"q": []string{"\xfe"}}},
		{"replacement char", Params{"q": "\xff"}, Params{"q": "\ufffd"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ka, err := BuildKey("GET", "/api/problem", tt.a)
			if err != nil {
				t.Fatalf("BuildKey() error = %v", err)
			}
			kb, err := BuildKey("GET", "/api/problem", tt.b)
			if err != nil {
				t.Fatalf("BuildKey() error = %v", err)
			}
			if ka == kb {
				t.Errorf("distinct params share key %q", ka)
			}
		})
	}

	key, _ := BuildKey("GET", "/x", Params{"q": "\xff\xfe"})
	if want := `GET:/x:{"q":0xfffe}`; key != want {
		t.Errorf("BuildKey() = %q, want %q", key, want)
	}
}

func TestKeyer_LongPathHashed(t *testing.T) {
	base := "/api/problem/" + strings.Repeat("a", 600)

	key, err := BuildKey("GET", base, nil)
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}
	if len(key) > MaxKeyLength {
		t.Errorf("len(key) = %d, want <= %d", len(key), MaxKeyLength)
	}
	if !strings.HasPrefix(key, "GET:/api/problem/aaa") {
		t.Errorf("key %q lost its path prefix", key)
	}

	other, err := BuildKey("GET", base+"b", nil)
	if err != nil {
		t.Fatalf("BuildKey() error = %v", err)
	}
	if other == key {
		t.Error("paths differing past the cut share a key")
	}
	withParams, _ := BuildKey("GET", base, Params{"page": 2})
	if withParams == key {
		t.Error("params ignored for a long path")
	}
	again, _ := BuildKey("GET", base, nil)
	if again != key {
		t.Errorf("long path key not deterministic: %s vs %s", key, again)
	}
}

func TestRedactKey(t *testing.T) {
	literal, _ := BuildKey("GET", "/api/problem", Params{"token": "s3cret"})
	hashed, _ := BuildKey("GET", "/api/problem", Params{"q": strings.Repeat("x", MaxKeyLength)})

	tests := []struct {
		name string
		key  string
		want func(string) bool
	}{
		{"empty params kept", "GET:/api/problem:{}", func(s string) bool { return s == "GET:/api/problem:{}" }},
		{"hashed key kept", hashed, func(s string) bool { return s == hashed }},
		{"literal params hashed", literal, func(s string) bool {
			return strings.HasPrefix(s, "GET:/api/problem:#") && !strings.Contains(s, "s3cret")
		}},
		{"foreign shape hashed", "session-s3cret", func(s string) bool {
			return strings.HasPrefix(s, "#") && len(s) == 17
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RedactKey(tt.key); !tt.want(got) {
				t.Errorf("RedactKey(%q) = %q", tt.key, got)
			}
		})
	}
}
