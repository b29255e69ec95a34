package job

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DecodeArgs deserializes a stored JSON argument array into []any. Numbers
// are preserved as json.Number so integer arguments survive the round trip
// without float conversion, and nested structures are normalized to
// map[string]any / []any so consumers can address keys uniformly.
func DecodeArgs(raw []byte) ([]any, error) {
	if len(raw) == 0 {
		return []any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var args []any
	if err := dec.Decode(&args); err != nil {
		return nil, fmt.Errorf("decode args: %w", err)
	}
	return normalizeSlice(args), nil
}

// EncodeArgs serializes an argument list to the stored JSON array form.
func EncodeArgs(args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode args: %w", err)
	}
	return b, nil
}

func normalizeSlice(in []any) []any {
	for i, v := range in {
		in[i] = normalizeValue(v)
	}
	return in
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, vv := range t {
			t[k] = normalizeValue(vv)
		}
		return t
	case []any:
		return normalizeSlice(t)
	default:
		return v
	}
}
