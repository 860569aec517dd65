package wire

import (
	"encoding/json"
	"math"
	"strconv"
)

// Decode converts a loosely typed Socket.IO argument (usually the
// map[string]any produced by the JSON parser) into out.
func Decode(input any, out any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

// Int64Field reads an integer id from a decoded JSON object. Numbers and
// numeric strings are accepted; anything else yields 0.
func Int64Field(m map[string]any, key string) int64 {
	switch v := m[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return 0
		}
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}
