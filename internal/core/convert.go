package core

import (
	"encoding/json"
	"strconv"
	"strings"
)

// IntFromAny reads a count out of a decoded JSON, protobuf Struct or generation-info map.
// Fractions truncate; anything unreadable is 0.
func IntFromAny(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float32:
		return int(n)
	case float64:
		return int(n)
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		f, _ := n.Float64()
		return int(f)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}
