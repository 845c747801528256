package getsafe

import (
	"encoding/json"
	"fmt"
)

func String(payload map[string]any, key string) string {
	if v, ok := payload[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Int reads a JSON number. Decoded JSON holds numbers as float64.
func Int(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	}
	return 0
}

// Strings flattens a decoded JSON object into string values. Nested objects
// and arrays are dropped.
func Strings(payload map[string]any) map[string]string {
	out := make(map[string]string, len(payload))
	for k, v := range payload {
		switch t := v.(type) {
		case string:
			out[k] = t
		case bool, float64:
			out[k] = fmt.Sprint(t)
		}
	}
	return out
}
