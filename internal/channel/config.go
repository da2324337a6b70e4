package channel

import (
	"encoding/json"
	"strings"
)

// ReadString returns the first present key of raw as a string. Non-string
// values are rendered as their JSON form without surrounding quotes.
func ReadString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if value, ok := raw[key]; ok {
			switch v := value.(type) {
			case string:
				return v
			case nil:
				continue
			default:
				encoded, err := json.Marshal(v)
				if err == nil {
					return strings.Trim(string(encoded), "\"")
				}
			}
		}
	}
	return ""
}
