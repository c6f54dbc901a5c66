package model

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// DeliveryMessage is built per dispatch call and never stored.
type DeliveryMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Link  string            `json:"link,omitempty"`
	Icon  string            `json:"icon,omitempty"`
	Tag   string            `json:"tag,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

var reservedDataKeys = map[string]bool{
	"from":         true,
	"notification": true,
	"message_type": true,
}

// ReservedDataKeyError reports a data key the gateway refuses.
type ReservedDataKeyError struct {
	Key string
}

func (e *ReservedDataKeyError) Error() string {
	return fmt.Sprintf("data key %q is reserved by the push gateway", e.Key)
}

// ValidateData rejects keys the gateway reserves: from, notification,
// message_type and anything prefixed with google or gcm. The gateway answers
// those with 400 for every endpoint.
func ValidateData(data map[string]string) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		lower := strings.ToLower(k)
		if reservedDataKeys[lower] || strings.HasPrefix(lower, "google") || strings.HasPrefix(lower, "gcm") {
			return &ReservedDataKeyError{Key: k}
		}
	}
	return nil
}

// CoerceData converts arbitrary JSON values into the string-only map the
// gateways require.
func CoerceData(in map[string]any) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = coerce(v)
	}
	return out
}

func coerce(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
