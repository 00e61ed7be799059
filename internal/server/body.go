package server

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// ParseBody reads a webhook payload in whatever shape the portal sent it:
// JSON first, then form-urlencoded fields, then the raw body as a
// querystring. Nothing here ever fails the request; an unparsable body is an
// empty map.
func ParseBody(r *http.Request) map[string]string {
	raw, err := io.ReadAll(r.Body)
	if err != nil || len(raw) == 0 {
		return map[string]string{}
	}

	var generic map[string]any
	if err := json.Unmarshal(raw, &generic); err == nil {
		data := make(map[string]string, len(generic))
		for k, v := range generic {
			data[k] = stringify(v)
		}
		return data
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil || len(values) == 0 {
		return map[string]string{}
	}

	data := make(map[string]string, len(values))
	for k, list := range values {
		if len(list) > 0 {
			data[k] = list[len(list)-1]
		}
	}
	return data
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(t)
		if err != nil {
			return ""
		}
		return string(encoded)
	}
}

// firstOf returns the first non-empty value among the given keys.
func firstOf(data map[string]string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(data[key]); v != "" {
			return v
		}
	}
	return ""
}
