package bitrix

import (
	"bytes"
	"encoding/json"
	"strings"
)

// The REST API answers in several shapes: a bare value, a value wrapped in
// {"result": ...}, an {"error": ...} envelope, and batch responses keyed by
// an arbitrary order key ("order0000000000"). RemoteResult is the single
// normalized view every call site works with.
type RemoteResult struct {
	OK    bool
	Value json.RawMessage
	Err   *APIError
	Raw   json.RawMessage
}

func Normalize(raw []byte) RemoteResult {
	res := RemoteResult{Raw: raw}

	var apiErr APIError
	if err := json.Unmarshal(raw, &apiErr); err == nil && !apiErr.IsZero() {
		res.Err = &apiErr
		return res
	}

	value := json.RawMessage(raw)

	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Result != nil {
		value = envelope.Result
	}

	value = unwrapBatchOrder(value)

	res.OK = true
	res.Value = value
	return res
}

// unwrapBatchOrder strips the order0000000000 wrapper the batch transport
// sometimes adds around single-entity results.
func unwrapBatchOrder(value json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(value)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return value
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return value
	}
	for key, inner := range wrapper {
		if strings.HasPrefix(key, "order") && len(wrapper) == 1 {
			return inner
		}
	}
	return value
}

// IsTrue reports whether the normalized value is the literal true, the shape
// update calls answer with on success.
func (r RemoteResult) IsTrue() bool {
	if !r.OK {
		return false
	}
	return string(bytes.TrimSpace(r.Value)) == "true"
}
