package bitrix

import (
	"errors"
	"fmt"
)

// ErrNotConfigured is returned by every call when the webhook base URL is
// missing. Handlers map it to a 500 instead of crashing the process.
var ErrNotConfigured = errors.New("bitrix webhook base URL is not configured")

type APIError struct {
	Code             string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e APIError) IsZero() bool {
	return e.Code == "" && e.ErrorDescription == ""
}

func (e APIError) Error() string {
	if e.ErrorDescription != "" {
		return fmt.Sprintf("bitrix api error: %s (%s)", e.Code, e.ErrorDescription)
	}
	return fmt.Sprintf("bitrix api error: %s", e.Code)
}
