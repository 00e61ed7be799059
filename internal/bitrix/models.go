package bitrix

import (
	"encoding/json"
	"strconv"
	"strings"
)

type ListResponse[T any] struct {
	Result []T  `json:"result"`
	Next   *int `json:"next,omitempty"`
	Total  *int `json:"total,omitempty"`
}

type Deal struct {
	ID          string `json:"ID"`
	Title       string `json:"TITLE"`
	StageID     string `json:"STAGE_ID"`
	CategoryID  string `json:"CATEGORY_ID"`
	Opportunity string `json:"OPPORTUNITY"`
	CurrencyID  string `json:"CURRENCY_ID"`
	DateCreate  string `json:"DATE_CREATE"`
	ContactID   string `json:"CONTACT_ID"`
	CompanyID   string `json:"COMPANY_ID"`
	UTMTerm     string `json:"UTM_TERM"`
}

type Lead struct {
	ID          string `json:"ID"`
	Title       string `json:"TITLE"`
	StatusID    string `json:"STATUS_ID"`
	Opportunity string `json:"OPPORTUNITY"`
	CurrencyID  string `json:"CURRENCY_ID"`
	DateCreate  string `json:"DATE_CREATE"`
	ContactID   string `json:"CONTACT_ID"`
	CompanyID   string `json:"COMPANY_ID"`
	UTMTerm     string `json:"UTM_TERM"`
}

// StatusItem is one element of a crm.status.entity.items response.
type StatusItem struct {
	StatusID string `json:"STATUS_ID"`
	Name     string `json:"NAME"`
}

// Entity is a CRM record with configurable custom fields, kept as raw JSON
// so that field names resolved from the environment can be read without a
// dedicated struct per portal.
type Entity map[string]json.RawMessage

// String reads a field as text. Quoted strings are unquoted, numbers are
// rendered as-is, null and missing fields are empty.
func (e Entity) String(key string) string {
	raw, ok := e[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	text := strings.TrimSpace(string(raw))
	if text == "null" {
		return ""
	}
	return text
}

// Float reads a field as a number. Bitrix serializes amounts and percents as
// strings, so both shapes are accepted; anything unparsable is zero.
func (e Entity) Float(key string) float64 {
	v := strings.TrimSpace(e.String(key))
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
