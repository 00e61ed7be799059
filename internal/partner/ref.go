package partner

import (
	"fmt"
	"strings"
)

// Kind distinguishes which CRM entity a partner reference points to.
type Kind string

const (
	KindContact Kind = "contact"
	KindCompany Kind = "company"
)

// Reference is the tagged partner pointer stored in CRM custom fields:
// "C_<id>" for a contact, "CO_<id>" for a company.
type Reference struct {
	Kind Kind
	ID   string
}

func (r Reference) Encode() string {
	if r.Kind == KindCompany {
		return "CO_" + r.ID
	}
	return "C_" + r.ID
}

type ParseError struct {
	Value string
}

func (e ParseError) Error() string {
	return fmt.Sprintf("invalid partner reference: %q", e.Value)
}

// ParseReference decodes a tagged reference. "CO_" is checked before "C_"
// and the id suffix must be numeric.
func ParseReference(s string) (Reference, error) {
	var ref Reference
	switch {
	case strings.HasPrefix(s, "CO_"):
		ref = Reference{Kind: KindCompany, ID: s[len("CO_"):]}
	case strings.HasPrefix(s, "C_"):
		ref = Reference{Kind: KindContact, ID: s[len("C_"):]}
	default:
		return Reference{}, ParseError{Value: s}
	}

	if ref.ID == "" {
		return Reference{}, ParseError{Value: s}
	}
	for _, c := range ref.ID {
		if c < '0' || c > '9' {
			return Reference{}, ParseError{Value: s}
		}
	}
	return ref, nil
}
