package partner

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/config"
)

// RecordKind names the CRM record types a partner can be bound to.
type RecordKind string

const (
	RecordDeal RecordKind = "deal"
	RecordLead RecordKind = "lead"
)

// RecordKindFromDocumentID classifies document_id[1] of an automation hook
// by substring match.
func RecordKindFromDocumentID(s string) (RecordKind, bool) {
	s = strings.ToUpper(s)
	switch {
	case strings.Contains(s, "DEAL"):
		return RecordDeal, true
	case strings.Contains(s, "LEAD"):
		return RecordLead, true
	}
	return "", false
}

// RecordIDFromDocumentID extracts the numeric id from document_id[2],
// accepting "DEAL_7", "LEAD_7" and bare "7".
func RecordIDFromDocumentID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	upper := strings.ToUpper(s)
	for _, prefix := range []string{"DEAL_", "LEAD_"} {
		if strings.HasPrefix(upper, prefix) {
			s = s[len(prefix):]
			break
		}
	}
	if s == "" {
		return "", false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return "", false
		}
	}
	return s, true
}

// FetchError marks a failure to read the record being bound.
type FetchError struct {
	Kind RecordKind
	ID   string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// UpdateError marks a failure to write the resolved binding back.
type UpdateError struct {
	Kind RecordKind
	ID   string
	Err  error
}

func (e *UpdateError) Error() string {
	return fmt.Sprintf("bind %s %s: %v", e.Kind, e.ID, e.Err)
}

func (e *UpdateError) Unwrap() error { return e.Err }

// BindOutcome reports a UTM binding attempt. Bound=false with a nil error is
// a no-op (empty UTM term or unknown code), not a failure.
type BindOutcome struct {
	Bound   bool
	Message string
	Partner *Reference
	Code    string
}

// LinkResult is one sub-operation of the linked-entity binding flow.
type LinkResult struct {
	Entity  string `json:"entity"`
	ID      string `json:"id"`
	Code    string `json:"code,omitempty"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Reconciler stamps partner references onto deals and leads. Both flows are
// idempotent: re-delivery re-resolves and re-writes the same value.
type Reconciler struct {
	client *bitrix.Client
	dir    *Directory
	log    *logrus.Entry

	dealRefField     string
	leadRefField     string
	contactCodeField string
	companyCodeField string
	dealURLField     string
	partnerDomain    string
}

func NewReconciler(client *bitrix.Client, dir *Directory, cfg config.Config) *Reconciler {
	return &Reconciler{
		client:           client,
		dir:              dir,
		log:              logrus.WithField("component", "reconciler"),
		dealRefField:     cfg.DealRefField,
		leadRefField:     cfg.LeadRefField,
		contactCodeField: cfg.ContactCodeField,
		companyCodeField: cfg.CompanyCodeField,
		dealURLField:     cfg.DealPartnerURLField,
		partnerDomain:    cfg.PartnerDomain,
	}
}

// BindFromUTM reads the record's UTM term, resolves it as a partner code and
// writes the encoded reference into the record's partner field.
func (r *Reconciler) BindFromUTM(ctx context.Context, kind RecordKind, id string) (BindOutcome, error) {
	getMethod, updateMethod, refField := "crm.deal.get", "crm.deal.update", r.dealRefField
	if kind == RecordLead {
		getMethod, updateMethod, refField = "crm.lead.get", "crm.lead.update", r.leadRefField
	}

	record, err := r.client.GetEntity(ctx, getMethod, id)
	if err != nil {
		if err == bitrix.ErrNotConfigured {
			return BindOutcome{}, err
		}
		return BindOutcome{}, &FetchError{Kind: kind, ID: id, Err: err}
	}

	utmTerm := strings.TrimSpace(record.String("UTM_TERM"))
	if utmTerm == "" {
		r.log.Warnf("UTM_TERM пустое для %s %s", kind, id)
		return BindOutcome{Message: fmt.Sprintf("UTM_TERM пустое для %s %s", kind, id)}, nil
	}

	ref, err := r.dir.FindByCode(ctx, utmTerm)
	if err != nil {
		return BindOutcome{}, err
	}
	if ref == nil {
		r.log.Warnf("партнёр с кодом %s не найден для %s %s", utmTerm, kind, id)
		return BindOutcome{
			Code:    utmTerm,
			Message: fmt.Sprintf("Партнёр с кодом %s не найден", utmTerm),
		}, nil
	}

	err = r.client.CallUpdate(ctx, updateMethod, map[string]any{
		"ID":     id,
		"fields": map[string]any{refField: ref.Encode()},
	})
	if err != nil {
		r.log.WithError(err).Errorf("привязка партнёра %s к %s %s", ref.Encode(), kind, id)
		return BindOutcome{Partner: ref, Code: utmTerm}, &UpdateError{Kind: kind, ID: id, Err: err}
	}

	r.log.Infof("партнёр %s привязан к %s %s", ref.Encode(), kind, id)
	return BindOutcome{Bound: true, Partner: ref, Code: utmTerm}, nil
}

// BindFromLinks manufactures partner codes from a deal's own contact and
// company links ("ai-<id>"), writes them onto the linked records, and stamps
// a promo URL for the chosen code onto the deal. This is a separate
// convention from code lookup and must stay a distinct operation.
func (r *Reconciler) BindFromLinks(ctx context.Context, dealID string) ([]LinkResult, bool, error) {
	deal, err := r.client.GetEntity(ctx, "crm.deal.get", dealID)
	if err != nil {
		if err == bitrix.ErrNotConfigured {
			return nil, false, err
		}
		return nil, false, &FetchError{Kind: RecordDeal, ID: dealID, Err: err}
	}

	results := make([]LinkResult, 0, 3)
	allOK := true
	var chosenCode string

	contactID := linkedID(deal.String("CONTACT_ID"))
	if contactID != "" {
		code := "ai-" + contactID
		res := LinkResult{Entity: "contact", ID: contactID, Code: code, Success: true}
		err := r.client.CallUpdate(ctx, "crm.contact.update", map[string]any{
			"ID":     contactID,
			"fields": map[string]any{r.contactCodeField: code},
		})
		if err != nil {
			r.log.WithError(err).Errorf("запись кода %s в контакт %s", code, contactID)
			res.Success = false
			res.Error = err.Error()
			allOK = false
		} else {
			chosenCode = code
		}
		results = append(results, res)
	}

	companyID := linkedID(deal.String("COMPANY_ID"))
	if companyID != "" {
		code := "ai-" + companyID
		res := LinkResult{Entity: "company", ID: companyID, Code: code, Success: true}
		err := r.client.CallUpdate(ctx, "crm.company.update", map[string]any{
			"ID":     companyID,
			"fields": map[string]any{r.companyCodeField: code},
		})
		if err != nil {
			r.log.WithError(err).Errorf("запись кода %s в компанию %s", code, companyID)
			res.Success = false
			res.Error = err.Error()
			allOK = false
		} else if chosenCode == "" {
			chosenCode = code
		}
		results = append(results, res)
	}

	if chosenCode != "" {
		promoURL := fmt.Sprintf("https://%s/promo?utm_term=%s", r.partnerDomain, chosenCode)
		res := LinkResult{Entity: "deal", ID: dealID, Code: chosenCode, Success: true}
		err := r.client.CallUpdate(ctx, "crm.deal.update", map[string]any{
			"ID":     dealID,
			"fields": map[string]any{r.dealURLField: promoURL},
		})
		if err != nil {
			r.log.WithError(err).Errorf("запись промо-ссылки в сделку %s", dealID)
			res.Success = false
			res.Error = err.Error()
			allOK = false
		}
		results = append(results, res)
	}

	return results, allOK, nil
}

// linkedID treats "0" and empty as "not linked", the CRM convention for a
// missing relation.
func linkedID(v string) string {
	v = strings.TrimSpace(v)
	if v == "" || v == "0" {
		return ""
	}
	return v
}
