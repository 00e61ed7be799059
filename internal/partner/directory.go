package partner

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/config"
)

// PartnerContact is a resolved partner identity.
type PartnerContact struct {
	ID      int64
	Kind    Kind
	Code    string
	Percent *float64
}

// Directory looks partners up in the CRM, contacts first, companies second.
type Directory struct {
	client *bitrix.Client
	log    *logrus.Entry

	contactCodeField    string
	contactPercentField string
	contactTypeID       string
	companyCodeField    string
	companyPercentField string
	companyTypeID       string
}

func NewDirectory(client *bitrix.Client, cfg config.Config) *Directory {
	return &Directory{
		client:              client,
		log:                 logrus.WithField("component", "partner-directory"),
		contactCodeField:    cfg.ContactCodeField,
		contactPercentField: cfg.ContactPercentField,
		contactTypeID:       cfg.ContactTypeID,
		companyCodeField:    cfg.CompanyCodeField,
		companyPercentField: cfg.CompanyPercentField,
		companyTypeID:       cfg.CompanyTypeID,
	}
}

// FindByCode resolves a partner code to a tagged reference. A nil result
// with a nil error means the code matches nobody. A failed contact query is
// logged and does not prevent the company query.
func (d *Directory) FindByCode(ctx context.Context, code string) (*Reference, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, nil
	}

	contacts, err := bitrix.ListAll[bitrix.Entity](ctx, d.client, "crm.contact.list", map[string]any{
		"filter": map[string]any{d.contactCodeField: code},
		"select": []string{"ID"},
	})
	if err != nil {
		if err == bitrix.ErrNotConfigured {
			return nil, err
		}
		d.log.WithError(err).Warnf("поиск партнёра в контактах по коду %s", code)
	} else if len(contacts) > 0 {
		return &Reference{Kind: KindContact, ID: contacts[0].String("ID")}, nil
	}

	companies, err := bitrix.ListAll[bitrix.Entity](ctx, d.client, "crm.company.list", map[string]any{
		"filter": map[string]any{d.companyCodeField: code},
		"select": []string{"ID"},
	})
	if err != nil {
		if err == bitrix.ErrNotConfigured {
			return nil, err
		}
		d.log.WithError(err).Warnf("поиск партнёра в компаниях по коду %s", code)
		return nil, nil
	}
	if len(companies) > 0 {
		return &Reference{Kind: KindCompany, ID: companies[0].String("ID")}, nil
	}

	return nil, nil
}

// FindByPhone resolves a partner by probing the stored phone formats, first
// among contacts, then among companies. Records of the wrong partner type or
// without a code are skipped.
func (d *Directory) FindByPhone(ctx context.Context, phone string) (*PartnerContact, error) {
	variants := PhoneVariants(phone)
	if len(variants) == 0 {
		return nil, nil
	}

	if p, err := d.findInContacts(ctx, variants); err != nil || p != nil {
		return p, err
	}
	return d.findInCompanies(ctx, variants)
}

func (d *Directory) findInContacts(ctx context.Context, variants []string) (*PartnerContact, error) {
	for _, variant := range variants {
		contacts, err := bitrix.ListAll[bitrix.Entity](ctx, d.client, "crm.contact.list", map[string]any{
			"filter": map[string]any{"PHONE": variant},
			"select": []string{"ID", "TYPE_ID", d.contactCodeField, d.contactPercentField, "PHONE"},
		})
		if err != nil {
			return nil, err
		}
		for _, contact := range contacts {
			if contact.String("TYPE_ID") != d.contactTypeID {
				continue
			}
			code := strings.TrimSpace(contact.String(d.contactCodeField))
			if code == "" {
				d.log.Warnf("в контакте %s отсутствует код партнёра", contact.String("ID"))
				continue
			}
			id, err := strconv.ParseInt(contact.String("ID"), 10, 64)
			if err != nil {
				continue
			}
			return &PartnerContact{
				ID:      id,
				Kind:    KindContact,
				Code:    code,
				Percent: extractPercent(contact, d.contactPercentField),
			}, nil
		}
	}
	return nil, nil
}

func (d *Directory) findInCompanies(ctx context.Context, variants []string) (*PartnerContact, error) {
	for _, variant := range variants {
		companies, err := bitrix.ListAll[bitrix.Entity](ctx, d.client, "crm.company.list", map[string]any{
			"filter": map[string]any{"PHONE": variant},
			"select": []string{"ID", "COMPANY_TYPE", d.companyCodeField, d.companyPercentField, "PHONE"},
		})
		if err != nil {
			return nil, err
		}
		for _, company := range companies {
			if company.String("COMPANY_TYPE") != d.companyTypeID {
				continue
			}
			code := strings.TrimSpace(company.String(d.companyCodeField))
			if code == "" {
				d.log.Warnf("в компании %s отсутствует код партнёра", company.String("ID"))
				continue
			}
			id, err := strconv.ParseInt(company.String("ID"), 10, 64)
			if err != nil {
				continue
			}
			return &PartnerContact{
				ID:      id,
				Kind:    KindCompany,
				Code:    code,
				Percent: extractPercent(company, d.companyPercentField),
			}, nil
		}
	}
	return nil, nil
}

// PartnerPercent reads the commission percent from a partner contact card.
// Absent or unparsable values are reported as nil, not zero.
func (d *Directory) PartnerPercent(ctx context.Context, contactID int64) (*float64, error) {
	entity, err := d.client.GetEntity(ctx, "crm.contact.get", strconv.FormatInt(contactID, 10))
	if err != nil {
		return nil, err
	}
	return extractPercent(entity, d.contactPercentField), nil
}

// ResolveKind infers whether an id is a contact or a company by probing the
// get endpoints. When both probes fail the fallback is contact.
func (d *Directory) ResolveKind(ctx context.Context, partnerID string) Kind {
	if _, err := d.client.GetEntity(ctx, "crm.contact.get", partnerID); err == nil {
		return KindContact
	}
	if _, err := d.client.GetEntity(ctx, "crm.company.get", partnerID); err == nil {
		return KindCompany
	}
	return KindContact
}

// DisplayName resolves a human-readable name for a counterparty, degrading
// to a placeholder when the CRM call fails.
func (d *Directory) DisplayName(ctx context.Context, ref Reference) string {
	if ref.Kind == KindCompany {
		entity, err := d.client.GetEntity(ctx, "crm.company.get", ref.ID)
		if err == nil {
			if title := strings.TrimSpace(entity.String("TITLE")); title != "" {
				return title
			}
		}
		return fmt.Sprintf("Компания #%s", ref.ID)
	}

	entity, err := d.client.GetEntity(ctx, "crm.contact.get", ref.ID)
	if err == nil {
		parts := make([]string, 0, 2)
		if name := strings.TrimSpace(entity.String("NAME")); name != "" {
			parts = append(parts, name)
		}
		if last := strings.TrimSpace(entity.String("LAST_NAME")); last != "" {
			parts = append(parts, last)
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return fmt.Sprintf("Контакт #%s", ref.ID)
}

func extractPercent(entity bitrix.Entity, field string) *float64 {
	raw := strings.TrimSpace(entity.String(field))
	if raw == "" {
		return nil
	}
	v := entity.Float(field)
	if v == 0 && raw != "0" {
		return nil
	}
	return &v
}
