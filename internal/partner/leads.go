package partner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// CreateLead registers a consultation request as a CRM lead, bound to the
// referring partner when the code resolves.
func (r *Reconciler) CreateLead(ctx context.Context, name, phone, partnerCode string) (string, error) {
	ref, err := r.dir.FindByCode(ctx, partnerCode)
	if err != nil {
		return "", err
	}
	if ref == nil {
		r.log.Warnf("контакт или компания партнёра с кодом %s не найдены", partnerCode)
	}

	fields := map[string]any{
		"TITLE":     fmt.Sprintf("Консультация: %s", name),
		"NAME":      name,
		"SOURCE_ID": "TELEGRAM_BOT",
		"STATUS_ID": "NEW",
	}
	if phone != "" {
		fields["PHONE"] = []map[string]string{{"VALUE": phone, "VALUE_TYPE": "WORK"}}
	}
	if ref != nil {
		fields[r.leadRefField] = ref.Encode()
	}

	value, err := r.client.CallResult(ctx, "crm.lead.add", map[string]any{"fields": fields})
	if err != nil {
		return "", fmt.Errorf("создание лида: %w", err)
	}

	var id json.Number
	if err := json.Unmarshal(value, &id); err != nil {
		return "", fmt.Errorf("неожиданный ответ crm.lead.add: %s", string(value))
	}
	leadID := strings.TrimSpace(id.String())
	if leadID == "" || leadID == "0" {
		return "", fmt.Errorf("неожиданный ответ crm.lead.add: %s", string(value))
	}

	r.log.Infof("создан лид %s для %s от партнёра %s", leadID, name, partnerCode)
	return leadID, nil
}
