package config

import (
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Field ids default to the production Bitrix24 portal values and can be
// overridden per environment.
type Config struct {
	BitrixWebhookBaseURL string
	DatabaseURL          string
	BotToken             string
	ListenAddr           string
	PartnerDomain        string
	DocumentsPath        string

	ContactCodeField    string
	ContactPercentField string
	ContactTypeID       string
	CompanyCodeField    string
	CompanyPercentField string
	CompanyTypeID       string
	DealRefField        string
	LeadRefField        string
	DealPaymentField    string
	DealPartnerURLField string
}

func Load() Config {
	_ = godotenv.Load()

	base := strings.TrimSpace(os.Getenv("BITRIX_WEBHOOK_BASE_URL"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("WEBHOOK"))
	}
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}

	cfg := Config{
		BitrixWebhookBaseURL: base,
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		BotToken:             strings.TrimSpace(os.Getenv("BOT_TOKEN")),
		ListenAddr:           envOr("LISTEN_ADDR", ":8000"),
		PartnerDomain:        strings.TrimSpace(os.Getenv("PARTNER_DOMAIN")),
		DocumentsPath:        strings.TrimSpace(os.Getenv("DOCUMENTS_PATH")),

		ContactCodeField:    envOr("PARTNER_CONTACT_CODE_FIELD", "UF_CRM_1763459353553"),
		ContactPercentField: envOr("PARTNER_CONTACT_PERCENT_FIELD", "UF_CRM_1763552181843"),
		ContactTypeID:       envOr("PARTNER_CONTACT_TYPE_ID", "PARTNER"),
		CompanyCodeField:    envOr("PARTNER_COMPANY_CODE_FIELD", "UF_CRM_1763552640092"),
		CompanyPercentField: envOr("PARTNER_COMPANY_PERCENT_FIELD", "UF_CRM_1763552607976"),
		CompanyTypeID:       envOr("PARTNER_COMPANY_TYPE_ID", "PARTNER"),
		DealRefField:        envOr("PARTNER_DEAL_REF_DEAL", "UF_CRM_1763470519"),
		LeadRefField:        envOr("PARTNER_LEAD_REF_LEAD", "UF_CRM_1763569075"),
		DealPaymentField:    envOr("PARTNER_DEAL_PAYMENT_FIELD", "UF_CRM_1763580122"),
		DealPartnerURLField: envOr("PARTNER_DEAL_URL_FIELD", "UF_CRM_1763581347"),
	}

	if cfg.PartnerDomain == "" && base != "" {
		if u, err := url.Parse(base); err == nil {
			cfg.PartnerDomain = u.Host
		}
	}

	return cfg
}

func envOr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	v = strings.Trim(v, `"'`)
	if v == "" {
		return fallback
	}
	return v
}
