package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/config"
	"partner_bitrix/internal/partner"
	"partner_bitrix/internal/stats"
)

func testServerConfig() config.Config {
	return config.Config{
		ContactCodeField:    "UF_CONTACT_CODE",
		ContactTypeID:       "PARTNER",
		CompanyCodeField:    "UF_COMPANY_CODE",
		CompanyTypeID:       "PARTNER",
		DealRefField:        "UF_DEAL_REF",
		LeadRefField:        "UF_LEAD_REF",
		DealPaymentField:    "UF_DEAL_PAYMENT",
		DealPartnerURLField: "UF_DEAL_URL",
		PartnerDomain:       "portal.example.com",
	}
}

func newTestServer(crmURL string) *Server {
	cfg := testServerConfig()
	client := bitrix.NewClient(crmURL)
	dir := partner.NewDirectory(client, cfg)
	rec := partner.NewReconciler(client, dir, cfg)
	cache := stats.NewNameCache(client, 0)
	agg := stats.NewAggregator(client, dir, cache, cfg)
	return New(cfg, client, dir, rec, agg, cache)
}

func serveCRM(t *testing.T, handlers map[string]func(payload map[string]any) string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), ".json")
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fn, ok := handlers[method]
		if !ok {
			t.Errorf("unexpected method: %s", method)
			fmt.Fprint(w, `{"error": "NOT_FOUND", "error_description": "no handler"}`)
			return
		}
		fmt.Fprint(w, fn(payload))
	}))
}

func doRequest(t *testing.T, s *Server, method, path, contentType, body string) (*httptest.ResponseRecorder, map[string]any) {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	s.Router().ServeHTTP(rr, req)

	var parsed map[string]any
	if strings.Contains(rr.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &parsed))
	}
	return rr, parsed
}

func TestMarkPayment(t *testing.T) {
	t.Run("missing deal_id fails before any remote call", func(t *testing.T) {
		s := newTestServer("")
		rr, body := doRequest(t, s, "POST", "/api/mark-payment", "application/json", `{}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer("")
		rr, body := doRequest(t, s, "POST", "/api/mark-payment", "application/json", `{"deal_id": "17"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("sets the payment flag", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.deal.update": func(payload map[string]any) string {
				assert.Equal(t, "17", payload["ID"])
				fields, _ := payload["fields"].(map[string]any)
				assert.Equal(t, "1", fields["UF_DEAL_PAYMENT"])
				return `{"result": true}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, body := doRequest(t, s, "POST", "/api/mark-payment", "application/json", `{"deal_id": "17"}`)
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "17", body["deal_id"])
	})

	t.Run("update failure", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.deal.update": func(map[string]any) string {
				return `{"error": "ACCESS_DENIED", "error_description": "denied"}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, body := doRequest(t, s, "POST", "/api/mark-payment", "application/json", `{"deal_id": "17"}`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.Equal(t, false, body["success"])
	})
}

func TestUTMBind(t *testing.T) {
	t.Run("bad entity type", func(t *testing.T) {
		s := newTestServer("")
		rr, body := doRequest(t, s, "POST", "/webhook/utm", "application/x-www-form-urlencoded",
			"document_id%5B1%5D=CCrmDocumentContact&document_id%5B2%5D=DEAL_17")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("bad record id", func(t *testing.T) {
		s := newTestServer("")
		rr, body := doRequest(t, s, "POST", "/webhook/utm", "application/x-www-form-urlencoded",
			"document_id%5B1%5D=CCrmDocumentDeal&document_id%5B2%5D=DEAL_x")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("record not found", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.deal.get": func(map[string]any) string {
				return `{"error": "NOT_FOUND", "error_description": "Not found"}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, body := doRequest(t, s, "POST", "/webhook/utm", "application/x-www-form-urlencoded",
			"document_id%5B1%5D=CCrmDocumentDeal&document_id%5B2%5D=DEAL_404")
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "deal", body["entity_type"])
		assert.Equal(t, "404", body["entity_id"])
	})

	t.Run("unknown code answers 200", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.deal.get": func(map[string]any) string {
				return `{"result": {"ID": "17", "UTM_TERM": "NOBODY"}}`
			},
			"crm.contact.list": func(map[string]any) string {
				return `{"result": [], "total": 0}`
			},
			"crm.company.list": func(map[string]any) string {
				return `{"result": [], "total": 0}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, body := doRequest(t, s, "POST", "/webhook/utm", "application/x-www-form-urlencoded",
			"document_id%5B1%5D=CCrmDocumentDeal&document_id%5B2%5D=DEAL_17")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, false, body["success"])
		assert.Equal(t, "NOBODY", body["partner_code"])
	})

	t.Run("binds a lead", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.lead.get": func(map[string]any) string {
				return `{"result": {"ID": "3", "UTM_TERM": "PARTNER1"}}`
			},
			"crm.contact.list": func(map[string]any) string {
				return `{"result": [{"ID": "42"}], "total": 1}`
			},
			"crm.lead.update": func(payload map[string]any) string {
				fields, _ := payload["fields"].(map[string]any)
				assert.Equal(t, "C_42", fields["UF_LEAD_REF"])
				return `{"result": true}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, body := doRequest(t, s, "POST", "/webhook/utm", "application/x-www-form-urlencoded",
			"document_id%5B1%5D=CCrmDocumentLead&document_id%5B2%5D=LEAD_3")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "lead", body["entity_type"])
		assert.Equal(t, "contact", body["partner_type"])
		assert.Equal(t, "42", body["partner_id"])
		assert.Equal(t, "PARTNER1", body["partner_code"])
	})
}

func TestDealLinks(t *testing.T) {
	t.Run("missing deal id", func(t *testing.T) {
		s := newTestServer("")
		rr, body := doRequest(t, s, "POST", "/webhook/deal", "application/json", `{}`)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, false, body["success"])
	})

	t.Run("accepts automation document id", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.deal.get": func(map[string]any) string {
				return `{"result": {"ID": "17", "CONTACT_ID": "5", "COMPANY_ID": "0"}}`
			},
			"crm.contact.update": func(map[string]any) string {
				return `{"result": true}`
			},
			"crm.deal.update": func(payload map[string]any) string {
				fields, _ := payload["fields"].(map[string]any)
				assert.Equal(t, "https://portal.example.com/promo?utm_term=ai-5", fields["UF_DEAL_URL"])
				return `{"result": true}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, body := doRequest(t, s, "POST", "/webhook/deal", "application/x-www-form-urlencoded",
			"document_id%5B2%5D=DEAL_17")
		assert.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, true, body["success"])
		assert.Equal(t, "17", body["deal_id"])
		results, _ := body["results"].([]any)
		assert.Len(t, results, 2)
	})
}

func TestPartnerCard(t *testing.T) {
	t.Run("unknown placement", func(t *testing.T) {
		s := newTestServer("")
		rr, _ := doRequest(t, s, "POST", "/webhook", "application/x-www-form-urlencoded",
			"PLACEMENT=CRM_DEAL_DETAIL_TAB")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing entity id", func(t *testing.T) {
		s := newTestServer("")
		rr, _ := doRequest(t, s, "POST", "/webhook", "application/x-www-form-urlencoded",
			"PLACEMENT=CRM_CONTACT_DETAIL_TAB")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("not configured", func(t *testing.T) {
		s := newTestServer("")
		rr, _ := doRequest(t, s, "POST", "/webhook", "application/x-www-form-urlencoded",
			`PLACEMENT=CRM_CONTACT_DETAIL_TAB&PLACEMENT_OPTIONS=%7B%22ID%22%3A%2242%22%7D`)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})

	t.Run("renders deals and leads", func(t *testing.T) {
		crm := serveCRM(t, map[string]func(map[string]any) string{
			"crm.contact.get": func(map[string]any) string {
				return `{"result": {"ID": "42", "NAME": "Иван", "LAST_NAME": "Петров"}}`
			},
			"crm.deal.list": func(payload map[string]any) string {
				filter, _ := payload["filter"].(map[string]any)
				assert.Equal(t, "C_42", filter["UF_DEAL_REF"])
				return `{"result": [
					{"ID": "1", "TITLE": "Поставка", "STAGE_ID": "C1:WON", "CATEGORY_ID": "1", "OPPORTUNITY": "100", "CURRENCY_ID": "RUB"}
				], "total": 1}`
			},
			"crm.lead.list": func(payload map[string]any) string {
				filter, _ := payload["filter"].(map[string]any)
				assert.Equal(t, "C_42", filter["UF_LEAD_REF"])
				return `{"result": [
					{"ID": "2", "TITLE": "", "STATUS_ID": "NEW", "OPPORTUNITY": "50", "CURRENCY_ID": "RUB"}
				], "total": 1}`
			},
			"crm.status.entity.items": func(payload map[string]any) string {
				switch payload["entityId"] {
				case "DEAL_STAGE_1":
					return `{"result": [{"STATUS_ID": "C1:WON", "NAME": "Выиграна"}], "total": 1}`
				case "STATUS":
					return `{"result": [{"STATUS_ID": "NEW", "NAME": "Новый лид"}], "total": 1}`
				}
				return `{"result": [], "total": 0}`
			},
		})
		defer crm.Close()

		s := newTestServer(crm.URL)
		rr, _ := doRequest(t, s, "POST", "/webhook", "application/x-www-form-urlencoded",
			`PLACEMENT=CRM_CONTACT_DETAIL_TAB&PLACEMENT_OPTIONS=%7B%22ID%22%3A%2242%22%7D`)
		require.Equal(t, http.StatusOK, rr.Code)

		html := rr.Body.String()
		assert.Contains(t, html, "Иван Петров")
		assert.Contains(t, html, "Поставка")
		assert.Contains(t, html, "Выиграна")
		assert.Contains(t, html, "Лид #2")
		assert.Contains(t, html, "Новый лид")
	})
}
