package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/config"
	"partner_bitrix/internal/partner"
)

func testAggregatorConfig() config.Config {
	return config.Config{
		ContactCodeField: "UF_CONTACT_CODE",
		ContactTypeID:    "PARTNER",
		CompanyCodeField: "UF_COMPANY_CODE",
		CompanyTypeID:    "PARTNER",
		DealRefField:     "UF_DEAL_REF",
		LeadRefField:     "UF_LEAD_REF",
	}
}

// crmHandler is one route of the aggregator's fake portal, keyed by method.
type crmHandler func(payload map[string]any) string

func serveCRM(t *testing.T, handlers map[string]crmHandler) *httptest.Server {
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

func newTestAggregator(srvURL string) *Aggregator {
	cfg := testAggregatorConfig()
	client := bitrix.NewClient(srvURL)
	dir := partner.NewDirectory(client, cfg)
	agg := NewAggregator(client, dir, NewNameCache(client, 0), cfg)
	agg.now = func() time.Time { return time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC) }
	return agg
}

func TestFetchStats(t *testing.T) {
	t.Run("buckets and filter", func(t *testing.T) {
		srv := serveCRM(t, map[string]crmHandler{
			"crm.deal.list": func(payload map[string]any) string {
				filter, _ := payload["filter"].(map[string]any)
				assert.Equal(t, "C_42", filter["UF_DEAL_REF"])
				assert.Equal(t, "2026-02-24T00:00:00Z", filter[">=DATE_CREATE"])
				return `{"result": [
					{"ID": "1", "STAGE_ID": "C1:WON", "OPPORTUNITY": "100"},
					{"ID": "2", "STAGE_ID": "C1:LOSE", "OPPORTUNITY": "50"},
					{"ID": "3", "STAGE_ID": "NEW", "OPPORTUNITY": "25"}
				], "total": 3}`
			},
		})
		defer srv.Close()

		agg := newTestAggregator(srv.URL)
		s, err := agg.FetchStats(context.Background(), 42, RangeToday, partner.KindContact)
		require.NoError(t, err)
		assert.Equal(t, 1, s.Success)
		assert.Equal(t, 1, s.Failed)
		assert.Equal(t, 1, s.InProgress)
		assert.Equal(t, 175.0, s.TotalAmount)
	})

	t.Run("all time has no lower bound", func(t *testing.T) {
		srv := serveCRM(t, map[string]crmHandler{
			"crm.deal.list": func(payload map[string]any) string {
				filter, _ := payload["filter"].(map[string]any)
				_, bounded := filter[">=DATE_CREATE"]
				assert.False(t, bounded)
				return `{"result": [], "total": 0}`
			},
		})
		defer srv.Close()

		agg := newTestAggregator(srv.URL)
		s, err := agg.FetchStats(context.Background(), 42, RangeAll, partner.KindContact)
		require.NoError(t, err)
		assert.Equal(t, 0, s.Count())
	})

	t.Run("not configured", func(t *testing.T) {
		cfg := testAggregatorConfig()
		client := bitrix.NewClient("")
		agg := NewAggregator(client, partner.NewDirectory(client, cfg), NewNameCache(client, 0), cfg)
		_, err := agg.FetchStats(context.Background(), 42, RangeAll, partner.KindContact)
		assert.ErrorIs(t, err, bitrix.ErrNotConfigured)
	})
}

func TestFetchDetailedStats(t *testing.T) {
	srv := serveCRM(t, map[string]crmHandler{
		"crm.deal.list": func(map[string]any) string {
			return `{"result": [
				{"ID": "1", "STAGE_ID": "C1:WON", "OPPORTUNITY": "100", "CATEGORY_ID": "1", "CONTACT_ID": "5", "COMPANY_ID": "9"},
				{"ID": "2", "STAGE_ID": "NEW", "OPPORTUNITY": "10", "CATEGORY_ID": "1", "CONTACT_ID": "5", "COMPANY_ID": "0"},
				{"ID": "3", "STAGE_ID": "NEW", "OPPORTUNITY": "20", "CATEGORY_ID": "1", "CONTACT_ID": "0", "COMPANY_ID": "9"},
				{"ID": "4", "STAGE_ID": "NEW", "OPPORTUNITY": "5", "CATEGORY_ID": "1", "CONTACT_ID": "", "COMPANY_ID": ""}
			], "total": 4}`
		},
		"crm.status.entity.items": func(payload map[string]any) string {
			assert.Equal(t, "DEAL_STAGE_1", payload["entityId"])
			return `{"result": [
				{"STATUS_ID": "C1:WON", "NAME": "Сделка выиграна"},
				{"STATUS_ID": "NEW", "NAME": "Новая"}
			], "total": 2}`
		},
		"crm.contact.get": func(map[string]any) string {
			return `{"result": {"ID": "5", "NAME": "Иван", "LAST_NAME": "Петров"}}`
		},
		"crm.company.get": func(map[string]any) string {
			return `{"result": {"ID": "9", "TITLE": "ООО Ромашка"}}`
		},
	})
	defer srv.Close()

	agg := newTestAggregator(srv.URL)
	detailed, err := agg.FetchDetailedStats(context.Background(), 42, RangeAll, partner.KindContact)
	require.NoError(t, err)
	require.Len(t, detailed.Clients, 3)

	// Contact takes priority over the linked company and grouping is sorted
	// by deal count.
	first := detailed.Clients[0]
	assert.Equal(t, "5", first.ClientID)
	assert.Equal(t, "contact", first.ClientType)
	assert.Equal(t, "Иван Петров", first.ClientName)
	assert.Equal(t, 2, first.DealsCount)
	assert.Equal(t, 110.0, first.Stats.TotalAmount)
	assert.Equal(t, map[string]int{"Сделка выиграна": 1, "Новая": 1}, first.Stages)

	second := detailed.Clients[1]
	assert.Equal(t, "9", second.ClientID)
	assert.Equal(t, "company", second.ClientType)
	assert.Equal(t, "ООО Ромашка", second.ClientName)

	third := detailed.Clients[2]
	assert.Equal(t, "Без клиента", third.ClientName)
	assert.Equal(t, "unknown", third.ClientType)
}

func TestSummarizeLeads(t *testing.T) {
	s := SummarizeLeads([]bitrix.Lead{
		{StatusID: "NEW", Opportunity: "10"},
		{StatusID: "CONVERTED", Opportunity: "20"},
		{StatusID: "JUNK", Opportunity: "0"},
	})
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 30.0, s.TotalAmount)
}
