package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/config"
	"partner_bitrix/internal/partner"
	"partner_bitrix/internal/stats"
)

type Server struct {
	cfg    config.Config
	client *bitrix.Client
	dir    *partner.Directory
	rec    *partner.Reconciler
	agg    *stats.Aggregator
	cache  *stats.NameCache
	log    *logrus.Entry
}

func New(cfg config.Config, client *bitrix.Client, dir *partner.Directory, rec *partner.Reconciler, agg *stats.Aggregator, cache *stats.NameCache) *Server {
	return &Server{
		cfg:    cfg,
		client: client,
		dir:    dir,
		rec:    rec,
		agg:    agg,
		cache:  cache,
		log:    logrus.WithField("component", "http"),
	}
}

func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	r.HandleFunc("/webhook", s.handlePartnerCard).Methods(http.MethodPost)
	r.HandleFunc("/webhook/utm", s.handleUTMBind).Methods(http.MethodPost)
	r.HandleFunc("/webhook/deal", s.handleDealLinks).Methods(http.MethodPost)
	r.HandleFunc("/api/mark-payment", s.handleMarkPayment).Methods(http.MethodPost)
	return r
}

func (s *Server) Start(addr string) error {
	s.log.Infof("HTTP server on %s", addr)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = rootTemplate.Execute(w, nil)
}

// handlePartnerCard renders the detail-tab placement: every deal and lead
// referencing the contact/company as a partner, with bucketed statistics.
func (s *Server) handlePartnerCard(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	data := ParseBody(r)

	placement := data["PLACEMENT"]
	if placement == "" {
		placement = "CRM_CONTACT_DETAIL_TAB"
	}

	var kind partner.Kind
	var label string
	switch placement {
	case "CRM_CONTACT_DETAIL_TAB":
		kind, label = partner.KindContact, "контакта"
	case "CRM_COMPANY_DETAIL_TAB":
		kind, label = partner.KindCompany, "компании"
	default:
		s.log.Errorf("неизвестный тип размещения: %s", placement)
		htmlError(w, http.StatusBadRequest, "Неизвестный тип размещения")
		return
	}

	entityID := placementEntityID(data["PLACEMENT_OPTIONS"])
	if entityID == "" {
		s.log.Error("не удалось получить ID контакта или компании")
		htmlError(w, http.StatusBadRequest, "Не удалось получить ID контакта или компании")
		return
	}

	if !s.client.Configured() {
		htmlError(w, http.StatusInternalServerError, "Интеграция с Bitrix24 не настроена")
		return
	}

	ref := partner.Reference{Kind: kind, ID: entityID}
	card := cardData{
		EntityName:  s.dir.DisplayName(ctx, ref),
		EntityLabel: label,
	}

	deals, err := s.agg.ListPartnerDeals(ctx, ref, nil)
	if err != nil {
		s.log.WithError(err).Warnf("получение сделок для %s", ref.Encode())
	}
	leads, err := s.agg.ListPartnerLeads(ctx, ref, nil)
	if err != nil {
		s.log.WithError(err).Warnf("получение лидов для %s", ref.Encode())
	}

	card.DealStats = stats.SummarizeDeals(deals)
	card.LeadStats = stats.SummarizeLeads(leads)

	stageNames := make(map[string]map[string]string)
	for _, d := range deals {
		if _, ok := stageNames[d.CategoryID]; !ok {
			stageNames[d.CategoryID] = s.cache.StageNames(ctx, d.CategoryID)
		}
		card.Deals = append(card.Deals, cardRecord{
			ID:         d.ID,
			Title:      recordTitle(d.Title, "Сделка", d.ID),
			Amount:     stats.FormatCurrency(stats.ParseAmount(d.Opportunity), d.CurrencyID),
			StageName:  nameOr(stageNames[d.CategoryID], d.StageID),
			StageColor: stageColor(d.StageID),
			URL:        fmt.Sprintf("https://%s/crm/deal/details/%s/", s.cfg.PartnerDomain, d.ID),
		})
	}

	leadStatuses := s.cache.LeadStatusNames(ctx)
	for _, l := range leads {
		card.Leads = append(card.Leads, cardRecord{
			ID:         l.ID,
			Title:      recordTitle(l.Title, "Лид", l.ID),
			Amount:     stats.FormatCurrency(stats.ParseAmount(l.Opportunity), l.CurrencyID),
			StageName:  nameOr(leadStatuses, l.StatusID),
			StageColor: stageColor(l.StatusID),
		})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := cardTemplate.Execute(w, card); err != nil {
		s.log.WithError(err).Error("рендер карточки партнёра")
	}
}

// handleMarkPayment sets the payment flag on a deal.
func (s *Server) handleMarkPayment(w http.ResponseWriter, r *http.Request) {
	data := ParseBody(r)

	dealID := firstOf(data, "deal_id")
	if dealID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "deal_id is required",
		})
		return
	}

	if !s.client.Configured() {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Интеграция с Bitrix24 не настроена",
		})
		return
	}

	err := s.client.CallUpdate(r.Context(), "crm.deal.update", map[string]any{
		"ID":     dealID,
		"fields": map[string]any{s.cfg.DealPaymentField: "1"},
	})
	if err != nil {
		s.log.WithError(err).Errorf("отметка оплаты по сделке %s", dealID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"deal_id": dealID,
	})
}

// handleUTMBind processes the automation hook: resolve the record's UTM
// term as a partner code and stamp the partner reference onto it.
func (s *Server) handleUTMBind(w http.ResponseWriter, r *http.Request) {
	data := ParseBody(r)

	kind, ok := partner.RecordKindFromDocumentID(data["document_id[1]"])
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Неизвестный тип сущности: %s", data["document_id[1]"]),
		})
		return
	}

	entityID, ok := partner.RecordIDFromDocumentID(data["document_id[2]"])
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("Не удалось извлечь ID из document_id[2]: %s", data["document_id[2]"]),
		})
		return
	}

	outcome, err := s.rec.BindFromUTM(r.Context(), kind, entityID)
	if err != nil {
		var fetchErr *partner.FetchError
		if errors.As(err, &fetchErr) {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"success":     false,
				"error":       fmt.Sprintf("Не удалось получить данные %s с ID %s", kind, entityID),
				"entity_type": string(kind),
				"entity_id":   entityID,
			})
			return
		}

		resp := map[string]any{
			"success":     false,
			"error":       fmt.Sprintf("Не удалось привязать партнера к %s %s", kind, entityID),
			"entity_type": string(kind),
			"entity_id":   entityID,
		}
		if outcome.Partner != nil {
			resp["partner_type"] = string(outcome.Partner.Kind)
			resp["partner_id"] = outcome.Partner.ID
		}
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}

	if !outcome.Bound {
		resp := map[string]any{
			"success":     false,
			"message":     outcome.Message,
			"entity_type": string(kind),
			"entity_id":   entityID,
		}
		if outcome.Code != "" {
			resp["partner_code"] = outcome.Code
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"message":      fmt.Sprintf("Партнер успешно привязан к %s", kind),
		"entity_type":  string(kind),
		"entity_id":    entityID,
		"partner_type": string(outcome.Partner.Kind),
		"partner_id":   outcome.Partner.ID,
		"partner_code": outcome.Code,
	})
}

// handleDealLinks derives partner codes from a deal's linked contact and
// company and writes back a promo URL.
func (s *Server) handleDealLinks(w http.ResponseWriter, r *http.Request) {
	data := ParseBody(r)

	dealID := firstOf(data, "deal_id", "DEAL_ID", "id", "ID")
	if dealID == "" {
		if id, ok := partner.RecordIDFromDocumentID(data["document_id[2]"]); ok {
			dealID = id
		}
	}
	if dealID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "deal id is required",
		})
		return
	}

	results, allOK, err := s.rec.BindFromLinks(r.Context(), dealID)
	if err != nil {
		var fetchErr *partner.FetchError
		status := http.StatusInternalServerError
		if errors.As(err, &fetchErr) {
			status = http.StatusNotFound
		}
		writeJSON(w, status, map[string]any{
			"success": false,
			"error":   err.Error(),
			"deal_id": dealID,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": allOK,
		"deal_id": dealID,
		"results": results,
	})
}

func placementEntityID(options string) string {
	if options == "" {
		return ""
	}
	var parsed map[string]any
	if err := json.Unmarshal([]byte(options), &parsed); err != nil {
		return ""
	}
	return stringify(parsed["ID"])
}

func recordTitle(title, label, id string) string {
	if title != "" {
		return title
	}
	return fmt.Sprintf("%s #%s", label, id)
}

func nameOr(names map[string]string, stageID string) string {
	if name, ok := names[stageID]; ok && name != "" {
		return name
	}
	return stageID
}

func htmlError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	fmt.Fprintf(w, "<h1>Ошибка</h1><p>%s</p>", message)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
