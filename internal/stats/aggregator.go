package stats

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/bitrix"
	"partner_bitrix/internal/config"
	"partner_bitrix/internal/partner"
)

// Aggregator pulls a partner's deals and leads from the CRM and reduces
// them to stage-bucketed statistics. Remote failures degrade to empty
// results; only a missing webhook configuration surfaces as an error.
type Aggregator struct {
	client *bitrix.Client
	dir    *partner.Directory
	cache  *NameCache
	log    *logrus.Entry

	dealRefField string
	leadRefField string

	now func() time.Time
}

func NewAggregator(client *bitrix.Client, dir *partner.Directory, cache *NameCache, cfg config.Config) *Aggregator {
	return &Aggregator{
		client:       client,
		dir:          dir,
		cache:        cache,
		log:          logrus.WithField("component", "aggregator"),
		dealRefField: cfg.DealRefField,
		leadRefField: cfg.LeadRefField,
		now:          time.Now,
	}
}

// binding resolves the tagged reference used in deal filters. An unknown
// kind is inferred by probing the CRM.
func (a *Aggregator) binding(ctx context.Context, partnerID int64, kind partner.Kind) partner.Reference {
	id := strconv.FormatInt(partnerID, 10)
	if kind == "" {
		kind = a.dir.ResolveKind(ctx, id)
	}
	return partner.Reference{Kind: kind, ID: id}
}

// ListPartnerDeals fetches every deal referencing the partner, optionally
// bounded below by creation date.
func (a *Aggregator) ListPartnerDeals(ctx context.Context, ref partner.Reference, from *time.Time) ([]bitrix.Deal, error) {
	filter := map[string]any{a.dealRefField: ref.Encode()}
	if from != nil {
		filter[">=DATE_CREATE"] = from.Format(time.RFC3339)
	}
	return bitrix.ListAll[bitrix.Deal](ctx, a.client, "crm.deal.list", map[string]any{
		"filter": filter,
		"select": []string{"ID", "TITLE", "STAGE_ID", "CATEGORY_ID", "OPPORTUNITY", "CURRENCY_ID", "DATE_CREATE", "COMPANY_ID", "CONTACT_ID"},
	})
}

// ListPartnerLeads fetches every lead referencing the partner.
func (a *Aggregator) ListPartnerLeads(ctx context.Context, ref partner.Reference, from *time.Time) ([]bitrix.Lead, error) {
	filter := map[string]any{a.leadRefField: ref.Encode()}
	if from != nil {
		filter[">=DATE_CREATE"] = from.Format(time.RFC3339)
	}
	return bitrix.ListAll[bitrix.Lead](ctx, a.client, "crm.lead.list", map[string]any{
		"filter": filter,
		"select": []string{"ID", "TITLE", "STATUS_ID", "OPPORTUNITY", "CURRENCY_ID", "DATE_CREATE", "COMPANY_ID", "CONTACT_ID"},
	})
}

// FetchStats aggregates the partner's deals for a range into bucketed
// counters.
func (a *Aggregator) FetchStats(ctx context.Context, partnerID int64, rng Range, kind partner.Kind) (DealStats, error) {
	ref := a.binding(ctx, partnerID, kind)
	deals, err := a.ListPartnerDeals(ctx, ref, RangeFrom(a.now(), rng))
	if err != nil {
		if err == bitrix.ErrNotConfigured {
			return DealStats{}, err
		}
		a.log.WithError(err).Warnf("получение сделок партнёра %s", ref.Encode())
		return DealStats{}, nil
	}

	return SummarizeDeals(deals), nil
}

func SummarizeDeals(deals []bitrix.Deal) DealStats {
	var stats DealStats
	for _, d := range deals {
		stats.Add(d.StageID, ParseAmount(d.Opportunity))
	}
	return stats
}

func SummarizeLeads(leads []bitrix.Lead) DealStats {
	var stats DealStats
	for _, l := range leads {
		stats.Add(l.StatusID, ParseAmount(l.Opportunity))
	}
	return stats
}

// fallbackStageNames covers portals where the status dictionary cannot be
// fetched at all.
var fallbackStageNames = map[string]string{
	"NEW":  "Новая",
	"WON":  "Выиграна",
	"LOSE": "Проиграна",
}

// FetchDetailedStats additionally groups the partner's deals by
// counterparty (a linked contact wins over a linked company) and resolves
// display and stage names. Counterparty names are memoized within one call
// only.
func (a *Aggregator) FetchDetailedStats(ctx context.Context, partnerID int64, rng Range, kind partner.Kind) (DetailedStats, error) {
	ref := a.binding(ctx, partnerID, kind)
	deals, err := a.ListPartnerDeals(ctx, ref, RangeFrom(a.now(), rng))
	if err != nil {
		if err == bitrix.ErrNotConfigured {
			return DetailedStats{}, err
		}
		a.log.WithError(err).Warnf("получение сделок партнёра %s", ref.Encode())
		deals = nil
	}

	stageNames := a.collectStageNames(ctx, deals)

	type clientKey struct {
		id   string
		kind string
	}

	order := make([]clientKey, 0)
	grouped := make(map[clientKey]*ClientDealInfo)
	names := make(map[clientKey]string)

	for _, deal := range deals {
		var key clientKey
		switch {
		case linked(deal.ContactID):
			key = clientKey{id: deal.ContactID, kind: string(partner.KindContact)}
		case linked(deal.CompanyID):
			key = clientKey{id: deal.CompanyID, kind: string(partner.KindCompany)}
		default:
			key = clientKey{id: "0", kind: "unknown"}
		}

		info, ok := grouped[key]
		if !ok {
			if _, seen := names[key]; !seen {
				names[key] = a.clientName(ctx, key.id, key.kind)
			}
			info = &ClientDealInfo{
				ClientID:   key.id,
				ClientName: names[key],
				ClientType: key.kind,
				Stages:     make(map[string]int),
			}
			grouped[key] = info
			order = append(order, key)
		}

		amount := ParseAmount(deal.Opportunity)
		info.Stats.Add(deal.StageID, amount)
		info.DealsCount++

		stageName := stageNames[deal.StageID]
		if stageName == "" {
			stageName = deal.StageID
		}
		info.Stages[stageName]++
	}

	clients := make([]ClientDealInfo, 0, len(order))
	for _, key := range order {
		clients = append(clients, *grouped[key])
	}
	sort.SliceStable(clients, func(i, j int) bool {
		return clients[i].DealsCount > clients[j].DealsCount
	})

	return DetailedStats{Clients: clients, StageNames: stageNames}, nil
}

// collectStageNames merges the status dictionaries of every pipeline seen in
// the result set, degrading to the built-in map when nothing is returned.
func (a *Aggregator) collectStageNames(ctx context.Context, deals []bitrix.Deal) map[string]string {
	seen := make(map[string]struct{})
	merged := make(map[string]string)

	for _, deal := range deals {
		cat := deal.CategoryID
		if _, ok := seen[cat]; ok {
			continue
		}
		seen[cat] = struct{}{}
		for id, name := range a.cache.StageNames(ctx, cat) {
			merged[id] = name
		}
	}

	if len(merged) == 0 {
		for id, name := range a.cache.StageNames(ctx, "") {
			merged[id] = name
		}
	}

	for id, name := range fallbackStageNames {
		if _, ok := merged[id]; !ok {
			merged[id] = name
		}
	}
	return merged
}

func (a *Aggregator) clientName(ctx context.Context, id, kind string) string {
	switch kind {
	case string(partner.KindContact):
		return a.dir.DisplayName(ctx, partner.Reference{Kind: partner.KindContact, ID: id})
	case string(partner.KindCompany):
		return a.dir.DisplayName(ctx, partner.Reference{Kind: partner.KindCompany, ID: id})
	}
	return "Без клиента"
}

func linked(id string) bool {
	return id != "" && id != "0"
}

// FormatCurrency renders an amount with the record's own currency symbol.
func FormatCurrency(amount float64, currency string) string {
	symbols := map[string]string{
		"RUB": "₽",
		"USD": "$",
		"EUR": "€",
	}
	symbol, ok := symbols[currency]
	if !ok {
		symbol = currency
	}
	return fmt.Sprintf("%.0f %s", amount, symbol)
}
