package stats

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"partner_bitrix/internal/bitrix"
)

// NameCache memoizes stage/status display names per status entity id.
// Entries live for the process lifetime; the size bound guards against a
// misbehaving portal since the universe of pipelines is normally tiny.
type NameCache struct {
	client     *bitrix.Client
	log        *logrus.Entry
	maxEntries int

	mu      sync.Mutex
	entries map[string]map[string]string
}

func NewNameCache(client *bitrix.Client, maxEntries int) *NameCache {
	if maxEntries < 1 {
		maxEntries = 64
	}
	return &NameCache{
		client:     client,
		log:        logrus.WithField("component", "name-cache"),
		maxEntries: maxEntries,
		entries:    make(map[string]map[string]string),
	}
}

// StageEntityID maps a deal pipeline id to its status entity id: the default
// pipeline uses the bare DEAL_STAGE sentinel.
func StageEntityID(categoryID string) string {
	if categoryID == "" || categoryID == "0" {
		return "DEAL_STAGE"
	}
	return "DEAL_STAGE_" + categoryID
}

// StageNames returns stage-id to display-name for one deal pipeline.
func (c *NameCache) StageNames(ctx context.Context, categoryID string) map[string]string {
	return c.names(ctx, StageEntityID(categoryID))
}

// LeadStatusNames returns the lead status dictionary.
func (c *NameCache) LeadStatusNames(ctx context.Context) map[string]string {
	return c.names(ctx, "STATUS")
}

func (c *NameCache) names(ctx context.Context, entityID string) map[string]string {
	c.mu.Lock()
	if cached, ok := c.entries[entityID]; ok {
		c.mu.Unlock()
		return cached
	}
	c.mu.Unlock()

	items, err := bitrix.ListAll[bitrix.StatusItem](ctx, c.client, "crm.status.entity.items", map[string]any{
		"entityId": entityID,
	})
	if err != nil {
		c.log.WithError(err).Warnf("получение статусов %s", entityID)
		return map[string]string{}
	}

	names := make(map[string]string, len(items))
	for _, item := range items {
		if item.StatusID == "" {
			continue
		}
		name := item.Name
		if name == "" {
			name = item.StatusID
		}
		names[item.StatusID] = name
	}

	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.entries = make(map[string]map[string]string)
	}
	c.entries[entityID] = names
	c.mu.Unlock()

	return names
}
