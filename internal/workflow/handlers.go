package workflow

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/bizops/services/crm/internal/cache"
	"example.com/bizops/services/crm/internal/messaging"
	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/search"
)

// Event types emitted by the business services
const (
	EventDealCreated    = "deal.created"
	EventDealUpdated    = "deal.updated"
	EventProjectCreated = "project.created"
)

// NewDealIndexHandler returns a handler that indexes the deal snapshot in
// Elasticsearch. Indexing is idempotent per deal id, so re-delivery is safe.
func NewDealIndexHandler(client *search.ElasticClient) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var deal models.Deal
		if err := json.Unmarshal(payload, &deal); err != nil {
			return errors.Wrap(err, "failed to unmarshal deal payload")
		}

		return client.IndexDeal(ctx, &deal)
	}
}

// NewDealCacheInvalidationHandler returns a handler that drops the cached
// copy of an updated deal so the next read sees the committed state
func NewDealCacheInvalidationHandler(redisCache *cache.RedisCache) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		var deal models.Deal
		if err := json.Unmarshal(payload, &deal); err != nil {
			return errors.Wrap(err, "failed to unmarshal deal payload")
		}

		if err := redisCache.Delete(ctx, cache.GetDealCacheKey(deal.ID)); err != nil {
			return errors.Wrap(err, "failed to invalidate deal cache")
		}

		log.Debug().Str("deal_id", deal.ID.String()).Msg("Deal cache invalidated")
		return nil
	}
}

// NewIntegrationPublishHandler returns a handler that forwards the event to
// the platform Service Bus queue for other services to consume
func NewIntegrationPublishHandler(bus messaging.ServiceBusClient, eventType string) Handler {
	return func(ctx context.Context, payload json.RawMessage) error {
		if err := bus.SendMessage(ctx, eventType, payload); err != nil {
			return errors.Wrapf(err, "failed to publish %q integration event", eventType)
		}

		log.Debug().Str("event_type", eventType).Msg("Integration event published")
		return nil
	}
}
