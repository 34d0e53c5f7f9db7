package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/bizops/services/crm/internal/cache"
	"example.com/bizops/services/crm/internal/metrics"
	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/outbox"
	"example.com/bizops/services/crm/internal/repositories"
	"example.com/bizops/services/crm/internal/tracing"
	"example.com/bizops/services/crm/internal/workflow"
)

const dealCacheTTL = 5 * time.Minute

// DealService handles deal-related business logic. Every state-changing write
// emits its outbox event in the same database transaction, so neither can
// exist without the other.
type DealService struct {
	db       *gorm.DB
	dealRepo repositories.DealRepository
	writer   *outbox.Writer
	cache    *cache.RedisCache
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
}

// NewDealService creates a new deal service
func NewDealService(
	db *gorm.DB,
	redisCache *cache.RedisCache,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *DealService {
	return &DealService{
		db:       db,
		dealRepo: repositories.NewDealRepository(db),
		writer:   outbox.NewWriter(repositories.NewOutboxRepository(db)),
		cache:    redisCache,
		metrics:  metricsCollector,
		tracer:   tracer,
	}
}

// CreateDealInput carries the fields for a new deal
type CreateDealInput struct {
	TenantID uuid.UUID
	Name     string
	Stage    string
	Value    int64
	Currency string
	OwnerID  *uuid.UUID
}

// CreateDeal creates a deal and emits a deal.created event atomically
func (s *DealService) CreateDeal(ctx context.Context, input CreateDealInput) (*models.Deal, error) {
	if input.TenantID == uuid.Nil {
		return nil, errors.New("tenant id is required")
	}
	if input.Name == "" {
		return nil, errors.New("deal name is required")
	}

	txn := s.tracer.StartTransaction("create-deal")
	defer s.tracer.EndTransaction(txn)

	deal := &models.Deal{
		ID:       uuid.New(),
		TenantID: input.TenantID,
		Name:     input.Name,
		Stage:    input.Stage,
		Value:    input.Value,
		Currency: input.Currency,
		OwnerID:  input.OwnerID,
	}
	if deal.Stage == "" {
		deal.Stage = "open"
	}
	if deal.Currency == "" {
		deal.Currency = "USD"
	}

	span := s.tracer.StartSpan("create-deal-tx", txn)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.dealRepo.WithTx(tx).Create(ctx, deal); err != nil {
			return errors.Wrap(err, "failed to create deal")
		}

		if _, err := s.writer.WithTx(tx).Emit(ctx, workflow.EventDealCreated, deal); err != nil {
			return err
		}

		return nil
	})
	span.End()

	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.IncrementCounter(metrics.CounterEventsEmitted)

	log.Info().
		Str("deal_id", deal.ID.String()).
		Str("tenant_id", deal.TenantID.String()).
		Str("stage", deal.Stage).
		Msg("Deal created")

	return deal, nil
}

// UpdateDealInput carries the mutable deal fields; nil means unchanged
type UpdateDealInput struct {
	Name  *string
	Stage *string
	Value *int64
}

// UpdateDeal applies changes to a deal and emits a deal.updated event with a
// full snapshot of the committed state
func (s *DealService) UpdateDeal(ctx context.Context, id uuid.UUID, input UpdateDealInput) (*models.Deal, error) {
	txn := s.tracer.StartTransaction("update-deal")
	defer s.tracer.EndTransaction(txn)

	deal, err := s.dealRepo.GetByID(ctx, id)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	if input.Name != nil {
		deal.Name = *input.Name
	}
	if input.Stage != nil {
		deal.Stage = *input.Stage
	}
	if input.Value != nil {
		deal.Value = *input.Value
	}

	span := s.tracer.StartSpan("update-deal-tx", txn)
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.dealRepo.WithTx(tx).Update(ctx, deal); err != nil {
			return errors.Wrap(err, "failed to update deal")
		}

		if _, err := s.writer.WithTx(tx).Emit(ctx, workflow.EventDealUpdated, deal); err != nil {
			return err
		}

		return nil
	})
	span.End()

	if err != nil {
		s.tracer.RecordError(txn, err)
		return nil, err
	}

	s.metrics.IncrementCounter(metrics.CounterEventsEmitted)

	log.Info().
		Str("deal_id", deal.ID.String()).
		Str("stage", deal.Stage).
		Msg("Deal updated")

	return deal, nil
}

// GetDeal fetches a deal, serving from cache when possible
func (s *DealService) GetDeal(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var cached models.Deal
	if err := s.cache.Get(ctx, cache.GetDealCacheKey(id), &cached); err == nil {
		return &cached, nil
	}

	deal, err := s.dealRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, cache.GetDealCacheKey(id), deal, dealCacheTTL); err != nil {
		log.Warn().Err(err).Str("deal_id", id.String()).Msg("Failed to cache deal")
	}

	return deal, nil
}
