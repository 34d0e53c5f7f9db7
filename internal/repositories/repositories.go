package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"example.com/bizops/services/crm/internal/models"
)

// DealRepository provides access to deal data
type DealRepository interface {
	Create(ctx context.Context, deal *models.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	Update(ctx context.Context, deal *models.Deal) error
	WithTx(tx *gorm.DB) DealRepository
}

type dealRepository struct {
	db *gorm.DB
}

// NewDealRepository creates a new deal repository
func NewDealRepository(db *gorm.DB) DealRepository {
	return &dealRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *dealRepository) WithTx(tx *gorm.DB) DealRepository {
	return &dealRepository{db: tx}
}

// Create creates a new deal
func (r *dealRepository) Create(ctx context.Context, deal *models.Deal) error {
	return r.db.WithContext(ctx).Create(deal).Error
}

// GetByID gets a deal by ID
func (r *dealRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error) {
	var deal models.Deal
	err := r.db.WithContext(ctx).First(&deal, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get deal by ID")
	}
	return &deal, nil
}

// Update saves changes to an existing deal
func (r *dealRepository) Update(ctx context.Context, deal *models.Deal) error {
	return r.db.WithContext(ctx).Save(deal).Error
}

// ProjectRepository provides access to project data
type ProjectRepository interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	WithTx(tx *gorm.DB) ProjectRepository
}

type projectRepository struct {
	db *gorm.DB
}

// NewProjectRepository creates a new project repository
func NewProjectRepository(db *gorm.DB) ProjectRepository {
	return &projectRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *projectRepository) WithTx(tx *gorm.DB) ProjectRepository {
	return &projectRepository{db: tx}
}

// Create creates a new project
func (r *projectRepository) Create(ctx context.Context, project *models.Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

// GetByID gets a project by ID
func (r *projectRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	var project models.Project
	err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get project by ID")
	}
	return &project, nil
}

// OutboxRepository provides access to the outbox event table. The writer only
// ever inserts; the dispatcher only ever reads pending rows and stamps
// processed_at. Nothing else touches this table.
type OutboxRepository interface {
	Create(ctx context.Context, event *models.OutboxEvent) error
	GetUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	WithTx(tx *gorm.DB) OutboxRepository
}

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository creates a new outbox repository
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

// WithTx returns a repository bound to the given transaction
func (r *outboxRepository) WithTx(tx *gorm.DB) OutboxRepository {
	return &outboxRepository{db: tx}
}

// Create appends a new event row
func (r *outboxRepository) Create(ctx context.Context, event *models.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// GetUnprocessed gets pending events, oldest first
func (r *outboxRepository) GetUnprocessed(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := r.db.WithContext(ctx).
		Where("processed_at IS NULL").
		Order("created_at ASC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to get unprocessed outbox events")
	}
	return events, nil
}

// MarkProcessed stamps an event's processed_at. The processed_at IS NULL
// predicate makes the transition happen at most once.
func (r *outboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.OutboxEvent{}).
		Where("id = ? AND processed_at IS NULL", id).
		Update("processed_at", time.Now())

	if result.Error != nil {
		return errors.Wrap(result.Error, "failed to mark outbox event as processed")
	}

	if result.RowsAffected == 0 {
		return errors.New("no outbox event updated")
	}

	return nil
}
