package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/bizops/services/crm/internal/metrics"
	"example.com/bizops/services/crm/internal/models"
	"example.com/bizops/services/crm/internal/outbox"
	"example.com/bizops/services/crm/internal/repositories"
	"example.com/bizops/services/crm/internal/tracing"
	"example.com/bizops/services/crm/internal/workflow"
)

// ProjectService handles project-related business logic
type ProjectService struct {
	db          *gorm.DB
	projectRepo repositories.ProjectRepository
	writer      *outbox.Writer
	metrics     *metrics.Metrics
	tracer      tracing.Tracer
}

// NewProjectService creates a new project service
func NewProjectService(
	db *gorm.DB,
	metricsCollector *metrics.Metrics,
	tracer tracing.Tracer,
) *ProjectService {
	return &ProjectService{
		db:          db,
		projectRepo: repositories.NewProjectRepository(db),
		writer:      outbox.NewWriter(repositories.NewOutboxRepository(db)),
		metrics:     metricsCollector,
		tracer:      tracer,
	}
}

// CreateProjectInput carries the fields for a new project
type CreateProjectInput struct {
	TenantID uuid.UUID
	DealID   *uuid.UUID
	Name     string
}

// CreateProject creates a project and emits a project.created event atomically
func (s *ProjectService) CreateProject(ctx context.Context, input CreateProjectInput) (*models.Project, error) {
	if input.TenantID == uuid.Nil {
		return nil, errors.New("tenant id is required")
	}
	if input.Name == "" {
		return nil, errors.New("project name is required")
	}

	txn := s.tracer.StartTransaction("create-project")
	defer s.tracer.EndTransaction(txn)

	project := &models.Project{
		ID:       uuid.New(),
		TenantID: input.TenantID,
		DealID:   input.DealID,
		Name:     input.Name,
		Status:   "active",
	}

	span := s.tracer.StartSpan("create-project-tx", txn)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.projectRepo.WithTx(tx).Create(ctx, project); err != nil {
			return errors.Wrap(err, "failed to create project")
		}

		if _, err := s.writer.WithTx(tx).Emit(ctx, workflow.EventProjectCreated, project); err != nil {
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
		Str("project_id", project.ID.String()).
		Str("tenant_id", project.TenantID.String()).
		Msg("Project created")

	return project, nil
}
