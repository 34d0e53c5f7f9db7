package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Tenant represents a tenant on the platform
type Tenant struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"not null" json:"name"`
}

// Deal represents a sales deal in the CRM pipeline
type Deal struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	Name      string         `gorm:"not null" json:"name"`
	Stage     string         `gorm:"not null;default:'open'" json:"stage"`
	Value     int64          `gorm:"not null;default:0" json:"value"`
	Currency  string         `gorm:"not null;default:'USD'" json:"currency"`
	OwnerID   *uuid.UUID     `gorm:"type:uuid" json:"owner_id"`
	Tenant    Tenant         `gorm:"foreignKey:TenantID" json:"-"`
}

// Project represents a delivery project, typically opened off a won deal
type Project struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	TenantID  uuid.UUID      `gorm:"type:uuid;not null;index" json:"tenant_id"`
	DealID    *uuid.UUID     `gorm:"type:uuid" json:"deal_id"`
	Name      string         `gorm:"not null" json:"name"`
	Status    string         `gorm:"not null;default:'active'" json:"status"`
	Tenant    Tenant         `gorm:"foreignKey:TenantID" json:"-"`
}

// OutboxEvent is a durable domain event row. Rows are written in the same
// transaction as the mutation they describe and are never mutated afterwards
// except to stamp ProcessedAt; rows with a nil ProcessedAt form the pending
// queue consumed by the dispatcher.
type OutboxEvent struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	EventType   string     `gorm:"not null" json:"event_type"`
	Payload     []byte     `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
}

// TableName overrides the default table name for outbox events
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

// SetupModels configures GORM models and runs migrations
func SetupModels(db *gorm.DB) error {
	// Apply all migrations
	err := db.AutoMigrate(
		&Tenant{},
		&Deal{},
		&Project{},
		&OutboxEvent{},
	)
	if err != nil {
		return errors.Wrap(err, "failed to run auto migrations")
	}

	// Partial index keeps the poll query cheap as processed history accumulates
	err = db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_outbox_events_pending
		 ON outbox_events (created_at)
		 WHERE processed_at IS NULL`,
	).Error
	if err != nil {
		return errors.Wrap(err, "failed to create pending outbox index")
	}

	return nil
}
