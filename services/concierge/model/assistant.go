package model

import (
	"time"

	"github.com/google/uuid"
)

// Assistant maps a tenant to the assistant created for it on the remote service.
type Assistant struct {
	ID          uuid.UUID `gorm:"type:uuid;primarykey"`
	Tenant      string    `gorm:"uniqueIndex;not null"`
	AssistantID string    `gorm:"not null"`
	Name        string
	Model       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
