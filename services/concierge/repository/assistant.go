package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kaytu-io/ai-concierge/services/concierge/db"
	"github.com/kaytu-io/ai-concierge/services/concierge/model"
)

var (
	ErrAssistantNotFound = errors.New("assistant not found for tenant")
)

type Assistant interface {
	Get(ctx context.Context, tenant string) (*model.Assistant, error)
	Save(ctx context.Context, a model.Assistant) error
	Delete(ctx context.Context, tenant string) error
}

type AssistantSQL struct {
	db db.Database
}

func NewAssistantSQL(db db.Database) Assistant {
	return AssistantSQL{
		db: db,
	}
}

func (s AssistantSQL) Get(ctx context.Context, tenant string) (*model.Assistant, error) {
	var a model.Assistant

	tx := s.db.Orm.WithContext(ctx).Where("tenant = ?", tenant).First(&a)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			return nil, ErrAssistantNotFound
		}
		return nil, tx.Error
	}

	return &a, nil
}

// Save inserts the tenant's assistant or replaces the stored one.
func (s AssistantSQL) Save(ctx context.Context, a model.Assistant) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	tx := s.db.Orm.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant"}},
			DoUpdates: clause.AssignmentColumns([]string{"assistant_id", "name", "model", "updated_at"}),
		}).
		Create(&a)

	return tx.Error
}

func (s AssistantSQL) Delete(ctx context.Context, tenant string) error {
	tx := s.db.Orm.WithContext(ctx).
		Where("tenant = ?", tenant).
		Delete(&model.Assistant{})

	return tx.Error
}
