package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/totegamma/nostrconnect/internal/domain"
	"github.com/totegamma/nostrconnect/internal/infra/database/models"
)

type PostgresStore struct {
	db        *gorm.DB
	namespace string
}

func NewPostgresStore(db *gorm.DB, namespace string) *PostgresStore {
	return &PostgresStore{db: db, namespace: namespace}
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var record models.SessionRecord
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", domain.NotFoundError{Resource: key}
	}
	if err != nil {
		return "", err
	}
	return record.Value, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	record := models.SessionRecord{
		Namespace: s.namespace,
		Key:       key,
		Value:     value,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "m_date"}),
	}).Create(&record).Error
}

func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).
		Where("namespace = ? AND key = ?", s.namespace, key).
		Delete(&models.SessionRecord{}).Error
}

func (s *PostgresStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Where("namespace = ?", s.namespace).
		Delete(&models.SessionRecord{}).Error
}
