package repository

import (
	"context"
	"game-devserver/internal/models"
)

// AccessLogRepository defines the interface for access record persistence
type AccessLogRepository interface {
	CreateRecord(ctx context.Context, rec *models.AccessRecord) error
	CreateRecords(ctx context.Context, recs []*models.AccessRecord) error
	GetRecordByID(ctx context.Context, id string) (*models.AccessRecord, error)
	ListRecent(ctx context.Context, limit int) ([]*models.AccessRecord, error)
	CountByStatus(ctx context.Context) ([]models.StatusCount, error)
	Close() error
}
