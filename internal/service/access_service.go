package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"game-devserver/internal/logger"
	"game-devserver/internal/metrics"
	"game-devserver/internal/models"
	"game-devserver/internal/repository"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultQueueSize = 1024
	maxBatchSize     = 64
	flushTimeout     = 5 * time.Second
)

// ErrRecordNotFound is returned by GetRecord for an unknown ID
var ErrRecordNotFound = errors.New("access record not found")

// AccessLogService persists access records off the request path
type AccessLogService struct {
	repo    repository.AccessLogRepository
	metrics *metrics.Metrics
	queue   chan *models.AccessRecord
	log     logrus.FieldLogger
}

// NewAccessLogService creates a service buffering up to queueSize records
func NewAccessLogService(repo repository.AccessLogRepository, metrics *metrics.Metrics, queueSize int, log logrus.FieldLogger) *AccessLogService {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	if log == nil {
		log = logger.Discard()
	}
	return &AccessLogService{
		repo:    repo,
		metrics: metrics,
		queue:   make(chan *models.AccessRecord, queueSize),
		log:     log,
	}
}

// Record queues rec without blocking. When the queue is full the record is dropped.
func (s *AccessLogService) Record(rec *models.AccessRecord) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	select {
	case s.queue <- rec:
	default:
		if s.metrics != nil {
			s.metrics.IncrementDroppedRecords()
		}
		s.log.WithField("path", rec.Path).Warn("access log queue full, dropping record")
	}
}

// Run writes queued records until ctx is cancelled, then flushes what is left
func (s *AccessLogService) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			s.flush()
			return ctx.Err()
		case rec := <-s.queue:
			// a batch picked up during cancellation must still be written
			s.write(context.WithoutCancel(ctx), s.collect(rec))
		}
	}
}

// collect drains whatever is already queued, up to maxBatchSize
func (s *AccessLogService) collect(first *models.AccessRecord) []*models.AccessRecord {
	batch := []*models.AccessRecord{first}
	for len(batch) < maxBatchSize {
		select {
		case rec := <-s.queue:
			batch = append(batch, rec)
		default:
			return batch
		}
	}
	return batch
}

func (s *AccessLogService) write(ctx context.Context, batch []*models.AccessRecord) {
	var err error
	if len(batch) == 1 {
		err = s.repo.CreateRecord(ctx, batch[0])
	} else {
		err = s.repo.CreateRecords(ctx, batch)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{"records": len(batch), "error": err}).Error("failed to write access records")
	}
}

func (s *AccessLogService) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for {
		select {
		case rec := <-s.queue:
			s.write(ctx, s.collect(rec))
		default:
			return
		}
	}
}

// GetRecord returns the record with the given ID
func (s *AccessLogService) GetRecord(ctx context.Context, id string) (*models.AccessRecord, error) {
	rec, err := s.repo.GetRecordByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, id)
		}
		return nil, fmt.Errorf("failed to get access record: %w", err)
	}
	return rec, nil
}

// ListRecent returns the newest records first
func (s *AccessLogService) ListRecent(ctx context.Context, limit int) ([]*models.AccessRecord, error) {
	recs, err := s.repo.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list access records: %w", err)
	}
	return recs, nil
}

// StatusSummary returns record counts grouped by status code
func (s *AccessLogService) StatusSummary(ctx context.Context) ([]models.StatusCount, error) {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize access records: %w", err)
	}
	return counts, nil
}
