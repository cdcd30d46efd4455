package service

import (
	"context"
	"strings"

	"fermenter_controller/internal/models"
	"fermenter_controller/internal/repository"
)

type HistoryService struct {
	readingRepo repository.ReadingRepo
}

func NewHistoryService(readingRepo repository.ReadingRepo) *HistoryService {
	return &HistoryService{readingRepo: readingRepo}
}

func (s *HistoryService) Readings(ctx context.Context, q ReadingQuery) ([]models.SensorReading, error) {
	from, to, err := normalizeRange(q.From, q.To)
	if err != nil {
		return nil, err
	}
	return s.readingRepo.List(ctx, repository.ReadingFilter{
		SensorID: strings.TrimSpace(q.SensorID),
		From:     from,
		To:       to,
		Limit:    q.Limit,
	})
}
