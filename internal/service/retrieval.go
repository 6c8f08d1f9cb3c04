package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/mohamadsalahdarwish/notication-system/internal/model"
	"github.com/mohamadsalahdarwish/notication-system/pkg/metrics"
)

// Drainer is the destructive read the retrieval path relies on.
type Drainer interface {
	DrainByUsername(ctx context.Context, username string) ([]model.PendingNotification, error)
}

// RetrievalService hands a reconnecting user everything that accumulated
// while they were offline. Drain is atomic in the store, so two concurrent
// calls never return overlapping entries.
type RetrievalService struct {
	pending Drainer
	logger  *zap.Logger
}

func NewRetrievalService(pending Drainer, logger *zap.Logger) *RetrievalService {
	return &RetrievalService{
		pending: pending,
		logger:  logger,
	}
}

// Drain returns the user's pending notifications oldest first and deletes
// them. Zero pending entries is a normal empty result.
func (s *RetrievalService) Drain(ctx context.Context, username string) ([]model.PendingNotification, error) {
	drained, err := s.pending.DrainByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	if len(drained) > 0 {
		metrics.PendingDrained.Add(float64(len(drained)))
	}
	return drained, nil
}
