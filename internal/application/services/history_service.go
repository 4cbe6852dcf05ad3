package services

import (
	"context"
	"fmt"

	"github.com/AtRiskMedia/reportcache-go/internal/domain/entities/research"
	"github.com/AtRiskMedia/reportcache-go/internal/domain/repositories"
	"github.com/coder/quartz"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// HistoryService lists what a user has viewed, newest first.
type HistoryService struct {
	access        repositories.AccessLedger
	clock         quartz.Clock
	thresholdDays int
}

// NewHistoryService creates a new history service.
func NewHistoryService(access repositories.AccessLedger, clock quartz.Clock, thresholdDays int) *HistoryService {
	return &HistoryService{access: access, clock: clock, thresholdDays: thresholdDays}
}

// List returns up to limit items with their age filled in.
func (s *HistoryService) List(ctx context.Context, userID string, limit int) ([]*research.HistoryItem, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	items, err := s.access.History(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if items == nil {
		items = []*research.HistoryItem{}
	}

	now := s.clock.Now()
	for _, item := range items {
		entry := research.CacheEntry{GeneratedAt: item.GeneratedAt}
		item.AgeDays = entry.AgeDays(now)
		item.IsOutdated = item.AgeDays > s.thresholdDays
	}
	return items, nil
}
