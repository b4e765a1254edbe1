package infrastructure

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"adrotator/internal/domain"
	"adrotator/pkg/logger"
)

const dateLayout = "2006-01-02"

// ActivityRepository keeps per-day show and click tallies in memory
type ActivityRepository struct {
	data   map[string]map[string]*domain.AdActivity
	mutex  sync.RWMutex
	logger *logger.Logger
}

func NewActivityRepository(logger *logger.Logger) *ActivityRepository {
	return &ActivityRepository{
		data:   make(map[string]map[string]*domain.AdActivity),
		logger: logger,
	}
}

func (r *ActivityRepository) Record(ctx context.Context, adID string, kind domain.ActivityKind, at time.Time) error {
	if adID == "" {
		return fmt.Errorf("record %s: empty ad id", kind)
	}
	if kind != domain.ActivityShow && kind != domain.ActivityClick {
		return fmt.Errorf("unknown activity kind %q", kind)
	}

	r.mutex.Lock()
	defer r.mutex.Unlock()

	dateKey := at.Format(dateLayout)
	day, ok := r.data[dateKey]
	if !ok {
		day = make(map[string]*domain.AdActivity)
		r.data[dateKey] = day
	}
	activity, ok := day[adID]
	if !ok {
		activity = &domain.AdActivity{Date: dateKey, AdID: adID}
		day[adID] = activity
	}

	if kind == domain.ActivityShow {
		activity.Shows++
	} else {
		activity.Clicks++
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"ad_id": adID,
		"kind":  string(kind),
		"date":  dateKey,
	}).Debug("Recorded ad activity")
	return nil
}

// GetByDateRange returns tallies for days in [from, to], ordered by date then ad
func (r *ActivityRepository) GetByDateRange(ctx context.Context, from, to time.Time) ([]domain.AdActivity, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("invalid date range: %s after %s", from.Format(dateLayout), to.Format(dateLayout))
	}

	r.mutex.RLock()
	defer r.mutex.RUnlock()

	fromKey, toKey := from.Format(dateLayout), to.Format(dateLayout)

	var result []domain.AdActivity
	for dateKey, day := range r.data {
		if dateKey < fromKey || dateKey > toKey {
			continue
		}
		for _, activity := range day {
			result = append(result, *activity)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Date != result[j].Date {
			return result[i].Date < result[j].Date
		}
		return result[i].AdID < result[j].AdID
	})

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"from":  fromKey,
		"to":    toKey,
		"count": len(result),
	}).Debug("Retrieved ad activity by date range")

	return result, nil
}
