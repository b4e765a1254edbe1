package infrastructure

import (
	"context"
	"testing"
	"time"

	"adrotator/internal/domain"
	"adrotator/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityRepositoryTallies(t *testing.T) {
	repo := NewActivityRepository(logger.Discard())
	ctx := context.Background()

	day1 := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)
	day2 := day1.AddDate(0, 0, 1)

	require.NoError(t, repo.Record(ctx, "b", domain.ActivityShow, day1))
	require.NoError(t, repo.Record(ctx, "a", domain.ActivityShow, day1))
	require.NoError(t, repo.Record(ctx, "a", domain.ActivityShow, day1.Add(time.Hour)))
	require.NoError(t, repo.Record(ctx, "a", domain.ActivityClick, day1))
	require.NoError(t, repo.Record(ctx, "a", domain.ActivityShow, day2))

	got, err := repo.GetByDateRange(ctx, day1, day2)
	require.NoError(t, err)
	assert.Equal(t, []domain.AdActivity{
		{Date: "2025-03-03", AdID: "a", Shows: 2, Clicks: 1},
		{Date: "2025-03-03", AdID: "b", Shows: 1},
		{Date: "2025-03-04", AdID: "a", Shows: 1},
	}, got)

	got, err = repo.GetByDateRange(ctx, day2, day2)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestActivityRepositoryRejectsBadInput(t *testing.T) {
	repo := NewActivityRepository(logger.Discard())
	ctx := context.Background()
	now := time.Now()

	assert.Error(t, repo.Record(ctx, "", domain.ActivityShow, now))
	assert.Error(t, repo.Record(ctx, "a", domain.ActivityKind("hover"), now))

	// rejected records leave no empty rows behind
	got, err := repo.GetByDateRange(ctx, now, now)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.GetByDateRange(ctx, now, now.AddDate(0, 0, -1))
	assert.Error(t, err)
}
