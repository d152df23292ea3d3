package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/example/stock-ledger/internal/domain/resource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// day returns midnight UTC of the nth day of the test range.
func day(n int) time.Time {
	return time.Date(2025, 6, n, 0, 0, 0, 0, time.UTC)
}

func TestService_Calendar_FlatAvailability(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	cal, err := service.Calendar(ctx, res, day(1), day(3))

	require.NoError(t, err)
	require.Len(t, cal.Days, 3)
	for _, d := range cal.Days {
		assert.Equal(t, resource.Bounded(10), d.Min)
		assert.Equal(t, resource.Bounded(10), d.Max)
	}
	assert.Equal(t, resource.Bounded(10), cal.MinAvailable)
	assert.Equal(t, resource.Bounded(10), cal.MaxAvailable)
}

func TestService_Calendar_IntradayClaimBoundaries(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	// Claim 4 units from noon day 2 to noon day 4
	from := day(2).Add(12 * time.Hour)
	until := day(4).Add(12 * time.Hour)
	_, err := service.Claim(ctx, res, 4, ClaimOptions{From: &from, Until: &until})
	require.NoError(t, err)

	cal, err := service.Calendar(ctx, res, day(1), day(5))
	require.NoError(t, err)
	require.Len(t, cal.Days, 5)

	// Day 1: untouched
	assert.Equal(t, resource.Bounded(10), cal.Days[0].Min)
	assert.Equal(t, resource.Bounded(10), cal.Days[0].Max)

	// Day 2: full in the morning, claimed from noon
	assert.Equal(t, resource.Bounded(6), cal.Days[1].Min)
	assert.Equal(t, resource.Bounded(10), cal.Days[1].Max)

	// Day 3: claimed all day
	assert.Equal(t, resource.Bounded(6), cal.Days[2].Min)
	assert.Equal(t, resource.Bounded(6), cal.Days[2].Max)

	// Day 4: claimed until noon, free after
	assert.Equal(t, resource.Bounded(6), cal.Days[3].Min)
	assert.Equal(t, resource.Bounded(10), cal.Days[3].Max)

	// Day 5: untouched again
	assert.Equal(t, resource.Bounded(10), cal.Days[4].Min)

	assert.Equal(t, resource.Bounded(6), cal.MinAvailable)
	assert.Equal(t, resource.Bounded(10), cal.MaxAvailable)
}

func TestService_Calendar_Unmanaged(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	cal, err := service.Calendar(ctx, unmanaged("res-1"), day(1), day(3))

	require.NoError(t, err)
	require.Len(t, cal.Days, 3)
	assert.True(t, cal.MinAvailable.IsUnbounded())
	assert.True(t, cal.MaxAvailable.IsUnbounded())
	for _, d := range cal.Days {
		assert.True(t, d.Min.IsUnbounded())
		assert.True(t, d.Max.IsUnbounded())
	}
}

func TestService_DayTimeline(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()
	res := managed("res-1")

	require.NoError(t, service.Increase(ctx, res, 10))

	from := day(2).Add(9 * time.Hour)
	until := day(2).Add(17 * time.Hour)
	_, err := service.Claim(ctx, res, 3, ClaimOptions{From: &from, Until: &until})
	require.NoError(t, err)

	points, err := service.DayTimeline(ctx, res, day(2))
	require.NoError(t, err)

	// Day start, claim start, claim end, day end: chronological order
	require.Len(t, points, 4)
	assert.Equal(t, day(2), points[0].At)
	assert.Equal(t, resource.Bounded(10), points[0].Available)
	assert.Equal(t, from, points[1].At)
	assert.Equal(t, resource.Bounded(7), points[1].Available)
	assert.Equal(t, until, points[2].At)
	assert.Equal(t, resource.Bounded(10), points[2].Available)
	assert.Equal(t, day(3), points[3].At)
	assert.Equal(t, resource.Bounded(10), points[3].Available)
}

func TestService_DayTimeline_Unmanaged(t *testing.T) {
	service, _ := newTestService()
	ctx := context.Background()

	points, err := service.DayTimeline(ctx, unmanaged("res-1"), day(2))

	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.True(t, points[0].Available.IsUnbounded())
	assert.True(t, points[1].Available.IsUnbounded())
}
