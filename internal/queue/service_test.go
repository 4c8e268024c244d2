package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matchrelay/matchrelay/internal/kv"
)

func newTestService(start time.Time) (*Service, *kv.Memory, *time.Time) {
	store := kv.NewMemory()
	svc := NewService(slog.Default(), store)
	clock := start
	svc.now = func() time.Time { return clock }
	return svc, store, &clock
}

func TestSetLookingRecordsOneSession(t *testing.T) {
	ctx := context.Background()
	start := time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)
	svc, store, clock := newTestService(start)

	require.NoError(t, svc.SetLooking(ctx, true))
	// Repeated "looking" events keep the original start.
	*clock = start.Add(2 * time.Minute)
	require.NoError(t, svc.SetLooking(ctx, true))

	*clock = start.Add(5 * time.Minute)
	require.NoError(t, svc.SetLooking(ctx, false))

	rows, err := store.RangeByScore(ctx, "queue:durations", 0, clock.Unix())
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var session Session
	require.NoError(t, json.Unmarshal([]byte(rows[0]), &session))
	assert.Equal(t, start.Unix(), session.Start)
	assert.Equal(t, start.Add(5*time.Minute).Unix(), session.End)
	assert.Equal(t, int64(300), session.Dur)

	// The pending marker is consumed.
	_, pending, err := store.Get(ctx, "queue:pending")
	require.NoError(t, err)
	assert.False(t, pending)
}

func TestSetLookingFalseWithoutPendingIsNoop(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))

	require.NoError(t, svc.SetLooking(ctx, false))
	rows, err := store.RangeByScore(ctx, "queue:durations", 0, clock.Unix())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestSetLookingDropsUnreadablePendingMarker(t *testing.T) {
	ctx := context.Background()
	svc, store, clock := newTestService(time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC))

	require.NoError(t, store.Set(ctx, "queue:pending", "garbage"))
	require.NoError(t, svc.SetLooking(ctx, false))

	_, pending, err := store.Get(ctx, "queue:pending")
	require.NoError(t, err)
	assert.False(t, pending)
	rows, err := store.RangeByScore(ctx, "queue:durations", 0, clock.Unix())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestStatsAggregatesRecentWindow(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(now)

	add := func(end time.Time, dur int64) {
		session := Session{Start: end.Unix() - dur, End: end.Unix(), Dur: dur}
		raw, err := json.Marshal(session)
		require.NoError(t, err)
		require.NoError(t, store.AddToIndex(ctx, "queue:durations", end.Unix(), string(raw)))
	}

	add(now.Add(-time.Hour), 120)       // 11:00 UTC
	add(now.Add(-time.Hour), 60)        // 11:00 UTC
	add(now.Add(-30*time.Hour), 600)    // inside the window, 06:00 UTC
	add(now.Add(-72*time.Hour), 999999) // outside the window
	add(now.Add(-time.Minute), 0)       // zero duration, ignored

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, 48, stats.WindowHours)
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 260.0, stats.AvgSec, 0.001)
	assert.InDelta(t, 4.33, stats.AvgMin, 0.001)
	assert.Len(t, stats.ByHourUTC, 24)
	assert.InDelta(t, 90.0, stats.ByHourUTC["11"], 0.001)
	assert.InDelta(t, 600.0, stats.ByHourUTC["6"], 0.001)
	assert.Zero(t, stats.ByHourUTC["3"])
}

func TestExportPreviousDay(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 6, 15, 6, 0, 0, 0, time.UTC)
	svc, store, _ := newTestService(now)

	add := func(end time.Time, dur int64) string {
		session := Session{Start: end.Unix() - dur, End: end.Unix(), Dur: dur}
		raw, err := json.Marshal(session)
		require.NoError(t, err)
		require.NoError(t, store.AddToIndex(ctx, "queue:durations", end.Unix(), string(raw)))
		return string(raw)
	}

	inDay1 := add(time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC), 30)
	inDay2 := add(time.Date(2024, 6, 14, 23, 59, 59, 0, time.UTC), 45)
	add(time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), 50) // today, excluded
	add(time.Date(2024, 6, 13, 23, 59, 59, 0, time.UTC), 60)

	report, err := svc.ExportPreviousDay(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-14", report.Day)
	assert.Equal(t, 2, report.Count)

	lines := strings.Split(strings.TrimRight(report.Lines, "\n"), "\n")
	require.Len(t, lines, 2)
	for i, want := range []string{inDay1, inDay2} {
		parts := strings.Split(lines[i], "\t")
		require.Len(t, parts, 2)
		assert.Equal(t, want, parts[0])
		var session Session
		require.NoError(t, json.Unmarshal([]byte(parts[0]), &session))
		assert.Equal(t, strconv.FormatInt(session.End, 10), parts[1])
	}
}
