// Package queue records how long the matchmaking queue was occupied and
// derives reports from the recorded durations: a rolling 48-hour aggregate
// and a daily line-delimited export.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/matchrelay/matchrelay/internal/kv"
)

const (
	durationsKey = "queue:durations"
	pendingKey   = "queue:pending"

	statsWindow = 48 * time.Hour
)

// Session is one recorded queue occupancy, scored by its end instant in the
// durations index.
type Session struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
	Dur   int64 `json:"dur"`
}

// Stats aggregates the sessions of the last 48 hours.
type Stats struct {
	WindowHours int                `json:"window_hours"`
	Count       int                `json:"count"`
	AvgSec      float64            `json:"avg_sec"`
	AvgMin      float64            `json:"avg_min"`
	ByHourUTC   map[string]float64 `json:"by_hour_utc"`
}

// Report is one day's export: Lines holds one row per session,
// "<raw json>\t<end>", newline-terminated when non-empty.
type Report struct {
	Day   string
	Count int
	Lines string
}

// Mailer delivers an export report.
type Mailer interface {
	SendExport(ctx context.Context, report Report) error
}

// Service records and reports queue sessions.
type Service struct {
	store  kv.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a queue session service.
func NewService(log *slog.Logger, store kv.Store) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: log.With(slog.String("service", "queue")),
	}
}

// SetLooking records a queue state transition. Entering the looking state
// opens a pending session (repeats are ignored); leaving it closes the
// pending session, if any, and appends its duration to the index.
func (s *Service) SetLooking(ctx context.Context, looking bool) error {
	if looking {
		_, pending, err := s.store.Get(ctx, pendingKey)
		if err != nil {
			return err
		}
		if pending {
			return nil
		}
		return s.store.Set(ctx, pendingKey, strconv.FormatInt(s.now().UTC().Unix(), 10))
	}

	raw, pending, err := s.store.Get(ctx, pendingKey)
	if err != nil {
		return err
	}
	if !pending {
		return nil
	}
	start, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		// Unreadable pending marker; drop it rather than poison the index.
		s.logger.Warn("unreadable pending session", slog.String("value", raw))
		return s.store.Del(ctx, pendingKey)
	}

	end := s.now().UTC().Unix()
	session := Session{Start: start, End: end, Dur: end - start}
	member, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.store.AddToIndex(ctx, durationsKey, end, string(member)); err != nil {
		return err
	}
	if err := s.store.Del(ctx, pendingKey); err != nil {
		return err
	}
	s.logger.Info("queue session recorded",
		slog.Int64("start", start), slog.Int64("end", end), slog.Int64("dur", session.Dur))
	return nil
}

// Stats aggregates the last 48 hours of sessions. Rows with a non-positive
// duration or end instant are ignored.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	now := s.now().UTC().Unix()
	rows, err := s.store.RangeByScore(ctx, durationsKey, now-int64(statsWindow.Seconds()), now)
	if err != nil {
		return Stats{}, err
	}

	var durations []int64
	byHour := map[int][]int64{}
	for _, row := range rows {
		var session Session
		if err := json.Unmarshal([]byte(row), &session); err != nil {
			continue
		}
		if session.Dur <= 0 || session.End <= 0 {
			continue
		}
		durations = append(durations, session.Dur)
		hour := time.Unix(session.End, 0).UTC().Hour()
		byHour[hour] = append(byHour[hour], session.Dur)
	}

	stats := Stats{
		WindowHours: int(statsWindow.Hours()),
		Count:       len(durations),
		AvgSec:      mean(durations),
		ByHourUTC:   map[string]float64{},
	}
	stats.AvgMin = round2(stats.AvgSec / 60)
	for hour := 0; hour < 24; hour++ {
		stats.ByHourUTC[strconv.Itoa(hour)] = mean(byHour[hour])
	}
	return stats, nil
}

// ExportPreviousDay builds the JSONL report for the previous UTC day.
func (s *Service) ExportPreviousDay(ctx context.Context) (Report, error) {
	day, start, end := previousUTCDay(s.now())
	rows, err := s.store.RangeByScore(ctx, durationsKey, start, end)
	if err != nil {
		return Report{}, err
	}

	var sb strings.Builder
	for _, row := range rows {
		endField := ""
		var session Session
		if err := json.Unmarshal([]byte(row), &session); err == nil {
			endField = strconv.FormatInt(session.End, 10)
		}
		sb.WriteString(row)
		sb.WriteString("\t")
		sb.WriteString(endField)
		sb.WriteString("\n")
	}
	return Report{Day: day, Count: len(rows), Lines: sb.String()}, nil
}

// previousUTCDay returns the previous day's date string and its inclusive
// [00:00:00, 23:59:59] UTC bounds as unix seconds.
func previousUTCDay(now time.Time) (string, int64, int64) {
	today := now.UTC().Truncate(24 * time.Hour)
	prev := today.AddDate(0, 0, -1)
	start := prev.Unix()
	end := prev.Add(24*time.Hour - time.Second).Unix()
	return prev.Format("2006-01-02"), start, end
}

func mean(values []int64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum int64
	for _, v := range values {
		sum += v
	}
	return round2(float64(sum) / float64(len(values)))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
