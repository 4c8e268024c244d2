// Package retention retires match threads older than a cutoff. Candidates
// come from three sources (active listing, archived listing, recorded pair
// pointers) because no single one is complete: the archived listing is
// paginated and capped upstream, and pair pointers can reference threads the
// listings miss.
package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/matchrelay/matchrelay/internal/gateway"
	"github.com/matchrelay/matchrelay/internal/kv"
)

// maxArchivePages bounds the archived-listing pagination loop. A cursor that
// never terminates must not turn a sweep into an infinite loop; this is a
// hard invariant, not a tuning knob.
const maxArchivePages = 20

const archivePageSize = 100

// pairKeyPattern matches the session router's pair pointer keys.
const pairKeyPattern = "threadpair:*"

// Summary aggregates one sweep. A single thread's failure increments Errors
// and the sweep continues.
type Summary struct {
	Cutoff    time.Time `json:"cutoff"`
	Inspected int       `json:"inspected"`
	Deleted   int       `json:"deleted"`
	Errors    int       `json:"errors"`
}

// Service is the retention sweeper.
type Service struct {
	store  kv.Store
	gw     gateway.Gateway
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a retention sweeper.
func NewService(log *slog.Logger, store kv.Store, gw gateway.Gateway) *Service {
	return &Service{
		store:  store,
		gw:     gw,
		now:    time.Now,
		logger: log.With(slog.String("service", "retention")),
	}
}

// Sweep deletes every thread under parentChannelID whose derived creation
// instant is older than now−maxAge. Deleting an already-absent thread counts
// as a successful deletion.
func (s *Service) Sweep(ctx context.Context, parentChannelID string, maxAge time.Duration) (Summary, error) {
	if parentChannelID == "" {
		return Summary{}, fmt.Errorf("parent channel not configured")
	}
	cutoff := s.now().UTC().Add(-maxAge)
	summary := Summary{Cutoff: cutoff}

	// creation instant per candidate id, de-duplicated across sources; a
	// listing-provided instant wins over a snowflake-derived one.
	candidates := map[string]time.Time{}
	fromListing := map[string]bool{}

	addThread := func(thread gateway.Thread) {
		if thread.ID == "" {
			return
		}
		if !thread.ArchiveTime.IsZero() {
			candidates[thread.ID] = thread.ArchiveTime
			fromListing[thread.ID] = true
			return
		}
		s.addByID(thread.ID, candidates, fromListing, &summary)
	}

	active, err := s.gw.ActiveThreads(ctx, parentChannelID)
	if err != nil {
		s.logger.Warn("active listing failed", slog.Any("error", err))
		summary.Errors++
	}
	for _, thread := range active {
		addThread(thread)
	}

	var before *time.Time
	for page := 0; page < maxArchivePages; page++ {
		archived, err := s.gw.ArchivedThreads(ctx, parentChannelID, before, archivePageSize)
		if err != nil {
			s.logger.Warn("archived listing failed", slog.Any("error", err))
			summary.Errors++
			break
		}
		for _, thread := range archived.Threads {
			addThread(thread)
		}
		if !archived.HasMore || archived.Cursor == nil {
			break
		}
		before = archived.Cursor
	}

	for _, id := range s.recordedThreadIDs(ctx, &summary) {
		s.addByID(id, candidates, fromListing, &summary)
	}

	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		summary.Inspected++
		if !candidates[id].Before(cutoff) {
			continue
		}
		if err := s.gw.DeleteThread(ctx, id); err != nil {
			s.logger.Warn("delete thread failed",
				slog.String("thread_id", id), slog.Any("error", err))
			summary.Errors++
			continue
		}
		summary.Deleted++
	}

	s.logger.Info("sweep finished",
		slog.Time("cutoff", cutoff),
		slog.Int("inspected", summary.Inspected),
		slog.Int("deleted", summary.Deleted),
		slog.Int("errors", summary.Errors))
	return summary, nil
}

// addByID records a candidate whose creation instant must be decoded from
// the id itself. A listing-provided instant already recorded is kept.
func (s *Service) addByID(id string, candidates map[string]time.Time, fromListing map[string]bool, summary *Summary) {
	if fromListing[id] {
		return
	}
	if _, seen := candidates[id]; seen {
		return
	}
	created, err := gateway.CreationTime(id)
	if err != nil {
		s.logger.Warn("undecodable thread id", slog.String("thread_id", id), slog.Any("error", err))
		summary.Errors++
		return
	}
	candidates[id] = created
}

// recordedThreadIDs recovers thread ids from the pair pointers the session
// router has written. Listing limits upstream can hide old threads; the
// pointers remember them.
func (s *Service) recordedThreadIDs(ctx context.Context, summary *Summary) []string {
	keys, err := s.store.ScanKeys(ctx, pairKeyPattern)
	if err != nil {
		s.logger.Warn("pair pointer scan failed", slog.Any("error", err))
		summary.Errors++
		return nil
	}
	var ids []string
	for _, key := range keys {
		id, ok, err := s.store.Get(ctx, key)
		if err != nil {
			summary.Errors++
			continue
		}
		if ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
