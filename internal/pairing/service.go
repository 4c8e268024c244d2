// Package pairing routes a pair of match participants to a reusable private
// thread. The pair-key→thread-id pointer in the store is the durable state;
// the thread itself may archive or vanish out-of-band, so routing always
// verifies it can be reactivated and recreates it when it cannot.
package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/matchrelay/matchrelay/internal/gateway"
	"github.com/matchrelay/matchrelay/internal/identity"
	"github.com/matchrelay/matchrelay/internal/kv"
)

// ErrSelfPair is returned when both participants resolve to the same user.
var ErrSelfPair = errors.New("both players are linked to the same user")

// Outcome classifies the result of routing one match event.
type Outcome string

// Routing outcomes.
const (
	OutcomeSkipped        Outcome = "skipped"
	OutcomePostedExisting Outcome = "posted_existing"
	OutcomePostedNew      Outcome = "posted_new"
)

// Result describes where a match event ended up.
type Result struct {
	Outcome  Outcome
	ThreadID string
	Reason   string
}

// Service is the session router.
type Service struct {
	store           kv.Store
	gw              gateway.Gateway
	identities      *identity.Service
	parentChannelID string
	logger          *slog.Logger
}

// NewService creates a session router posting threads under parentChannelID.
func NewService(log *slog.Logger, store kv.Store, gw gateway.Gateway, identities *identity.Service, parentChannelID string) *Service {
	return &Service{
		store:           store,
		gw:              gw,
		identities:      identities,
		parentChannelID: parentChannelID,
		logger:          log.With(slog.String("service", "pairing")),
	}
}

// PairKey returns the canonical, order-independent store key for two player
// names: PairKey(a, b) == PairKey(b, a) for all a, b.
func PairKey(a, b string) string {
	names := []string{identity.CanonicalPlayer(a), identity.CanonicalPlayer(b)}
	sort.Strings(names)
	return "threadpair:" + names[0] + "|" + names[1]
}

// RouteMatch delivers one match event for playerOne vs playerTwo.
//
// Unlinked pairs are skipped without any gateway call. An existing thread is
// reactivated and reused; a stale or missing pointer falls through to
// creating a new thread and repointing the pair key. Repeated events for a
// live pair converge on the same thread. Two concurrent events for a
// brand-new pair can still both create one, since the store has no
// conditional write; the second pointer write wins.
func (s *Service) RouteMatch(ctx context.Context, playerOne, playerTwo string) (Result, error) {
	p1 := strings.TrimSpace(playerOne)
	p2 := strings.TrimSpace(playerTwo)
	if p1 == "" || p2 == "" {
		return Result{}, fmt.Errorf("both player names are required")
	}

	id1, err := s.identities.Lookup(ctx, p1)
	if err != nil {
		return Result{}, err
	}
	id2, err := s.identities.Lookup(ctx, p2)
	if err != nil {
		return Result{}, err
	}

	// Cost avoidance: a pair with no linked player never gets a thread.
	if id1 == nil && id2 == nil {
		s.logger.Debug("match skipped, no linked players",
			slog.String("player_one", p1), slog.String("player_two", p2))
		return Result{Outcome: OutcomeSkipped, Reason: "no_linked_players"}, nil
	}
	if id1 != nil && id2 != nil && id1.UserID == id2.UserID {
		return Result{}, fmt.Errorf("%w: %s vs %s", ErrSelfPair, p1, p2)
	}

	content := fmt.Sprintf("🎮 New game started! %s vs %s", mentionOrName(id1, p1), mentionOrName(id2, p2))
	pairKey := PairKey(p1, p2)

	threadID, found, err := s.store.Get(ctx, pairKey)
	if err != nil {
		return Result{}, err
	}
	if found {
		if err := s.reactivate(ctx, threadID); err == nil {
			s.deliver(ctx, threadID, id1, id2, content)
			s.logger.Info("posted in existing thread",
				slog.String("pair_key", pairKey), slog.String("thread_id", threadID))
			return Result{Outcome: OutcomePostedExisting, ThreadID: threadID}, nil
		}
		// Pointer went stale (thread deleted or inaccessible); recreate.
		s.logger.Warn("stored thread not reactivatable, recreating",
			slog.String("pair_key", pairKey), slog.String("thread_id", threadID))
	}

	if s.parentChannelID == "" {
		return Result{}, fmt.Errorf("match channel not configured")
	}
	thread, err := s.create(ctx, p1+" vs "+p2)
	if err != nil {
		return Result{}, err
	}
	if err := s.store.Set(ctx, pairKey, thread.ID); err != nil {
		// The thread exists but the pointer write failed; the next event
		// for this pair will create another thread. Surface the failure.
		return Result{}, fmt.Errorf("store pair pointer: %w", err)
	}
	s.deliver(ctx, thread.ID, id1, id2, content)
	s.logger.Info("posted in new thread",
		slog.String("pair_key", pairKey), slog.String("thread_id", thread.ID))
	return Result{Outcome: OutcomePostedNew, ThreadID: thread.ID}, nil
}

// reactivate unarchives the thread, negotiating down the allowed
// auto-archive durations until one is accepted.
func (s *Service) reactivate(ctx context.Context, threadID string) error {
	var lastErr error
	for _, duration := range gateway.ArchiveDurations {
		if err := s.gw.ReactivateThread(ctx, threadID, duration); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("reactivate %s: %w", threadID, lastErr)
}

// create makes a new private thread, negotiating the auto-archive duration
// the same way.
func (s *Service) create(ctx context.Context, name string) (gateway.Thread, error) {
	var lastErr error
	for _, duration := range gateway.ArchiveDurations {
		thread, err := s.gw.CreateThread(ctx, s.parentChannelID, gateway.TruncateName(name), duration)
		if err != nil {
			lastErr = err
			continue
		}
		if thread.ID == "" {
			lastErr = fmt.Errorf("gateway returned thread without id")
			continue
		}
		return thread, nil
	}
	return gateway.Thread{}, fmt.Errorf("create thread: %w", lastErr)
}

// deliver adds the resolved members and posts the event message. Membership
// and message delivery are best effort: the thread is already routed, and
// the next event for the pair retries both.
func (s *Service) deliver(ctx context.Context, threadID string, id1, id2 *identity.Identity, content string) {
	for _, id := range []*identity.Identity{id1, id2} {
		if id == nil {
			continue
		}
		if err := s.gw.AddMember(ctx, threadID, id.UserID); err != nil {
			s.logger.Warn("add member failed",
				slog.String("thread_id", threadID),
				slog.String("user_id", id.UserID),
				slog.Any("error", err))
		}
	}
	if _, err := s.gw.PostMessage(ctx, threadID, content); err != nil {
		s.logger.Warn("post match message failed",
			slog.String("thread_id", threadID), slog.Any("error", err))
	}
}

func mentionOrName(id *identity.Identity, player string) string {
	if id != nil {
		return "<@" + id.UserID + ">"
	}
	return player
}
