// Package announce maintains a singleton status banner per channel, tracked
// by a channel→message-id pointer in the store. The pointer can drift from
// reality (manual deletes, failed writes), so clearing also reconciles by
// content-matching a bounded window of recent messages.
package announce

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/matchrelay/matchrelay/internal/gateway"
	"github.com/matchrelay/matchrelay/internal/kv"
)

// Reconciliation scan bounds: Clear inspects at most maxScanPages pages of
// scanPageSize messages. Banners older than that window are not found; the
// invariant is best effort by design.
const (
	maxScanPages = 5
	scanPageSize = 100
)

// EnsureStatus reports whether Ensure reused or created the banner.
type EnsureStatus string

// Ensure outcomes.
const (
	StatusExists  EnsureStatus = "exists"
	StatusCreated EnsureStatus = "created"
)

// Service coordinates the banner message.
type Service struct {
	store  kv.Store
	gw     gateway.Gateway
	logger *slog.Logger
}

// NewService creates an announcement coordinator.
func NewService(log *slog.Logger, store kv.Store, gw gateway.Gateway) *Service {
	return &Service{
		store:  store,
		gw:     gw,
		logger: log.With(slog.String("service", "announce")),
	}
}

func pointerKey(channelID string) string { return "lfgmsg:" + channelID }

// Ensure guarantees a banner exists in the channel. A present pointer is
// trusted without a gateway call; otherwise the banner is posted and its id
// stored.
func (s *Service) Ensure(ctx context.Context, channelID, bannerText string) (EnsureStatus, string, error) {
	if channelID == "" {
		return "", "", fmt.Errorf("channel id is required")
	}
	messageID, found, err := s.store.Get(ctx, pointerKey(channelID))
	if err != nil {
		return "", "", err
	}
	if found {
		s.logger.Debug("banner exists",
			slog.String("channel_id", channelID), slog.String("message_id", messageID))
		return StatusExists, messageID, nil
	}

	msg, err := s.gw.PostMessage(ctx, channelID, bannerText)
	if err != nil {
		return "", "", fmt.Errorf("post banner: %w", err)
	}
	if err := s.store.Set(ctx, pointerKey(channelID), msg.ID); err != nil {
		return "", "", fmt.Errorf("store banner pointer: %w", err)
	}
	s.logger.Info("banner created",
		slog.String("channel_id", channelID), slog.String("message_id", msg.ID))
	return StatusCreated, msg.ID, nil
}

// Clear removes every instance of the banner it can find: the tracked
// message first, then every message in the recent window whose content
// exactly equals bannerText, and finally the pointer key itself regardless
// of what was found. Returns the number of messages deleted.
func (s *Service) Clear(ctx context.Context, channelID, bannerText string) (int, error) {
	if channelID == "" {
		return 0, fmt.Errorf("channel id is required")
	}

	deleted := 0
	trackedID, found, err := s.store.Get(ctx, pointerKey(channelID))
	if err != nil {
		return 0, err
	}
	if found {
		if err := s.gw.DeleteMessage(ctx, channelID, trackedID); err != nil {
			s.logger.Warn("delete tracked banner failed",
				slog.String("channel_id", channelID),
				slog.String("message_id", trackedID),
				slog.Any("error", err))
		} else {
			deleted++
		}
	}

	// Reconciliation: catch duplicates left by drift or failed deletes.
	before := ""
	for page := 0; page < maxScanPages; page++ {
		msgs, err := s.gw.ListMessages(ctx, channelID, scanPageSize, before)
		if err != nil {
			s.logger.Warn("banner scan failed",
				slog.String("channel_id", channelID), slog.Any("error", err))
			break
		}
		if len(msgs) == 0 {
			break
		}
		for _, msg := range msgs {
			if msg.ID == trackedID || msg.Content != bannerText {
				continue
			}
			if err := s.gw.DeleteMessage(ctx, channelID, msg.ID); err != nil {
				s.logger.Warn("delete banner duplicate failed",
					slog.String("channel_id", channelID),
					slog.String("message_id", msg.ID),
					slog.Any("error", err))
				continue
			}
			deleted++
		}
		before = msgs[len(msgs)-1].ID
	}

	// The pointer is only a hint; drop it even when nothing matched.
	if err := s.store.Del(ctx, pointerKey(channelID)); err != nil {
		return deleted, fmt.Errorf("clear banner pointer: %w", err)
	}
	s.logger.Info("banner cleared",
		slog.String("channel_id", channelID), slog.Int("deleted", deleted))
	return deleted, nil
}
