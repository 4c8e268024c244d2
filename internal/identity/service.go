// Package identity maintains the bidirectional player↔Discord-user mapping.
// A player maps to at most one user and a user to at most one player; both
// directions are enforced at write time, since the store cannot.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/matchrelay/matchrelay/internal/kv"
)

// Errors returned by link operations.
var (
	ErrAlreadyLinkedPlayer = errors.New("player is already linked to another user")
	ErrAlreadyLinkedUser   = errors.New("user is already linked to another player")
	ErrNotFound            = errors.New("player link not found")
	ErrForbidden           = errors.New("requester does not own this link")
)

// Identity is the Discord side of a player link.
type Identity struct {
	UserID      string
	Username    string
	DisplayName string
}

// Service reads and writes identity links in the key-value store.
type Service struct {
	store  kv.Store
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates an identity link service.
func NewService(log *slog.Logger, store kv.Store) *Service {
	return &Service{
		store:  store,
		now:    time.Now,
		logger: log.With(slog.String("service", "identity")),
	}
}

// CanonicalPlayer normalizes a player name to its canonical key form.
func CanonicalPlayer(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func playerKey(player string) string { return "playerlink:" + CanonicalPlayer(player) }
func userKey(userID string) string   { return "discorduser:" + userID }
func nameKey(username string) string { return "discordname:" + strings.ToLower(username) }
func metaKey(userID string) string   { return "discordmeta:" + userID }

// linkRecord is the structured value stored under the player key. Older
// deployments stored the bare user id instead; decodeLinkValue accepts both.
type linkRecord struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"global_name,omitempty"`
}

type linkMeta struct {
	Player   string `json:"player"`
	LinkedAt string `json:"linked_at"`
}

// decodeLinkValue resolves a stored player-link value to an Identity. The
// value is either the current JSON record or a legacy bare user id.
func decodeLinkValue(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, fmt.Errorf("empty link value")
	}
	if !strings.HasPrefix(raw, "{") {
		// Legacy shape: the value is the user id itself.
		return Identity{UserID: raw}, nil
	}
	var record linkRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return Identity{}, fmt.Errorf("decode link value: %w", err)
	}
	if record.ID == "" {
		return Identity{}, fmt.Errorf("link value missing user id")
	}
	return Identity{
		UserID:      record.ID,
		Username:    record.Username,
		DisplayName: record.DisplayName,
	}, nil
}

// Link records that player belongs to id. It fails with
// ErrAlreadyLinkedPlayer when the player is owned by a different user, and
// with ErrAlreadyLinkedUser when the user already owns a different player.
// Re-linking the same pair refreshes the stored record.
//
// The four writes are not atomic; the forward mapping is written first so a
// partial failure leaves it authoritative and a retry converges.
func (s *Service) Link(ctx context.Context, player string, id Identity) error {
	canonical := CanonicalPlayer(player)
	if canonical == "" {
		return fmt.Errorf("player name is required")
	}
	if id.UserID == "" {
		return fmt.Errorf("user id is required")
	}

	existing, err := s.Lookup(ctx, player)
	if err != nil {
		return err
	}
	if existing != nil && existing.UserID != id.UserID {
		return fmt.Errorf("%w: %s", ErrAlreadyLinkedPlayer, canonical)
	}

	ownedPlayer, owned, err := s.LookupByUser(ctx, id.UserID)
	if err != nil {
		return err
	}
	if owned && ownedPlayer != canonical {
		return fmt.Errorf("%w: %s owns %s", ErrAlreadyLinkedUser, id.UserID, ownedPlayer)
	}

	record, err := json.Marshal(linkRecord{
		ID:          id.UserID,
		Username:    id.Username,
		DisplayName: id.DisplayName,
	})
	if err != nil {
		return fmt.Errorf("encode link record: %w", err)
	}
	if err := s.store.Set(ctx, playerKey(player), string(record)); err != nil {
		return err
	}
	if err := s.store.Set(ctx, userKey(id.UserID), canonical); err != nil {
		return err
	}
	if id.Username != "" {
		if err := s.store.Set(ctx, nameKey(id.Username), canonical); err != nil {
			return err
		}
	}
	meta, err := json.Marshal(linkMeta{
		Player:   canonical,
		LinkedAt: strconv.FormatInt(s.now().UTC().Unix(), 10),
	})
	if err != nil {
		return fmt.Errorf("encode link meta: %w", err)
	}
	if err := s.store.Set(ctx, metaKey(id.UserID), string(meta)); err != nil {
		return err
	}

	s.logger.Info("player linked",
		slog.String("player", canonical),
		slog.String("user_id", id.UserID))
	return nil
}

// Lookup resolves a player name to its linked identity, or nil when the
// player is not linked.
func (s *Service) Lookup(ctx context.Context, player string) (*Identity, error) {
	raw, ok, err := s.store.Get(ctx, playerKey(player))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	id, err := decodeLinkValue(raw)
	if err != nil {
		s.logger.Warn("unreadable link value",
			slog.String("player", CanonicalPlayer(player)),
			slog.Any("error", err))
		return nil, nil
	}
	return &id, nil
}

// LookupByUser returns the player name linked to userID, if any.
func (s *Service) LookupByUser(ctx context.Context, userID string) (string, bool, error) {
	player, ok, err := s.store.Get(ctx, userKey(userID))
	if err != nil {
		return "", false, err
	}
	return player, ok, nil
}

// Unlink removes the player's link. Only the linked user or an admin may
// remove it. Reverse keys are deleted before the forward key so a partial
// failure never strands a reverse mapping pointing at a removed link.
func (s *Service) Unlink(ctx context.Context, player, requesterID string, requesterIsAdmin bool) error {
	canonical := CanonicalPlayer(player)
	id, err := s.Lookup(ctx, player)
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("%w: %s", ErrNotFound, canonical)
	}
	if id.UserID != requesterID && !requesterIsAdmin {
		return fmt.Errorf("%w: %s", ErrForbidden, canonical)
	}

	if err := s.store.Del(ctx, userKey(id.UserID)); err != nil {
		return err
	}
	if id.Username != "" {
		if err := s.store.Del(ctx, nameKey(id.Username)); err != nil {
			return err
		}
	}
	if err := s.store.Del(ctx, metaKey(id.UserID)); err != nil {
		return err
	}
	if err := s.store.Del(ctx, playerKey(player)); err != nil {
		return err
	}

	s.logger.Info("player unlinked",
		slog.String("player", canonical),
		slog.String("user_id", id.UserID),
		slog.Bool("by_admin", requesterIsAdmin && id.UserID != requesterID))
	return nil
}
