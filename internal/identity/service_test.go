package identity

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/matchrelay/matchrelay/internal/kv"
)

func newTestService() (*Service, *kv.Memory) {
	store := kv.NewMemory()
	return NewService(slog.Default(), store), store
}

func TestLinkEnforcesUniqueness(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if err := svc.Link(ctx, "Ash", Identity{UserID: "u100", Username: "ash"}); err != nil {
		t.Fatalf("first link failed: %v", err)
	}

	// A different user cannot claim the same player.
	err := svc.Link(ctx, "Ash", Identity{UserID: "u200", Username: "gary"})
	if !errors.Is(err, ErrAlreadyLinkedPlayer) {
		t.Fatalf("expected ErrAlreadyLinkedPlayer, got %v", err)
	}
	id, err := svc.Lookup(ctx, "Ash")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if id == nil || id.UserID != "u100" {
		t.Fatalf("stored owner changed, got %+v", id)
	}

	// The same user cannot claim a second player.
	err = svc.Link(ctx, "Misty", Identity{UserID: "u100", Username: "ash"})
	if !errors.Is(err, ErrAlreadyLinkedUser) {
		t.Fatalf("expected ErrAlreadyLinkedUser, got %v", err)
	}

	// Re-linking the same pair is idempotent.
	if err := svc.Link(ctx, "Ash", Identity{UserID: "u100", Username: "ash", DisplayName: "Ash K."}); err != nil {
		t.Fatalf("relink failed: %v", err)
	}
}

func TestLinkCanonicalizesPlayerName(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if err := svc.Link(ctx, "  AsH ", Identity{UserID: "u100"}); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	id, err := svc.Lookup(ctx, "ash")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if id == nil || id.UserID != "u100" {
		t.Fatalf("canonical lookup failed, got %+v", id)
	}
	player, ok, err := svc.LookupByUser(ctx, "u100")
	if err != nil || !ok || player != "ash" {
		t.Fatalf("reverse lookup got (%q, %v, %v)", player, ok, err)
	}
}

func TestUnlinkPermissions(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	if err := svc.Link(ctx, "Ash", Identity{UserID: "u100", Username: "ash"}); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	if err := svc.Unlink(ctx, "Ash", "u200", false); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.Unlink(ctx, "Ash", "u100", false); err != nil {
		t.Fatalf("owner unlink failed: %v", err)
	}
	id, err := svc.Lookup(ctx, "Ash")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if id != nil {
		t.Fatalf("expected no identity after unlink, got %+v", id)
	}
	if err := svc.Unlink(ctx, "Ash", "u100", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUnlinkByAdmin(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	if err := svc.Link(ctx, "Ash", Identity{UserID: "u100", Username: "ash"}); err != nil {
		t.Fatalf("link failed: %v", err)
	}
	if err := svc.Unlink(ctx, "Ash", "u999", true); err != nil {
		t.Fatalf("admin unlink failed: %v", err)
	}

	// All four keys are gone.
	for _, key := range []string{"playerlink:ash", "discorduser:u100", "discordname:ash", "discordmeta:u100"} {
		if _, ok, _ := store.Get(ctx, key); ok {
			t.Fatalf("key %s still present after unlink", key)
		}
	}
}

func TestLookupDecodesLegacyAndStructuredValues(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	// Legacy shape: bare user id.
	if err := store.Set(ctx, "playerlink:oldtimer", "u42"); err != nil {
		t.Fatalf("seed legacy value: %v", err)
	}
	// Current shape: structured record.
	if err := store.Set(ctx, "playerlink:newcomer", `{"id":"u43","username":"new","global_name":"New Comer"}`); err != nil {
		t.Fatalf("seed structured value: %v", err)
	}

	legacy, err := svc.Lookup(ctx, "OldTimer")
	if err != nil {
		t.Fatalf("legacy lookup failed: %v", err)
	}
	if legacy == nil || legacy.UserID != "u42" {
		t.Fatalf("legacy value did not resolve, got %+v", legacy)
	}

	structured, err := svc.Lookup(ctx, "Newcomer")
	if err != nil {
		t.Fatalf("structured lookup failed: %v", err)
	}
	if structured == nil || structured.UserID != "u43" || structured.Username != "new" || structured.DisplayName != "New Comer" {
		t.Fatalf("structured value did not resolve, got %+v", structured)
	}
}

func TestLookupUnknownPlayerReturnsNil(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	id, err := svc.Lookup(ctx, "nobody")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil identity, got %+v", id)
	}
}
