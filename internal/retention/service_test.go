package retention

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/matchrelay/matchrelay/internal/gateway"
	"github.com/matchrelay/matchrelay/internal/kv"
)

var sweepNow = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

// snowflakeAt builds an id whose embedded timestamp is t.
func snowflakeAt(t time.Time) string {
	ms := t.UnixMilli() - 1420070400000
	return strconv.FormatInt(ms<<22, 10)
}

type fakeLister struct {
	active        []gateway.Thread
	archivedPages []gateway.ArchivedPage
	alwaysMore    bool
	activeErr     error
	archivedErr   error
	deleteErr     map[string]error
	archivedCalls int
	deleted       []string
}

func (f *fakeLister) ActiveThreads(context.Context, string) ([]gateway.Thread, error) {
	if f.activeErr != nil {
		return nil, f.activeErr
	}
	return f.active, nil
}

func (f *fakeLister) ArchivedThreads(context.Context, string, *time.Time, int) (gateway.ArchivedPage, error) {
	f.archivedCalls++
	if f.archivedErr != nil {
		return gateway.ArchivedPage{}, f.archivedErr
	}
	if f.alwaysMore {
		cursor := sweepNow.Add(-time.Duration(f.archivedCalls) * time.Hour)
		return gateway.ArchivedPage{HasMore: true, Cursor: &cursor}, nil
	}
	if len(f.archivedPages) == 0 {
		return gateway.ArchivedPage{}, nil
	}
	page := f.archivedPages[0]
	f.archivedPages = f.archivedPages[1:]
	return page, nil
}

func (f *fakeLister) DeleteThread(_ context.Context, threadID string) error {
	if err, ok := f.deleteErr[threadID]; ok {
		return err
	}
	f.deleted = append(f.deleted, threadID)
	return nil
}

func (f *fakeLister) CreateThread(context.Context, string, string, int) (gateway.Thread, error) {
	return gateway.Thread{}, errors.New("not supported")
}
func (f *fakeLister) ReactivateThread(context.Context, string, int) error { return nil }
func (f *fakeLister) AddMember(context.Context, string, string) error     { return nil }

func (f *fakeLister) PostMessage(context.Context, string, string) (gateway.Message, error) {
	return gateway.Message{}, errors.New("not supported")
}
func (f *fakeLister) DeleteMessage(context.Context, string, string) error { return nil }

func (f *fakeLister) ListMessages(context.Context, string, int, string) ([]gateway.Message, error) {
	return nil, nil
}

func newTestSweeper(gw *fakeLister) (*Service, *kv.Memory) {
	store := kv.NewMemory()
	svc := NewService(slog.Default(), store, gw)
	svc.now = func() time.Time { return sweepNow }
	return svc, store
}

func TestSweepDeletesOnlyThreadsPastCutoff(t *testing.T) {
	old := sweepNow.Add(-40 * 24 * time.Hour)
	fresh := sweepNow.Add(-2 * 24 * time.Hour)
	gw := &fakeLister{
		active: []gateway.Thread{
			{ID: snowflakeAt(old)},
			{ID: snowflakeAt(fresh)},
		},
	}
	svc, _ := newTestSweeper(gw)

	summary, err := svc.Sweep(context.Background(), "parent", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.Inspected != 2 || summary.Deleted != 1 || summary.Errors != 0 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if len(gw.deleted) != 1 || gw.deleted[0] != snowflakeAt(old) {
		t.Fatalf("unexpected deletions %v", gw.deleted)
	}
}

func TestSweepMergesAllThreeSources(t *testing.T) {
	old := sweepNow.Add(-60 * 24 * time.Hour)
	shared := snowflakeAt(old)
	archivedOnly := snowflakeAt(old.Add(time.Minute))
	recordedOnly := snowflakeAt(old.Add(2 * time.Minute))

	gw := &fakeLister{
		active: []gateway.Thread{{ID: shared}},
		archivedPages: []gateway.ArchivedPage{
			{Threads: []gateway.Thread{{ID: shared}, {ID: archivedOnly}}},
		},
	}
	svc, store := newTestSweeper(gw)

	ctx := context.Background()
	if err := store.Set(ctx, "threadpair:a|b", shared); err != nil {
		t.Fatalf("seed pointer: %v", err)
	}
	if err := store.Set(ctx, "threadpair:c|d", recordedOnly); err != nil {
		t.Fatalf("seed pointer: %v", err)
	}

	summary, err := svc.Sweep(ctx, "parent", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	// Deduplicated: three distinct threads despite five mentions.
	if summary.Inspected != 3 || summary.Deleted != 3 {
		t.Fatalf("unexpected summary %+v", summary)
	}
}

func TestSweepPrefersListingInstantOverID(t *testing.T) {
	// The id says ancient, the listing says the thread was active recently.
	id := snowflakeAt(sweepNow.Add(-90 * 24 * time.Hour))
	gw := &fakeLister{
		archivedPages: []gateway.ArchivedPage{
			{Threads: []gateway.Thread{{ID: id, Archived: true, ArchiveTime: sweepNow.Add(-time.Hour)}}},
		},
	}
	svc, store := newTestSweeper(gw)

	ctx := context.Background()
	if err := store.Set(ctx, "threadpair:a|b", id); err != nil {
		t.Fatalf("seed pointer: %v", err)
	}

	summary, err := svc.Sweep(ctx, "parent", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if summary.Deleted != 0 {
		t.Fatalf("recently active thread was deleted: %+v", summary)
	}
}

func TestSweepPaginationIsBounded(t *testing.T) {
	gw := &fakeLister{alwaysMore: true}
	svc, _ := newTestSweeper(gw)

	if _, err := svc.Sweep(context.Background(), "parent", 30*24*time.Hour); err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if gw.archivedCalls != maxArchivePages {
		t.Fatalf("expected %d archived pages, got %d", maxArchivePages, gw.archivedCalls)
	}
}

func TestSweepCountsFailuresAndContinues(t *testing.T) {
	old := sweepNow.Add(-60 * 24 * time.Hour)
	failing := snowflakeAt(old)
	deletable := snowflakeAt(old.Add(time.Minute))
	gw := &fakeLister{
		active:      []gateway.Thread{{ID: failing}, {ID: deletable}},
		archivedErr: errors.New("missing access"),
		deleteErr:   map[string]error{failing: errors.New("forbidden")},
	}
	svc, store := newTestSweeper(gw)

	ctx := context.Background()
	if err := store.Set(ctx, "threadpair:a|b", "not-a-snowflake"); err != nil {
		t.Fatalf("seed pointer: %v", err)
	}

	summary, err := svc.Sweep(ctx, "parent", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	// Archived listing error, undecodable pointer, failed delete.
	if summary.Errors != 3 {
		t.Fatalf("expected 3 errors, got %+v", summary)
	}
	if summary.Deleted != 1 || len(gw.deleted) != 1 || gw.deleted[0] != deletable {
		t.Fatalf("surviving delete did not happen: %+v %v", summary, gw.deleted)
	}
}

func TestSweepRequiresParentChannel(t *testing.T) {
	svc, _ := newTestSweeper(&fakeLister{})
	if _, err := svc.Sweep(context.Background(), "", time.Hour); err == nil {
		t.Fatal("expected error for empty parent channel")
	}
}
