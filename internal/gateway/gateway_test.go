package gateway

import (
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestTruncateName(t *testing.T) {
	long := strings.Repeat("x", 200)
	if got := TruncateName(long); len(got) != MaxThreadNameLength {
		t.Fatalf("expected %d chars, got %d", MaxThreadNameLength, len(got))
	}
	if got := TruncateName("short"); got != "short" {
		t.Fatalf("short name changed: %q", got)
	}
}

func TestCreationTime(t *testing.T) {
	want := time.Date(2023, 3, 1, 9, 30, 0, 0, time.UTC)
	id := strconv.FormatInt((want.UnixMilli()-1420070400000)<<22, 10)

	got, err := CreationTime(id)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if !got.Equal(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	if _, err := CreationTime("not-a-snowflake"); err == nil {
		t.Fatal("expected error for malformed id")
	}
}
