// Package gateway wraps the Discord REST surface the relay needs: private
// match threads, channel messages, and thread listings. Implementations
// normalize idempotent-success outcomes (already a member, already deleted)
// to success so callers can treat repeated work as converged.
package gateway

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
)

// MaxThreadNameLength is the longest thread name the gateway accepts.
const MaxThreadNameLength = 96

// ArchiveDurations are the auto-archive values (minutes) the gateway accepts,
// in the order callers should try them. The API rejects arbitrary values, so
// reactivation and creation negotiate down this list.
var ArchiveDurations = []int{60, 1440, 4320, 10080}

// Thread is a conversation container hosted by the gateway.
type Thread struct {
	ID       string
	ParentID string
	Archived bool
	// ArchiveTime is the listing-provided activity instant; zero when the
	// listing did not include thread metadata.
	ArchiveTime time.Time
}

// Message is a posted channel message.
type Message struct {
	ID      string
	Content string
}

// ArchivedPage is one page of the archived-thread listing. Cursor is the
// time-based "before" cursor for the next page; nil when the page was empty.
type ArchivedPage struct {
	Threads []Thread
	HasMore bool
	Cursor  *time.Time
}

// Gateway is the remote resource API consumed by the coordination services.
type Gateway interface {
	// CreateThread creates a private thread under parentID with the given
	// auto-archive duration (minutes).
	CreateThread(ctx context.Context, parentID, name string, archiveDuration int) (Thread, error)
	// ReactivateThread unarchives and unlocks a thread, renewing its
	// auto-archive duration.
	ReactivateThread(ctx context.Context, threadID string, archiveDuration int) error
	// AddMember adds a user to a thread. Already-a-member is success.
	AddMember(ctx context.Context, threadID, userID string) error
	// PostMessage posts content and returns the created message.
	PostMessage(ctx context.Context, channelID, content string) (Message, error)
	// DeleteMessage deletes a message. Already-deleted is success.
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	// DeleteThread deletes a thread. Already-deleted is success.
	DeleteThread(ctx context.Context, threadID string) error
	// ListMessages returns up to limit messages, most recent first,
	// older than beforeID when it is non-empty.
	ListMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)
	// ActiveThreads lists the currently active threads under parentID.
	ActiveThreads(ctx context.Context, parentID string) ([]Thread, error)
	// ArchivedThreads lists one page of archived private threads under
	// parentID, those archived before the cursor when it is non-nil.
	ArchivedThreads(ctx context.Context, parentID string, before *time.Time, limit int) (ArchivedPage, error)
}

// CreationTime decodes the creation instant embedded in a resource id.
// Snowflake ids carry a millisecond timestamp in their high-order bits,
// offset from the platform epoch.
func CreationTime(id string) (time.Time, error) {
	return discordgo.SnowflakeTimestamp(id)
}

// TruncateName shortens a thread name to the gateway's maximum length.
func TruncateName(name string) string {
	if len(name) <= MaxThreadNameLength {
		return name
	}
	return name[:MaxThreadNameLength]
}
