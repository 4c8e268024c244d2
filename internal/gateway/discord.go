package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Discord implements Gateway over the Discord REST API (bot token auth).
// The websocket gateway is never opened; every operation is a plain REST
// call with an explicit timeout. A client-side limiter smooths request
// bursts under Discord's rate limits.
type Discord struct {
	session *discordgo.Session
	limiter *rate.Limiter
	timeout time.Duration
	logger  *slog.Logger
}

// NewDiscord creates a REST-only Discord gateway with the given bot token.
func NewDiscord(log *slog.Logger, botToken string, timeout time.Duration) (*Discord, error) {
	if botToken == "" {
		return nil, fmt.Errorf("discord bot token is required")
	}
	session, err := discordgo.New("Bot " + botToken)
	if err != nil {
		return nil, fmt.Errorf("discord session: %w", err)
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &Discord{
		session: session,
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		timeout: timeout,
		logger:  log.With(slog.String("component", "gateway")),
	}, nil
}

func (d *Discord) acquire(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	return ctx, cancel, nil
}

// CreateThread creates a private, non-invitable thread under parentID.
func (d *Discord) CreateThread(ctx context.Context, parentID, name string, archiveDuration int) (Thread, error) {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return Thread{}, err
	}
	defer cancel()

	ch, err := d.session.ThreadStartComplex(parentID, &discordgo.ThreadStart{
		Name:                TruncateName(name),
		AutoArchiveDuration: archiveDuration,
		Type:                discordgo.ChannelTypeGuildPrivateThread,
		Invitable:           false,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Thread{}, fmt.Errorf("create thread %q (dur=%d): %w", name, archiveDuration, err)
	}
	d.logger.Info("thread created",
		slog.String("thread_id", ch.ID),
		slog.String("name", name),
		slog.Int("archive_duration", archiveDuration))
	return threadFromChannel(ch), nil
}

// ReactivateThread unarchives and unlocks the thread.
func (d *Discord) ReactivateThread(ctx context.Context, threadID string, archiveDuration int) error {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	archived := false
	locked := false
	_, err = d.session.ChannelEdit(threadID, &discordgo.ChannelEdit{
		Archived:            &archived,
		Locked:              &locked,
		AutoArchiveDuration: archiveDuration,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("reactivate thread %s (dur=%d): %w", threadID, archiveDuration, err)
	}
	return nil
}

// AddMember adds a user to the thread; already-a-member is success.
func (d *Discord) AddMember(ctx context.Context, threadID, userID string) error {
	if threadID == "" || userID == "" {
		return fmt.Errorf("thread id and user id are required")
	}
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	err = d.session.ThreadMemberAdd(threadID, userID, discordgo.WithContext(ctx))
	if err != nil && !hasStatus(err, http.StatusConflict) {
		return fmt.Errorf("add member %s to %s: %w", userID, threadID, err)
	}
	return nil
}

// PostMessage posts content to a channel or thread, allowing user mentions.
func (d *Discord) PostMessage(ctx context.Context, channelID, content string) (Message, error) {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return Message{}, err
	}
	defer cancel()

	msg, err := d.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content: content,
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeUsers},
		},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return Message{}, fmt.Errorf("post message in %s: %w", channelID, err)
	}
	return Message{ID: msg.ID, Content: msg.Content}, nil
}

// DeleteMessage deletes a message; already-deleted is success.
func (d *Discord) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	err = d.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil && !hasStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete message %s in %s: %w", messageID, channelID, err)
	}
	return nil
}

// DeleteThread deletes a thread; already-deleted is success.
func (d *Discord) DeleteThread(ctx context.Context, threadID string) error {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	_, err = d.session.ChannelDelete(threadID, discordgo.WithContext(ctx))
	if err != nil && !hasStatus(err, http.StatusNotFound) {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// ListMessages returns up to limit messages, most recent first.
func (d *Discord) ListMessages(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	msgs, err := d.session.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list messages in %s: %w", channelID, err)
	}
	out := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Message{ID: m.ID, Content: m.Content})
	}
	return out, nil
}

// ActiveThreads lists the currently active threads under parentID.
func (d *Discord) ActiveThreads(ctx context.Context, parentID string) ([]Thread, error) {
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	list, err := d.session.ThreadsActive(parentID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list active threads in %s: %w", parentID, err)
	}
	threads := make([]Thread, 0, len(list.Threads))
	for _, ch := range list.Threads {
		threads = append(threads, threadFromChannel(ch))
	}
	return threads, nil
}

// ArchivedThreads lists one page of archived private threads.
func (d *Discord) ArchivedThreads(ctx context.Context, parentID string, before *time.Time, limit int) (ArchivedPage, error) {
	if limit < 1 || limit > 100 {
		limit = 100
	}
	ctx, cancel, err := d.acquire(ctx)
	if err != nil {
		return ArchivedPage{}, err
	}
	defer cancel()

	list, err := d.session.ThreadsPrivateArchived(parentID, before, limit, discordgo.WithContext(ctx))
	if err != nil {
		return ArchivedPage{}, fmt.Errorf("list archived threads in %s: %w", parentID, err)
	}

	page := ArchivedPage{HasMore: list.HasMore}
	for _, ch := range list.Threads {
		thread := threadFromChannel(ch)
		page.Threads = append(page.Threads, thread)
		if !thread.ArchiveTime.IsZero() {
			if page.Cursor == nil || thread.ArchiveTime.Before(*page.Cursor) {
				cursor := thread.ArchiveTime
				page.Cursor = &cursor
			}
		}
	}
	return page, nil
}

func threadFromChannel(ch *discordgo.Channel) Thread {
	thread := Thread{
		ID:       ch.ID,
		ParentID: ch.ParentID,
	}
	if ch.ThreadMetadata != nil {
		thread.Archived = ch.ThreadMetadata.Archived
		thread.ArchiveTime = ch.ThreadMetadata.ArchiveTimestamp
	}
	return thread
}

func hasStatus(err error, status int) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil {
		return restErr.Response.StatusCode == status
	}
	return false
}
