package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/matchrelay/matchrelay/internal/announce"
	"github.com/matchrelay/matchrelay/internal/pairing"
	"github.com/matchrelay/matchrelay/internal/queue"
)

// ShowdownHandler serves the multiplexed game webhook: queue-status events
// drive the LFG banner and session recording, everything else runs the
// match-thread flow.
type ShowdownHandler struct {
	pairing      *pairing.Service
	announce     *announce.Service
	queue        *queue.Service
	lfgChannelID string
	bannerText   string
	logger       *slog.Logger
}

// NewShowdownHandler creates the webhook handler.
func NewShowdownHandler(log *slog.Logger, pairingService *pairing.Service, announceService *announce.Service, queueService *queue.Service, lfgChannelID, bannerText string) *ShowdownHandler {
	return &ShowdownHandler{
		pairing:      pairingService,
		announce:     announceService,
		queue:        queueService,
		lfgChannelID: lfgChannelID,
		bannerText:   bannerText,
		logger:       log.With(slog.String("handler", "showdown")),
	}
}

// Register mounts POST /api/showdown on the Echo instance.
func (h *ShowdownHandler) Register(e *echo.Echo) {
	e.POST("/api/showdown", h.Handle)
}

type showdownEvent struct {
	Service   string `json:"service"`
	PlayerOne string `json:"playerOne"`
	PlayerTwo string `json:"playerTwo"`
	IsLooking any    `json:"isLooking"`
}

type lfgResult struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
	Deleted   int    `json:"deleted,omitempty"`
}

// Handle dispatches one webhook event by its service discriminator.
func (h *ShowdownHandler) Handle(c echo.Context) error {
	var event showdownEvent
	if err := c.Bind(&event); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid json")
	}

	if strings.ToLower(strings.TrimSpace(event.Service)) == "queuestatus" {
		return h.handleQueueStatus(c, event)
	}
	return h.handleMatch(c, event)
}

func (h *ShowdownHandler) handleQueueStatus(c echo.Context, event showdownEvent) error {
	if h.lfgChannelID == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "lfg channel not configured")
	}
	ctx := c.Request().Context()
	looking := parseLooking(event.IsLooking)

	var result lfgResult
	if looking {
		status, messageID, err := h.announce.Ensure(ctx, h.lfgChannelID, h.bannerText)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		result = lfgResult{Status: string(status), MessageID: messageID}
	} else {
		deleted, err := h.announce.Clear(ctx, h.lfgChannelID, h.bannerText)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		result = lfgResult{Status: "deleted_all", Deleted: deleted}
	}

	// Session recording rides along; a failed write must not undo the
	// banner update that already happened.
	if err := h.queue.SetLooking(ctx, looking); err != nil {
		h.logger.Warn("queue session update failed", slog.Any("error", err))
	}

	return c.JSON(http.StatusOK, map[string]any{"ok": true, "lfg": result})
}

func (h *ShowdownHandler) handleMatch(c echo.Context, event showdownEvent) error {
	p1 := strings.TrimSpace(event.PlayerOne)
	p2 := strings.TrimSpace(event.PlayerTwo)
	if p1 == "" || p2 == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "missing player names")
	}

	result, err := h.pairing.RouteMatch(c.Request().Context(), p1, p2)
	if err != nil {
		if errors.Is(err, pairing.ErrSelfPair) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	switch result.Outcome {
	case pairing.OutcomeSkipped:
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "skipped": result.Reason})
	case pairing.OutcomePostedExisting:
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "posted_in": "existing_thread", "thread_id": result.ThreadID})
	default:
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "posted_in": "new_thread", "thread_id": result.ThreadID})
	}
}

// parseLooking coerces the loosely-typed isLooking field: booleans, numbers
// (non-zero is true), and the strings "true"/"1"/"yes"/"y".
func parseLooking(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	case int:
		return v != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes", "y":
			return true
		}
	}
	return false
}
