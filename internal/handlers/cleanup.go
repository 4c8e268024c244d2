package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/matchrelay/matchrelay/internal/retention"
)

// CleanupHandler triggers a retention sweep over the match threads.
type CleanupHandler struct {
	sweeper        *retention.Service
	parentChannel  string
	defaultMaxDays int
	logger         *slog.Logger
}

// NewCleanupHandler creates the cleanup trigger handler.
func NewCleanupHandler(log *slog.Logger, sweeper *retention.Service, parentChannel string, defaultMaxDays int) *CleanupHandler {
	if defaultMaxDays < 1 {
		defaultMaxDays = 1
	}
	return &CleanupHandler{
		sweeper:        sweeper,
		parentChannel:  parentChannel,
		defaultMaxDays: defaultMaxDays,
		logger:         log.With(slog.String("handler", "cleanup")),
	}
}

// Register mounts the cleanup trigger on the Echo instance. Both methods are
// accepted so platform schedulers that only issue GETs can drive it.
func (h *CleanupHandler) Register(e *echo.Echo) {
	e.POST("/api/cleanup", h.Cleanup)
	e.GET("/api/cleanup", h.Cleanup)
}

// Cleanup runs one sweep. The optional ?days=N query overrides the
// configured max age (minimum 1).
func (h *CleanupHandler) Cleanup(c echo.Context) error {
	if h.parentChannel == "" {
		return echo.NewHTTPError(http.StatusInternalServerError, "match channel not configured")
	}

	days := h.defaultMaxDays
	if raw := c.QueryParam("days"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 1 {
			days = parsed
		}
	}

	summary, err := h.sweeper.Sweep(c.Request().Context(), h.parentChannel, time.Duration(days)*24*time.Hour)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"channel_id": h.parentChannel,
		"cutoff_iso": summary.Cutoff.Format(time.RFC3339),
		"days":       days,
		"checked":    summary.Inspected,
		"deleted":    summary.Deleted,
		"errors":     summary.Errors,
	})
}
