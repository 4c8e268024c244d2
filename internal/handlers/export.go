package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/matchrelay/matchrelay/internal/queue"
)

// ExportHandler serves the queue-session report surface: the daily email
// export trigger and the rolling stats endpoint.
type ExportHandler struct {
	queue  *queue.Service
	mailer queue.Mailer
	logger *slog.Logger
}

// NewExportHandler creates the export handler. mailer may be nil when SMTP
// is not configured; the export trigger then fails with an explicit cause.
func NewExportHandler(log *slog.Logger, queueService *queue.Service, mailer queue.Mailer) *ExportHandler {
	return &ExportHandler{
		queue:  queueService,
		mailer: mailer,
		logger: log.With(slog.String("handler", "export")),
	}
}

// Register mounts the export trigger and the stats endpoint.
func (h *ExportHandler) Register(e *echo.Echo) {
	e.POST("/api/export", h.Export)
	e.GET("/api/queue/stats", h.Stats)
}

// Export emails the previous UTC day's sessions as JSONL.
func (h *ExportHandler) Export(c echo.Context) error {
	if h.mailer == nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "mail delivery not configured")
	}
	ctx := c.Request().Context()
	report, err := h.queue.ExportPreviousDay(ctx)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if err := h.mailer.SendExport(ctx, report); err != nil {
		h.logger.Error("export email failed", slog.Any("error", err))
		return echo.NewHTTPError(http.StatusInternalServerError, "email_failed")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":    true,
		"sent":  true,
		"day":   report.Day,
		"count": report.Count,
	})
}

// Stats returns the 48-hour queue duration aggregate.
func (h *ExportHandler) Stats(c echo.Context) error {
	stats, err := h.queue.Stats(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true, "stats": stats})
}
