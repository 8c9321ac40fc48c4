package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
)

// webhookPayload is the minimal inbound event shape. Anything else is
// acknowledged and ignored.
type webhookPayload struct {
	Issue struct {
		Key string `json:"key"`
	} `json:"issue"`
}

type webhookAck struct {
	OK bool `json:"ok"`
}

// handleWebhook accepts one tracker change event. The response is always a
// success acknowledgement: processing happens asynchronously and delivery
// failures are never surfaced to the tracker.
func (s *Server) handleWebhook(c echo.Context) error {
	var payload webhookPayload
	if err := c.Bind(&payload); err != nil || payload.Issue.Key == "" {
		// Unknown shape or missing key: accepted but a no-op.
		return c.JSON(http.StatusOK, webhookAck{OK: true})
	}

	key := payload.Issue.Key

	// Each event runs on its own goroutine so a slow tracker response for
	// one event does not stall the next. The request context ends with this
	// handler, so processing detaches from it.
	go func() {
		ctx := context.Background()
		if err := s.dispatcher.HandleEvent(ctx, key); err != nil {
			s.logger.Warn("event processing failed",
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
	}()

	return c.JSON(http.StatusOK, webhookAck{OK: true})
}
