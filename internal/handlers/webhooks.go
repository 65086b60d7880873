package handlers

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/webhook"
)

// WebhooksHandler serves the shared public webhook endpoints. These
// paths skip JWT auth; the signed routing token in the query string is
// the only credential.
type WebhooksHandler struct {
	router       *webhook.Router
	registry     *channel.Registry
	maxBodyBytes int64
	logger       *slog.Logger
}

func NewWebhooksHandler(log *slog.Logger, router *webhook.Router, registry *channel.Registry, maxBodyBytes int64) *WebhooksHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &WebhooksHandler{
		router:       router,
		registry:     registry,
		maxBodyBytes: maxBodyBytes,
		logger:       log.With(slog.String("handler", "webhooks")),
	}
}

func (h *WebhooksHandler) Register(e *echo.Echo) {
	e.GET("/webhooks/:channel_type", h.HandleVerification)
	e.POST("/webhooks/:channel_type", h.HandleDelivery)
}

// HandleVerification godoc
// @Summary Provider webhook verification handshake
// @Tags webhooks
// @Param channel_type path string true "Channel type"
// @Param token query string true "Signed routing token"
// @Success 200 {string} string "raw challenge"
// @Failure 403 {object} ErrorResponse
// @Router /webhooks/{channel_type} [get]
func (h *WebhooksHandler) HandleVerification(c echo.Context) error {
	// The public surface reveals nothing about which types exist.
	channelType, err := h.registry.ParseType(c.Param("channel_type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	if mode := c.QueryParam("hub.mode"); mode != "" && mode != "subscribe" {
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	challenge, err := h.router.Verify(c.Request().Context(), channelType,
		c.QueryParam("token"), c.QueryParam("hub.verify_token"), c.QueryParam("hub.challenge"))
	if err != nil {
		h.logger.Warn("webhook verification rejected",
			slog.String("channel_type", channelType.String()),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusForbidden, "verification failed")
	}
	// The provider expects the challenge byte-for-byte, not JSON.
	return c.String(http.StatusOK, challenge)
}

// HandleDelivery godoc
// @Summary Provider webhook delivery
// @Tags webhooks
// @Param channel_type path string true "Channel type"
// @Param token query string true "Signed routing token"
// @Success 200 {object} map[string]string
// @Failure 403 {object} ErrorResponse
// @Failure 500 {object} ErrorResponse
// @Router /webhooks/{channel_type} [post]
func (h *WebhooksHandler) HandleDelivery(c echo.Context) error {
	channelType, err := h.registry.ParseType(c.Param("channel_type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, h.maxBodyBytes))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body failed")
	}

	_, err = h.router.Receive(c.Request().Context(), channelType, c.QueryParam("token"), payload)
	if err != nil {
		if channel.KindOf(err) == channel.ErrKindRouting {
			h.logger.Warn("webhook delivery rejected",
				slog.String("channel_type", channelType.String()),
				slog.String("error", err.Error()))
			return echo.NewHTTPError(http.StatusForbidden, "invalid routing token")
		}
		// Event was not durably logged; a 5xx makes the provider retry.
		h.logger.Error("webhook event logging failed",
			slog.String("channel_type", channelType.String()),
			slog.String("error", err.Error()))
		return echo.NewHTTPError(http.StatusInternalServerError, "event logging failed")
	}

	// Acked once the event row is durable, regardless of processing outcome.
	return c.JSON(http.StatusOK, map[string]string{"message": "ok"})
}
