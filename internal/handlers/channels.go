package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/converso/gateway/internal/auth"
	"github.com/converso/gateway/internal/channel"
	"github.com/converso/gateway/internal/gateway"
	"github.com/converso/gateway/internal/webhook"
)

type ChannelsHandler struct {
	store      *channel.Store
	registry   *channel.Registry
	tester     *gateway.Tester
	dispatcher *gateway.Dispatcher
	events     *webhook.EventStore
	codec      *auth.RoutingCodec
	publicURL  string
	logger     *slog.Logger
}

func NewChannelsHandler(log *slog.Logger, store *channel.Store, registry *channel.Registry, tester *gateway.Tester, dispatcher *gateway.Dispatcher, events *webhook.EventStore, codec *auth.RoutingCodec, publicURL string) *ChannelsHandler {
	return &ChannelsHandler{
		store:      store,
		registry:   registry,
		tester:     tester,
		dispatcher: dispatcher,
		events:     events,
		codec:      codec,
		publicURL:  strings.TrimRight(publicURL, "/"),
		logger:     log.With(slog.String("handler", "channels")),
	}
}

func (h *ChannelsHandler) Register(e *echo.Echo) {
	group := e.Group("/tenants/:tenant_id/channels")
	group.GET("", h.ListChannels)
	group.POST("", h.CreateChannel)
	group.GET("/:id", h.GetChannel)
	group.PUT("/:id", h.UpdateChannel)
	group.DELETE("/:id", h.DeleteChannel)
	group.POST("/:id/test", h.TestChannel)
	group.POST("/:id/messages", h.SendMessage)
	group.GET("/:id/webhook-url", h.WebhookURL)
	group.GET("/:id/events", h.ListEvents)
}

// ListChannels godoc
// @Summary List channel configurations
// @Tags channels
// @Success 200 {array} channel.Config
// @Failure 401 {object} ErrorResponse
// @Router /tenants/{tenant_id}/channels [get]
func (h *ChannelsHandler) ListChannels(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	items, err := h.store.ListByTenant(c.Request().Context(), tenantID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

// CreateChannel godoc
// @Summary Create a channel configuration
// @Tags channels
// @Param payload body channel.SaveRequest true "Channel configuration"
// @Success 201 {object} channel.Config
// @Failure 400 {object} ErrorResponse
// @Router /tenants/{tenant_id}/channels [post]
func (h *ChannelsHandler) CreateChannel(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	var req channel.SaveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.registry.ParseType(req.Type); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ID = ""
	cfg, err := h.store.Save(c.Request().Context(), tenantID, req)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, cfg)
}

func (h *ChannelsHandler) GetChannel(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	cfg, err := h.store.GetForTenant(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *ChannelsHandler) UpdateChannel(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	var req channel.SaveRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	req.ID = c.Param("id")
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if _, err := h.registry.ParseType(req.Type); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	cfg, err := h.store.Save(c.Request().Context(), tenantID, req)
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

func (h *ChannelsHandler) DeleteChannel(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	deleted, err := h.store.Delete(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !deleted {
		return echo.NewHTTPError(http.StatusNotFound, "channel config not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// TestChannel godoc
// @Summary Run a provider connection test
// @Tags channels
// @Success 200 {object} channel.TestResult
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenant_id}/channels/{id}/test [post]
func (h *ChannelsHandler) TestChannel(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	cfg, err := h.store.GetForTenant(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	result := h.tester.Test(c.Request().Context(), cfg)
	return c.JSON(http.StatusOK, result)
}

// SendMessage godoc
// @Summary Send an outbound message on a channel
// @Tags channels
// @Param payload body channel.Draft true "Outbound message"
// @Success 201 {object} channel.Message
// @Failure 404 {object} ErrorResponse
// @Router /tenants/{tenant_id}/channels/{id}/messages [post]
func (h *ChannelsHandler) SendMessage(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	var draft channel.Draft
	if err := c.Bind(&draft); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	msg, err := h.dispatcher.Dispatch(c.Request().Context(), tenantID, c.Param("id"), draft)
	if err != nil {
		if channel.KindOf(err) == channel.ErrKindUnsupported {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if msg == nil {
		return echo.NewHTTPError(http.StatusNotFound, "channel config not found or disabled")
	}
	return c.JSON(http.StatusCreated, msg)
}

// WebhookURL returns the public callback URL for a channel, with the
// signed routing token embedded. This is what gets pasted into the
// provider's webhook settings.
func (h *ChannelsHandler) WebhookURL(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	cfg, err := h.store.GetForTenant(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	token, err := h.codec.Encode(tenantID, cfg.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	webhookURL := fmt.Sprintf("%s/webhooks/%s?token=%s",
		h.publicURL, cfg.Type, url.QueryEscape(token))
	return c.JSON(http.StatusOK, map[string]string{"url": webhookURL})
}

// ListEvents returns a channel's received webhook events, newest first.
func (h *ChannelsHandler) ListEvents(c echo.Context) error {
	tenantID, err := requireTenant(c)
	if err != nil {
		return err
	}
	cfg, err := h.store.GetForTenant(c.Request().Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, channel.ErrChannelNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	items, err := h.events.ListByChannel(c.Request().Context(), cfg.ID, limit)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}
