package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/converso/gateway/internal/conversation"
	"github.com/converso/gateway/internal/message"
)

type ConversationsHandler struct {
	store    *conversation.Store
	threader *conversation.Threader
	messages *message.Store
	logger   *slog.Logger
}

func NewConversationsHandler(log *slog.Logger, store *conversation.Store, threader *conversation.Threader, messages *message.Store) *ConversationsHandler {
	return &ConversationsHandler{
		store:    store,
		threader: threader,
		messages: messages,
		logger:   log.With(slog.String("handler", "conversations")),
	}
}

func (h *ConversationsHandler) Register(e *echo.Echo) {
	group := e.Group("/tenants/:tenant_id/conversations")
	group.GET("", h.ListConversations)
	group.GET("/:id", h.GetConversation)
	group.GET("/:id/messages", h.ListMessages)
	group.POST("/:id/escalate", h.EscalateConversation)
	group.POST("/:id/close", h.CloseConversation)
}

func (h *ConversationsHandler) ListConversations(c echo.Context) error {
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

func (h *ConversationsHandler) GetConversation(c echo.Context) error {
	conv, err := h.requireConversation(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conv)
}

func (h *ConversationsHandler) ListMessages(c echo.Context) error {
	conv, err := h.requireConversation(c)
	if err != nil {
		return err
	}
	items, err := h.messages.ListByConversation(c.Request().Context(), conv.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, items)
}

func (h *ConversationsHandler) EscalateConversation(c echo.Context) error {
	conv, err := h.requireConversation(c)
	if err != nil {
		return err
	}
	updated, err := h.threader.Escalate(c.Request().Context(), conv.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

func (h *ConversationsHandler) CloseConversation(c echo.Context) error {
	conv, err := h.requireConversation(c)
	if err != nil {
		return err
	}
	updated, err := h.threader.Close(c.Request().Context(), conv.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, updated)
}

// requireConversation loads the conversation and scopes it to the
// authenticated tenant. A conversation owned by another tenant reads as
// not found.
func (h *ConversationsHandler) requireConversation(c echo.Context) (conversation.Conversation, error) {
	tenantID, err := requireTenant(c)
	if err != nil {
		return conversation.Conversation{}, err
	}
	conv, err := h.store.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, conversation.ErrConversationNotFound) {
			return conversation.Conversation{}, echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return conversation.Conversation{}, echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if conv.TenantID != tenantID {
		return conversation.Conversation{}, echo.NewHTTPError(http.StatusNotFound, "conversation not found")
	}
	return conv, nil
}
