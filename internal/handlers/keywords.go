package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wagatehq/wagate/internal/storage"
)

// KeywordHandler manages responder keyword tables.
type KeywordHandler struct {
	store  *storage.KeywordStore
	logger *slog.Logger
}

// NewKeywordHandler creates a KeywordHandler.
func NewKeywordHandler(log *slog.Logger, store *storage.KeywordStore) *KeywordHandler {
	if log == nil {
		log = slog.Default()
	}
	return &KeywordHandler{
		store:  store,
		logger: log.With(slog.String("handler", "keywords")),
	}
}

func (h *KeywordHandler) Register(e *echo.Echo) {
	group := e.Group("/keywords")
	group.POST("/buttons", h.SaveButtons)
	group.POST("/lists", h.SaveList)
	group.POST("/autoreplies", h.SaveAutoReply)
	group.DELETE("/autoreplies", h.DeleteAutoReply)
}

type saveButtonsRequest struct {
	MessageID    string            `json:"message_id" validate:"required"`
	Conversation string            `json:"conversation" validate:"required"`
	Keywords     map[string]string `json:"keywords" validate:"required,min=1"`
}

// SaveButtons registers single-use button keywords for a sent message.
func (h *KeywordHandler) SaveButtons(c echo.Context) error {
	var req saveButtonsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.store.SaveButtonKeywords(c.Request().Context(), req.MessageID, req.Conversation, req.Keywords); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

type saveListRequest struct {
	Keyword      string `json:"keyword" validate:"required"`
	Conversation string `json:"conversation" validate:"required"`
	Response     string `json:"response" validate:"required"`
}

// SaveList registers a multi-use list keyword.
func (h *KeywordHandler) SaveList(c echo.Context) error {
	var req saveListRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.store.SaveListKeyword(c.Request().Context(), req.Keyword, req.Conversation, req.Response); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

type autoReplyRequest struct {
	BotJID   string `json:"bot_jid" validate:"required"`
	Keyword  string `json:"keyword" validate:"required"`
	Response string `json:"response"`
}

// SaveAutoReply registers a free-text auto reply for a bot identity.
func (h *KeywordHandler) SaveAutoReply(c echo.Context) error {
	var req autoReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if req.Response == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "response is required")
	}
	if err := h.store.SaveAutoReply(c.Request().Context(), req.BotJID, req.Keyword, req.Response); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusCreated)
}

// DeleteAutoReply removes an auto reply.
func (h *KeywordHandler) DeleteAutoReply(c echo.Context) error {
	var req autoReplyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := h.store.DeleteAutoReply(c.Request().Context(), req.BotJID, req.Keyword); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
