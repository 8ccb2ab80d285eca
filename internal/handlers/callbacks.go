package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wagatehq/wagate/internal/storage"
)

// CallbackHandler manages per-session webhook overrides.
type CallbackHandler struct {
	store  *storage.CallbackStore
	logger *slog.Logger
}

// NewCallbackHandler creates a CallbackHandler.
func NewCallbackHandler(log *slog.Logger, store *storage.CallbackStore) *CallbackHandler {
	if log == nil {
		log = slog.Default()
	}
	return &CallbackHandler{
		store:  store,
		logger: log.With(slog.String("handler", "callbacks")),
	}
}

func (h *CallbackHandler) Register(e *echo.Echo) {
	group := e.Group("/sessions/:name/callback")
	group.GET("", h.GetCallback)
	group.PUT("", h.UpsertCallback)
	group.DELETE("", h.DeleteCallback)
}

type upsertCallbackRequest struct {
	URL   string `json:"url" validate:"required,url"`
	Token string `json:"token"`
}

// UpsertCallback sets the webhook override for a session.
func (h *CallbackHandler) UpsertCallback(c echo.Context) error {
	var req upsertCallbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	cfg := storage.CallbackConfig{
		SessionName: c.Param("name"),
		URL:         req.URL,
		Token:       req.Token,
	}
	if err := h.store.Upsert(c.Request().Context(), cfg); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, cfg)
}

// GetCallback returns the webhook override for a session.
func (h *CallbackHandler) GetCallback(c echo.Context) error {
	cfg, found, err := h.store.Get(c.Request().Context(), c.Param("name"))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if !found {
		return echo.NewHTTPError(http.StatusNotFound, "callback not configured")
	}
	return c.JSON(http.StatusOK, cfg)
}

// DeleteCallback removes the webhook override for a session.
func (h *CallbackHandler) DeleteCallback(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("name")); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
