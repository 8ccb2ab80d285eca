package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/wagatehq/wagate/internal/session"
)

// SessionHandler exposes session lifecycle operations.
type SessionHandler struct {
	manager *session.Manager
	store   session.Store
	logger  *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(log *slog.Logger, manager *session.Manager, store session.Store) *SessionHandler {
	if log == nil {
		log = slog.Default()
	}
	return &SessionHandler{
		manager: manager,
		store:   store,
		logger:  log.With(slog.String("handler", "sessions")),
	}
}

func (h *SessionHandler) Register(e *echo.Echo) {
	group := e.Group("/sessions")
	group.GET("", h.ListSessions)
	group.POST("", h.CreateSession)
	group.POST("/:name/stop", h.StopSession)
	group.DELETE("/:name", h.DeleteSession)
}

type createSessionRequest struct {
	Session string `json:"session" validate:"required"`
}

// CreateSession starts pairing for a session name. Pairing progress flows
// over the websocket stream; the request returns as soon as dialing starts.
func (h *SessionHandler) CreateSession(c echo.Context) error {
	var req createSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	go func() {
		if err := h.manager.CreateSession(context.Background(), req.Session); err != nil {
			h.logger.Error("session create failed",
				slog.String("session", req.Session),
				slog.Any("error", err),
			)
		}
	}()
	return c.JSON(http.StatusAccepted, map[string]string{
		"session": req.Session,
		"status":  string(session.StatusConnecting),
	})
}

type sessionView struct {
	Session     string `json:"session"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Status      string `json:"status"`
}

// ListSessions merges the durable registry with live in-memory states. The
// live state wins when both exist.
func (h *SessionHandler) ListSessions(c echo.Context) error {
	records, err := h.store.ListSessions(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	live := map[string]session.Status{}
	for _, info := range h.manager.Sessions() {
		live[info.Name] = info.State
	}
	views := make([]sessionView, 0, len(records))
	seen := map[string]bool{}
	for _, rec := range records {
		status := rec.Status
		if state, ok := live[rec.Name]; ok {
			status = state
		}
		views = append(views, sessionView{
			Session:     rec.Name,
			PhoneNumber: rec.PhoneNumber,
			Status:      string(status),
		})
		seen[rec.Name] = true
	}
	for name, state := range live {
		if !seen[name] {
			views = append(views, sessionView{Session: name, Status: string(state)})
		}
	}
	return c.JSON(http.StatusOK, views)
}

// StopSession tears the connection down while keeping credentials for a
// later restart.
func (h *SessionHandler) StopSession(c echo.Context) error {
	name := c.Param("name")
	if err := h.manager.StopSession(c.Request().Context(), name); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"session": name,
		"status":  string(session.StatusStopped),
	})
}

// DeleteSession removes session artifacts. With ?purge=true the registry
// row is removed as well.
func (h *SessionHandler) DeleteSession(c echo.Context) error {
	name := c.Param("name")
	purge := c.QueryParam("purge") == "true"
	if err := h.manager.DeleteSession(c.Request().Context(), name, purge); err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}
