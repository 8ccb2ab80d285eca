// Package server assembles the HTTP surface: REST handlers, the dashboard
// websocket, and static media serving.
package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/wagatehq/wagate/internal/handlers"
)

type Server struct {
	echo *echo.Echo
	addr string
}

// NewServer wires middleware and handlers. An empty apiKey disables
// authentication; uploads are always served unauthenticated because webhook
// consumers fetch media by public URL.
func NewServer(
	addr string,
	apiKey string,
	uploadPath string,
	pingHandler *handlers.PingHandler,
	sessionHandler *handlers.SessionHandler,
	messageHandler *handlers.MessageHandler,
	callbackHandler *handlers.CallbackHandler,
	keywordHandler *handlers.KeywordHandler,
	wsHandler *handlers.WSHandler,
) *Server {
	if addr == "" {
		addr = ":8080"
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handlers.NewRequestValidator()
	e.Use(middleware.Recover())
	e.Use(middleware.Logger())
	if apiKey != "" {
		e.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:x-api-key",
			Skipper: func(c echo.Context) bool {
				return shouldSkipAPIKey(c.Request().URL.Path)
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				return subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) == 1, nil
			},
		}))
	}

	if uploadPath != "" {
		e.Static("/uploads", uploadPath)
	}

	if pingHandler != nil {
		pingHandler.Register(e)
	}
	if sessionHandler != nil {
		sessionHandler.Register(e)
	}
	if messageHandler != nil {
		messageHandler.Register(e)
	}
	if callbackHandler != nil {
		callbackHandler.Register(e)
	}
	if keywordHandler != nil {
		keywordHandler.Register(e)
	}
	if wsHandler != nil {
		wsHandler.Register(e)
	}

	return &Server{
		echo: e,
		addr: addr,
	}
}

// shouldSkipAPIKey exempts the health probe, the dashboard stream (which
// authenticates out of band), and public media from key auth.
func shouldSkipAPIKey(path string) bool {
	if path == "/ping" || path == "/health" || path == "/ws" {
		return true
	}
	return strings.HasPrefix(path, "/uploads/")
}

func (s *Server) Start() error {
	return s.echo.Start(s.addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
