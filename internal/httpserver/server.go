// Package httpserver exposes the HTTP surface: health checks and the chat
// websocket endpoint.
package httpserver

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tenochca/dementia-chat-app/internal/ws"
)

// Server bundles the configured echo instance.
type Server struct {
	Echo *echo.Echo
}

// New constructs the HTTP server with routes.
func New(host *ws.Host) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/chat", func(c echo.Context) error {
		host.ServeWebSocket(c.Response(), c.Request())
		return nil
	})

	return &Server{Echo: e}
}
