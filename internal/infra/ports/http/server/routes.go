package server

import (
	"github.com/labstack/echo/v4"

	"github.com/qrave1/RoomScribe/internal/application/config"
	"github.com/qrave1/RoomScribe/internal/infra/ports/http/handlers"
	"github.com/qrave1/RoomScribe/internal/infra/ports/http/middleware"
)

func New(
	cfg *config.Config,
	iceHandler *handlers.IceHandler,
	wsHandler *handlers.WebSocketHandler,
	recordingHandler *handlers.RecordingHandler,
) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.SlogLogger())
	e.Use(middleware.PrometheusMiddleware())

	v1 := e.Group("/api/v1")
	{
		// гостям аккаунт не нужен
		v1.GET("/ws", wsHandler.Handle, middleware.OptionalJWTMiddleware(cfg.JWTSecret))

		v1.GET("/ice", iceHandler.IceServers, middleware.OptionalJWTMiddleware(cfg.JWTSecret))

		recording := v1.Group("/rooms/:id/recording", middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			recording.GET("", recordingHandler.State)
			recording.POST("/start", recordingHandler.Start)
			recording.POST("/stop", recordingHandler.Stop)
			recording.POST("/retry", recordingHandler.Retry)
		}
	}

	e.Static("/uploads", cfg.Storage.Dir)

	return e
}
