package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"board-sync/internal/api"
	"board-sync/internal/app"
	"board-sync/internal/config"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.Bridge.ProjectID == "" {
		log.Fatal("missing BOARD_PROJECT_ID")
	}
	clients, err := app.New(cfg, log.StandardLogger())
	if err != nil {
		log.Fatalf("clients: %v", err)
	}
	if !clients.Session.Valid() {
		log.Warn("no valid session token, requests will be sent anonymously")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, closeBoard := clients.OpenBoard(ctx, cfg.Bridge.ProjectID)
	defer closeBoard()

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	api.Register(e, b, log.StandardLogger())

	go func() {
		<-ctx.Done()
		_ = e.Close()
	}()
	if err := e.Start(":" + cfg.Bridge.Port); err != nil && ctx.Err() == nil {
		log.Errorf("bridge: %v", err)
	}
}
