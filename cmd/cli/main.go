package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/spec-kit/gift-exchange/internal/auth"
	"github.com/spec-kit/gift-exchange/internal/client"
	"github.com/spec-kit/gift-exchange/internal/config"
	"github.com/spec-kit/gift-exchange/internal/identityapi"
	"github.com/spec-kit/gift-exchange/internal/observability"
	"github.com/spec-kit/gift-exchange/internal/service"
	"github.com/spec-kit/gift-exchange/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if os.Getenv("LOG_OUTPUT") == "" {
		cfg.Logger.Output = "stderr"
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := identityapi.NewClient(cfg.IdentityAPI.BaseURL, nil, cfg.IdentityAPI.Timeout())
	refreshService := service.NewRefreshService(api, cfg.Session, nil, logger, nil)
	authService := service.NewAuthService(api, cfg.Session.AccessTokenValidity(), logger, nil)

	app := client.NewApp(client.Config{
		Auth:       authService,
		Store:      session.NewStore(refreshService, session.WithLogger(logger)),
		Routes:     auth.DefaultRouteTable(),
		Inactivity: cfg.Inactivity,
		Out:        os.Stdout,
		Logger:     logger,
		ReadPassword: func() ([]byte, error) {
			return term.ReadPassword(int(os.Stdin.Fd()))
		},
	})
	defer app.Close()

	fmt.Println("Type 'help' for available commands.")
	app.Run(ctx, bufio.NewScanner(os.Stdin))
}
