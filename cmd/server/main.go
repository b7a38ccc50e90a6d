package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/nowserving/internal/auth"
	"github.com/DoyleJ11/nowserving/internal/config"
	"github.com/DoyleJ11/nowserving/internal/engine"
	"github.com/DoyleJ11/nowserving/internal/httpapi"
	"github.com/DoyleJ11/nowserving/internal/hub"
	"github.com/DoyleJ11/nowserving/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	templates, err := config.LoadGroups(cfg.GroupsFile)
	if err != nil {
		return err
	}
	registry, err := engine.NewRegistry(templates)
	if err != nil {
		return err
	}

	clock := clockwork.NewRealClock()
	authService, err := auth.NewService(auth.Options{
		PIN:      cfg.StaffPIN,
		Secret:   []byte(cfg.JWTSecret),
		TokenTTL: cfg.TokenTTL,
		Clock:    clock,
	})
	if err != nil {
		return err
	}
	if !cfg.IsProduction() && cfg.StaffPIN == "1234" {
		log.Warn("using the development staff PIN")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	h := hub.NewHub(ctx, registry, clock, log)

	// Build the router *with* the hub injected
	handler := httpapi.SetupRoutes(h, authService, log, httpapi.Options{
		AllowedOrigin:      cfg.AllowedOrigin,
		LoginRatePerMinute: cfg.LoginRatePerMinute,
		LoginBurst:         cfg.LoginBurst,
		Clock:              clock,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.Int("groups", len(templates)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		// Closing every outbox first lets the websocket handlers finish.
		h.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
