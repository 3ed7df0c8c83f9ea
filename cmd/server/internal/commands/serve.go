package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/wishroom/internal/auth"
	"github.com/wolfeidau/wishroom/internal/logger"
	"github.com/wolfeidau/wishroom/internal/server"
	"github.com/wolfeidau/wishroom/internal/service"
)

type ServeCmd struct {
	// Server configuration
	Listen          string        `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"WISHROOM_LISTEN"`
	ShutdownTimeout time.Duration `help:"grace period for in-flight requests on shutdown" default:"15s" env:"WISHROOM_SHUTDOWN_TIMEOUT"`
	TrustProxy      bool          `help:"use X-Forwarded-For for the client address" default:"false" env:"WISHROOM_TRUST_PROXY"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"http://localhost:3000" env:"WISHROOM_CORS_ORIGINS"`

	// Authentication
	JWTSecret string `help:"HMAC secret used to verify service tokens" env:"WISHROOM_JWT_SECRET"`
	NoAuth    bool   `help:"disable authentication for API endpoints (development only)" default:"false" env:"WISHROOM_NO_AUTH"`

	Tracing    bool   `help:"enable tracing" default:"false" env:"WISHROOM_TRACING"`
	PolicyFile string `help:"YAML file overriding tier and quota policy" env:"WISHROOM_POLICY_FILE"`

	DeliveryEnabled bool          `help:"run the delivery scheduler in this process" default:"true" negatable:"" env:"WISHROOM_DELIVERY_ENABLED"`
	Backend         BackendFlags  `embed:""`
	Delivery        DeliveryFlags `embed:"" prefix:"delivery-"`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Dev)
	ctx = log.WithContext(ctx)

	log.Info().Str("version", globals.Version).Bool("dev", globals.Dev).Msg("Starting server")

	shutdownTelemetry := setupTelemetry(ctx, log, c.Tracing, "wishroom-server", globals.Version)
	defer shutdownTelemetry()

	authenticate, err := c.authenticator(log)
	if err != nil {
		return err
	}

	policy, err := service.LoadPolicy(c.PolicyFile)
	if err != nil {
		return fmt.Errorf("failed to load policy: %w", err)
	}

	b, err := openBackend(ctx, log, &c.Backend, false)
	if err != nil {
		return err
	}
	defer b.Close()

	engine, err := service.NewEngine(b.store, policy)
	if err != nil {
		return fmt.Errorf("failed to create engine: %w", err)
	}

	scheduler, err := c.Delivery.scheduler(log, b.store, b.lock)
	if err != nil {
		return err
	}
	if c.DeliveryEnabled {
		scheduler.Start(ctx)
		defer scheduler.Stop()
		log.Info().
			Int("hour", c.Delivery.Hour).
			Str("location", c.Delivery.Location).
			Dur("interval", c.Delivery.Interval).
			Str("dispatcher", c.Delivery.Dispatcher).
			Msg("Delivery scheduler started")
	}

	handler := server.NewServer(engine).
		WithDeliveryRunner(scheduler).
		Handler(log, server.Options{
			Authenticate: authenticate,
			CORSOrigins:  c.CORSOrigins,
			TrustProxy:   c.TrustProxy,
			Tracing:      c.Tracing,
		})

	srv := configureHTTPServer(c.Listen, handler)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Bool("auth", !c.NoAuth).Msg("Starting HTTP server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func (c *ServeCmd) authenticator(log zerolog.Logger) (func(http.Handler) http.Handler, error) {
	if c.NoAuth {
		// every request acts as admin
		log.Warn().Msg("Authentication is disabled (--no-auth). This should only be used in development!")
		return auth.StaticPrincipal(&auth.Principal{Subject: "anonymous", Role: auth.RoleAdmin}), nil
	}

	verifier, err := auth.NewVerifier([]byte(c.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("invalid jwt secret (--jwt-secret or WISHROOM_JWT_SECRET): %w", err)
	}
	return verifier.Middleware(), nil
}
