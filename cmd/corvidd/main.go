// corvidd is the corvid API server: passkey authentication plus the
// profile, post, and conversation endpoints behind it.
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	cron "github.com/robfig/cron/v3"

	"github.com/corvid-app/corvid/internal/auth"
	"github.com/corvid-app/corvid/internal/config"
	"github.com/corvid-app/corvid/internal/logging"
	"github.com/corvid-app/corvid/internal/metrics"
	"github.com/corvid-app/corvid/internal/store"
	"github.com/corvid-app/corvid/internal/web"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "corvidd:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log := logging.New(cfg.LogJSON)

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		return fmt.Errorf("webauthn config: %w", err)
	}

	secret := cfg.TokenSecretBytes()
	if secret == nil {
		// Sessions survive a restart; identity tokens and device cookies
		// signed with a random secret do not.
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generate token secret: %w", err)
		}
		log.Warn("CORVID_TOKEN_SECRET not set, using a random per-process secret")
	}

	svc := auth.NewService(auth.ServiceConfig{
		Users:         db,
		Sessions:      db,
		Challenges:    db,
		Credentials:   db,
		Profiles:      db,
		WebAuthn:      wa,
		TokenSecret:   secret,
		Log:           log.Logger,
		CookieSecure:  cfg.CookieSecure,
		SessionExpiry: cfg.SessionExpiry,
		SignInURL:     cfg.SignInURL,
	})

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		sessions, challenges := svc.CleanupExpired()
		metrics.SessionsSwept.Add(float64(sessions))
		metrics.ChallengesSwept.Add(float64(challenges))
		if sessions > 0 || challenges > 0 {
			log.Debug("sweep complete", "sessions", sessions, "challenges", challenges)
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	server := web.NewServer(cfg.ListenAddr, web.Dependencies{
		Auth:          svc,
		Profiles:      db,
		Posts:         db,
		Conversations: db,
		Log:           log.Logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
	}
	return nil
}
