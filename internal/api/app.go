package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zwop/internal/ports"

	log "github.com/sirupsen/logrus"
)

const shutdownTimeout = 15 * time.Second

// ServerConfig carries the knobs of the HTTP server that are not collaborators.
type ServerConfig struct {
	Port int

	// ClientRPM is the per-client request budget per minute. Zero disables it.
	ClientRPM int

	// CacheTTL enables the key resolution cache when positive.
	CacheTTL time.Duration

	// AuditARN is the SNS topic audit events go to. Empty disables auditing.
	AuditARN string
}

func newServer(cfg ServerConfig, h *Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// RunServer runs the HTTP server exposing the `/api` endpoints. This is a blocking call.
func RunServer(cfg ServerConfig,
	repo ports.ClientRepository,
	rateLimiter ports.RateLimiter,
	messengers ports.MessengerFactory,
	publisher ports.Publisher,
) error {
	srv := newServer(cfg, NewHandler(cfg, repo, rateLimiter, messengers, publisher))
	log.Infof("zwop listening on %s", srv.Addr)
	return srv.ListenAndServe()
}

// RunServerInterruptible runs the server in the background in a Go routine and immediately returns a chan to
// the caller. The caller can then send a signal to the chan to gracefully shutdown the server.
// It's up to the caller to wait for in the main Go routine to keep the server running.
func RunServerInterruptible(cfg ServerConfig,
	repo ports.ClientRepository,
	rateLimiter ports.RateLimiter,
	messengers ports.MessengerFactory,
	publisher ports.Publisher,
) (stop chan<- struct{}, done <-chan error) {
	srv := newServer(cfg, NewHandler(cfg, repo, rateLimiter, messengers, publisher))

	stopCh := make(chan struct{})
	doneCh := make(chan error, 1)

	go func() {
		log.Infof("zwop listening on %s", srv.Addr)
		err := srv.ListenAndServe()
		// http.ErrServerClosed is returned on Shutdown; treat that as clean exit
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			doneCh <- err
			return
		}
		doneCh <- nil
	}()

	go func() {
		<-stopCh
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("server shutdown")
		}
	}()
	return stopCh, doneCh
}
