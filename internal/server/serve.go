package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// Serve listens on addr until ctx is done, then shuts down gracefully and
// cancels any in-flight run.
func Serve(ctx context.Context, c *Components, addr string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	srv := FromComponents(c, logger)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", zap.String("addr", addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Close first so open event streams see their subscriptions end.
	closeErr := c.Close(shutdownCtx)
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return closeErr
}
