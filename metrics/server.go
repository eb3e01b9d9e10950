package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/beamline/autoproc/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Serve exposes the default registry on addr at /metrics until ctx is
// canceled.
func Serve(ctx context.Context, addr string, log *logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()

	log.Info("Serving metrics", "address", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
