package server

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi"
	"github.com/juju/errors"
	"github.com/peer-calls/mediaproducer/server/logger"
	"github.com/peer-calls/mediaproducer/server/multierr"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewMetricsHandler serves prometheus metrics protected by accessToken,
// sent either as a bearer token or an access_token form value, and a
// liveness probe. Metrics are disabled when accessToken is empty.
func NewMetricsHandler(accessToken string) http.Handler {
	router := chi.NewRouter()

	router.Get("/probes/liveness", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	})

	metrics := promhttp.Handler()

	router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("Authorization")
		if strings.HasPrefix(token, "Bearer ") {
			token = token[len("Bearer "):]
		} else {
			token = r.FormValue("access_token")
		}

		if token == "" || token != accessToken {
			w.WriteHeader(http.StatusUnauthorized)

			return
		}

		metrics.ServeHTTP(w, r)
	})

	return router
}

// MetricsServer serves a handler until its context is canceled.
type MetricsServer struct {
	log    logger.Logger
	server *http.Server
}

func NewMetricsServer(log logger.Logger, handler http.Handler) *MetricsServer {
	return &MetricsServer{
		log: log.WithNamespaceAppended("metrics_server"),
		server: &http.Server{
			Handler: handler,
		},
	}
}

// Start blocks until ctx is done or the server fails.
func (s *MetricsServer) Start(ctx context.Context, l net.Listener) error {
	startErrCh := make(chan error, 1)

	s.log.Info("Listening", logger.Ctx{
		"addr": l.Addr().String(),
	})

	go func() {
		defer close(startErrCh)

		startErrCh <- errors.Annotate(s.server.Serve(l), "start server")
	}()

	select {
	case <-ctx.Done():
	case err := <-startErrCh:
		return errors.Trace(err)
	}

	err := errors.Trace(s.server.Close())

	if startErr := <-startErrCh; startErr != nil {
		err = startErr
	}

	if !multierr.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}

	return nil
}
