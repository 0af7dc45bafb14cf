package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autopeer-io/rcbridge/pkg/log"
	"github.com/autopeer-io/rcbridge/pkg/options"
)

const shutdownTimeout = 5 * time.Second

// ReadyFunc reports whether the process can serve traffic.
type ReadyFunc func() bool

type Server struct {
	server  *http.Server
	options *options.HttpOptions
}

// NewServer serves liveness, readiness and the metrics in gatherer.
func NewServer(opts *options.HttpOptions, ready ReadyFunc, gatherer prometheus.Gatherer) *Server {
	return &Server{
		server: &http.Server{
			Addr:              opts.Addr,
			Handler:           NewRouter(ready, gatherer),
			ReadHeaderTimeout: opts.Timeout,
		},
		options: opts,
	}
}

// NewRouter builds the health and metrics routes.
func NewRouter(ready ReadyFunc, gatherer prometheus.Gatherer) *mux.Router {
	r := mux.NewRouter()

	// Liveness: the process is up.
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Readiness: commands are being dispatched to the vehicle.
	r.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && !ready() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.server.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
