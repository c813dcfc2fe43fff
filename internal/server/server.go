package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/devghori1264/aerophoenix/craftd/internal/api"
	"github.com/devghori1264/aerophoenix/craftd/internal/config"
)

// ServiceName is the name reported by the gRPC health service.
const ServiceName = "craftd"

// Server owns every listener the process exposes: the routed HTTP
// surface, the optional metrics endpoint and the optional gRPC health
// service.
type Server struct {
	cfg config.Config
	log *zap.Logger

	http    *http.Server
	metrics *http.Server
	grpc    *grpc.Server
	health  *health.Server

	httpLn    net.Listener
	metricsLn net.Listener
	grpcLn    net.Listener

	errc chan error
}

// New creates a server instance. Nothing is bound until Start.
func New(cfg config.Config, handler http.Handler, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	errLog, _ := zap.NewStdLogAt(log.Named("http"), zap.WarnLevel)
	s := &Server{
		cfg:  cfg,
		log:  log,
		errc: make(chan error, 3),
		http: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 2 * time.Second,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ErrorLog:          errLog,
		},
	}
	if cfg.MetricsAddr != "" && gatherer != nil {
		mux := http.NewServeMux()
		api.RegisterMetrics(mux, gatherer)
		s.metrics = &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 2 * time.Second,
			ErrorLog:          errLog,
		}
	}
	if cfg.GRPCAddr != "" {
		s.health = health.NewServer()
		s.grpc = grpc.NewServer()
		s.RegisterGRPC(s.grpc)
	}
	return s
}

// RegisterGRPC registers the health service on gs.
func (s *Server) RegisterGRPC(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.health)
}

// Start binds every configured listener, then serves each in its own
// goroutine. A bind failure releases anything already bound.
func (s *Server) Start() error {
	var err error
	if s.httpLn, err = net.Listen("tcp", s.cfg.HTTPAddr); err != nil {
		return fmt.Errorf("listen http %s: %w", s.cfg.HTTPAddr, err)
	}
	if s.metrics != nil {
		if s.metricsLn, err = net.Listen("tcp", s.cfg.MetricsAddr); err != nil {
			s.closeListeners()
			return fmt.Errorf("listen metrics %s: %w", s.cfg.MetricsAddr, err)
		}
	}
	if s.grpc != nil {
		if s.grpcLn, err = net.Listen("tcp", s.cfg.GRPCAddr); err != nil {
			s.closeListeners()
			return fmt.Errorf("listen grpc %s: %w", s.cfg.GRPCAddr, err)
		}
	}

	go func() {
		s.log.Info("HTTP server listening", zap.String("addr", s.HTTPAddr()))
		if err := s.http.Serve(s.httpLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.errc <- fmt.Errorf("http serve: %w", err)
		}
	}()
	if s.metricsLn != nil {
		go func() {
			s.log.Info("Prometheus metrics available", zap.String("url", "http://"+s.MetricsAddr()+"/metrics"))
			if err := s.metrics.Serve(s.metricsLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.errc <- fmt.Errorf("metrics serve: %w", err)
			}
		}()
	}
	if s.grpcLn != nil {
		s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
		s.health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
		go func() {
			s.log.Info("gRPC health listening", zap.String("addr", s.GRPCAddr()))
			if err := s.grpc.Serve(s.grpcLn); err != nil {
				s.errc <- fmt.Errorf("grpc serve: %w", err)
			}
		}()
	}
	return nil
}

// Errors reports fatal serve errors after Start.
func (s *Server) Errors() <-chan error {
	return s.errc
}

// Shutdown marks the health service NOT_SERVING and drains every listener,
// giving up when ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.grpc != nil {
		s.health.Shutdown()
		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
		}
	}
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if s.metrics != nil {
		if err := s.metrics.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics shutdown: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) HTTPAddr() string    { return addrOf(s.httpLn) }
func (s *Server) MetricsAddr() string { return addrOf(s.metricsLn) }
func (s *Server) GRPCAddr() string    { return addrOf(s.grpcLn) }

func (s *Server) closeListeners() {
	for _, ln := range []net.Listener{s.httpLn, s.metricsLn, s.grpcLn} {
		if ln != nil {
			_ = ln.Close()
		}
	}
}

func addrOf(ln net.Listener) string {
	if ln == nil {
		return ""
	}
	return ln.Addr().String()
}
