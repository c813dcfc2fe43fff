package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/devghori1264/aerophoenix/craftd/internal/api"
	"github.com/devghori1264/aerophoenix/craftd/internal/config"
	"github.com/devghori1264/aerophoenix/craftd/internal/hardware"
	"github.com/devghori1264/aerophoenix/craftd/internal/logging"
	"github.com/devghori1264/aerophoenix/craftd/internal/models"
	natsclient "github.com/devghori1264/aerophoenix/craftd/internal/nats"
	"github.com/devghori1264/aerophoenix/craftd/internal/server"
	"github.com/devghori1264/aerophoenix/craftd/internal/telemetry"
)

func main() {
	// .env is optional; it only pre-seeds LOG_LEVEL and friends.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := config.Default()
	cmd := &cobra.Command{
		Use:          "craftd",
		Short:        "Serve the craft demo routes over HTTP",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "HTTP listen address")
	f.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus listen address (empty disables)")
	f.StringVar(&cfg.GRPCAddr, "grpc-addr", cfg.GRPCAddr, "gRPC health listen address (empty disables)")
	f.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server for served-route events (empty disables)")
	f.StringVar(&cfg.Subject, "subject", cfg.Subject, "NATS subject for events")
	f.BoolVar(&cfg.Trace, "trace", cfg.Trace, "export request spans to stdout")
	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error (env "+config.LogLevelEnv+")")
	f.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "graceful shutdown timeout")
	return cmd
}

func run(ctx context.Context, cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer log.Sync()

	selfTest(log)

	tp, shutdownTracing, err := telemetry.Setup(cfg.Trace, os.Stdout)
	if err != nil {
		log.Error("tracing setup failed", zap.Error(err))
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := api.Options{
		Logger:  log,
		Cores:   hardware.NewHost(),
		Subject: cfg.Subject,
		Metrics: api.NewMetrics(reg),
		Tracer:  tp,
	}
	if cfg.NATSURL != "" {
		pub, err := natsclient.NewPublisher(cfg.NATSURL, log)
		if err != nil {
			log.Warn("nats unavailable, events disabled", zap.Error(err))
		} else {
			defer pub.Close()
			opts.Publisher = pub
		}
	}

	srv := server.New(cfg, api.NewHTTPHandler(opts), reg, log)
	if err := srv.Start(); err != nil {
		log.Error("server error", zap.Error(err))
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutdown initiated")
	case serveErr = <-srv.Errors():
		log.Error("server error", zap.Error(serveErr))
	}

	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Warn("server shutdown error", zap.Error(err))
	}
	if err := shutdownTracing(sctx); err != nil {
		log.Warn("tracing shutdown error", zap.Error(err))
	}
	log.Info("shutdown complete")
	return serveErr
}

// selfTest logs the example craft before and after a JSON round trip.
func selfTest(log *zap.Logger) {
	serialized, deserialized, err := models.RoundTrip(models.ExampleCraft())
	if err != nil {
		log.Warn("craft self-test failed", zap.Error(err))
		return
	}
	log.Info("serialized", zap.String("craft", serialized))
	log.Info("deserialized", zap.Any("craft", deserialized))
}
