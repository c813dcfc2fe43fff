package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/devghori1264/aerophoenix/craftd/internal/client"
	"github.com/devghori1264/aerophoenix/craftd/internal/logging"
	natsclient "github.com/devghori1264/aerophoenix/craftd/internal/nats"
	"github.com/devghori1264/aerophoenix/craftd/internal/server"
)

type globals struct {
	server   string
	natsURL  string
	grpcAddr string
	timeout  time.Duration
	verbose  bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "craftctl",
		Short:         "Query a running craftd",
		SilenceUsage:  true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.server, "server", client.DefaultBaseURL, "craftd HTTP base URL")
	pf.StringVar(&g.natsURL, "nats", "nats://127.0.0.1:4222", "NATS server URL")
	pf.StringVar(&g.grpcAddr, "grpc-addr", "127.0.0.1:50051", "craftd gRPC health address")
	pf.DurationVar(&g.timeout, "timeout", 5*time.Second, "request timeout")
	pf.BoolVarP(&g.verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(
		indexCmd(g),
		craftCmd(g),
		statsCmd(g),
		healthCmd(g),
		eventsCmd(g),
	)
	return root
}

func (g *globals) client() *client.Client {
	return client.New(g.server, nil)
}

func (g *globals) logger() *zap.Logger {
	level := "warn"
	if g.verbose {
		level = "debug"
	}
	log, err := logging.New(level)
	if err != nil {
		return zap.NewNop()
	}
	return log
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func indexCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "index",
		Short: "Fetch the index page",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			body, err := g.client().Index(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func craftCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "craft",
		Short: "Fetch the example craft",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			c, err := g.client().Craft(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), c)
		},
	}
}

func statsCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Fetch host core counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			hw, err := g.client().Stats(ctx)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), hw)
		},
	}
}

func healthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Run a gRPC health check",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			conn, err := grpc.NewClient(g.grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
			if err != nil {
				return fmt.Errorf("dial %s: %w", g.grpcAddr, err)
			}
			defer conn.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
			defer cancel()
			resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: server.ServiceName})
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStatus().String())
			if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
				return fmt.Errorf("craftd is %s", resp.GetStatus())
			}
			return nil
		},
	}
}

func eventsCmd(g *globals) *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream served-route events from NATS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := g.logger()
			defer log.Sync()

			sub, err := natsclient.NewSubscriber(g.natsURL, log)
			if err != nil {
				return err
			}
			defer sub.Close()

			out := cmd.OutOrStdout()
			err = sub.Subscribe(subject, func(ev natsclient.Event) {
				fmt.Fprintf(out, "%s %s %s %s\n",
					time.Unix(ev.Time, 0).UTC().Format(time.RFC3339), ev.Event, ev.Route, ev.Payload)
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", natsclient.DefaultSubject, "NATS subject to follow")
	return cmd
}
