package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/DBCDK/opencat-business-connector/internal/fakeservice"
	"github.com/DBCDK/opencat-business-connector/pkg/config"
	"github.com/DBCDK/opencat-business-connector/pkg/logger"
	"github.com/DBCDK/opencat-business-connector/pkg/marc"
)

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or write connector configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			data, err := config.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = a.out.Write(data)
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init FILE",
		Short: "Write a configuration file with default values",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := a.flags.baseURL
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if err := config.Save(args[0], config.NewConnectorConfig(baseURL)); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Configuration written to %s\n", args[0])
			return nil
		},
	})

	return cmd
}

// serveFakeCmd runs the in-process stand-in for opencat-business, for local
// experiments without the real service.
func (a *app) serveFakeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve-fake",
		Short: "Serve a fake opencat-business for local testing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := marc.CodecByName(a.flags.codec)
			if err != nil {
				return err
			}
			if err := logger.Init(logger.Config{Level: a.flags.logLevel, Encoding: "console"}); err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           fakeservice.New(fakeservice.WithCodec(c)).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(cmd.Context(), srv, logger.Get())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}

func serve(ctx context.Context, srv *http.Server, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("fake opencat-business listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down fake opencat-business")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// writeMetrics dumps gathered metrics in the Prometheus text format
func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
