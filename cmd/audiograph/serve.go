package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"pipelined.dev/audiograph/graph"
	"pipelined.dev/audiograph/server"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP control server",
	Long:  `Starts the engine suspended and exposes the graph over HTTP. Spectrum of analysers is streamed over websocket.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen = listen
		}
		l := logger(cfg)

		reg := prometheus.NewRegistry()
		engine, err := newEngine(cfg, l, reg)
		if err != nil {
			return err
		}
		g := graph.New(engine, engine.Registry(), graph.WithLogger(l))
		srv := &http.Server{
			Addr: cfg.Listen,
			Handler: server.NewHandler(g, engine, engine.Registry(),
				server.WithLogger(l),
				server.WithSpectrumInterval(cfg.SpectrumInterval),
				server.WithMetrics(reg),
			),
		}

		serverErrors := make(chan error, 1)
		go func() {
			l.WithField("listen", srv.Addr).Info("serving")
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(shutdown)

		select {
		case err = <-serverErrors:
			if errors.Is(err, http.ErrServerClosed) {
				err = nil
			}
		case sig := <-shutdown:
			l.WithField("signal", sig).Info("shutting down")
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				l.WithError(err).Warn("graceful shutdown failed")
				srv.Close()
			}
		}
		if cerr := engine.Close(); cerr != nil && err == nil {
			err = cerr
		}
		g.Wait()
		return err
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "address to listen on, overrides configuration")
}
