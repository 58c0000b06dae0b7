package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fidde/stattest/internal/api"
	"github.com/fidde/stattest/internal/storage/snapshots"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the REST API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().String("addr", "", "API listen address")
	serveCmd.Flags().String("pprof-addr", "", "pprof listen address (disabled when empty)")
	_ = v.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
	_ = v.BindPFlag("server.pprof_addr", serveCmd.Flags().Lookup("pprof-addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting stattest server", "version", api.Version)

	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer closeStore(store)

	snaps, err := snapshots.New(snapshots.Config{
		Dir:             config.Snapshots.Dir,
		MaxSnapshotSize: config.Snapshots.MaxSize,
		MaxSnapshots:    config.Snapshots.MaxSnapshots,
	})
	if err != nil {
		return err
	}

	apiServer := api.NewServer(api.Config{
		Addr:       config.Server.Addr,
		Simulation: config.simulation(logger),
		Snapshots:  snaps,
		Logger:     logger,
	}, store)

	// Profiling on a separate port
	if addr := config.Server.PprofAddr; addr != "" {
		go func() {
			logger.Info("starting pprof server", "url", fmt.Sprintf("http://%s/debug/pprof", addr))
			if err := http.ListenAndServe(addr, nil); err != nil {
				logger.Warn("pprof server error", "error", err)
			}
		}()
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("starting REST API server", "addr", config.Server.Addr)
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("received signal, shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down API server", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
