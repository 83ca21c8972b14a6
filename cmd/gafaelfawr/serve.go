package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghodss/yaml"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	config string
	addr   string
}

func commandServe() *cobra.Command {
	options := serveOptions{}

	cmd := &cobra.Command{
		Use:     "run [flags] [config file]",
		Short:   "Launch gafaelfawr",
		Example: "gafaelfawr run config.yaml",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			cmd.SilenceErrors = true

			options.config = args[0]
			return runServe(options)
		},
	}

	cmd.Flags().StringVar(&options.addr, "addr", "", "override the addr configured in the config file")

	return cmd
}

func runServe(options serveOptions) error {
	data, err := os.ReadFile(options.config)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if err := replaceEnvKeys(&c, os.Getenv); err != nil {
		return fmt.Errorf("expand $VAR config values: %w", err)
	}
	if options.addr != "" {
		c.Addr = options.addr
	}

	if err := c.Validate(); err != nil {
		return err
	}

	logLevel, err := parseLogLevel(c.Logger.Level)
	if err != nil {
		return err
	}
	logger, err := newLogger(logLevel, c.Logger.Format)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, err := c.Server(ctx, logger)
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	httpServer := &http.Server{
		Addr:    c.Addr,
		Handler: srv.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", c.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return <-errCh
	case err := <-errCh:
		return err
	}
}

func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("log level is not one of the supported values (debug, info, warn, error): %s", level)
	}
}
