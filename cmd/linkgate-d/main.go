package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rmax-ai/linkgate/pkg/api"
	"github.com/rmax-ai/linkgate/pkg/gateway"
	"github.com/rmax-ai/linkgate/pkg/logging"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, `{"level":"ERROR","msg":"fatal","error":%q}`+"\n", err.Error())
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := LoadConfig(args)
	if err != nil {
		return err
	}

	level, _ := logging.ParseLevel(cfg.LogLevel)
	logger := logging.New(os.Stdout, level).With("component", "linkgate-d")
	slog.SetDefault(logger)
	logger.Info("system_started", "version", version, "engine", cfg.Engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close(logger)

	gw := gateway.New[api.LinkID](b.engine)
	srv, err := api.NewServer(gw.Query, gw.Mutation, api.Options{
		Addr:       cfg.Addr,
		Playground: cfg.Playground,
		Version:    version,
		Logger:     logger,

		LockTimeout:  cfg.LockTimeout,
		MaxBodyBytes: cfg.MaxBodyBytes,
	})
	if err != nil {
		return err
	}
	if cfg.TLSCert != "" {
		srv.SetTLS(cfg.TLSCert, cfg.TLSKey)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		return b.keepLease(gctx, logger)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown_initiated")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("failed to stop server: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("server_failed", "error", err)
		return err
	}
	logger.Info("shutdown_complete")
	return nil
}
