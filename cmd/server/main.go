package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"feedguard/internal/config"
	"feedguard/internal/fetcher"
	"feedguard/internal/httpapi"
	"feedguard/pkg/logger"
)

func main() {
	cfgPath := flag.String("config", "", "config file (default .feedguard.yaml in cwd or home)")
	addr := flag.String("addr", "", "listen address (overrides config)")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	if err := run(*cfgPath, *addr, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cfgPath, addr string, verbose bool) error {
	cfg, err := config.Load(config.Find(cfgPath))
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	l := logger.New(os.Stderr, verbose || cfg.Settings.Verbose())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	client := fetcher.NewHTTPClient(cfg.Server.FetchTimeout, 5*time.Second, cfg.Server.MaxBodyBytes)
	api := httpapi.New(cfg, client, l, reg)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.Routes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Info("server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		l.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	l.Info("bye")
	return nil
}
