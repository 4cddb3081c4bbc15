package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"feedguard/internal/dom"
	"feedguard/internal/engine"
	"feedguard/internal/fetcher"
	"feedguard/internal/loop"
	"feedguard/internal/models"
)

// NewWatchCmd creates the watch command.
func NewWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <file>",
		Short: "Keep filtering a saved page while it changes on disk",
		Long: `Watch loads a saved feed page into a long-running engine and reloads it
whenever the file is rewritten. Each reload counts as a full page load: the
engine rebinds and starts from fresh counters. Every hidden item is printed
as an NDJSON line.`,
		Args: cobra.ExactArgs(1),
		RunE: runWatchCmd,
	}
}

func runWatchCmd(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	path, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	page, err := fetcher.ReadFile(path, "")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l := loop.New(0)
	e, err := engine.New(page.Doc, page.Location, l, engine.Options{
		Settings: cfg.Settings,
		Engine:   cfg.Engine,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	e.OnHidden(func(item models.HiddenItem) { _ = enc.Encode(item) })

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	// Watch the directory: editors often replace the file instead of
	// writing it in place.
	if err := w.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", path, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := l.Run(gctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	e.Start()
	log.Info("watching", "file", path)

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case err, ok := <-w.Errors:
				if !ok {
					return nil
				}
				log.Warn("watch: error", "err", err)
			case ev, ok := <-w.Events:
				if !ok {
					return nil
				}
				if ev.Name != path || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				reload(gctx, e, path, log)
			}
		}
	})
	return g.Wait()
}

func reload(ctx context.Context, e *engine.Engine, path string, log *slog.Logger) {
	page, err := fetcher.ReadFile(path, "")
	if err != nil {
		log.Warn("watch: reload failed", "file", path, "err", err)
		return
	}
	err = e.Mutate(ctx, func(t *dom.Tree) { t.ReplaceDocument(page.Doc, page.Location) })
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("watch: reload failed", "file", path, "err", err)
		return
	}
	log.Info("watch: reloaded", "file", path)
}
