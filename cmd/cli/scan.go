package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"

	"feedguard/internal/config"
	"feedguard/internal/engine"
	"feedguard/internal/fetcher"
	"feedguard/internal/ioformats"
)

type scanRecord struct {
	Source string         `json:"source"`
	Result *engine.Report `json:"result,omitempty"`
	Error  string         `json:"error,omitempty"`
}

// NewScanCmd creates the scan command.
func NewScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan [source...]",
		Short: "Scan pages once and report what would be hidden",
		Long: `Scan runs the filter once over each source and prints one NDJSON record per
source. Sources are file paths or http(s) URLs; --input reads more of them
from a CSV (with a source, url or path column) or NDJSON file.

Examples:
  feedguard scan saved-feed.html
  feedguard scan --input sources.csv --output results.ndjson
  feedguard scan --render filtered/ saved-feed.html`,
		Args: cobra.ArbitraryArgs,
		RunE: runScanCmd,
	}
	cmd.Flags().StringP("input", "i", "", "CSV or NDJSON file listing sources")
	cmd.Flags().StringP("output", "o", "", "Output NDJSON file (default stdout)")
	cmd.Flags().IntP("concurrency", "n", 8, "Sources scanned in parallel")
	cmd.Flags().StringP("render", "r", "", "Directory receiving the filtered HTML of each source")
	cmd.Flags().IntP("keywords", "k", 0, "Suggest this many topic keywords per source")
	cmd.Flags().Duration("timeout", 20*time.Second, "Per-source fetch timeout")
	return cmd
}

func runScanCmd(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	sources := append([]string(nil), args...)
	if in, _ := cmd.Flags().GetString("input"); in != "" {
		more, err := ioformats.ReadSources(in)
		if err != nil {
			return fmt.Errorf("read input: %w", err)
		}
		sources = append(sources, more...)
	}
	if len(sources) == 0 {
		return fmt.Errorf("no sources: pass paths or URLs, or --input")
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	renderDir, _ := cmd.Flags().GetString("render")
	keywords, _ := cmd.Flags().GetInt("keywords")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	if renderDir != "" {
		if err := os.MkdirAll(renderDir, 0o750); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := fetcher.NewHTTPClient(timeout, 5*time.Second, cfg.Server.MaxBodyBytes)
	results := make([]scanRecord, len(sources))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for i, src := range sources {
		g.Go(func() error {
			results[i] = scanOne(gctx, client, cfg, log, src, scanFlags{renderDir, keywords, timeout, i})
			if results[i].Error != "" {
				log.Warn("scan failed", "source", src, "err", results[i].Error)
			}
			return nil
		})
	}
	_ = g.Wait()

	out := cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path) //nolint:gosec // user-provided output path
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	return ioformats.WriteNDJSON(out, results)
}

type scanFlags struct {
	renderDir string
	keywords  int
	timeout   time.Duration
	index     int
}

func scanOne(ctx context.Context, client *fetcher.HTTPClient, cfg *config.Config, log *slog.Logger, src string, f scanFlags) scanRecord {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	page, err := client.Load(ctx, src)
	if err != nil {
		return scanRecord{Source: src, Error: err.Error()}
	}
	rep, err := engine.Scan(ctx, page.Doc, page.Location, engine.ScanOptions{
		Options:  engine.Options{Settings: cfg.Settings, Engine: cfg.Engine, Logger: log},
		Keywords: f.keywords,
	})
	if err != nil {
		return scanRecord{Source: src, Error: err.Error()}
	}
	if page.Took > 0 && strings.HasPrefix(page.Location, "http") {
		rep.FetchMs = page.Took.Milliseconds()
	}
	if f.renderDir != "" {
		if err := render(filepath.Join(f.renderDir, renderName(src, f.index)), page.Doc); err != nil {
			return scanRecord{Source: src, Result: rep, Error: err.Error()}
		}
	}
	return scanRecord{Source: src, Result: rep}
}

func render(path string, doc *html.Node) error {
	f, err := os.Create(path) //nolint:gosec // derived from the render directory
	if err != nil {
		return err
	}
	if err := html.Render(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// renderName derives a stable file name from a source.
func renderName(src string, i int) string {
	base := filepath.Base(strings.TrimRight(src, "/"))
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '_'
	}, base)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return fmt.Sprintf("%03d-%s.html", i, base)
}
