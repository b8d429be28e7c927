// Command computeplay runs a compute playground headless for a number of
// frames and optionally serves Prometheus metrics while it runs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gogpu/computeplay"
	"github.com/gogpu/computeplay/backend/native"
	"github.com/gogpu/computeplay/config"
	"github.com/gogpu/computeplay/metrics"

	_ "github.com/gogpu/wgpu/hal/allbackends"
)

func main() {
	var (
		configPath  = flag.String("config", "", "YAML config file")
		variant     = flag.String("variant", "", "simulation: physarum, blur or fractal")
		width       = flag.Int("width", 0, "texture width (default 1000)")
		height      = flag.Int("height", 0, "texture height (default 1000)")
		frames      = flag.Int("frames", 600, "frames to run after pipelines compile")
		dt          = flag.Duration("dt", 16*time.Millisecond, "simulated time per frame")
		backend     = flag.String("backend", "", "HAL backend: vulkan, metal, dx12, gl or cpu (default auto)")
		seed        = flag.Uint64("seed", 0, "agent heading seed (0 picks a random one)")
		syncPasses  = flag.Bool("sync", false, "submit the agent pass separately")
		metricsAddr = flag.String("metrics-addr", "", "serve /metrics on this address")
		logLevel    = flag.String("log-level", "info", "debug, info, warn or error")
		compileWait = flag.Duration("compile-timeout", 30*time.Second, "give up when pipelines are not ready in time")
	)
	flag.Parse()

	log := newLogger(*logLevel)
	computeplay.SetLogger(log)
	native.SetLogger(log)

	file := &config.File{}
	if *configPath != "" {
		var err error
		if file, err = config.Load(*configPath); err != nil {
			log.Error("load config failed", "err", err)
			os.Exit(1)
		}
	}
	if *variant != "" {
		file.Variant = *variant
	}
	if *width != 0 {
		file.Width = *width
	}
	if *height != 0 {
		file.Height = *height
	}
	if *backend != "" {
		file.Backend = *backend
	}
	if *metricsAddr != "" {
		file.Metrics.Addr = *metricsAddr
	}
	if *seed != 0 {
		file.Seed = seed
	}
	if *syncPasses {
		file.SyncPasses = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := execute(ctx, log, file, *frames, *dt, *compileWait)
	stop()
	if err != nil {
		log.Error("computeplay failed", "err", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, log *slog.Logger, file *config.File, frames int, dt, compileWait time.Duration) error {
	cfg, err := file.Config()
	if err != nil {
		return err
	}

	adapter, err := native.Open(file.Backend)
	if err != nil {
		return fmt.Errorf("open GPU: %w", err)
	}
	defer adapter.Close()

	collector := metrics.NewCollector(nil)
	if file.Metrics.Addr != "" {
		srv := metrics.NewServer(file.Metrics.Addr, collector)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		log.Info("serving metrics", "addr", file.Metrics.Addr)
	}

	opts := append(file.Options(), computeplay.WithMetrics(collector))
	pg, err := computeplay.New(adapter, cfg, opts...)
	if err != nil {
		return err
	}
	defer pg.Close()

	start := time.Now()
	if err := run(ctx, pg, frames, dt, compileWait); err != nil {
		return err
	}
	w, h := pg.Size()
	log.Info("done",
		"variant", pg.Variant().String(),
		"frames", pg.Frames(),
		"width", w,
		"height", h,
		"elapsed", time.Since(start))
	return nil
}

// run steps the playground until it has recorded n frames.
func run(ctx context.Context, pg *computeplay.Playground, n int, dt time.Duration, compileWait time.Duration) error {
	if n < 0 {
		n = 0
	}
	deadline := time.Now().Add(compileWait)
	for pg.Frames() < uint64(n) { //nolint:gosec // n comes from a flag
		if ctx.Err() != nil {
			return nil
		}
		if err := pg.Frame(dt); err != nil {
			return err
		}
		if pg.Frames() > 0 {
			continue
		}
		if _, err := pg.Compiled(); err != nil {
			return fmt.Errorf("compile: %w", err)
		}
		if time.Now().After(deadline) {
			return errors.New("no frame recorded before the compile timeout")
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}
