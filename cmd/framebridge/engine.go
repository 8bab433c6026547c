// SPDX-License-Identifier: EPL-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/ik5/framebridge/asset"
	"github.com/ik5/framebridge/audio"
	"github.com/ik5/framebridge/frame"
	"github.com/ik5/framebridge/internal/config"
	"github.com/ik5/framebridge/internal/logging"
	"github.com/ik5/framebridge/internal/observe"
	"github.com/ik5/framebridge/internal/worker"
	"github.com/ik5/framebridge/node"
)

// engine holds what every node of a run shares.
type engine struct {
	cfg      *config.Config
	logger   *slog.Logger
	closeLog func() error

	notices *frame.NoticeQueue
	pool    *worker.Pool
	assets  *asset.Loader

	provider *observe.Provider
	metrics  *observe.Metrics
	server   *http.Server

	stopDrain context.CancelFunc
	drained   chan struct{}
}

func newLogger(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if f := cfg.File; f != nil {
		return logging.NewFile(logging.FileOptions{
			Path:       f.Path,
			MaxSizeMB:  f.MaxSizeMB,
			MaxBackups: f.MaxBackups,
			MaxAgeDays: f.MaxAgeDays,
		}, level)
	}
	logger, err := logging.New(os.Stderr, level, cfg.Format)
	if err != nil {
		return nil, nil, err
	}
	return logger, func() error { return nil }, nil
}

func startEngine(ctx context.Context, cfg *config.Config, reg *audio.Registry) (*engine, error) {
	logger, closeLog, err := newLogger(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	slog.SetDefault(logger)

	e := &engine{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		notices:  frame.NewNoticeQueue(cfg.Engine.NoticeQueue),
		pool:     worker.New(),
		assets:   asset.NewLoader(reg),
		drained:  make(chan struct{}),
	}

	drainCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	e.stopDrain = cancel
	go func() {
		defer close(e.drained)
		logging.DrainNotices(drainCtx, e.notices, logger)
	}()

	if addr := cfg.Metrics.ListenAddr; addr != "" {
		if err := e.serveMetrics(ctx, addr); err != nil {
			_ = e.shutdown(ctx)
			return nil, err
		}
	}
	return e, nil
}

func (e *engine) serveMetrics(ctx context.Context, addr string) error {
	p, err := observe.InitProvider(ctx, observe.ProviderConfig{})
	if err != nil {
		return fmt.Errorf("metrics provider: %w", err)
	}
	e.provider = p

	if e.metrics, err = observe.NewMetrics(p.MeterProvider); err != nil {
		return fmt.Errorf("metrics instruments: %w", err)
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())
	e.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("metrics server stopped", "err", err)
		}
	}()
	e.logger.Info("serving metrics", "addr", ln.Addr().String())
	return nil
}

// env is the node environment for a run at the given block size.
func (e *engine) env(blockSize int) node.Env {
	env := node.Env{
		SampleRate: e.cfg.Engine.SampleRate,
		BlockSize:  blockSize,
		Spawner:    e.pool,
		Notices:    e.notices,
		Logger:     e.logger,
		Assets:     e.assets,
	}
	if e.metrics != nil {
		env.Lifecycle = append(env.Lifecycle, e.metrics.InitObserver())
	}
	return env
}

// track reports p's counters until the returned function is called.
func (e *engine) track(p *frame.Processor) func() {
	if e.metrics == nil {
		return func() {}
	}
	e.metrics.Track(p)
	return func() { e.metrics.Untrack(p) }
}

// shutdown joins the background tasks and stops the metrics server. Nodes
// must be closed first.
func (e *engine) shutdown(ctx context.Context) error {
	var errs []error
	if err := e.pool.Wait(); err != nil {
		errs = append(errs, fmt.Errorf("background tasks: %w", err))
	}

	e.stopDrain()
	<-e.drained
	if n := e.notices.Dropped(); n > 0 {
		e.logger.Warn("notices dropped", "count", n)
	}

	// ctx may already be canceled by an interrupt.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if e.server != nil {
		if err := e.server.Shutdown(sctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}
	if err := e.provider.Shutdown(sctx); err != nil {
		errs = append(errs, fmt.Errorf("metrics provider: %w", err))
	}
	if err := e.closeLog(); err != nil {
		errs = append(errs, fmt.Errorf("log file: %w", err))
	}
	return errors.Join(errs...)
}
