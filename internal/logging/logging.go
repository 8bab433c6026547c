// SPDX-License-Identifier: EPL-2.0

// Package logging builds the control-path logger and reports background
// initialization notices through it.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ik5/framebridge/frame"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// Format names accepted by New.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ParseLevel accepts debug, info, warn (or warning) and error in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: %q", ErrUnknownLevel, s)
	}
}

// New returns a logger writing to w in the given format.
func New(w io.Writer, level slog.Level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case FormatJSON:
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// FileOptions configures a rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewFile returns a JSON logger writing to a rotating file, and the
// function that closes it. Zero limits fall back to 100 MB, 3 backups and
// 28 days.
func NewFile(opts FileOptions, level slog.Level) (*slog.Logger, func() error, error) {
	if opts.Path == "" {
		return nil, nil, errors.New("empty log file path")
	}
	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory %s: %w", dir, err)
		}
	}

	w := &lumberjack.Logger{
		Filename:   opts.Path,
		MaxSize:    orDefault(opts.MaxSizeMB, 100),
		MaxBackups: orDefault(opts.MaxBackups, 3),
		MaxAge:     orDefault(opts.MaxAgeDays, 28),
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	return logger, w.Close, nil
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

// DrainNotices logs every notice posted to q until ctx ends. Failed
// initializations log at error level and superseded ones at warn.
func DrainNotices(ctx context.Context, q *frame.NoticeQueue, logger *slog.Logger) {
	if q == nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			drainPending(q, logger)
			return
		case n := <-q.C():
			LogNotice(logger, n)
		}
	}
}

func drainPending(q *frame.NoticeQueue, logger *slog.Logger) {
	for {
		select {
		case n := <-q.C():
			LogNotice(logger, n)
		default:
			return
		}
	}
}

// LogNotice writes a single notice.
func LogNotice(logger *slog.Logger, n frame.Notice) {
	attrs := []any{"node", n.Node}
	if n.Kind != frame.NoticeStarted {
		attrs = append(attrs, "elapsed", n.Elapsed)
	}
	if n.Err != nil {
		attrs = append(attrs, "err", n.Err)
	}

	switch n.Kind {
	case frame.NoticeStarted:
		logger.Info("codec initialization started", attrs...)
	case frame.NoticeReady:
		logger.Info("codec ready", attrs...)
	case frame.NoticeSuperseded:
		logger.Warn(msgOr(n.Message, "codec initialization superseded"), attrs...)
	case frame.NoticeFailed:
		logger.Error(msgOr(n.Message, "codec initialization failed"), attrs...)
	default:
		logger.Warn("unknown notice", append(attrs, "kind", n.Kind.String())...)
	}
}

func msgOr(msg, def string) string {
	if msg == "" {
		return def
	}
	return msg
}
