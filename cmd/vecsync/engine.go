package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/hupe1980/vecsync"
	"github.com/hupe1980/vecsync/backup"
	"github.com/hupe1980/vecsync/config"
	"github.com/hupe1980/vecsync/slotstore"
)

func newLogger(cfg config.LogConfig) *vecsync.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	if cfg.Format == "json" {
		return vecsync.NewJSONLogger(level)
	}
	return vecsync.NewTextLogger(level)
}

// engineOptions maps the configuration onto engine options. Values were
// checked by config.Validate.
func engineOptions(cfg *config.Config, b backend, logger *vecsync.Logger) ([]vecsync.Option, error) {
	policy, err := slotstore.ParseEvictionPolicy(cfg.EvictionPolicy)
	if err != nil {
		return nil, err
	}
	mode, err := backup.ParseMode(cfg.Backup.Mode)
	if err != nil {
		return nil, err
	}

	opts := []vecsync.Option{
		vecsync.WithCacheSize(cfg.LocalCacheSize),
		vecsync.WithDimension(cfg.Dimension),
		vecsync.WithEvictionPolicy(policy),
		vecsync.WithObjectName(cfg.Remote.ObjectName, ""),
		vecsync.WithRemoteTimeout(cfg.Remote.Timeout),
		vecsync.WithIOLimit(cfg.Remote.IORateLimit),
		vecsync.WithBackupMode(mode),
		vecsync.WithBackupFolder(cfg.Remote.BackupFolder),
		vecsync.WithBackupCompression(cfg.Backup.Compression, cfg.Backup.CompressionLevel),
		vecsync.WithBackupSchedule(cfg.Backup.FrequencyDays, cfg.Backup.Keep),
		vecsync.WithLogger(logger),
	}
	if cfg.Remote.AutoSyncInterval > 0 {
		opts = append(opts, vecsync.WithAutoSyncInterval(cfg.Remote.AutoSyncInterval))
	} else {
		opts = append(opts, vecsync.WithAutoSyncInterval(-1))
	}
	if b.connector != nil {
		opts = append(opts, vecsync.WithConnector(b.connector))
	}
	if b.ledger != nil {
		opts = append(opts, vecsync.WithLedger(b.ledger))
	}
	return opts, nil
}

func openEngine(ctx context.Context, cfg *config.Config) (*vecsync.Engine, error) {
	logger := newLogger(cfg.Log)
	b, err := newBackend(ctx, cfg.Remote)
	if err != nil {
		return nil, err
	}
	opts, err := engineOptions(cfg, b, logger)
	if err != nil {
		return nil, err
	}
	return vecsync.Open(ctx, cfg.LocalCachePath, opts...)
}

// parseFloats parses "1,2.5,-3" or separate arguments.
func parseFloats(args []string) ([]float64, error) {
	var out []float64
	for _, arg := range args {
		for _, field := range strings.Split(arg, ",") {
			field = strings.TrimSpace(field)
			if field == "" {
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid number %q: %w", field, err)
			}
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no values given")
	}
	return out, nil
}

func parseInts(args []string) ([]int, error) {
	floats, err := parseFloats(args)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(floats))
	for i, f := range floats {
		if f != float64(int(f)) {
			return nil, fmt.Errorf("invalid index %v", f)
		}
		out[i] = int(f)
	}
	return out, nil
}
