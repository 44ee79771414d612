package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/vecsync"
	"github.com/hupe1980/vecsync/config"
	"github.com/hupe1980/vecsync/scheduler"
)

var servePushOnExit bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run scheduled pushes and backups until interrupted",
	Long: `Run scheduled pushes and backups until interrupted.

The auto-push job pushes when the engine saw writes since the last sync, or
when the backing file was modified after it, which covers other processes
writing the same file.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		e, err := openEngine(ctx, cfg)
		if err != nil {
			return err
		}
		defer e.Close()

		logger := newLogger(cfg.Log)
		target := serveTarget{Engine: e, path: cfg.LocalCachePath}
		sched, err := scheduler.New(target, schedulerConfig(cfg, logger.Logger))
		if err != nil {
			return err
		}
		if err := sched.Start(); err != nil {
			return err
		}
		logger.Info("serving", "path", cfg.LocalCachePath, "backend", cfg.Remote.Backend)

		<-ctx.Done()
		logger.Info("shutting down")
		sched.Stop()

		if servePushOnExit && target.Dirty() {
			if err := e.SyncPush(context.WithoutCancel(ctx)); err != nil {
				logger.Warn("final push failed", "error", err)
			}
		}
		return nil
	},
}

// serveTarget also treats the backing file as dirty when its modification
// time is newer than the last sync.
type serveTarget struct {
	*vecsync.Engine
	path string
}

func (t serveTarget) Dirty() bool {
	if t.Engine.Dirty() {
		return true
	}
	fi, err := os.Stat(t.path)
	if err != nil {
		return false
	}
	last := t.Syncer().LastSync()
	return !last.IsZero() && fi.ModTime().After(last)
}

func schedulerConfig(cfg *config.Config, logger *slog.Logger) scheduler.Config {
	sc := scheduler.Config{
		BackupSchedule:      cfg.Backup.Schedule,
		BackupFrequencyDays: cfg.Backup.FrequencyDays,
		Prune:               cfg.Backup.Keep > 0,
		Logger:              logger,
	}
	if cfg.Remote.Backend != "" && cfg.Remote.Backend != config.BackendNone {
		sc.AutoSyncInterval = cfg.Remote.AutoSyncInterval
	} else {
		sc.BackupSchedule = ""
		sc.BackupFrequencyDays = 0
	}
	return sc
}

func init() {
	serveCmd.Flags().BoolVar(&servePushOnExit, "push-on-exit", true, "push pending writes before exiting")
}
