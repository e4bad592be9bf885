// Command schedrun runs shell commands on the schedules of a YAML job file,
// reloading the file when it changes.
//
// Settings come from an optional config file (-config), SCHEDRUN_*
// environment variables and defaults:
//
//	frequency     tick period                   (300ms)
//	min_threads   minimum worker count          (7)
//	max_threads   maximum worker count          (35)
//	lockfile      advisory lock file            ("")
//	jobs          job file                      (jobs.yaml)
//	log_level     zerolog level                 (info)
//	shutdown      grace period on stop          (30s)
//
// With -check the job file is validated, upcoming cron runs are printed
// and schedrun exits without scheduling anything.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	scheduler "github.com/netresearch/go-scheduler"
	"github.com/netresearch/go-scheduler/internal/jobfile"
)

func main() {
	configPath := flag.String("config", "", "path to a settings file (yaml, toml or json)")
	checkOnly := flag.Bool("check", false, "validate the job file, print upcoming runs and exit")
	flag.Parse()

	if err := run(*configPath, *checkOnly); err != nil {
		fmt.Fprintln(os.Stderr, "schedrun:", err)
		os.Exit(1)
	}
}

func loadSettings(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault("frequency", scheduler.DefaultFrequency)
	v.SetDefault("min_threads", scheduler.DefaultMinThreads)
	v.SetDefault("max_threads", scheduler.DefaultMaxThreads)
	v.SetDefault("lockfile", "")
	v.SetDefault("jobs", "jobs.yaml")
	v.SetDefault("log_level", "info")
	v.SetDefault("shutdown", 30*time.Second)

	v.SetEnvPrefix("SCHEDRUN")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read settings: %w", err)
		}
	}
	return v, nil
}

func newLogger(level string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log_level: %w", err)
	}
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

func run(configPath string, checkOnly bool) error {
	v, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	if checkOnly {
		f, err := jobfile.Load(v.GetString("jobs"))
		if err != nil {
			return err
		}
		_, err = check(os.Stdout, f, time.Now())
		return err
	}
	zl, err := newLogger(v.GetString("log_level"))
	if err != nil {
		return err
	}
	logger := scheduler.NewZerologLogger(zl)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []scheduler.Option{
		scheduler.WithFrequency(v.GetDuration("frequency")),
		scheduler.WithThreads(v.GetInt("min_threads"), v.GetInt("max_threads")),
		scheduler.WithLogger(logger),
		scheduler.WithFailOnLocked(),
	}
	if lf := v.GetString("lockfile"); lf != "" {
		opts = append(opts, scheduler.WithLockFile(lf))
	}
	s, err := scheduler.New(opts...)
	if err != nil {
		return err
	}

	path := v.GetString("jobs")
	f, err := jobfile.Load(path)
	if err != nil {
		return err
	}
	syncer := jobfile.NewSyncer(s, commandRunner(logger))
	res, err := syncer.Apply(f)
	if err != nil {
		zl.Error().Err(err).Msg("some jobs could not be scheduled")
	}
	zl.Info().Int("jobs", len(res.Added)).Str("file", path).Msg("job file loaded")

	if err := s.Start(); err != nil {
		return err
	}
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		zl.Warn().Err(err).Msg("sd_notify failed")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return jobfile.Watch(gctx, path, jobfile.DefaultDebounce, func(f *jobfile.File, err error) {
			if err != nil {
				zl.Error().Err(err).Msg("job file reload failed")
				return
			}
			res, err := syncer.Apply(f)
			if err != nil {
				zl.Error().Err(err).Msg("some jobs could not be scheduled")
			}
			zl.Info().
				Strs("added", res.Added).
				Strs("updated", res.Updated).
				Strs("removed", res.Removed).
				Msg("job file reloaded")
		})
	})
	g.Go(func() error {
		<-gctx.Done()
		_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
		zl.Info().Msg("shutting down")

		sctx, cancel := context.WithTimeout(context.Background(), v.GetDuration("shutdown"))
		defer cancel()
		if err := s.Shutdown(sctx, scheduler.ShutdownWait); err != nil {
			zl.Warn().Err(err).Msg("grace period exceeded, killing jobs")
			for _, j := range s.RunningJobs() {
				j.Kill()
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
