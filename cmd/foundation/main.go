// Package main runs a plugin host with a console and a Telnet frontend.
// It wires together configuration, the scheduler, the plugin, the optional
// player data store and both frontends.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/foundation/internal/config"
	"github.com/cory-johannsen/foundation/internal/frontend/console"
	"github.com/cory-johannsen/foundation/internal/frontend/handlers"
	"github.com/cory-johannsen/foundation/internal/frontend/telnet"
	"github.com/cory-johannsen/foundation/internal/host"
	"github.com/cory-johannsen/foundation/internal/observability"
	"github.com/cory-johannsen/foundation/internal/plugin"
	"github.com/cory-johannsen/foundation/internal/scheduler"
	"github.com/cory-johannsen/foundation/internal/server"
	"github.com/cory-johannsen/foundation/internal/settings"
	"github.com/cory-johannsen/foundation/internal/storage/postgres"
	"github.com/cory-johannsen/foundation/internal/yamlconfig"
)

// Version is set at build time.
var Version = "dev"

const healthInterval = 30 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "", "path to configuration file (defaults and FOUNDATION_ environment only when empty)")
	dataFolder := flag.String("data", "", "plugin data folder, overriding server.data_folder")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *dataFolder != "" {
		cfg.Server.DataFolder = *dataFolder
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting foundation host",
		zap.String("server", cfg.Server.Name),
		zap.String("version", Version),
		zap.String("data_folder", cfg.Server.DataFolder),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := scheduler.New(logger.Named("scheduler"), cfg.Server.QueueSize)
	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("scheduler", &server.FuncService{RunFn: sched.Run})

	var (
		pool    *postgres.Pool
		repo    *postgres.PlayerDataRepository
		tracker *host.Tracker
	)
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err = postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Int("port", cfg.Database.Port),
			zap.String("database", cfg.Database.Name),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		repo = postgres.NewPlayerDataRepository(pool.DB())
		tracker = host.NewTracker(repo, logger.Named("players"))
		lifecycle.Add("postgres", &server.FuncService{
			RunFn: func(ctx context.Context) error {
				return pool.Watch(ctx, healthInterval, logger.Named("postgres"))
			},
			ShutdownFn: func(context.Context) error {
				pool.Close()
				return nil
			},
		})
	}

	p := plugin.New(plugin.Options{
		Description: plugin.Description{
			Name:       "Foundation",
			Version:    Version,
			Authors:    []string{"Foundation contributors"},
			ServerName: cfg.Server.Name,
		},
		DataDir:  filepath.Clean(cfg.Server.DataFolder),
		Sections: []settings.Section{localeOverride(cfg.Server.Locale)},
		Hooks: plugin.Hooks{
			OnStart: func(ctx context.Context, p *plugin.Plugin) error {
				cmds := host.Commands(p)
				if repo != nil {
					cmds = append(cmds, host.SeenCommand(p, repo, sched))
				}
				for _, cmd := range cmds {
					if err := p.Registry().Register(cmd); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}, logger)

	var purge *scheduler.Task
	lifecycle.Add("plugin", &server.FuncService{
		InitFn: func(ctx context.Context) error {
			if err := sched.Await(ctx, func() error { return p.Start(ctx) }); err != nil {
				return err
			}
			if tracker != nil && cfg.Database.PurgeAfter > 0 {
				purge = tracker.SchedulePurge(sched, time.Hour, cfg.Database.PurgeAfter)
			}
			return nil
		},
		ShutdownFn: func(ctx context.Context) error {
			if purge != nil {
				purge.Cancel()
			}
			return sched.Await(ctx, func() error { return p.Stop(ctx) })
		},
	})

	if cfg.Console.Enabled {
		cons := console.New(cfg.Console, os.Stdin, os.Stdout, p, sched, cancel, logger.Named("console"))
		lifecycle.Add("console", cons)
	}

	if cfg.Telnet.Enabled {
		var listener handlers.PlayerListener
		if tracker != nil {
			listener = tracker
		}
		sessions := handlers.NewSessionHandler(p, sched, cfg.Telnet.Operators, listener, logger.Named("telnet"))
		lifecycle.Add("telnet", telnet.NewAcceptor(cfg.Telnet, sessions, logger))
	}

	logger.Info("host initialized",
		zap.Duration("startup", time.Since(start)),
		zap.Bool("console", cfg.Console.Enabled),
		zap.Bool("telnet", cfg.Telnet.Enabled),
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.Bool("database", cfg.Database.Enabled),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("host error", zap.Error(err))
	}
}

// localeOverride replaces the locale from settings.yml with the host's
// server.locale when one is configured.
func localeOverride(locale string) settings.Section {
	return settings.Section{
		Name: "host",
		Bind: func(_ *yamlconfig.Config, s *settings.Settings) error {
			if locale != "" {
				s.Locale = locale
			}
			return nil
		},
	}
}
