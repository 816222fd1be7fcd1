// Command stepwise-server runs the project persistence service.
//
//	stepwise-server [-config path] serve
//	stepwise-server [-config path] token <user>
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/chazu/stepwise/pkg/config"
	"github.com/chazu/stepwise/pkg/logger"
	"github.com/chazu/stepwise/pkg/repo"
	"github.com/chazu/stepwise/pkg/server"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to a YAML config file (defaults to $STEPWISE_CONFIG)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config path] serve|token <user>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch flag.Arg(0) {
	case "serve", "":
		if err := serve(cfg); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
	case "token":
		if flag.NArg() != 2 {
			flag.Usage()
			os.Exit(2)
		}
		sessions, err := server.NewSessions(cfg.Server.SessionSecret, cfg.Server.SessionTTL)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		token, err := sessions.Issue(flag.Arg(1))
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Println(token)
	default:
		flag.Usage()
		os.Exit(2)
	}
}

func serve(cfg config.Config) error {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.Server.SessionSecret == config.Default().Server.SessionSecret {
		log.Warn("using the default session secret; set STEPWISE_SESSION_SECRET")
	}

	// Database
	db, err := repo.Open(cfg.Database, log)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	// Share cache
	var cache repo.ShareCache
	if cfg.Cache.RedisAddr != "" {
		cache, err = repo.NewRedisShareCache(cfg.Cache.RedisAddr, log)
		if err != nil {
			return err
		}
	} else {
		log.Info("no redis address configured, caching shares in memory")
		cache = repo.NewMemoryShareCache()
	}
	defer cache.Close()

	projects := repo.NewProjectRepo(db, log)
	shares := repo.NewShares(projects, cache, cfg.Cache.ShareTTL, log)

	sessions, err := server.NewSessions(cfg.Server.SessionSecret, cfg.Server.SessionTTL)
	if err != nil {
		return err
	}
	// Documents embed uploaded assets as data URLs, which grow by a third.
	handler := server.NewProjectHandler(log, projects, shares, 2*cfg.Assets.MaxUploadBytes)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg.Server, handler, sessions, log).Run(ctx)
}
