package main

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	api "github.com/mind-engage/coursehub/internal/api/http"
	"github.com/mind-engage/coursehub/internal/audit"
	auth "github.com/mind-engage/coursehub/internal/auth/middleware"
	"github.com/mind-engage/coursehub/internal/cache"
	"github.com/mind-engage/coursehub/internal/config"
	"github.com/mind-engage/coursehub/internal/curriculum"
	"github.com/mind-engage/coursehub/internal/db"
	"github.com/mind-engage/coursehub/internal/logger"
	"github.com/mind-engage/coursehub/internal/quiz"
	"github.com/mind-engage/coursehub/internal/rbac"
	"github.com/mind-engage/coursehub/internal/users"
)

type app struct {
	cfg config.Config
	log *logger.Logger

	db  *db.DB
	rdb *goredis.Client

	auth       *auth.AuthService
	curriculum *curriculum.Service
	quizzes    *quiz.Service
	users      *users.Service
	caps       *rbac.Capabilities
	events     *audit.EventRepo
	ready      map[string]api.Pinger
}

// newApp opens storage, seeds it when asked and builds the services. Redis
// is optional: without REDIS_ADDR module details are read straight from the
// database.
func newApp(ctx context.Context, cfg config.Config, log *logger.Logger) (*app, error) {
	driver, err := db.ParseDriver(cfg.DBDriver)
	if err != nil {
		return nil, err
	}
	d, err := db.Open(ctx, driver, cfg.DBDSN)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	a := &app{
		cfg:    cfg,
		log:    log,
		db:     d,
		auth:   auth.NewAuthService(cfg.AuthHMACSecret),
		caps:   rbac.NewCapabilities(d),
		events: audit.NewEventRepo(d),
		ready:  map[string]api.Pinger{"db": d},
	}

	if cfg.SeedDemo {
		seeded, err := db.SeedDemo(ctx, d)
		if err != nil {
			_ = d.Close()
			return nil, fmt.Errorf("seed demo data: %w", err)
		}
		if seeded {
			log.Info("demo data loaded", "accounts", db.DemoAccounts)
		}
	}

	curOpts := []curriculum.Option{curriculum.WithAudit(a.events), curriculum.WithLogger(log)}
	quizOpts := []quiz.ServiceOption{quiz.WithAudit(a.events), quiz.WithLogger(log)}
	if cfg.RedisAddr != "" {
		rdb, err := cache.NewClient(ctx, cache.Options{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB, TTL: cfg.ModuleCacheTTL,
		})
		if err != nil {
			_ = d.Close()
			return nil, err
		}
		a.rdb = rdb
		modules := cache.NewModules(rdb, cfg.ModuleCacheTTL, log)
		a.ready["redis"] = modules
		curOpts = append(curOpts, curriculum.WithCache(modules))
		quizOpts = append(quizOpts, quiz.WithModuleInvalidator(modules))
	}

	a.curriculum = curriculum.NewService(curriculum.NewSQLStore(d), curOpts...)
	a.quizzes = quiz.NewService(quiz.NewSQLStore(d), quizOpts...)
	a.users = users.NewService(d, a.events, log)
	return a, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	_ = a.db.Close()
}
