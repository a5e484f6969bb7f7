// Package app 两个二进制共用的装配：密钥、数据库、缓存、对象存储、服务。
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"

	"health-diary/internal/access"
	"health-diary/internal/core/auth"
	"health-diary/internal/core/blob"
	"health-diary/internal/core/cache"
	"health-diary/internal/core/config"
	"health-diary/internal/core/crypto"
	"health-diary/internal/core/database"
	"health-diary/internal/core/logger"
	"health-diary/internal/feature"
	"health-diary/internal/repo"
	"health-diary/internal/service"
	"health-diary/internal/transport/http/router"
)

type App struct {
	DB     *gorm.DB
	Deps   router.Deps
	closer []func()
}

// Close 逆序释放
func (a *App) Close() {
	for i := len(a.closer) - 1; i >= 0; i-- {
		a.closer[i]()
	}
}

// New 任一必需组件失败就返回错误；redis 不可用时降级为不缓存
func New(ctx context.Context, cfg *config.Config, l *zap.Logger) (*App, error) {
	c, err := crypto.New(cfg.Crypto.Options())
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	if cfg.JWT.Secret == "" {
		return nil, errors.New("jwt.secret is required")
	}

	db, err := database.NewGorm(database.Opts{
		Driver:             cfg.DB.Driver,
		DSN:                cfg.DB.DSN,
		Username:           cfg.DB.Username,
		Password:           cfg.DB.Password,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetimeMin: cfg.DB.ConnMaxLifetimeMin,
		LogLevel:           cfg.DB.LogLevel,
		Writer:             logger.ToWriter(l.Named("gorm"), zapcore.WarnLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	a := &App{DB: db}
	if sqlDB, err := db.DB(); err == nil {
		a.closer = append(a.closer, func() { _ = sqlDB.Close() })
	}
	l.Info("database connected", zap.String("driver", cfg.DB.Driver))

	if cfg.DB.AutoMigrate {
		if err := db.AutoMigrate(feature.Models()...); err != nil {
			a.Close()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
		l.Info("automigrate done")
	}

	opts := []service.Option{service.WithLogger(l)}

	if m := cfg.Storage.Minio; m.Endpoint != "" {
		store, err := blob.NewMinio(ctx, blob.MinioOptions{
			Endpoint:  m.Endpoint,
			AccessKey: m.AccessKey,
			SecretKey: m.SecretKey,
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("object store: %w", err)
		}
		opts = append(opts, service.WithBlobStore(store))
		l.Info("image object store enabled", zap.String("endpoint", m.Endpoint), zap.String("bucket", m.Bucket))
	}

	userRepo := repo.NewUserRepo(db)
	var lookup access.Lookup = access.LookupFunc(userRepo.Snapshot)
	if cfg.Redis.Addr != "" {
		rc := cache.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rc.Ping(ctx); err != nil {
			// 不致命：GetOrLoad 会直接回源
			l.Warn("redis unreachable, access snapshots will not be cached", zap.Error(err))
		}
		a.closer = append(a.closer, func() { _ = rc.Close() })
		cached := access.NewCachedLookup(lookup, rc, time.Duration(cfg.Access.CacheTTLSec)*time.Second)
		lookup = cached
		opts = append(opts, service.WithInvalidator(cached))
	}

	engine := access.New(lookup, l.Named("access"))
	users := service.NewUserService(userRepo, c, opts...)
	a.Deps = router.Deps{
		Log: l,
		JWT: &auth.JWTer{
			Secret: []byte(cfg.JWT.Secret),
			Issuer: cfg.JWT.Issuer,
			TTL:    time.Duration(cfg.JWT.AccessTokenTTLMin) * time.Minute,
		},
		Engine:      engine,
		Users:       users,
		Calendars:   service.NewCalendarService(repo.NewCalendarRepo(db), userRepo, c, engine, opts...),
		Regs:        service.NewRegistrations(db, c, opts...),
		CORSOrigins: cfg.App.CORSOrigins,
	}

	if emails := cfg.Admin.BootstrapEmails; len(emails) > 0 {
		n, err := users.EnsureAdmins(ctx, emails)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("bootstrap admins: %w", err)
		}
		l.Info("bootstrap admins checked", zap.Int("configured", len(emails)), zap.Int("promoted", n))
	}
	return a, nil
}
