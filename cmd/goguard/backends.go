package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	goGuard "github.com/MrEthical07/goGuard"
	"github.com/MrEthical07/goGuard/identity"
	"github.com/MrEthical07/goGuard/internal/config"
	"github.com/MrEthical07/goGuard/revocation"
)

// runtime is an engine together with the backends it was built on.
type runtime struct {
	engine   *goGuard.Engine
	store    revocation.Store
	resolver identity.Resolver
	closers  []func()
}

func (r *runtime) Close() {
	if r.engine != nil {
		r.engine.Close()
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

// openRuntime connects the configured backends and builds an engine over them.
func openRuntime(ctx context.Context, env config.Env, logger *slog.Logger) (*runtime, error) {
	cfg, err := env.GuardConfig()
	if err != nil {
		return nil, err
	}

	rt := &runtime{}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	if rt.store, err = openStore(ctx, rt, env.Server, cfg, logger); err != nil {
		return nil, err
	}
	if rt.resolver, err = openResolver(ctx, rt, env.Server, logger); err != nil {
		return nil, err
	}

	builder := goGuard.New().
		WithConfig(cfg).
		WithRevocationStore(rt.store).
		WithIdentityResolver(rt.resolver).
		WithLogger(logger)
	if cfg.Audit.Enabled {
		builder = builder.WithAuditSink(goGuard.NewLogSink(logger.With("component", "audit")))
	}
	if rt.engine, err = builder.Build(); err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}

	ok = true
	return rt, nil
}

func openStore(ctx context.Context, rt *runtime, srv config.Server, cfg goGuard.Config, logger *slog.Logger) (revocation.Store, error) {
	backend := strings.ToLower(srv.StoreBackend)
	switch backend {
	case config.BackendMemory:
		return revocation.NewMemoryStore(revocation.WithMemoryTombstoneTTL(cfg.Revocation.TombstoneTTL)), nil

	case config.BackendMiniredis:
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		rt.closers = append(rt.closers, mr.Close)
		logger.Warn("using in-process miniredis, revocations are lost on exit", "addr", mr.Addr())
		return openRedisStore(ctx, rt, &redis.Options{Addr: mr.Addr()}, cfg)

	case config.BackendRedis:
		return openRedisStore(ctx, rt, &redis.Options{
			Addr:     srv.RedisAddr,
			Password: srv.RedisPassword,
			DB:       srv.RedisDB,
		}, cfg)

	case config.BackendMongo:
		client, err := mongo.Connect(options.Client().ApplyURI(srv.MongoURI))
		if err != nil {
			return nil, fmt.Errorf("connect mongo: %w", err)
		}
		rt.closers = append(rt.closers, func() {
			_ = client.Disconnect(context.Background())
		})
		store := revocation.NewMongoStore(
			client.Database(srv.MongoDatabase).Collection(srv.MongoCollection),
			cfg.Revocation.TombstoneTTL,
		)
		if err := store.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("mongo indexes: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", srv.StoreBackend)
	}
}

func openRedisStore(ctx context.Context, rt *runtime, opts *redis.Options, cfg goGuard.Config) (revocation.Store, error) {
	rdb := redis.NewClient(opts)
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })

	store := revocation.NewRedisStore(rdb, cfg.Revocation.Prefix, cfg.Revocation.TombstoneTTL)
	if err := store.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	return store, nil
}

func openResolver(ctx context.Context, rt *runtime, srv config.Server, logger *slog.Logger) (identity.Resolver, error) {
	switch strings.ToLower(srv.IdentityBackend) {
	case config.BackendMemory:
		dir := identity.NewDirectory()
		for subject, role := range srv.Users {
			dir.Put(identity.Identity{SubjectID: subject, Role: role})
		}
		logger.Debug("seeded identity directory", "users", len(srv.Users))
		return dir, nil

	case config.BackendPostgres:
		pool, err := identity.NewPool(ctx, srv.PostgresDSN)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		return identity.NewPostgresResolver(pool, srv.PostgresTable)

	default:
		return nil, fmt.Errorf("unknown identity backend %q", srv.IdentityBackend)
	}
}
