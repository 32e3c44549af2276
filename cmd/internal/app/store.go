package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"frontdesk/cmd/internal/auth/credstore"
	"frontdesk/cmd/security/sealer"
)

// openCredentialStore builds the configured credential backend. The returned pool is non-nil
// only for the Postgres backend; the caller owns it.
func openCredentialStore(ctx context.Context, cfg Config, log *slog.Logger) (credstore.Store, *pgxpool.Pool, error) {
	sl, err := credentialSealer()
	if err != nil {
		return nil, nil, err
	}

	switch cfg.CredentialBackend {
	case BackendMemory:
		log.Info("credstore.memory")
		return credstore.NewMemoryStore(), nil, nil

	case BackendFile, "":
		path := cfg.CredentialFile
		if path == "" {
			if path, err = credstore.DefaultFilePath(); err != nil {
				return nil, nil, err
			}
		}
		opts := []credstore.FileOption{credstore.WithFileLogger(log)}
		if sl != nil {
			opts = append(opts, credstore.WithSealer(sl))
		}
		st, err := credstore.NewFileStore(path, opts...)
		if err != nil {
			return nil, nil, err
		}
		log.Info("credstore.file", "path", st.Path(), "sealed", sl != nil)
		return st, nil, nil

	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, nil, fmt.Errorf("%w: FRONTDESK_REDIS_URL is required for the redis backend", ErrConfig)
		}
		st, err := credstore.NewRedisStoreFromURL(ctx, cfg.RedisURL, cfg.RedisPrefix, cfg.CredentialNamespace)
		if err != nil {
			return nil, nil, err
		}
		log.Info("credstore.redis", "prefix", cfg.RedisPrefix, "namespace", cfg.CredentialNamespace, "sealed", sl != nil)
		return sealIfEnabled(st, sl), nil, nil

	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("%w: FRONTDESK_DATABASE_URL is required for the postgres backend", ErrConfig)
		}
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		st, err := credstore.NewPostgresStore(pool, credstore.WithNamespace(cfg.CredentialNamespace))
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := st.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		log.Info("credstore.postgres", "namespace", cfg.CredentialNamespace, "sealed", sl != nil)
		return sealIfEnabled(st, sl), pool, nil
	}

	return nil, nil, fmt.Errorf("%w: unknown credential backend %q", ErrConfig, cfg.CredentialBackend)
}

func sealIfEnabled(st credstore.Store, sl *sealer.Sealer) credstore.Store {
	if sl == nil {
		return st
	}
	return credstore.NewSealedStore(st, sl)
}
