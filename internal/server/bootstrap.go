package server

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/higai/site-admin/handlers"
	"github.com/higai/site-admin/internal/admins"
	"github.com/higai/site-admin/internal/config"
	"github.com/higai/site-admin/internal/content/service"
	"github.com/higai/site-admin/internal/database"
	"github.com/higai/site-admin/internal/media"
	"github.com/higai/site-admin/internal/oidc"
	"github.com/higai/site-admin/internal/sessions"
	"github.com/higai/site-admin/internal/storage"
	"github.com/higai/site-admin/internal/tokens"
	"github.com/higai/site-admin/pkg/logger"
	"github.com/higai/site-admin/pkg/middleware"
)

// Bootstrap connects the configured backends and returns the wired
// dependencies plus a cleanup func. Optional backends that fail are logged
// and left out; a configured MongoDB that cannot be reached is fatal.
func Bootstrap(ctx context.Context, cfg *config.Config) (Deps, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	d := Deps{Config: cfg, Checks: map[string]Check{}}
	svcOpts := []service.Option{service.WithOpTimeout(cfg.Server.StoreOpTimeout)}

	if cfg.Redis.Enabled() {
		rc := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s): %v", cfg.Redis.Addr(), err)
			_ = rc.Close()
		} else {
			logger.Infof("connected to Redis at %s", cfg.Redis.Addr())
			d.Redis = rc
			sessions.SetBlacklistClient(rc)
			closers = append(closers, func() { sessions.SetBlacklistClient(nil); _ = rc.Close() })
			d.Checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		}
	}

	var adminRepo admins.Repository = admins.NewMemoryRepository()
	var sessionRepo sessions.Repository = sessions.NewMemoryRepository()
	if d.Redis != nil {
		sessionRepo = sessions.NewRedisRepository(d.Redis, "")
	}

	if cfg.MongoDB.Enabled() {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, database.DefaultRetry)
		if err != nil {
			cleanup()
			return Deps{}, nil, err
		}
		closers = append(closers, func() { _ = client.Disconnect(context.Background()) })
		db := client.Database(cfg.MongoDB.Database)
		d.Content = service.NewMongoService(db, cfg.MongoDB.FeedPollInterval, svcOpts...)
		d.Checks["mongodb"] = func(ctx context.Context) error { return client.Ping(ctx, nil) }

		ar := admins.NewMongoRepository(db.Collection("admins"))
		if err := ar.EnsureIndexes(ctx); err != nil {
			logger.Warnf("admins: ensure indexes: %v", err)
		}
		adminRepo = ar
		if d.Redis == nil {
			sr := sessions.NewMongoRepository(db.Collection("sessions"))
			if err := sr.EnsureIndexes(ctx); err != nil {
				logger.Warnf("sessions: ensure indexes: %v", err)
			}
			sessionRepo = sr
		}
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warnf("MONGODB_URI not set; content is kept in memory and lost on restart")
		d.Content = service.NewMemoryService(svcOpts...)
	}
	d.Admins = admins.NewService(adminRepo)
	d.Sessions = sessions.NewService(sessionRepo)

	if cfg.Admin.Email != "" {
		a, err := d.Admins.EnsureAdmin(ctx, cfg.Admin.Email, cfg.Admin.Name, cfg.Admin.Password)
		if err != nil {
			cleanup()
			return Deps{}, nil, fmt.Errorf("ensure admin account: %w", err)
		}
		logger.Infof("admin account %s ready", a.Email)
	}

	encOpts := []media.Option{media.WithMaxBytes(cfg.Media.MaxInlineBytes)}
	if mc := storage.LoadMinIOConfig(); mc.Enabled() {
		st, err := storage.NewMinIOStorage(ctx, mc)
		if err != nil {
			logger.Warnf("media archive disabled: %v", err)
		} else {
			d.Linker = st
			if cfg.Media.ArchiveOriginals {
				encOpts = append(encOpts, media.WithArchiver(st))
			}
			logger.Infof("media archive bucket %q on %s", mc.Bucket, mc.Endpoint)
		}
	}
	d.Encoder = media.NewEncoder(encOpts...)

	d.Issuer = tokens.NewIssuer(cfg.JWT.Secret, cfg.JWT.Issuer)
	chain := middleware.Chain{d.Issuer}
	switch {
	case cfg.Keycloak.Enabled():
		vctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		ver, err := oidc.NewVerifier(vctx, cfg.Keycloak.Issuer(), cfg.Keycloak.ClientID)
		cancel()
		if err != nil {
			logger.Warnf("failed to initialize OIDC verifier: %v", err)
			d.Checks["oidc"] = func(context.Context) error { return err }
			break
		}
		chain = append(chain, ver)
		d.SSO = handlers.NewKeycloakSSO(cfg.Keycloak, ver)
	case cfg.Keycloak.AllowInsecure:
		chain = append(chain, oidc.NewInsecureVerifier())
	}
	d.Verifier = chain

	return d, cleanup, nil
}
