package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/fisiotrack/fisiotrack/internal/config"
	"github.com/fisiotrack/fisiotrack/internal/domain/dashboard"
	"github.com/fisiotrack/fisiotrack/internal/domain/gallery"
	"github.com/fisiotrack/fisiotrack/internal/domain/gate"
	"github.com/fisiotrack/fisiotrack/internal/domain/identity"
	"github.com/fisiotrack/fisiotrack/internal/domain/profile"
	"github.com/fisiotrack/fisiotrack/internal/domain/progress"
	"github.com/fisiotrack/fisiotrack/internal/domain/provisioning"
	"github.com/fisiotrack/fisiotrack/internal/domain/record"
	"github.com/fisiotrack/fisiotrack/internal/domain/report"
	"github.com/fisiotrack/fisiotrack/internal/domain/session"
	"github.com/fisiotrack/fisiotrack/internal/platform/auth"
	"github.com/fisiotrack/fisiotrack/internal/platform/db"
	"github.com/fisiotrack/fisiotrack/internal/platform/docstore"
	"github.com/fisiotrack/fisiotrack/internal/platform/middleware"
	"github.com/fisiotrack/fisiotrack/internal/platform/notification"
	"github.com/fisiotrack/fisiotrack/internal/platform/pubsub"
	"github.com/fisiotrack/fisiotrack/internal/platform/querycache"
	"github.com/fisiotrack/fisiotrack/internal/platform/summarizer"
	"github.com/fisiotrack/fisiotrack/internal/platform/telemetry"
	"github.com/fisiotrack/fisiotrack/internal/platform/websocket"
)

const (
	apiPrefix     = "/api/v1"
	eventsChannel = "fisiotrack:changes"
	bodyLimit     = "1M"
	reqTimeout    = 30 * time.Second
)

// watched are the collections relayed to socket subscribers and followed by
// the query cache.
var watched = []string{
	docstore.Usuarios, docstore.Expedientes, docstore.Sesiones, docstore.Avances, docstore.Galerias,
}

// stores holds one backend's repositories.
type stores struct {
	accounts  identity.AccountRepository
	resets    identity.ResetTokenRepository
	profiles  profile.Repository
	records   record.Repository
	sessions  session.Repository
	progress  progress.Repository
	galleries gallery.Repository
	tx        db.Transactor
	health    db.Pinger
	close     func()
}

func openStores(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*stores, error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		store, err := docstore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("database", cfg.MongoDatabase).Msg("connected to mongo")
		return &stores{
			accounts:  identity.NewAccountRepoMongo(store),
			resets:    identity.NewResetTokenRepoMongo(store),
			profiles:  profile.NewRepoMongo(store),
			records:   record.NewRepoMongo(store),
			sessions:  session.NewRepoMongo(store),
			progress:  progress.NewRepoMongo(store),
			galleries: gallery.NewRepoMongo(store),
			tx:        db.SequentialTransactor{},
			health:    store,
			close: func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = store.Close(ctx)
			},
		}, nil
	default:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to database")
		return &stores{
			accounts:  identity.NewAccountRepoPG(pool),
			resets:    identity.NewResetTokenRepoPG(pool),
			profiles:  profile.NewRepoPG(pool),
			records:   record.NewRepoPG(pool),
			sessions:  session.NewRepoPG(pool),
			progress:  progress.NewRepoPG(pool),
			galleries: gallery.NewRepoPG(pool),
			tx:        db.NewPgTransactor(pool),
			health:    db.PoolPinger{Pool: pool},
			close:     pool.Close,
		}, nil
	}
}

// infra is the change bus, query cache store and token revocation list.
// With REDIS_URL they are shared between instances; otherwise they live in
// process memory.
type infra struct {
	bus     pubsub.Bus
	cache   querycache.Store
	revoked auth.RevocationStore
	close   func()
}

func openInfra(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*infra, error) {
	if cfg.RedisURL == "" {
		revoked := auth.NewMemoryRevocationStore()
		return &infra{
			bus:     pubsub.NewMemoryBus(),
			cache:   querycache.NewMemoryStore(),
			revoked: revoked,
			close:   revoked.Close,
		}, nil
	}

	opts, err := goredis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := goredis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	bus, err := pubsub.NewRedisBus(ctx, rdb, eventsChannel, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}
	logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return &infra{
		bus:     bus,
		cache:   querycache.NewRedisStore(rdb),
		revoked: auth.NewRedisRevocationStore(rdb),
		close: func() {
			_ = bus.Close()
			_ = rdb.Close()
		},
	}, nil
}

// app is a configured server plus what must be released on shutdown.
type app struct {
	echo    *echo.Echo
	cleanup []func()
}

func (a *app) Close() {
	for i := len(a.cleanup) - 1; i >= 0; i-- {
		a.cleanup[i]()
	}
}

// newApp builds the HTTP server. With st or inf nil the API answers 503 on
// every route while health and metrics keep working.
func newApp(cfg *config.Config, st *stores, inf *infra, metrics *telemetry.Metrics, logger zerolog.Logger) (*app, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderXRequestID},
	}))

	e.GET("/health", func(c echo.Context) error {
		status := "ok"
		if st == nil {
			status = "degraded"
		}
		return c.JSON(http.StatusOK, map[string]string{"status": status, "backend": cfg.StoreBackend})
	})
	var pinger db.Pinger
	if st != nil {
		pinger = st.health
	}
	e.GET("/health/db", db.HealthHandler(cfg.StoreBackend, pinger))
	e.GET("/metrics", metrics.Handler())

	rateLimit := middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}
	if rateLimit.RequestsPerSecond <= 0 {
		rateLimit = middleware.DefaultRateLimitConfig()
	}
	v1 := e.Group(apiPrefix,
		middleware.RateLimit(rateLimit),
		middleware.BodyLimit(bodyLimit),
		middleware.RequestTimeout(reqTimeout, apiPrefix+"/session/ws"),
	)

	a := &app{echo: e}
	if st == nil || inf == nil {
		v1.Use(middleware.Degraded(cfg.MissingServices()))
		return a, nil
	}

	signer := auth.NewSigner([]byte(cfg.AuthSigningKey), cfg.AuthIssuer, cfg.AuthTokenTTL)
	var sender notification.EmailSender = notification.NewLogSender(logger)
	if cfg.MailEnabled() {
		smtp, err := notification.NewSMTPSender(notification.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
		if err != nil {
			return nil, err
		}
		sender = smtp
	}
	mailer := notification.NewMailer(sender, notification.NewTemplateEngine())

	cache := querycache.New(inf.cache, cfg.QueryCacheTTL, logger)
	notifier := querycache.NewNotifier(cache, inf.bus, logger)
	a.cleanup = append(a.cleanup, cache.Follow(inf.bus, watched...))

	identities := identity.NewService(st.accounts, st.resets, signer, inf.revoked, mailer,
		identity.Options{ResetURL: cfg.PasswordResetURL, ResetTTL: cfg.PasswordResetTTL}, logger)
	profiles := profile.NewService(st.profiles, cache, notifier, identities, cfg.PhoneRegion, logger)
	provisioner := provisioning.NewService(identities, profiles, metrics, logger)
	records := record.NewService(st.records, profiles, cache, notifier, logger)
	sessions := session.NewService(st.sessions, records, st.tx, cache, notifier, metrics, logger)
	summ := summarizer.New(summarizer.Config{
		URL:     cfg.SummaryAPIURL,
		APIKey:  cfg.SummaryAPIKey,
		Model:   cfg.SummaryModel,
		Timeout: cfg.SummaryTimeout,
	})
	avances := progress.NewService(st.progress, records, st.tx, summ, cache, notifier, metrics, logger)
	galleries := gallery.NewService(st.galleries, profiles, cache, notifier, logger)
	panels := dashboard.NewService(records, sessions, avances, galleries, logger)
	reports := report.NewService(records, sessions, avances, logger)

	hub := websocket.NewHub()
	a.cleanup = append(a.cleanup, hub.Relay(inf.bus, watched...))
	connector := gate.NewConnector(profile.NewWatcher(st.profiles, inf.bus, logger), signer, inf.revoked, logger)
	ws := websocket.NewHandler(hub, connector.NewSession, websocket.HandlerOptions{
		AllowedOrigins: cfg.CORSOrigins,
		Observer:       metrics,
		Logger:         logger,
	})

	anyCaller := v1.Group("", auth.OptionalJWTMiddleware(signer, inf.revoked))
	api := v1.Group("", auth.JWTMiddleware(signer, inf.revoked))

	identity.NewHandler(identities).RegisterRoutes(v1, api)
	provisioning.NewHandler(provisioner).RegisterRoutes(anyCaller)
	gate.NewHandler(profiles, ws.HandleConnect, logger).RegisterRoutes(anyCaller)
	profile.NewHandler(profiles).RegisterRoutes(api)
	record.NewHandler(records).RegisterRoutes(api)
	session.NewHandler(sessions).RegisterRoutes(api)
	progress.NewHandler(avances).RegisterRoutes(api)
	gallery.NewHandler(galleries).RegisterRoutes(api)
	dashboard.NewHandler(panels).RegisterRoutes(api)
	report.NewHandler(reports).RegisterRoutes(api)

	if !summ.Enabled() {
		logger.Warn().Msg("SUMMARY_API_URL not set, progress summaries answer 503")
	}
	return a, nil
}
