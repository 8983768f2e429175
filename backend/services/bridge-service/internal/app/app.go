package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	libdb "biotune/backend/libs/db"
	libredis "biotune/backend/libs/redis"
	"biotune/backend/services/bridge-service/internal/config"
	"biotune/backend/services/bridge-service/internal/device"
	httpserver "biotune/backend/services/bridge-service/internal/http"
	"biotune/backend/services/bridge-service/internal/http/handlers"
	"biotune/backend/services/bridge-service/internal/ingest"
	"biotune/backend/services/bridge-service/internal/metrics"
	"biotune/backend/services/bridge-service/internal/session"
	"biotune/backend/services/bridge-service/internal/sink"
	"biotune/backend/services/bridge-service/internal/ws"
)

// App wires bridge-service dependencies.
type App struct {
	server      *httpserver.Server
	hub         *ws.Hub
	controller  *session.Controller
	link        device.Link
	db          *sql.DB
	redisClient *redis.Client
	sinkCloser  io.Closer
	logger      *zap.Logger
}

// Options overrides the pieces tests replace.
type Options struct {
	Registerer prometheus.Registerer
	Link       device.Link
	Sink       sink.Sink
}

// New constructs the application graph.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	return NewWithOptions(ctx, cfg, logger, Options{})
}

// NewWithOptions is New with injected collaborators; zero fields use the
// configured defaults.
func NewWithOptions(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	a := &App{logger: logger}

	reg := opts.Registerer
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := metrics.New(cfg.Metrics.Namespace, reg)

	a.link = opts.Link
	if a.link == nil {
		a.link = openLink(ctx, cfg.Serial, logger)
	}

	store := opts.Sink
	if store == nil {
		var err error
		store, err = a.buildSink(ctx, cfg.Sink)
		if err != nil {
			a.Close()
			return nil, err
		}
	}
	logger.Info("upload sink ready", zap.String("sink", store.Name()))

	ingestLogger := logger.Named("ingest")
	sinkLogger := logger.Named("sink")
	spawn := func(sessionID string) session.Runner {
		dispatcher := sink.NewDispatcher(store, cfg.Sink.QueueSize, cfg.Sink.UploadTimeout, sinkLogger, m)
		return ingest.NewLoop(a.link, dispatcher, cfg.Ingest, ingestLogger, m, sessionID)
	}
	a.controller = session.New(a.link, spawn, cfg.Session, logger.Named("session"), m)

	a.hub = ws.NewHub(logger.Named("ws"), m)
	a.controller.OnChange(a.hub.OnSessionEvent)
	wsServer := ws.NewServer(a.hub, a.controller, cfg.HTTP.AllowedOrigin, 0, logger.Named("ws"))

	sessionHandlers := handlers.NewSessionHandlers(a.controller, logger)
	routes := httpserver.Routes{
		Start:   sessionHandlers.Start,
		Stop:    sessionHandlers.Stop,
		Status:  sessionHandlers.Status,
		Health:  handlers.NewHealthHandler(),
		Metrics: metrics.Handler(),
		WS:      wsServer.HandleWS,
	}
	router := httpserver.NewRouter(routes, cfg.HTTP.AllowedOrigin, logger.Named("http"))
	a.server = httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return a, nil
}

// openLink opens the serial device, falling back to the absent link so the
// control surface stays up without hardware.
func openLink(ctx context.Context, cfg device.Config, logger *zap.Logger) device.Link {
	if cfg.Disabled {
		logger.Warn("serial disabled, running without a device")
		return device.Absent()
	}
	link, err := device.Open(ctx, cfg, logger.Named("device"))
	if err != nil {
		logger.Warn("serial device unavailable, running without a device",
			zap.String("port", cfg.Port),
			zap.Error(err))
		return device.Absent()
	}
	return link
}

func (a *App) buildSink(ctx context.Context, cfg sink.Config) (sink.Sink, error) {
	switch cfg.Driver {
	case sink.DriverFirestore:
		fs, err := sink.NewFirestoreSink(ctx, cfg.Firestore)
		if err != nil {
			return nil, fmt.Errorf("firestore sink: %w", err)
		}
		a.sinkCloser = fs
		return fs, nil
	case sink.DriverRedis:
		client, err := libredis.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, fmt.Errorf("redis sink: %w", err)
		}
		a.redisClient = client
		return sink.NewRedisSink(client, cfg.Redis.KeyPrefix, cfg.Redis.TTL), nil
	case sink.DriverPostgres:
		db, err := libdb.NewPostgresDB(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		a.db = db
		pg := sink.NewPostgresSink(db, cfg.Postgres.Table)
		if err := pg.EnsureTable(ctx); err != nil {
			return nil, fmt.Errorf("postgres sink: %w", err)
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown sink driver %q", cfg.Driver)
	}
}

// Controller exposes the session controller.
func (a *App) Controller() *session.Controller {
	return a.controller
}

// Run serves HTTP until ctx is done, then ends any active session.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)

	err := a.server.Run(ctx)

	if _, stopErr := a.controller.Stop(context.Background()); stopErr != nil && !errors.Is(stopErr, session.ErrNotRunning) {
		a.logger.Warn("failed to stop session on shutdown", zap.Error(stopErr))
	}
	return err
}

// Close releases resources.
func (a *App) Close() {
	if a.link != nil {
		if serialLink, ok := a.link.(*device.SerialLink); ok && serialLink.Dropped() > 0 {
			a.logger.Info("serial lines dropped on full buffer", zap.Uint64("count", serialLink.Dropped()))
		}
		if err := a.link.Close(); err != nil {
			a.logger.Warn("failed to close serial link", zap.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.sinkCloser != nil {
		if err := a.sinkCloser.Close(); err != nil {
			a.logger.Warn("failed to close sink", zap.Error(err))
		}
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", zap.Error(err))
		}
	}
}
