// Package bootstrap wires configuration into running components.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/the-alphabet-cartel/ash-nlp/internal/api"
	"github.com/the-alphabet-cartel/ash-nlp/internal/config"
	"github.com/the-alphabet-cartel/ash-nlp/internal/database"
	"github.com/the-alphabet-cartel/ash-nlp/internal/engine"
	"github.com/the-alphabet-cartel/ash-nlp/internal/logger"
	"github.com/the-alphabet-cartel/ash-nlp/internal/publisher"
	"github.com/the-alphabet-cartel/ash-nlp/internal/storage"
	"github.com/the-alphabet-cartel/ash-nlp/internal/telemetry"
)

const migrateTimeout = 10 * time.Second

// HTTPComponents holds everything the httpd entrypoint runs.
type HTTPComponents struct {
	DB        *sqlx.DB
	Engine    *engine.Engine
	Server    *api.Server
	Alerts    *publisher.AlertPublisher
	Telemetry *telemetry.Provider
}

// NewHTTPComponents builds the engine, sinks, and HTTP server from config.
func NewHTTPComponents(configPath string, cfg *config.Config, log logger.Logger) (*HTTPComponents, error) {
	tp := telemetry.NewProvider()

	ensemble, err := BuildEnsemble(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("build ensemble: %w", err)
	}

	snap, err := SnapshotFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	eng := engine.New(ensemble, log, tp)
	eng.Reload(snap)
	probeClassifiers(cfg, log)

	comps := &HTTPComponents{Engine: eng, Telemetry: tp}

	var history api.HistoryStore
	if cfg.Database.DSN != "" {
		db, err := database.Connect(database.Config{
			Driver:          cfg.Database.Driver,
			DSN:             cfg.Database.DSN,
			MaxOpenConns:    cfg.Database.MaxConnections,
			MaxIdleConns:    cfg.Database.MaxIdleConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Std(),
		})
		if err != nil {
			return nil, fmt.Errorf("setup database: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), migrateTimeout)
		defer cancel()
		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
		comps.DB = db
		history = database.NewHistoryRepository(db)
		log.Info("history store ready", logger.String("driver", cfg.Database.Driver))
	} else {
		log.Warn("no database configured, history and feedback disabled")
	}

	var audit api.AuditSink
	if cfg.Elasticsearch.Enabled {
		client, err := storage.NewClient(cfg.Elasticsearch.URL, cfg.Elasticsearch.Username, cfg.Elasticsearch.Password)
		if err != nil {
			return nil, fmt.Errorf("setup elasticsearch: %w", err)
		}
		audit = storage.NewAuditIndexer(client, cfg.Elasticsearch.Index)
		log.Info("audit indexer ready", logger.String("index", cfg.Elasticsearch.Index))
	}

	var alerts api.AlertSink
	if cfg.Redis.Enabled {
		client := publisher.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB)
		pub := publisher.New(client, cfg.Redis.Channel, cfg.Redis.MinLevel, log)
		comps.Alerts = pub
		alerts = pub
		log.Info("alert publisher ready",
			logger.String("channel", cfg.Redis.Channel),
			logger.String("min_level", string(cfg.Redis.MinLevel)))
	}

	reloader := &configReloader{path: configPath, engine: eng, tp: tp, log: log}
	handler := api.NewHandler(eng, reloader, history, audit, alerts, log)
	comps.Server = api.NewServer(handler, api.ServerConfig{
		Port:      cfg.Service.Port,
		Debug:     cfg.Service.Debug,
		JWTSecret: cfg.Auth.JWTSecret,
	}, tp, log)

	return comps, nil
}

// Close releases held connections.
func (c *HTTPComponents) Close() {
	if c.DB != nil {
		_ = c.DB.Close()
	}
	if c.Alerts != nil {
		_ = c.Alerts.Close()
	}
}

// configReloader re-reads the config file and swaps the engine snapshot.
// A failed reload leaves the running snapshot untouched.
type configReloader struct {
	path   string
	engine *engine.Engine
	tp     *telemetry.Provider
	log    logger.Logger
}

func (r *configReloader) Reload(_ context.Context) error {
	cfg, err := config.Load(r.path)
	if err != nil {
		r.recordFailure(err)
		return err
	}
	snap, err := SnapshotFromConfig(cfg)
	if err != nil {
		r.recordFailure(err)
		return err
	}
	r.engine.Reload(snap)
	return nil
}

func (r *configReloader) recordFailure(err error) {
	r.log.Error("configuration reload failed, keeping active snapshot", logger.Error(err))
	if r.tp != nil {
		r.tp.Metrics.SnapshotReloads.WithLabelValues("failure").Inc()
	}
}
