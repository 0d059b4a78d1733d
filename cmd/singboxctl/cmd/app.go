package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/singbox-orbit/node-agent/internal/appconfig"
	"github.com/singbox-orbit/node-agent/internal/backupstore"
	"github.com/singbox-orbit/node-agent/internal/configstore"
	"github.com/singbox-orbit/node-agent/internal/database"
	"github.com/singbox-orbit/node-agent/internal/database/postgres"
	"github.com/singbox-orbit/node-agent/internal/diffengine"
	"github.com/singbox-orbit/node-agent/internal/infrastructure/cache"
	"github.com/singbox-orbit/node-agent/internal/lockcoord"
	"github.com/singbox-orbit/node-agent/internal/logring"
	"github.com/singbox-orbit/node-agent/internal/metrics"
	"github.com/singbox-orbit/node-agent/internal/prober"
	"github.com/singbox-orbit/node-agent/internal/supervisor"
	"github.com/singbox-orbit/node-agent/internal/validator"
	"github.com/singbox-orbit/node-agent/pkg/logger"

	"log/slog"
)

// app bundles the components singboxctl's subcommands drive. Every
// subcommand builds one via newApp and tears it down with app.Close, the
// same lifecycle the teacher's server command gives its Postgres pool.
type app struct {
	cfg        *appconfig.Config
	logger     *slog.Logger
	registry   *metrics.Registry
	validator  *validator.Validator
	logRing    *logring.Buffer
	supervisor *supervisor.Supervisor
	configs    *configstore.Store
	backups    *backupstore.Store
	diff       *diffengine.Engine
	prober     *prober.Prober

	pgPool   *postgres.PostgresPool
	sqlDB    interface{ Close() error }
	redisCli *redis.Client
}

// newApp loads configuration and wires every component the CLI needs,
// branching on the deployment profile and storage backend the way
// SPEC_FULL.md §6 describes. Callers must defer app.Close(ctx).
func newApp(ctx context.Context) (*app, error) {
	cfg, err := appconfig.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("singboxctl: load config: %w", err)
	}

	log := logger.FromContext(ctx, logger.NewLogger(logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
		Output: "stdout",
	}))

	registry := metrics.NewMetricsRegistry(cfg.Metrics.Namespace)

	a := &app{cfg: cfg, logger: log, registry: registry}

	index, err := a.buildBackupIndex(ctx)
	if err != nil {
		return nil, err
	}

	backups, err := backupstore.New(backupDir, backupRetention, index, log, registry.Backup())
	if err != nil {
		return nil, fmt.Errorf("singboxctl: backup store: %w", err)
	}
	a.backups = backups

	v := validator.New(
		singboxBinaryPath,
		singboxWorkDir,
		validateTimeout,
		validator.CacheConfig{
			Enabled: cfg.ValidatorCache.Enabled,
			Size:    cfg.ValidatorCache.Size,
			TTL:     cfg.ValidatorCache.TTL,
		},
		log,
		registry.Validator(),
		registry.Infra().Cache,
	)
	a.validator = v

	logRing, err := logring.New(logring.Config{Path: logRingPath}, log)
	if err != nil {
		return nil, fmt.Errorf("singboxctl: log ring: %w", err)
	}
	a.logRing = logRing

	sup := supervisor.New(supervisor.Options{
		BinaryPath: singboxBinaryPath,
		ConfigPath: activeConfigPath,
		WorkingDir: singboxWorkDir,
		Restart:    supervisor.RestartPolicy{AutoRestart: true},
	}, v, logRing, log, registry.Supervisor())
	a.supervisor = sup

	var distLock configstore.DistLock
	if cfg.UsesRedis() {
		a.redisCli = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		distLock = lockcoord.New(a.redisCli, "singboxctl:configstore", &lockcoord.Config{
			TTL:            cfg.Lock.TTL,
			AcquireTimeout: cfg.Lock.AcquireTimeout,
		}, log, registry.Infra().Lock)
	}

	store := configstore.New(configstore.Options{
		Path:              activeConfigPath,
		BackupsEnabled:    true,
		AutoReloadEnabled: true,
		LockTimeout:       cfg.Lock.AcquireTimeout,
	}, backups, v, sup, distLock, log, registry.ConfigStore())
	a.configs = store

	a.diff = diffengine.New(store, singboxBinaryPath, registry.Backup())

	var probeCache cache.Cache
	if cfg.UsesRedis() {
		if rc, err := cache.NewRedisCache(&cache.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: 10,
		}, log); err == nil {
			probeCache = rc
		} else {
			log.Warn("prober cache disabled, redis unavailable", "error", err)
		}
	}
	a.prober = prober.New(store, nil, probeCache, registry.Prober(), registry.Retry())

	return a, nil
}

// buildBackupIndex picks the BackupIndex for the configured deployment
// profile and storage backend, running migrations against a fresh
// connection when the standard profile points at Postgres or SQLite.
func (a *app) buildBackupIndex(ctx context.Context) (backupstore.BackupIndex, error) {
	cfg := a.cfg
	if cfg.IsLite() || cfg.StorageBackend == appconfig.BackendFilesystem {
		return backupstore.NoopIndex{}, nil
	}

	switch cfg.StorageBackend {
	case appconfig.BackendPostgres:
		pgCfg, err := parsePostgresDSN(cfg.Database.DSN)
		if err != nil {
			return nil, fmt.Errorf("singboxctl: parse database.dsn: %w", err)
		}
		pgCfg.MaxConns = cfg.Database.MaxConns
		pgCfg.MinConns = cfg.Database.MinConns
		pgCfg.ConnectTimeout = cfg.Database.ConnectTimeout

		pool := postgres.NewPostgresPool(pgCfg, a.logger)
		if err := pool.Connect(ctx); err != nil {
			return nil, fmt.Errorf("singboxctl: connect postgres: %w", err)
		}
		a.pgPool = pool

		if err := database.RunMigrations(ctx, pool, a.logger); err != nil {
			a.logger.Warn("backup index migrations failed, continuing without index", "error", err)
			return backupstore.NoopIndex{}, nil
		}

		db, err := database.OpenPostgresSQLDB(pool)
		if err != nil {
			return nil, fmt.Errorf("singboxctl: open sql.DB: %w", err)
		}
		a.sqlDB = db
		return backupstore.NewSQLIndex(db, backupstore.DialectPostgres), nil

	case appconfig.BackendSQLite:
		db, err := database.OpenSQLite(cfg.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("singboxctl: open sqlite: %w", err)
		}
		if err := database.RunSQLiteMigrations(ctx, db, a.logger); err != nil {
			return nil, fmt.Errorf("singboxctl: sqlite migrations: %w", err)
		}
		a.sqlDB = db
		return backupstore.NewSQLIndex(db, backupstore.DialectSQLite), nil

	default:
		return backupstore.NoopIndex{}, nil
	}
}

// Close releases every external connection newApp opened.
func (a *app) Close(ctx context.Context) {
	if a.logRing != nil {
		_ = a.logRing.Close()
	}
	if a.sqlDB != nil {
		_ = a.sqlDB.Close()
	}
	if a.pgPool != nil {
		_ = a.pgPool.Close()
	}
	if a.redisCli != nil {
		_ = a.redisCli.Close()
	}
}

// parsePostgresDSN adapts a postgres:// URL, the shape appconfig.Database.DSN
// holds, into the Host/Port/User/Password/Database fields
// postgres.PostgresConfig wants; the agent only ever sees one DSN string
// end to end (from appconfig), while PostgresPool was grounded on the
// teacher's field-per-env-var shape, so this is the seam between them.
func parsePostgresDSN(dsn string) (*postgres.PostgresConfig, error) {
	cfg := postgres.DefaultConfig()
	if dsn == "" {
		return cfg, nil
	}

	u, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid dsn: %w", err)
	}

	if host := u.Hostname(); host != "" {
		cfg.Host = host
	}
	if portStr := u.Port(); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			cfg.Port = port
		}
	}
	if len(u.Path) > 1 {
		cfg.Database = u.Path[1:]
	}
	if u.User != nil {
		cfg.User = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			cfg.Password = pw
		}
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		cfg.SSLMode = mode
	}

	return cfg, nil
}

const (
	backupDir         = "/var/lib/singboxctl/backups"
	backupRetention   = 30
	activeConfigPath  = "/etc/singbox/config.json"
	singboxBinaryPath = "sing-box"
	singboxWorkDir    = "/etc/singbox"
	logRingPath       = "/var/lib/singboxctl/sing-box.log"
	validateTimeout   = 10 * time.Second
)
