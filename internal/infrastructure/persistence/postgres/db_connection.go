// Package postgres provides the relational KeyRepository for keytrust.
// It manages the connection lifecycle (pgx pool for PostgreSQL, or an embedded
// SQLite file for single-node deployments) and exposes a gorm handle over either.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/turtacn/keytrust/internal/config"
	"github.com/turtacn/keytrust/internal/domain/models"
	"github.com/turtacn/keytrust/pkg/errors"
	"github.com/turtacn/keytrust/pkg/logger"
	pgdriver "gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// singleActiveIndex makes the store reject a second active key regardless of
// how many service instances race to rotate.
const singleActiveIndex = `CREATE UNIQUE INDEX IF NOT EXISTS ux_signing_keys_single_active ON signing_keys (is_active) WHERE is_active = true`

// DBConnection manages the database connection lifecycle.
type DBConnection struct {
	pool   *pgxpool.Pool
	sqlDB  *sql.DB
	gormDB *gorm.DB
	config *config.DatabaseConfig
	logger logger.Logger
}

// NewDBConnection opens the configured database and performs an initial health check.
//
// Parameters:
//   - ctx: Context for connection timeout control
//   - cfg: Database configuration including driver, credentials, and pool settings
//   - log: Logger instance for connection lifecycle events
//
// Returns:
//   - *DBConnection: Initialized connection manager
//   - error: Connection establishment error if any
func NewDBConnection(ctx context.Context, cfg *config.DatabaseConfig, log logger.Logger) (*DBConnection, error) {
	if cfg == nil {
		return nil, errors.ErrInvalidRequest("database config is required")
	}
	log = log.WithComponent("DBConnection")

	gormCfg := &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}

	db := &DBConnection{config: cfg, logger: log}
	switch cfg.Driver {
	case "sqlite":
		log.Info(ctx, "Opening SQLite key store", logger.String("path", cfg.SQLitePath))
		gdb, err := gorm.Open(sqlite.Open(cfg.SQLitePath), gormCfg)
		if err != nil {
			return nil, errors.StoreUnavailable("open", err)
		}
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, errors.StoreUnavailable("open", err)
		}
		// SQLite serializes writers; a single connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
		db.gormDB, db.sqlDB = gdb, sqlDB

	default:
		log.Info(ctx, "Initializing PostgreSQL connection pool",
			logger.String("host", cfg.Host),
			logger.Int("port", cfg.Port),
			logger.String("database", cfg.Database),
			logger.Int("max_conns", int(cfg.MaxConns)),
		)
		poolConfig, err := pgxpool.ParseConfig(cfg.GetDSN())
		if err != nil {
			return nil, errors.StoreUnavailable("parse_dsn", err)
		}
		if cfg.MaxConns > 0 {
			poolConfig.MaxConns = cfg.MaxConns
		}
		poolConfig.MinConns = cfg.MinConns
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime

		pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
		if err != nil {
			return nil, errors.StoreUnavailable("connect", err)
		}
		sqlDB := stdlib.OpenDBFromPool(pool)
		gdb, err := gorm.Open(pgdriver.New(pgdriver.Config{Conn: sqlDB}), gormCfg)
		if err != nil {
			pool.Close()
			return nil, errors.StoreUnavailable("open", err)
		}
		db.pool, db.sqlDB, db.gormDB = pool, sqlDB, gdb
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// DB returns the gorm handle used by repositories.
func (db *DBConnection) DB() *gorm.DB {
	return db.gormDB
}

// Migrate creates the signing_keys table and the single-active partial index.
func (db *DBConnection) Migrate(ctx context.Context) error {
	gdb := db.gormDB.WithContext(ctx)
	if err := gdb.AutoMigrate(&models.SigningKey{}); err != nil {
		return fmt.Errorf("migrate signing_keys: %w", err)
	}
	if err := gdb.Exec(singleActiveIndex).Error; err != nil {
		return fmt.Errorf("create single active index: %w", err)
	}
	db.logger.Info(ctx, "Schema migrated", logger.String("table", models.SigningKey{}.TableName()))
	return nil
}

// Ping verifies database connectivity and responsiveness.
func (db *DBConnection) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	startTime := time.Now()
	if err := db.sqlDB.PingContext(pingCtx); err != nil {
		db.logger.Error(ctx, "Database ping failed", err)
		return errors.StoreUnavailable("ping", err)
	}

	if latency := time.Since(startTime); latency > 100*time.Millisecond {
		db.logger.Warn(ctx, "High database latency detected",
			logger.Int64("latency_ms", latency.Milliseconds()),
			logger.Int("threshold_ms", 100),
		)
	}
	return nil
}

// HealthCheck returns connectivity plus pool statistics when running on PostgreSQL.
func (db *DBConnection) HealthCheck(ctx context.Context) (map[string]interface{}, error) {
	if err := db.Ping(ctx); err != nil {
		return nil, err
	}

	healthInfo := map[string]interface{}{"status": "healthy", "driver": db.config.Driver}
	if db.pool != nil {
		stats := db.pool.Stat()
		healthInfo["total_connections"] = stats.TotalConns()
		healthInfo["idle_connections"] = stats.IdleConns()
		healthInfo["acquired_connections"] = stats.AcquiredConns()
		healthInfo["max_connections"] = stats.MaxConns()
		if stats.IdleConns() == 0 && stats.TotalConns() >= stats.MaxConns() {
			healthInfo["warning"] = "connection_pool_near_limit"
		}
	}
	return healthInfo, nil
}

// Close releases every connection.
func (db *DBConnection) Close() {
	if db.sqlDB != nil {
		_ = db.sqlDB.Close()
	}
	if db.pool != nil {
		db.pool.Close()
	}
	db.logger.Info(context.Background(), "Database connection closed")
}

//Personal.AI order the ending
