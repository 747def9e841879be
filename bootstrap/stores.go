package bootstrap

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/nexastudio/creditmeter/adapters/catalog"
	"github.com/nexastudio/creditmeter/adapters/memory"
	"github.com/nexastudio/creditmeter/adapters/postgres"
	"github.com/nexastudio/creditmeter/adapters/sqlite"
	"github.com/nexastudio/creditmeter/config"
	"github.com/nexastudio/creditmeter/ports"
)

// Stores groups the persistence ports for one database driver.
type Stores struct {
	Usage  ports.UsageStore
	Orgs   ports.OrganizationStore
	Users  ports.UserStore
	Events ports.EventDefinitionStore
	Plans  ports.PlanDefinitionStore

	close func() error
}

// Close releases the underlying database.
func (s *Stores) Close() error {
	if s.close == nil {
		return nil
	}
	return s.close()
}

// OpenStores opens the stores selected by cfg.Driver. SQLite schemas are
// always migrated; PostgreSQL only when AutoMigrate is set.
func OpenStores(cfg config.DatabaseConfig, logger zerolog.Logger) (*Stores, error) {
	switch cfg.Driver {
	case config.DriverMemory:
		return &Stores{
			Usage:  memory.NewUsageStore(),
			Orgs:   memory.NewOrganizationStore(),
			Users:  memory.NewUserStore(),
			Events: memory.NewEventDefinitionStore(),
			Plans:  memory.NewPlanDefinitionStore(),
		}, nil

	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Str("dsn", cfg.DSN).Msg("sqlite database initialized")
		return &Stores{
			Usage:  sqlite.NewUsageStore(db),
			Orgs:   sqlite.NewOrganizationStore(db),
			Users:  sqlite.NewUserStore(db),
			Events: sqlite.NewEventDefinitionStore(db),
			Plans:  sqlite.NewPlanDefinitionStore(db),
			close:  db.Close,
		}, nil

	case config.DriverPostgres:
		db, err := postgres.Open(cfg.DSN, postgres.PoolConfig{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		}, logger)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("get sql.DB: %w", err)
		}
		if cfg.AutoMigrate {
			if err := migrateSQL(sqlDB, logger); err != nil {
				sqlDB.Close()
				return nil, err
			}
		}
		logger.Info().Msg("postgres database initialized")
		return &Stores{
			Usage:  postgres.NewUsageStore(db),
			Orgs:   postgres.NewOrganizationStore(db),
			Users:  postgres.NewUserStore(db),
			Events: postgres.NewEventDefinitionStore(db),
			Plans:  postgres.NewPlanDefinitionStore(db),
			close:  sqlDB.Close,
		}, nil
	}

	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// Migrate applies schema migrations for the configured driver.
func Migrate(cfg config.DatabaseConfig, logger zerolog.Logger) error {
	switch cfg.Driver {
	case config.DriverMemory:
		logger.Info().Msg("memory driver has no schema")
		return nil
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.DSN)
		if err != nil {
			return err
		}
		defer db.Close()
		return db.Migrate()
	case config.DriverPostgres:
		return migratePostgres(cfg, logger)
	}
	return fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

func migratePostgres(cfg config.DatabaseConfig, logger zerolog.Logger) error {
	db, err := postgres.Open(cfg.DSN, postgres.PoolConfig{MaxOpenConns: 1}, logger)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	return migrateSQL(sqlDB, logger)
}

func migrateSQL(db *sql.DB, logger zerolog.Logger) error {
	m, err := postgres.NewMigrator(db, logger)
	if err != nil {
		return err
	}
	return m.Up()
}

// SeedCatalogs writes the catalog files named in cfg (or the built-in
// defaults) into the stores.
func SeedCatalogs(ctx context.Context, stores *Stores, cfg config.CatalogConfig) (events, plans int, err error) {
	defs, err := catalog.LoadEventsFile(cfg.EventsFile)
	if err != nil {
		return 0, 0, err
	}
	ps, err := catalog.LoadPlansFile(cfg.PlansFile)
	if err != nil {
		return 0, 0, err
	}
	return catalog.Seed(ctx, stores.Events, stores.Plans, defs, ps)
}

// seedIfEmpty seeds the catalogs when the event catalog has no entries.
func seedIfEmpty(ctx context.Context, stores *Stores, cfg config.CatalogConfig, logger zerolog.Logger) error {
	existing, err := stores.Events.List(ctx)
	if err != nil {
		return fmt.Errorf("list event definitions: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	events, plans, err := SeedCatalogs(ctx, stores, cfg)
	if err != nil {
		return fmt.Errorf("seed catalogs: %w", err)
	}
	logger.Info().Int("events", events).Int("plans", plans).Msg("seeded empty catalogs")
	return nil
}
