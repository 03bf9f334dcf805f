// Package storeFactory opens the configured ListingStore backend.
package storeFactory

import (
	"context"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/Layr-Labs/marketplace-indexer/internal/sqlite"
	"github.com/Layr-Labs/marketplace-indexer/pkg/postgres"
	"github.com/Layr-Labs/marketplace-indexer/pkg/postgres/migrations"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage/levelDbListingStore"
	pgStorage "github.com/Layr-Labs/marketplace-indexer/pkg/storage/postgres"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage/redisListingStore"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const pingTimeout = 5 * time.Second

// NewListingStoreFromConfig opens the backend named by cfg.StoreConfig.Backend,
// scoped to the configured chain id and marketplace address. SQL backends are
// migrated before the store is returned.
func NewListingStoreFromConfig(cfg *config.Config, l *zap.Logger) (storage.ListingStore, error) {
	ns := storage.NewNamespace(cfg.GetNamespace())

	backend, err := config.ParseStoreBackend(string(cfg.StoreConfig.Backend))
	if err != nil {
		return nil, err
	}
	l.Sugar().Infow("Opening listing store",
		zap.String("backend", string(backend)),
		zap.String("namespace", ns.String()),
	)

	switch backend {
	case config.StoreBackend_Redis:
		return openRedis(cfg, ns, l)
	case config.StoreBackend_Postgres:
		return openPostgres(cfg, ns, l)
	case config.StoreBackend_Sqlite:
		return openSqlite(cfg, ns, l)
	case config.StoreBackend_LevelDB:
		return openLevelDb(cfg, ns, l)
	}
	return nil, errors.Errorf("unsupported store backend '%s'", backend)
}

func openRedis(cfg *config.Config, ns storage.Namespace, l *zap.Logger) (storage.ListingStore, error) {
	if cfg.RedisConfig.Url == "" {
		return nil, errors.Errorf("%s is required for the redis backend", config.RedisUrl)
	}
	client, err := redisListingStore.NewRedisClientFromUrl(cfg.RedisConfig.Url)
	if err != nil {
		return nil, errors.Wrap(err, "invalid redis url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(storage.ErrStorageUnavailable, err.Error())
	}
	return redisListingStore.NewRedisListingStore(client, ns, l), nil
}

func openPostgres(cfg *config.Config, ns storage.Namespace, l *zap.Logger) (storage.ListingStore, error) {
	pg, err := postgres.NewPostgres(postgres.PostgresConfigFromDbConfig(&cfg.DatabaseConfig))
	if err != nil {
		return nil, errors.Wrap(err, "failed to setup postgres connection")
	}
	grm, err := postgres.NewGormFromPostgresConnection(pg.Db)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create gorm instance")
	}
	return migrateAndOpen(grm, cfg, ns, l)
}

func openSqlite(cfg *config.Config, ns storage.Namespace, l *zap.Logger) (storage.ListingStore, error) {
	dialector := sqlite.NewInMemorySqlite(l)
	if cfg.SqliteConfig.Path != "" {
		dialector = sqlite.NewSqlite(cfg.SqliteConfig.Path, l)
	} else {
		l.Sugar().Warnw("No sqlite path configured, listings will not survive a restart")
	}
	grm, err := sqlite.NewGormSqliteFromSqlite(dialector)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open sqlite")
	}
	return migrateAndOpen(grm, cfg, ns, l)
}

func migrateAndOpen(grm *gorm.DB, cfg *config.Config, ns storage.Namespace, l *zap.Logger) (storage.ListingStore, error) {
	sqlDb, err := grm.DB()
	if err != nil {
		return nil, err
	}
	if err := migrations.NewMigrator(sqlDb, grm, l, cfg).MigrateAll(); err != nil {
		_ = sqlDb.Close()
		return nil, errors.Wrap(err, "failed to migrate")
	}
	return pgStorage.NewPostgresListingStore(grm, ns, l), nil
}

func openLevelDb(cfg *config.Config, ns storage.Namespace, l *zap.Logger) (storage.ListingStore, error) {
	if cfg.LevelDBConfig.Path == "" {
		l.Sugar().Warnw("No leveldb path configured, listings will not survive a restart")
		db, err := levelDbListingStore.OpenInMemoryLevelDb()
		if err != nil {
			return nil, err
		}
		return levelDbListingStore.NewLevelDbListingStore(db, ns, l), nil
	}
	db, err := levelDbListingStore.OpenLevelDb(cfg.LevelDBConfig.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open leveldb at '%s'", cfg.LevelDBConfig.Path)
	}
	return levelDbListingStore.NewLevelDbListingStore(db, ns, l), nil
}
