package migrations

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	_202610011200_activeListings "github.com/Layr-Labs/marketplace-indexer/pkg/postgres/migrations/202610011200_activeListings"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Migration interface {
	Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error
	GetName() string
}

// StoredMigration records an applied migration.
type StoredMigration struct {
	Name      string `gorm:"primaryKey"`
	CreatedAt time.Time
}

func (StoredMigration) TableName() string {
	return "migrations"
}

// GetMigrations returns every migration in the order it must be applied.
func GetMigrations() []Migration {
	return []Migration{
		&_202610011200_activeListings.Migration{},
	}
}

type Migrator struct {
	Db           *sql.DB
	GDb          *gorm.DB
	Logger       *zap.Logger
	globalConfig *config.Config
}

func NewMigrator(db *sql.DB, gDb *gorm.DB, l *zap.Logger, cfg *config.Config) *Migrator {
	return &Migrator{
		Db:           db,
		GDb:          gDb,
		Logger:       l,
		globalConfig: cfg,
	}
}

func (m *Migrator) MigrateAll() error {
	err := m.GDb.Exec(`create table if not exists migrations (
		name varchar not null primary key,
		created_at timestamp
	)`).Error
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range GetMigrations() {
		if err := m.Migrate(migration); err != nil {
			return err
		}
	}
	return nil
}

func (m *Migrator) Migrate(migration Migration) error {
	name := migration.GetName()

	var count int64
	if err := m.GDb.Model(&StoredMigration{}).Where("name = ?", name).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to look up migration '%s': %w", name, err)
	}
	if count > 0 {
		m.Logger.Sugar().Debugw("Migration already applied", zap.String("name", name))
		return nil
	}

	m.Logger.Sugar().Infow("Running migration", zap.String("name", name))
	if err := migration.Up(m.Db, m.GDb, m.globalConfig); err != nil {
		m.Logger.Sugar().Errorw("Failed to run migration", zap.String("name", name), zap.Error(err))
		return fmt.Errorf("failed to run migration '%s': %w", name, err)
	}

	if err := m.GDb.Create(&StoredMigration{Name: name, CreatedAt: time.Now().UTC()}).Error; err != nil {
		return fmt.Errorf("failed to record migration '%s': %w", name, err)
	}
	return nil
}
