package _202610011200_activeListings

import (
	"database/sql"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"gorm.io/gorm"
)

type Migration struct {
}

// Up uses SQL accepted by both postgres and sqlite.
func (m *Migration) Up(db *sql.DB, grm *gorm.DB, cfg *config.Config) error {
	queries := []string{
		`create table if not exists active_listings (
			namespace varchar not null,
			listing_id varchar not null,
			nft_contract varchar not null,
			token_id varchar not null,
			seller varchar not null,
			price_wei varchar not null,
			primary key (namespace, listing_id)
		)`,
		`create table if not exists sync_cursors (
			namespace varchar not null primary key,
			last_block bigint not null
		)`,
		`create table if not exists sync_locks (
			namespace varchar not null primary key,
			holder varchar not null,
			expires_at_ms bigint not null
		)`,
	}
	for _, query := range queries {
		if err := grm.Exec(query).Error; err != nil {
			return err
		}
	}
	return nil
}

func (m *Migration) GetName() string {
	return "202610011200_activeListings"
}
