// Package postgres keeps the listing projection in a SQL database through
// gorm. The same queries run against postgres and sqlite.
package postgres

import (
	"context"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/postgres/helpers"
	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type activeListingRow struct {
	Namespace   string `gorm:"primaryKey"`
	ListingId   string `gorm:"primaryKey"`
	NftContract string
	TokenId     string
	Seller      string
	PriceWei    string
}

func (activeListingRow) TableName() string {
	return "active_listings"
}

type syncCursorRow struct {
	Namespace string `gorm:"primaryKey"`
	LastBlock uint64
}

func (syncCursorRow) TableName() string {
	return "sync_cursors"
}

const acquireLockQuery = `
	insert into sync_locks (namespace, holder, expires_at_ms)
	values (?, ?, ?)
	on conflict (namespace) do update
		set holder = excluded.holder, expires_at_ms = excluded.expires_at_ms
	where sync_locks.expires_at_ms <= ?
`

type PostgresListingStore struct {
	Db        *gorm.DB
	Logger    *zap.Logger
	namespace storage.Namespace
	now       func() time.Time
}

func NewPostgresListingStore(db *gorm.DB, ns storage.Namespace, l *zap.Logger) *PostgresListingStore {
	return &PostgresListingStore{
		Db:        db,
		Logger:    l,
		namespace: ns,
		now:       time.Now,
	}
}

func (s *PostgresListingStore) backend() string {
	return s.Db.Dialector.Name()
}

func (s *PostgresListingStore) wrap(op string, err error) error {
	s.Logger.Sugar().Errorw("Database operation failed",
		zap.String("backend", s.backend()),
		zap.String("op", op),
		zap.String("namespace", s.namespace.String()),
		zap.Error(err),
	)
	return storage.NewStorageError(s.backend(), op, err)
}

// AcquireLock inserts the lock row, or takes over a row whose expiry has
// passed, in one statement. Exactly one affected row means we hold it.
func (s *PostgresListingStore) AcquireLock(ctx context.Context, ttl time.Duration) (bool, error) {
	now := s.now()
	holder := uuid.New().String()

	res := s.Db.WithContext(ctx).Exec(acquireLockQuery,
		s.namespace.String(),
		holder,
		now.Add(ttl).UnixMilli(),
		now.UnixMilli(),
	)
	if res.Error != nil {
		return false, s.wrap("AcquireLock", res.Error)
	}
	acquired := res.RowsAffected == 1
	if acquired {
		s.Logger.Sugar().Debugw("Acquired sync lock", zap.String("holder", holder))
	}
	return acquired, nil
}

func (s *PostgresListingStore) ReleaseLock(ctx context.Context) error {
	res := s.Db.WithContext(ctx).Exec(`delete from sync_locks where namespace = ?`, s.namespace.String())
	if res.Error != nil {
		return s.wrap("ReleaseLock", res.Error)
	}
	return nil
}

func (s *PostgresListingStore) GetCursor(ctx context.Context) (uint64, error) {
	var rows []syncCursorRow
	res := s.Db.WithContext(ctx).
		Where("namespace = ?", s.namespace.String()).
		Limit(1).
		Find(&rows)
	if res.Error != nil {
		return 0, s.wrap("GetCursor", res.Error)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].LastBlock, nil
}

func (s *PostgresListingStore) SetCursor(ctx context.Context, blockNumber uint64) error {
	row := &syncCursorRow{
		Namespace: s.namespace.String(),
		LastBlock: blockNumber,
	}
	res := s.Db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_block"}),
	}).Create(row)
	if res.Error != nil {
		return s.wrap("SetCursor", res.Error)
	}
	return nil
}

func (s *PostgresListingStore) DeleteCursor(ctx context.Context) error {
	res := s.Db.WithContext(ctx).
		Where("namespace = ?", s.namespace.String()).
		Delete(&syncCursorRow{})
	if res.Error != nil {
		return s.wrap("DeleteCursor", res.Error)
	}
	return nil
}

// UpsertListing writes the row keyed by (namespace, listing_id); the row is
// both the record and its set membership.
func (s *PostgresListingStore) UpsertListing(ctx context.Context, listing *storage.ActiveListing) error {
	row := &activeListingRow{
		Namespace:   s.namespace.String(),
		ListingId:   listing.ListingId,
		NftContract: listing.NftContract,
		TokenId:     listing.TokenId,
		Seller:      listing.Seller,
		PriceWei:    listing.PriceWei,
	}
	res := s.Db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "listing_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"nft_contract", "token_id", "seller", "price_wei"}),
	}).Create(row)
	if res.Error != nil {
		return s.wrap("UpsertListing", res.Error)
	}
	return nil
}

func (s *PostgresListingStore) RemoveListing(ctx context.Context, listingId string) error {
	res := s.Db.WithContext(ctx).
		Where("namespace = ? and listing_id = ?", s.namespace.String(), listingId).
		Delete(&activeListingRow{})
	if res.Error != nil {
		return s.wrap("RemoveListing", res.Error)
	}
	return nil
}

func (s *PostgresListingStore) ListActiveListings(ctx context.Context) ([]*storage.ActiveListing, error) {
	var rows []activeListingRow
	res := s.Db.WithContext(ctx).
		Where("namespace = ?", s.namespace.String()).
		Find(&rows)
	if res.Error != nil {
		return nil, s.wrap("ListActiveListings", res.Error)
	}

	listings := make([]*storage.ActiveListing, 0, len(rows))
	for _, row := range rows {
		if row.ListingId == "" {
			continue
		}
		listings = append(listings, &storage.ActiveListing{
			ListingId:   row.ListingId,
			NftContract: row.NftContract,
			TokenId:     row.TokenId,
			Seller:      row.Seller,
			PriceWei:    row.PriceWei,
		})
	}
	return listings, nil
}

func (s *PostgresListingStore) ClearListings(ctx context.Context) error {
	count, err := helpers.WrapTxAndCommit(func(tx *gorm.DB) (int64, error) {
		res := tx.Where("namespace = ?", s.namespace.String()).Delete(&activeListingRow{})
		return res.RowsAffected, res.Error
	}, s.Db.WithContext(ctx), nil)
	if err != nil {
		return s.wrap("ClearListings", err)
	}
	s.Logger.Sugar().Infow("Cleared listings", zap.Int64("count", count))
	return nil
}

func (s *PostgresListingStore) Close() error {
	sqlDb, err := s.Db.DB()
	if err != nil {
		return err
	}
	return sqlDb.Close()
}
