// Package levelDbListingStore keeps the listing projection in an embedded
// LevelDB database. Set membership is one key per id under
// <namespace>:idx:activeIds:<id>.
package levelDbListingStore

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/Layr-Labs/marketplace-indexer/pkg/storage"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lvlStorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

const backendName = "leveldb"

type lockRecord struct {
	Holder      string `json:"holder"`
	ExpiresAtMs int64  `json:"expiresAtMs"`
}

type LevelDbListingStore struct {
	db        *leveldb.DB
	namespace storage.Namespace
	logger    *zap.Logger
	now       func() time.Time
}

// OpenLevelDb opens or creates the database directory at path.
func OpenLevelDb(path string) (*leveldb.DB, error) {
	return leveldb.OpenFile(path, nil)
}

// OpenInMemoryLevelDb is used by tests and one-shot commands.
func OpenInMemoryLevelDb() (*leveldb.DB, error) {
	return leveldb.Open(lvlStorage.NewMemStorage(), nil)
}

func NewLevelDbListingStore(db *leveldb.DB, ns storage.Namespace, l *zap.Logger) *LevelDbListingStore {
	return &LevelDbListingStore{
		db:        db,
		namespace: ns,
		logger:    l,
		now:       time.Now,
	}
}

func (s *LevelDbListingStore) wrap(op string, err error) error {
	s.logger.Sugar().Errorw("LevelDB operation failed",
		zap.String("op", op),
		zap.String("namespace", s.namespace.String()),
		zap.Error(err),
	)
	return storage.NewStorageError(backendName, op, err)
}

func (s *LevelDbListingStore) memberPrefix() []byte {
	return []byte(s.namespace.ActiveIdsKey() + ":")
}

func (s *LevelDbListingStore) memberKey(listingId string) []byte {
	return append(s.memberPrefix(), listingId...)
}

// AcquireLock reads and writes the lock inside a leveldb transaction, which
// excludes every other writer until it commits.
func (s *LevelDbListingStore) AcquireLock(ctx context.Context, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, s.wrap("AcquireLock", err)
	}
	key := []byte(s.namespace.LockKey())
	now := s.now()

	tr, err := s.db.OpenTransaction()
	if err != nil {
		return false, s.wrap("AcquireLock", err)
	}

	existing, err := tr.Get(key, nil)
	switch {
	case err == nil:
		current := &lockRecord{}
		if jsonErr := json.Unmarshal(existing, current); jsonErr == nil && current.ExpiresAtMs > now.UnixMilli() {
			tr.Discard()
			return false, nil
		}
	case errors.Is(err, leveldb.ErrNotFound):
	default:
		tr.Discard()
		return false, s.wrap("AcquireLock", err)
	}

	record := &lockRecord{
		Holder:      uuid.New().String(),
		ExpiresAtMs: now.Add(ttl).UnixMilli(),
	}
	data, _ := json.Marshal(record)
	if err := tr.Put(key, data, nil); err != nil {
		tr.Discard()
		return false, s.wrap("AcquireLock", err)
	}
	if err := tr.Commit(); err != nil {
		return false, s.wrap("AcquireLock", err)
	}
	s.logger.Sugar().Debugw("Acquired sync lock", zap.String("holder", record.Holder))
	return true, nil
}

func (s *LevelDbListingStore) ReleaseLock(ctx context.Context) error {
	if err := s.db.Delete([]byte(s.namespace.LockKey()), nil); err != nil {
		return s.wrap("ReleaseLock", err)
	}
	return nil
}

func (s *LevelDbListingStore) GetCursor(ctx context.Context) (uint64, error) {
	val, err := s.db.Get([]byte(s.namespace.CursorKey()), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, s.wrap("GetCursor", err)
	}
	cursor, err := strconv.ParseUint(string(val), 10, 64)
	if err != nil {
		s.logger.Sugar().Warnw("Stored cursor is not a number, treating as unset",
			zap.String("value", string(val)),
		)
		return 0, nil
	}
	return cursor, nil
}

func (s *LevelDbListingStore) SetCursor(ctx context.Context, blockNumber uint64) error {
	err := s.db.Put([]byte(s.namespace.CursorKey()), []byte(strconv.FormatUint(blockNumber, 10)), nil)
	if err != nil {
		return s.wrap("SetCursor", err)
	}
	return nil
}

func (s *LevelDbListingStore) DeleteCursor(ctx context.Context) error {
	if err := s.db.Delete([]byte(s.namespace.CursorKey()), nil); err != nil {
		return s.wrap("DeleteCursor", err)
	}
	return nil
}

func (s *LevelDbListingStore) UpsertListing(ctx context.Context, listing *storage.ActiveListing) error {
	data, err := listing.Marshal()
	if err != nil {
		return s.wrap("UpsertListing", err)
	}
	batch := new(leveldb.Batch)
	batch.Put([]byte(s.namespace.ListingKey(listing.ListingId)), data)
	batch.Put(s.memberKey(listing.ListingId), []byte{})
	if err := s.db.Write(batch, nil); err != nil {
		return s.wrap("UpsertListing", err)
	}
	return nil
}

func (s *LevelDbListingStore) RemoveListing(ctx context.Context, listingId string) error {
	batch := new(leveldb.Batch)
	batch.Delete([]byte(s.namespace.ListingKey(listingId)))
	batch.Delete(s.memberKey(listingId))
	if err := s.db.Write(batch, nil); err != nil {
		return s.wrap("RemoveListing", err)
	}
	return nil
}

func (s *LevelDbListingStore) activeIds() ([]string, error) {
	prefix := s.memberPrefix()
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	ids := make([]string, 0)
	for iter.Next() {
		ids = append(ids, string(iter.Key()[len(prefix):]))
	}
	return ids, iter.Error()
}

func (s *LevelDbListingStore) ListActiveListings(ctx context.Context) ([]*storage.ActiveListing, error) {
	ids, err := s.activeIds()
	if err != nil {
		return nil, s.wrap("ListActiveListings", err)
	}

	listings := make([]*storage.ActiveListing, 0, len(ids))
	for _, id := range ids {
		raw, err := s.db.Get([]byte(s.namespace.ListingKey(id)), nil)
		if errors.Is(err, leveldb.ErrNotFound) {
			s.logger.Sugar().Debugw("Active id has no record", zap.String("listingId", id))
			continue
		}
		if err != nil {
			return nil, s.wrap("ListActiveListings", err)
		}
		listing, err := storage.UnmarshalActiveListing(raw)
		if err != nil {
			s.logger.Sugar().Debugw("Skipping unreadable listing record",
				zap.String("listingId", id),
				zap.Error(err),
			)
			continue
		}
		listings = append(listings, listing)
	}
	return listings, nil
}

func (s *LevelDbListingStore) ClearListings(ctx context.Context) error {
	ids, err := s.activeIds()
	if err != nil {
		return s.wrap("ClearListings", err)
	}
	batch := new(leveldb.Batch)
	for _, id := range ids {
		batch.Delete([]byte(s.namespace.ListingKey(id)))
		batch.Delete(s.memberKey(id))
	}
	if err := s.db.Write(batch, nil); err != nil {
		return s.wrap("ClearListings", err)
	}
	s.logger.Sugar().Infow("Cleared listings", zap.Int("count", len(ids)))
	return nil
}

func (s *LevelDbListingStore) Close() error {
	err := s.db.Close()
	if errors.Is(err, leveldb.ErrClosed) {
		return nil
	}
	return err
}
