// Package storage defines the active-listing projection store shared by
// every backend.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ActiveListing is one listing believed to be currently purchasable.
type ActiveListing struct {
	ListingId   string `json:"listingId" csv:"listing_id"`
	NftContract string `json:"nftContract" csv:"nft_contract"`
	TokenId     string `json:"tokenId" csv:"token_id"`
	Seller      string `json:"seller" csv:"seller"`
	PriceWei    string `json:"priceWei" csv:"price_wei"`
}

func (a *ActiveListing) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// UnmarshalActiveListing parses a stored record. Records without a listing
// id are rejected.
func UnmarshalActiveListing(data []byte) (*ActiveListing, error) {
	a := &ActiveListing{}
	if err := json.Unmarshal(data, a); err != nil {
		return nil, err
	}
	if a.ListingId == "" {
		return nil, errors.New("record has no listingId")
	}
	return a, nil
}

// Namespace scopes every persisted key to one marketplace deployment.
type Namespace struct {
	ChainId         uint64
	ContractAddress string
}

func NewNamespace(chainId uint64, contractAddress string) Namespace {
	return Namespace{
		ChainId:         chainId,
		ContractAddress: strings.ToLower(contractAddress),
	}
}

// String is "<chainId>:<address>".
func (n Namespace) String() string {
	return fmt.Sprintf("%d:%s", n.ChainId, strings.ToLower(n.ContractAddress))
}

func (n Namespace) prefix() string {
	return n.String() + ":idx"
}

func (n Namespace) CursorKey() string {
	return n.prefix() + ":lastBlock"
}

func (n Namespace) ActiveIdsKey() string {
	return n.prefix() + ":activeIds"
}

func (n Namespace) ListingKey(listingId string) string {
	return n.prefix() + ":listing:" + listingId
}

func (n Namespace) LockKey() string {
	return n.prefix() + ":lock"
}

// ErrStorageUnavailable matches every backend fault via errors.Is.
var ErrStorageUnavailable = errors.New("storage unavailable")

type StorageError struct {
	Backend string
	Op      string
	Err     error
}

func NewStorageError(backend string, op string, err error) *StorageError {
	return &StorageError{Backend: backend, Op: op, Err: err}
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

// ListingStore persists the cursor, the active listing set and the sync lock
// for a single namespace. Every error returned matches ErrStorageUnavailable.
type ListingStore interface {
	// AcquireLock atomically creates the lock if absent or expired. It returns
	// true only when this call created it.
	AcquireLock(ctx context.Context, ttl time.Duration) (bool, error)
	// ReleaseLock deletes the lock unconditionally.
	ReleaseLock(ctx context.Context) error

	// GetCursor returns 0 when no cursor is stored.
	GetCursor(ctx context.Context) (uint64, error)
	SetCursor(ctx context.Context, blockNumber uint64) error
	DeleteCursor(ctx context.Context) error

	// UpsertListing writes the record and its set membership as one unit.
	UpsertListing(ctx context.Context, listing *ActiveListing) error
	// RemoveListing deletes the record and its set membership. Unknown ids are a no-op.
	RemoveListing(ctx context.Context, listingId string) error
	// ListActiveListings returns every tracked listing. Ids whose record is
	// missing or unreadable are skipped.
	ListActiveListings(ctx context.Context) ([]*ActiveListing, error)
	// ClearListings removes every record and empties the id set.
	ClearListings(ctx context.Context) error

	Close() error
}
