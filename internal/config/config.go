package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

const ENV_PREFIX = "MARKETPLACE_INDEXER"

type StoreBackend string

const (
	StoreBackend_Redis    StoreBackend = "redis"
	StoreBackend_Postgres StoreBackend = "postgres"
	StoreBackend_Sqlite   StoreBackend = "sqlite"
	StoreBackend_LevelDB  StoreBackend = "leveldb"
)

var validStoreBackends = []StoreBackend{
	StoreBackend_Redis,
	StoreBackend_Postgres,
	StoreBackend_Sqlite,
	StoreBackend_LevelDB,
}

func ParseStoreBackend(s string) (StoreBackend, error) {
	b := StoreBackend(strings.ToLower(strings.TrimSpace(s)))
	if slices.Contains(validStoreBackends, b) {
		return b, nil
	}
	return "", fmt.Errorf("unsupported store backend '%s'", s)
}

// Flag and config key names. Viper keys are the snake_case form, see KebabToSnakeCase.
const (
	Debug   = "debug"
	ChainId = "chain-id"

	MarketplaceAddress = "marketplace.address"
	EthereumRpcUrl     = "ethereum.rpc-url"

	IndexerConfirmations       = "indexer.confirmations"
	IndexerReorgBacktrack      = "indexer.reorg-backtrack"
	IndexerMaxBlockSpan        = "indexer.max-block-span"
	IndexerMinBlockSpan        = "indexer.min-block-span"
	IndexerDeployBlock         = "indexer.deploy-block"
	IndexerLockTTLSeconds      = "indexer.lock-ttl-seconds"
	IndexerRememberSpan        = "indexer.remember-span"
	IndexerSyncIntervalSeconds = "indexer.sync-interval-seconds"

	StoreBackendKey = "store.backend"
	RedisUrl        = "redis.url"

	DatabaseHost       = "database.host"
	DatabasePort       = "database.port"
	DatabaseUser       = "database.user"
	DatabasePassword   = "database.password"
	DatabaseDbName     = "database.db_name"
	DatabaseSchemaName = "database.schema_name"
	DatabaseSSLMode    = "database.ssl_mode"

	SqlitePath  = "sqlite.path"
	LevelDBPath = "leveldb.path"

	RpcHttpPort   = "rpc.http-port"
	RpcAdminToken = "rpc.admin-token"

	PrometheusEnabled = "prometheus.enabled"
	PrometheusPort    = "prometheus.port"

	DataDogStatsdEnabled  = "datadog.statsd.enabled"
	DataDogStatsdUrl      = "datadog.statsd.url"
	DataDogTracingEnabled = "datadog.tracing.enabled"
)

type EthereumRpcConfig struct {
	RpcUrl string
}

// Host returns the host portion of the RPC url. Only used for diagnostics.
func (e EthereumRpcConfig) Host() string {
	u, err := url.Parse(e.RpcUrl)
	if err != nil || u.Host == "" {
		return e.RpcUrl
	}
	return u.Host
}

type IndexerConfig struct {
	MarketplaceAddress string
	Confirmations      uint64
	ReorgBacktrack     uint64
	MaxBlockSpan       uint64
	MinBlockSpan       uint64
	DeployBlock        uint64
	LockTTL            time.Duration
	RememberSpan       bool
	SyncInterval       time.Duration
}

type StoreConfig struct {
	Backend StoreBackend
}

type RedisConfig struct {
	Url string
}

type DatabaseConfig struct {
	Host       string
	Port       int
	User       string
	Password   string
	DbName     string
	SchemaName string
	SSLMode    string
}

type SqliteConfig struct {
	Path string
}

type LevelDBConfig struct {
	Path string
}

type RpcConfig struct {
	HttpPort   int
	// AdminToken gates the admin routes. Empty rejects every admin request.
	AdminToken string
}

type PrometheusConfig struct {
	Enabled bool
	Port    int
}

type DataDogConfig struct {
	StatsdConfig struct {
		Enabled bool
		Url     string
	}
	TracingEnabled bool
}

type Config struct {
	Debug             bool
	ChainId           uint64
	EthereumRpcConfig EthereumRpcConfig
	IndexerConfig     IndexerConfig
	StoreConfig       StoreConfig
	RedisConfig       RedisConfig
	DatabaseConfig    DatabaseConfig
	SqliteConfig      SqliteConfig
	LevelDBConfig     LevelDBConfig
	RpcConfig         RpcConfig
	PrometheusConfig  PrometheusConfig
	DataDogConfig     DataDogConfig
}

func normalizeFlagName(name string) string {
	return KebabToSnakeCase(name)
}

// KebabToSnakeCase turns "indexer.max-block-span" into "indexer.max_block_span".
func KebabToSnakeCase(str string) string {
	notSnake := regexp.MustCompile(`[-]`)
	return notSnake.ReplaceAllString(str, "_")
}

// NewConfig snapshots the bound flags and environment into a Config. It is
// meant to be called once at process start.
func NewConfig() *Config {
	backend, err := ParseStoreBackend(viper.GetString(normalizeFlagName(StoreBackendKey)))
	if err != nil {
		backend = StoreBackend(viper.GetString(normalizeFlagName(StoreBackendKey)))
	}

	c := &Config{
		Debug:   viper.GetBool(normalizeFlagName(Debug)),
		ChainId: viper.GetUint64(normalizeFlagName(ChainId)),

		EthereumRpcConfig: EthereumRpcConfig{
			RpcUrl: viper.GetString(normalizeFlagName(EthereumRpcUrl)),
		},

		IndexerConfig: IndexerConfig{
			MarketplaceAddress: strings.ToLower(viper.GetString(normalizeFlagName(MarketplaceAddress))),
			Confirmations:      viper.GetUint64(normalizeFlagName(IndexerConfirmations)),
			ReorgBacktrack:     viper.GetUint64(normalizeFlagName(IndexerReorgBacktrack)),
			MaxBlockSpan:       viper.GetUint64(normalizeFlagName(IndexerMaxBlockSpan)),
			MinBlockSpan:       viper.GetUint64(normalizeFlagName(IndexerMinBlockSpan)),
			DeployBlock:        viper.GetUint64(normalizeFlagName(IndexerDeployBlock)),
			LockTTL:            time.Duration(viper.GetInt(normalizeFlagName(IndexerLockTTLSeconds))) * time.Second,
			RememberSpan:       viper.GetBool(normalizeFlagName(IndexerRememberSpan)),
			SyncInterval:       time.Duration(viper.GetInt(normalizeFlagName(IndexerSyncIntervalSeconds))) * time.Second,
		},

		StoreConfig: StoreConfig{
			Backend: backend,
		},

		RedisConfig: RedisConfig{
			Url: viper.GetString(normalizeFlagName(RedisUrl)),
		},

		DatabaseConfig: DatabaseConfig{
			Host:       viper.GetString(normalizeFlagName(DatabaseHost)),
			Port:       viper.GetInt(normalizeFlagName(DatabasePort)),
			User:       viper.GetString(normalizeFlagName(DatabaseUser)),
			Password:   viper.GetString(normalizeFlagName(DatabasePassword)),
			DbName:     viper.GetString(normalizeFlagName(DatabaseDbName)),
			SchemaName: viper.GetString(normalizeFlagName(DatabaseSchemaName)),
			SSLMode:    viper.GetString(normalizeFlagName(DatabaseSSLMode)),
		},

		SqliteConfig: SqliteConfig{
			Path: viper.GetString(normalizeFlagName(SqlitePath)),
		},

		LevelDBConfig: LevelDBConfig{
			Path: viper.GetString(normalizeFlagName(LevelDBPath)),
		},

		RpcConfig: RpcConfig{
			HttpPort:   viper.GetInt(normalizeFlagName(RpcHttpPort)),
			AdminToken: viper.GetString(normalizeFlagName(RpcAdminToken)),
		},

		PrometheusConfig: PrometheusConfig{
			Enabled: viper.GetBool(normalizeFlagName(PrometheusEnabled)),
			Port:    viper.GetInt(normalizeFlagName(PrometheusPort)),
		},
	}
	c.DataDogConfig.StatsdConfig.Enabled = viper.GetBool(normalizeFlagName(DataDogStatsdEnabled))
	c.DataDogConfig.StatsdConfig.Url = viper.GetString(normalizeFlagName(DataDogStatsdUrl))
	c.DataDogConfig.TracingEnabled = viper.GetBool(normalizeFlagName(DataDogTracingEnabled))

	return c
}

// Validate checks the settings every command needs. Backend-specific settings
// are validated when the store is opened.
func (c *Config) Validate() error {
	if c.EthereumRpcConfig.RpcUrl == "" {
		return fmt.Errorf("%s is required", EthereumRpcUrl)
	}
	if !common.IsHexAddress(c.IndexerConfig.MarketplaceAddress) {
		return fmt.Errorf("%s must be a hex address, got '%s'", MarketplaceAddress, c.IndexerConfig.MarketplaceAddress)
	}
	ic := c.IndexerConfig
	if ic.MinBlockSpan == 0 {
		return fmt.Errorf("%s must be greater than 0", IndexerMinBlockSpan)
	}
	if ic.MaxBlockSpan < ic.MinBlockSpan {
		return fmt.Errorf("%s (%d) must be >= %s (%d)", IndexerMaxBlockSpan, ic.MaxBlockSpan, IndexerMinBlockSpan, ic.MinBlockSpan)
	}
	if ic.LockTTL <= 0 {
		return errors.New(IndexerLockTTLSeconds + " must be greater than 0")
	}
	if _, err := ParseStoreBackend(string(c.StoreConfig.Backend)); err != nil {
		return err
	}
	return nil
}

// GetNamespace is the (chain id, marketplace address) pair every persisted key is scoped by.
func (c *Config) GetNamespace() (uint64, string) {
	return c.ChainId, strings.ToLower(c.IndexerConfig.MarketplaceAddress)
}
