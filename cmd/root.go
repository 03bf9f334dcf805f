package cmd

import (
	"os"
	"strings"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "marketplace-indexer",
	Short: "Indexes active NFT marketplace listings from contract events",
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	initConfig(rootCmd)

	rootCmd.PersistentFlags().Bool(config.Debug, false, `"true" or "false"`)
	rootCmd.PersistentFlags().Uint64(config.ChainId, 11155111, `Chain id the marketplace is deployed on`)

	rootCmd.PersistentFlags().String(config.EthereumRpcUrl, "", `e.g. "http://<hostname>:8545"`)
	rootCmd.PersistentFlags().String(config.MarketplaceAddress, "", `Address of the marketplace contract`)

	rootCmd.PersistentFlags().Uint64(config.IndexerConfirmations, 12, `Blocks behind the head considered final`)
	rootCmd.PersistentFlags().Uint64(config.IndexerReorgBacktrack, 200, `Blocks re-scanned behind the cursor on every pass`)
	rootCmd.PersistentFlags().Uint64(config.IndexerMaxBlockSpan, 100, `Largest block range requested in one log query`)
	rootCmd.PersistentFlags().Uint64(config.IndexerMinBlockSpan, 10, `Smallest block range the span may shrink to`)
	rootCmd.PersistentFlags().Uint64(config.IndexerDeployBlock, 0, `Block the marketplace was deployed at, 0 if unknown`)
	rootCmd.PersistentFlags().Int(config.IndexerLockTTLSeconds, 60, `Lifetime of the sync lock in seconds`)
	rootCmd.PersistentFlags().Bool(config.IndexerRememberSpan, false, `Start each chunk with the last successful span instead of the maximum`)
	rootCmd.PersistentFlags().Int(config.IndexerSyncIntervalSeconds, 30, `Seconds between scheduled sync passes`)

	rootCmd.PersistentFlags().String(config.StoreBackendKey, string(config.StoreBackend_Redis), `Listing store backend (redis, postgres, sqlite, leveldb)`)
	rootCmd.PersistentFlags().String(config.RedisUrl, "", `e.g. "redis://localhost:6379/0"`)

	rootCmd.PersistentFlags().String(config.DatabaseHost, "localhost", `PostgreSQL host`)
	rootCmd.PersistentFlags().Int(config.DatabasePort, 5432, `PostgreSQL port`)
	rootCmd.PersistentFlags().String(config.DatabaseUser, "marketplace", `PostgreSQL username`)
	rootCmd.PersistentFlags().String(config.DatabasePassword, "", `PostgreSQL password`)
	rootCmd.PersistentFlags().String(config.DatabaseDbName, "marketplace_indexer", `PostgreSQL database name`)
	rootCmd.PersistentFlags().String(config.DatabaseSchemaName, "", `PostgreSQL schema name (default "public")`)
	rootCmd.PersistentFlags().String(config.DatabaseSSLMode, "disable", `PostgreSQL ssl mode (disable, require, verify-ca, verify-full)`)

	rootCmd.PersistentFlags().String(config.SqlitePath, "", `SQLite database file, in-memory when empty`)
	rootCmd.PersistentFlags().String(config.LevelDBPath, "", `LevelDB directory, in-memory when empty`)

	rootCmd.PersistentFlags().Int(config.RpcHttpPort, 7101, `http rpc port`)
	rootCmd.PersistentFlags().String(config.RpcAdminToken, "", `token required in the x-indexer-token header of admin routes; admin routes are disabled when empty`)

	rootCmd.PersistentFlags().Bool(config.DataDogStatsdEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().String(config.DataDogStatsdUrl, "", `e.g. "localhost:8125"`)
	rootCmd.PersistentFlags().Bool(config.DataDogTracingEnabled, false, `e.g. "true" or "false"`)

	rootCmd.PersistentFlags().Bool(config.PrometheusEnabled, false, `e.g. "true" or "false"`)
	rootCmd.PersistentFlags().Int(config.PrometheusPort, 2112, `The port to run the prometheus server on`)

	// setup sub commands
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rpcCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reindexCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(listingsCmd)
	rootCmd.AddCommand(runVersionCmd)

	// bind any subcommand flags
	syncCmd.Flags().Uint64(flagFrom, 0, `Start block, overrides the stored cursor`)
	syncCmd.Flags().Uint64(flagSpan, 0, `Initial block span for this pass`)

	reindexCmd.Flags().Uint64(flagFrom, 0, `Block to re-scan from (required)`)

	listingsCmd.Flags().String(flagSeller, "", `Only listings by this seller`)
	listingsCmd.Flags().String(flagNft, "", `Only listings for this NFT contract`)
	listingsCmd.Flags().String(flagMinEth, "", `Minimum price in ether, inclusive`)
	listingsCmd.Flags().String(flagMaxEth, "", `Maximum price in ether, inclusive`)
	listingsCmd.Flags().Int(flagLimit, 24, `Page size, clamped to [1, 60]`)
	listingsCmd.Flags().String(flagCursor, "", `Listing id returned as nextCursor by the previous page`)
	listingsCmd.Flags().String(flagFormat, outputFormatJson, `Output format (json, csv)`)

	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		key := config.KebabToSnakeCase(f.Name)
		viper.BindPFlag(key, f) //nolint:errcheck
		viper.BindEnv(key)      //nolint:errcheck
	})
}

func initConfig(cmd *cobra.Command) {
	viper.SetEnvPrefix(config.ENV_PREFIX)

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	viper.AutomaticEnv()
}
