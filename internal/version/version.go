package version

// Populated at build time with -ldflags "-X github.com/Layr-Labs/marketplace-indexer/internal/version.Version=..."
var (
	Version = "development"
	Commit  = "unknown"
)

func GetVersion() string {
	return Version
}

func GetCommit() string {
	return Commit
}
