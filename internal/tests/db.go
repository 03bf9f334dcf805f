package tests

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Layr-Labs/marketplace-indexer/internal/config"
	"github.com/google/uuid"
)

// GenerateTestDbName returns a database name that is unique per call.
func GenerateTestDbName() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("test_%s", strings.ReplaceAll(id.String(), "-", "")), nil
}

// GetDbConfigFromEnv reads postgres settings for integration tests. Host is
// empty when TEST_DB_HOST is unset.
func GetDbConfigFromEnv() *config.DatabaseConfig {
	port, _ := strconv.Atoi(os.Getenv("TEST_DB_PORT"))
	if port == 0 {
		port = 5432
	}
	return &config.DatabaseConfig{
		Host:     os.Getenv("TEST_DB_HOST"),
		Port:     port,
		User:     os.Getenv("TEST_DB_USER"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		SSLMode:  "disable",
	}
}
