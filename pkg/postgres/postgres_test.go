package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_PostgresConnectionString(t *testing.T) {
	t.Run("Should build a connection string with auth and schema", func(t *testing.T) {
		s, err := getPostgresConnectionString(&PostgresConfig{
			Host:       "localhost",
			Port:       5432,
			Username:   "indexer",
			Password:   "secret",
			DbName:     "listings",
			SchemaName: "public",
		})
		assert.Nil(t, err)
		assert.Equal(t, "host=localhost user=indexer password=secret dbname=listings port=5432 sslmode=disable TimeZone=UTC search_path=public", s)
	})
	t.Run("Should omit missing auth", func(t *testing.T) {
		s, err := getPostgresConnectionString(&PostgresConfig{
			Host:    "db",
			Port:    5432,
			DbName:  "listings",
			SSLMode: "require",
		})
		assert.Nil(t, err)
		assert.Equal(t, "host=db dbname=listings port=5432 sslmode=require TimeZone=UTC", s)
	})
	t.Run("Should reject an unknown ssl mode", func(t *testing.T) {
		_, err := getPostgresConnectionString(&PostgresConfig{SSLMode: "sometimes"})
		assert.NotNil(t, err)
	})
}
