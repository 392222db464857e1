package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Environment variables selecting the persistence backend.
const (
	// EnvSQLiteURL overrides the SQLite database path.
	EnvSQLiteURL = "WEAVEGRAPH_SQLITE_URL"
	// EnvPostgresURL supplies a PostgreSQL connection string; when set it
	// takes precedence over SQLite.
	EnvPostgresURL = "WEAVEGRAPH_POSTGRES_URL"
)

// DefaultSQLitePath is the fallback database file when no environment
// override is present.
const DefaultSQLitePath = "./weavegraph.db"

// LoadEnv loads .env files into the process environment. With no arguments
// it tries "./.env" and silently ignores its absence; named files must
// exist.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		return godotenv.Load()
	}
	return godotenv.Load(files...)
}

// SQLiteDSN resolves the SQLite database path: EnvSQLiteURL if set,
// otherwise DefaultSQLitePath.
func SQLiteDSN() string {
	if dsn := os.Getenv(EnvSQLiteURL); dsn != "" {
		return dsn
	}
	return DefaultSQLitePath
}

// PostgresDSN returns the PostgreSQL connection string and whether one is
// configured.
func PostgresDSN() (string, bool) {
	dsn := os.Getenv(EnvPostgresURL)
	return dsn, dsn != ""
}
