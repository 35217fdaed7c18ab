package pgstorage

import (
	"context"
	"os"
	"strconv"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/stdlib"
	"github.com/omnibridge/bridge-service/log"
	migrate "github.com/rubenv/sql-migrate"
)

var migrations = &migrate.MemoryMigrationSource{
	Migrations: []*migrate.Migration{
		{
			Id: "0001_initial",
			Up: []string{
				`CREATE SCHEMA IF NOT EXISTS sync`,
				`CREATE TABLE sync.cursor (
					chain_family VARCHAR(16) NOT NULL,
					chain_id     BIGINT NOT NULL,
					block_num    BIGINT NOT NULL,
					updated_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
					PRIMARY KEY (chain_family, chain_id)
				)`,
				`CREATE TABLE sync.relay_record (
					chain_family    VARCHAR(16) NOT NULL,
					chain_id        BIGINT NOT NULL,
					deposit_nonce   BIGINT NOT NULL,
					source_block    BIGINT NOT NULL,
					source_tx_index BIGINT NOT NULL,
					dest_family     VARCHAR(16) NOT NULL,
					dest_chain_id   BIGINT NOT NULL,
					recipient       BYTEA NOT NULL,
					amount          VARCHAR(80) NOT NULL,
					resource_id     BYTEA NOT NULL,
					status          VARCHAR(16) NOT NULL,
					tx_hashes       BYTEA[] NOT NULL DEFAULT '{}',
					retry_count     INT NOT NULL DEFAULT 0,
					next_retry_at   TIMESTAMP WITH TIME ZONE,
					fail_reason     TEXT NOT NULL DEFAULT '',
					created_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
					updated_at      TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
					PRIMARY KEY (chain_family, chain_id, deposit_nonce)
				)`,
				`CREATE INDEX idx_relay_record_status ON sync.relay_record (status)`,
				`CREATE INDEX idx_relay_record_dispatch ON sync.relay_record (status, next_retry_at)`,
			},
			Down: []string{
				`DROP SCHEMA sync CASCADE`,
			},
		},
	},
}

// RunMigrations will execute pending migrations if needed to keep
// the database updated with the latest changes
func RunMigrations(cfg Config) error {
	c, err := pgx.ParseConfig("postgres://" + cfg.User + ":" + cfg.Password + "@" + cfg.Host + ":" + cfg.Port + "/" + cfg.Name)
	if err != nil {
		return err
	}
	db := stdlib.OpenDB(*c)

	nMigrations, err := migrate.Exec(db, "postgres", migrations, migrate.Up)
	if err != nil {
		return err
	}

	log.Info("successfully ran ", nMigrations, " migrations Up")
	return nil
}

// InitOrReset will initializes the db running the migrations or
// will reset all the known data and rerun the migrations
func InitOrReset(cfg Config) error {
	pgStorage, err := NewPostgresStorage(cfg)
	if err != nil {
		return err
	}
	defer pgStorage.db.Close()

	if _, err := pgStorage.db.Exec(context.Background(), "DROP TABLE IF EXISTS gorp_migrations CASCADE;"); err != nil {
		return err
	}
	if _, err := pgStorage.db.Exec(context.Background(), "DROP SCHEMA IF EXISTS sync CASCADE;"); err != nil {
		return err
	}

	return RunMigrations(cfg)
}

// NewConfigFromEnv creates config from standard postgres environment variables,
func NewConfigFromEnv() Config {
	maxConns, _ := strconv.Atoi(getEnv("OMNIBRIDGE_DATABASE_MAXCONNS", "20"))
	return Config{
		User:     getEnv("OMNIBRIDGE_DATABASE_USER", "test_user"),
		Password: getEnv("OMNIBRIDGE_DATABASE_PASSWORD", "test_password"),
		Name:     getEnv("OMNIBRIDGE_DATABASE_NAME", "test_db"),
		Host:     getEnv("OMNIBRIDGE_DATABASE_HOST", "localhost"),
		Port:     getEnv("OMNIBRIDGE_DATABASE_PORT", "5433"),
		MaxConns: maxConns,
	}
}

func getEnv(key string, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if exists {
		return value
	}
	return defaultValue
}
