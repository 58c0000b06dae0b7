package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const schemaVersion = "1.0.0"

// InitializeSchema creates all required tables if they don't exist
func InitializeSchema(ctx context.Context, conn driver.Conn) error {
	if err := createSchemaVersionTable(ctx, conn); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	currentVersion, err := getCurrentSchemaVersion(ctx, conn)
	if err != nil {
		return fmt.Errorf("checking schema version: %w", err)
	}

	if currentVersion != "" && currentVersion != schemaVersion {
		return fmt.Errorf("schema version mismatch: database has %s, code expects %s", currentVersion, schemaVersion)
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"kv_store", kvStoreTableDDL},
		{"rvs_data", rvsDataTableDDL},
		{"benchmark_result", benchmarkTableDDL},
	}

	for _, table := range tables {
		if err := conn.Exec(ctx, table.ddl); err != nil {
			return fmt.Errorf("creating table %s: %w", table.name, err)
		}
	}

	if currentVersion == "" {
		if err := setSchemaVersion(ctx, conn, schemaVersion); err != nil {
			return fmt.Errorf("setting schema version: %w", err)
		}
	}

	return nil
}

func createSchemaVersionTable(ctx context.Context, conn driver.Conn) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS schema_version (
			version String,
			applied_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY applied_at
	`
	return conn.Exec(ctx, ddl)
}

func getCurrentSchemaVersion(ctx context.Context, conn driver.Conn) (string, error) {
	var version string
	row := conn.QueryRow(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1")
	err := row.Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", err
	}
	return version, nil
}

func setSchemaVersion(ctx context.Context, conn driver.Conn, version string) error {
	return conn.Exec(ctx, "INSERT INTO schema_version (version) VALUES (?)", version)
}

// kv_store keeps one live row per key after merges. Deletes are tombstones
// (deleted = 1) and every read uses FINAL.
const kvStoreTableDDL = `
CREATE TABLE IF NOT EXISTS kv_store (
    key String,
    value_type LowCardinality(String),
    value String,
    deleted UInt8,
    version UInt64
) ENGINE = ReplacingMergeTree(version)
ORDER BY key
SETTINGS index_granularity = 8192
`

const rvsDataTableDDL = `
CREATE TABLE IF NOT EXISTS rvs_data (
    code LowCardinality(String),
    size UInt32,
    seq UInt64,
    data Array(Float64)
) ENGINE = MergeTree()
ORDER BY (code, size, seq)
SETTINGS index_granularity = 8192
`

const benchmarkTableDDL = `
CREATE TABLE IF NOT EXISTS benchmark_result (
    id UInt64,
    run_id String,
    test_code LowCardinality(String),
    size UInt32,
    benchmark Array(Float64),
    created_at DateTime64(9, 'UTC')
) ENGINE = MergeTree()
ORDER BY id
SETTINGS index_granularity = 8192
`
