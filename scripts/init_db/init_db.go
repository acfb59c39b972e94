package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s",
		dbGetEnv("DB_USER", "geofleet_user"),
		dbGetEnv("DB_PASSWORD", "geofleet_password"),
		dbGetEnv("DB_HOST", "localhost"),
		dbGetEnv("DB_PORT", "5432"),
		dbGetEnv("DB_NAME", "geofleet"),
	)

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, connStr)
	if err != nil {
		log.Fatalf("Connection failed: %v\n\nMake sure Postgres is running:\n  docker-compose up -d postgres", err)
	}
	defer conn.Close(ctx)
	fmt.Println("✓ Connected")

	// Run all steps in order
	step1_reference_tables(ctx, conn)
	step2_position_tables(ctx, conn)
	step3_trip_tables(ctx, conn)
	step4_alert_sensor_tables(ctx, conn)
	step5_indexes(ctx, conn)
	step6_verify(ctx, conn)

	fmt.Println("\n✅ Database initialised successfully")
	fmt.Println("   Run next: go run scripts/seed_redis/seed_redis.go")
}

// ─────────────────────────────────────────────────────────────
// Step 1 — Reference tables (organizations, devices, beacons)
// ─────────────────────────────────────────────────────────────
func step1_reference_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 1: Reference tables ────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS organizations (
			org_id     TEXT        PRIMARY KEY,
			name       TEXT        NOT NULL,

			-- Geofence polygon as an ordered JSON list of [lon, lat]
			-- vertices. One fence per organization, shared by all of
			-- its devices. Read-only to the ingestion service.
			geofence   JSONB,

			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`, "organizations table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS devices (
			device_id  TEXT        PRIMARY KEY,
			org_id     TEXT        NOT NULL REFERENCES organizations (org_id),

			-- Must exactly match domain.DeviceClass constants: Gps | Vehicle
			type       TEXT        NOT NULL,

			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),

			CONSTRAINT chk_device_type CHECK (type IN ('Gps', 'Vehicle'))
		);
	`, "devices table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS beacons (
			mac TEXT             PRIMARY KEY,
			lat DOUBLE PRECISION,
			lon DOUBLE PRECISION
		);
	`, "beacons table created")
}

// ─────────────────────────────────────────────────────────────
// Step 2 — Position tables
// ─────────────────────────────────────────────────────────────
func step2_position_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 2: Position tables ─────────────────────")

	// Current position, one row per device. The PRIMARY KEY on device_id
	// is what the ON CONFLICT upsert in the ledger keys on — concurrent
	// first writes for a new device converge on one row.
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS device_position (
			device_id TEXT             PRIMARY KEY,
			dev_eui   TEXT             NOT NULL,
			type      TEXT             NOT NULL,
			lat       DOUBLE PRECISION NOT NULL,
			lon       DOUBLE PRECISION NOT NULL,
			battery   DOUBLE PRECISION,
			rssi      INTEGER,
			snr       DOUBLE PRECISION,
			last_seen TIMESTAMPTZ      NOT NULL
		);
	`, "device_position table created")

	// Append-only history — one row per accepted fix, never updated
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS device_position_history (
			id          BIGSERIAL        PRIMARY KEY,
			device_id   TEXT             NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lon         DOUBLE PRECISION NOT NULL,
			battery     DOUBLE PRECISION,
			rssi        INTEGER,
			snr         DOUBLE PRECISION,

			-- Which chain step produced the fix: gnss | ble | wifi
			source      TEXT             NOT NULL,

			-- Vehicle-class only; NULL for GPS-class rows
			trip_id     UUID,
			ignition    BOOLEAN,

			observed_at TIMESTAMPTZ      NOT NULL
		);
	`, "device_position_history table created")
}

// ─────────────────────────────────────────────────────────────
// Step 3 — Trip tables
// ─────────────────────────────────────────────────────────────
func step3_trip_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 3: Trip tables ─────────────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS trips (
			id           UUID        PRIMARY KEY,
			device_id    TEXT        NOT NULL,
			started_at   TIMESTAMPTZ NOT NULL,
			ended_at     TIMESTAMPTZ,
			status       TEXT        NOT NULL,
			close_reason TEXT,

			CONSTRAINT chk_trip_status CHECK (status IN ('active', 'closed'))
		);
	`, "trips table created")

	// Schema-level backstop for the one-active-trip-per-device invariant.
	// The row lock in the ignition transaction is the primary guarantee;
	// this index turns a logic bug into a constraint error instead of
	// silent duplicate trips.
	execOrFatal(ctx, conn, `
		CREATE UNIQUE INDEX IF NOT EXISTS uq_trips_one_active
		ON trips (device_id)
		WHERE status = 'active';
	`, "one-active-trip unique index created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS vehicle_state (
			device_id       TEXT        PRIMARY KEY,
			ignition        BOOLEAN,
			current_trip_id UUID        REFERENCES trips (id),
			last_seen       TIMESTAMPTZ,
			last_lat        DOUBLE PRECISION,
			last_lon        DOUBLE PRECISION
		);
	`, "vehicle_state table created")
}

// ─────────────────────────────────────────────────────────────
// Step 4 — Alerts and sensor tables
// ─────────────────────────────────────────────────────────────
func step4_alert_sensor_tables(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 4: Alerts and sensors ──────────────────")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS alerts (
			id          BIGSERIAL        PRIMARY KEY,
			description TEXT             NOT NULL,

			-- Must match domain.AlertCategoryNotify
			category    TEXT             NOT NULL,

			summary     TEXT,
			device_id   TEXT             NOT NULL,
			lat         DOUBLE PRECISION NOT NULL,
			lon         DOUBLE PRECISION NOT NULL,
			created_at  TIMESTAMPTZ      NOT NULL
		);
	`, "alerts table created")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS tower_value (
			client_id       TEXT  PRIMARY KEY,
			sensor_apertura JSONB,
			sensor_luz      JSONB
		);
	`, "tower_value table created")
}

// ─────────────────────────────────────────────────────────────
// Step 5 — Indexes
// ─────────────────────────────────────────────────────────────
func step5_indexes(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 5: Indexes ─────────────────────────────")

	indexes := []struct {
		name string
		sql  string
		why  string
	}{
		{
			name: "idx_history_device_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_history_device_time
				  ON device_position_history (device_id, observed_at DESC);`,
			why: "query: position trail for one device",
		},
		{
			name: "idx_history_trip",
			sql: `CREATE INDEX IF NOT EXISTS idx_history_trip
				  ON device_position_history (trip_id)
				  WHERE trip_id IS NOT NULL;`,
			why: "query: all rows of one trip (partial index)",
		},
		{
			name: "idx_trips_device_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_trips_device_time
				  ON trips (device_id, started_at DESC);`,
			why: "query: trip log for one vehicle",
		},
		{
			name: "idx_alerts_device_time",
			sql: `CREATE INDEX IF NOT EXISTS idx_alerts_device_time
				  ON alerts (device_id, created_at DESC);`,
			why: "query: alerts for one device",
		},
	}

	for _, idx := range indexes {
		execOrFatal(ctx, conn, idx.sql,
			fmt.Sprintf("%-40s ← %s", idx.name, idx.why),
		)
	}
}

// ─────────────────────────────────────────────────────────────
// Step 6 — Verify everything was created
// ─────────────────────────────────────────────────────────────
func step6_verify(ctx context.Context, conn *pgx.Conn) {
	fmt.Println("\n── Step 6: Verification ────────────────────────")

	tables := []string{
		"organizations", "devices", "beacons",
		"device_position", "device_position_history",
		"trips", "vehicle_state", "alerts", "tower_value",
	}
	for _, table := range tables {
		var exists bool
		err := conn.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_name = $1
			)
		`, table).Scan(&exists)
		if err != nil || !exists {
			log.Fatalf("Table %s was not created: %v", table, err)
		}
		fmt.Printf("  ✓ table: %s\n", table)
	}

	var indexCount int
	err := conn.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM pg_indexes
		WHERE tablename IN ('device_position_history', 'trips', 'alerts')
		AND indexname LIKE 'idx_%' OR indexname = 'uq_trips_one_active'
	`).Scan(&indexCount)
	if err != nil {
		log.Fatalf("Index check failed: %v", err)
	}
	fmt.Printf("  ✓ indexes created: %d\n", indexCount)
}

// ─────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────

// execOrFatal runs a SQL statement and prints result or exits on error
func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, label string) {
	_, err := conn.Exec(ctx, sql)
	if err != nil {
		log.Fatalf("FAILED — %s\nError: %v\nSQL: %s", label, err, sql)
	}
	fmt.Printf("  ✓ %s\n", label)
}

func dbGetEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
