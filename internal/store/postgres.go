package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"geofleet/ingestion/internal/config"
	"geofleet/ingestion/internal/domain"
	"geofleet/ingestion/internal/geofence"
	"geofleet/ingestion/internal/resolver"
	"geofleet/ingestion/internal/trip"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg *config.Config) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// GeofenceFor returns the polygon of the device's owning organization.
func (s *PostgresStore) GeofenceFor(ctx context.Context, deviceID string) (geofence.Polygon, error) {
	query := `
		SELECT o.geofence
		FROM devices d
		JOIN organizations o ON o.org_id = d.org_id
		WHERE d.device_id = $1
	`
	var raw []byte
	err := s.pool.QueryRow(ctx, query, deviceID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, geofence.ErrNotConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("geofence lookup for %s: %w", deviceID, err)
	}
	if len(raw) == 0 {
		return nil, geofence.ErrNotConfigured
	}

	var poly geofence.Polygon
	if err := json.Unmarshal(raw, &poly); err != nil {
		return nil, fmt.Errorf("geofence for %s is not a vertex list: %w", deviceID, err)
	}
	if len(poly) < 3 {
		return nil, geofence.ErrNotConfigured
	}
	return poly, nil
}

// BeaconByMAC is the authoritative beacon directory read. Rows with null
// coordinates are treated as unknown.
func (s *PostgresStore) BeaconByMAC(ctx context.Context, mac string) (*domain.Beacon, error) {
	query := `SELECT mac, lat, lon FROM beacons WHERE mac = $1 AND lat IS NOT NULL AND lon IS NOT NULL`
	b := &domain.Beacon{}
	err := s.pool.QueryRow(ctx, query, mac).Scan(&b.MAC, &b.Latitude, &b.Longitude)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, resolver.ErrBeaconNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("beacon lookup %s: %w", mac, err)
	}
	return b, nil
}

// UpsertDevicePosition writes the current-position row atomically. Class and
// dev_eui are stamped on first insert and left alone on update; everything
// else is last-write-wins, so concurrent first writes for a new device
// converge on one row.
func (s *PostgresStore) UpsertDevicePosition(ctx context.Context, p *domain.DevicePosition) error {
	query := `
		INSERT INTO device_position
			(device_id, dev_eui, type, lat, lon, battery, rssi, snr, last_seen)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (device_id) DO UPDATE SET
			lat       = EXCLUDED.lat,
			lon       = EXCLUDED.lon,
			battery   = EXCLUDED.battery,
			rssi      = EXCLUDED.rssi,
			snr       = EXCLUDED.snr,
			last_seen = EXCLUDED.last_seen
	`
	_, err := s.pool.Exec(ctx, query,
		p.DeviceID,
		strings.ToUpper(p.DevEUI),
		string(p.Class),
		p.Latitude,
		p.Longitude,
		p.Battery,
		p.RSSI,
		p.SNR,
		p.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("device_position upsert for %s: %w", p.DeviceID, err)
	}
	return nil
}

// UpdateLiveness refreshes battery/signal/last_seen on an existing
// current-position row without touching coordinates. It never inserts: a
// device that has never produced a fix has no row to keep alive.
func (s *PostgresStore) UpdateLiveness(ctx context.Context, deviceID string, battery *float64, rssi *int, snr *float64, seenAt time.Time) error {
	query := `
		UPDATE device_position
		SET battery = $2, rssi = $3, snr = $4, last_seen = $5
		WHERE device_id = $1
	`
	_, err := s.pool.Exec(ctx, query, deviceID, battery, rssi, snr, seenAt)
	if err != nil {
		return fmt.Errorf("liveness update for %s: %w", deviceID, err)
	}
	return nil
}

// InsertHistory appends one position-history row. Rows are never updated or
// deleted.
func (s *PostgresStore) InsertHistory(ctx context.Context, h *domain.PositionHistory) error {
	query := `
		INSERT INTO device_position_history
			(device_id, lat, lon, battery, rssi, snr, source, trip_id, ignition, observed_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.pool.Exec(ctx, query,
		h.DeviceID,
		h.Latitude,
		h.Longitude,
		h.Battery,
		h.RSSI,
		h.SNR,
		string(h.Source),
		h.TripID,
		h.Ignition,
		h.ObservedAt,
	)
	if err != nil {
		return fmt.Errorf("history insert for %s: %w", h.DeviceID, err)
	}
	return nil
}

// InsertAlert appends one perimeter-breach row.
func (s *PostgresStore) InsertAlert(ctx context.Context, a *domain.Alert) error {
	query := `
		INSERT INTO alerts
			(description, category, summary, device_id, lat, lon, created_at)
		VALUES
			($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.pool.Exec(ctx, query,
		a.Description,
		a.Category,
		a.Summary,
		a.DeviceID,
		a.Latitude,
		a.Longitude,
		a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("alert insert for %s: %w", a.DeviceID, err)
	}
	return nil
}

// ApplyIgnition runs the trip state machine for one vehicle uplink inside a
// transaction that locks the device's vehicle_state row, so the read of
// current_trip_id and the open/close it decides are serialized per device.
// At most one active trip per device holds under concurrent uplinks.
func (s *PostgresStore) ApplyIgnition(ctx context.Context, u *domain.Uplink, lat, lon *float64) (trip.Decision, error) {
	var dec trip.Decision

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return dec, fmt.Errorf("begin ignition txn for %s: %w", u.DeviceID, err)
	}
	defer tx.Rollback(ctx)

	// Make sure the state row exists, then take the row lock.
	_, err = tx.Exec(ctx,
		`INSERT INTO vehicle_state (device_id) VALUES ($1) ON CONFLICT (device_id) DO NOTHING`,
		u.DeviceID,
	)
	if err != nil {
		return dec, fmt.Errorf("vehicle_state seed for %s: %w", u.DeviceID, err)
	}

	var active *uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT current_trip_id FROM vehicle_state WHERE device_id = $1 FOR UPDATE`,
		u.DeviceID,
	).Scan(&active)
	if err != nil {
		return dec, fmt.Errorf("vehicle_state lock for %s: %w", u.DeviceID, err)
	}

	dec = trip.Decide(active, u.Ignition, uuid.New())

	if dec.Open {
		_, err = tx.Exec(ctx,
			`INSERT INTO trips (id, device_id, started_at, status) VALUES ($1, $2, $3, $4)`,
			dec.NewTripID, u.DeviceID, u.ReceivedAt, string(domain.TripActive),
		)
		if err != nil {
			return dec, fmt.Errorf("trip open for %s: %w", u.DeviceID, err)
		}
	}

	if dec.Close != nil {
		_, err = tx.Exec(ctx,
			`UPDATE trips SET ended_at = $2, status = $3, close_reason = $4 WHERE id = $1`,
			dec.Close, u.ReceivedAt, string(domain.TripClosed), domain.CloseReasonIgnitionOff,
		)
		if err != nil {
			return dec, fmt.Errorf("trip close for %s: %w", u.DeviceID, err)
		}
	}

	_, err = tx.Exec(ctx, `
		UPDATE vehicle_state
		SET ignition = $2, current_trip_id = $3, last_seen = $4, last_lat = $5, last_lon = $6
		WHERE device_id = $1`,
		u.DeviceID, u.Ignition.Bool(), dec.NextTripID, u.ReceivedAt, lat, lon,
	)
	if err != nil {
		return dec, fmt.Errorf("vehicle_state update for %s: %w", u.DeviceID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return dec, fmt.Errorf("commit ignition txn for %s: %w", u.DeviceID, err)
	}
	return dec, nil
}

// UpdateSensorValue stores an EMQX sensor reading on the tower row for the
// given client. Only the two known sensor columns are addressable.
func (s *PostgresStore) UpdateSensorValue(ctx context.Context, clientID, sensor string, value any) error {
	var column string
	switch sensor {
	case "contact":
		column = "sensor_apertura"
	case "illuminance":
		column = "sensor_luz"
	default:
		return fmt.Errorf("unknown sensor %q", sensor)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("sensor payload marshal: %w", err)
	}

	query := fmt.Sprintf(`UPDATE tower_value SET %s = $2 WHERE client_id = $1`, column)
	_, err = s.pool.Exec(ctx, query, clientID, payload)
	if err != nil {
		return fmt.Errorf("sensor update for %s: %w", clientID, err)
	}
	return nil
}
