package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

const measurementColumns = `id, batch_id, session_name, timestamp,
	acceleration_x, acceleration_y, acceleration_z,
	magnetic_magnitude, magnetic_x, magnetic_y, magnetic_z,
	orientation_pitch, orientation_roll, orientation_yaw,
	latitude, longitude, accuracy, altitude, altitude_accuracy`

const insertMeasurementSQL = `INSERT INTO measurements (
	batch_id, session_name, timestamp,
	acceleration_x, acceleration_y, acceleration_z,
	magnetic_magnitude, magnetic_x, magnetic_y, magnetic_z,
	orientation_pitch, orientation_roll, orientation_yaw,
	latitude, longitude, accuracy, altitude, altitude_accuracy
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func measurementArgs(m mapping.Measurement, batchID string) []any {
	var lat, lon, acc, alt, altAcc any
	if loc := m.Location; loc != nil {
		lat, lon = loc.Latitude, loc.Longitude
		if loc.Accuracy != nil {
			acc = *loc.Accuracy
		}
		if loc.Altitude != nil {
			alt = *loc.Altitude
		}
		if loc.AltitudeAccuracy != nil {
			altAcc = *loc.AltitudeAccuracy
		}
	}
	var batch any
	if batchID != "" {
		batch = batchID
	}
	return []any{
		batch, m.SessionName, m.Timestamp,
		m.AccelerationX, m.AccelerationY, m.AccelerationZ,
		m.MagneticMagnitude, m.MagneticX, m.MagneticY, m.MagneticZ,
		m.Pitch, m.Roll, m.Yaw,
		lat, lon, acc, alt, altAcc,
	}
}

func insertMeasurement(ctx context.Context, ex execer, m mapping.Measurement, batchID string) (int64, error) {
	res, err := ex.ExecContext(ctx, insertMeasurementSQL, measurementArgs(m, batchID)...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// InsertMeasurement stores a single sample and returns its row id.
func (db *DB) InsertMeasurement(ctx context.Context, m mapping.Measurement) (int64, error) {
	id, err := insertMeasurement(ctx, db.DB, m, "")
	if err != nil {
		return 0, fmt.Errorf("failed to insert measurement: %w", err)
	}
	return id, nil
}

// InsertBatch stores ms in one transaction under a fresh batch id. Either
// every sample is stored or none is.
func (db *DB) InsertBatch(ctx context.Context, ms []mapping.Measurement) (string, error) {
	batchID := uuid.NewString()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, insertMeasurementSQL)
	if err != nil {
		return "", fmt.Errorf("failed to prepare batch insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range ms {
		if _, err := stmt.ExecContext(ctx, measurementArgs(m, batchID)...); err != nil {
			return "", fmt.Errorf("failed to insert measurement %d of batch: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit batch: %w", err)
	}
	return batchID, nil
}

// SessionNames lists the distinct sessions in name order.
func (db *DB) SessionNames(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT DISTINCT session_name FROM measurements ORDER BY session_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// SessionMeasurements returns the samples of one session ordered by
// timestamp and then by arrival, which is what mapping.SessionSource needs.
func (db *DB) SessionMeasurements(ctx context.Context, name string) ([]mapping.Measurement, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+measurementColumns+` FROM measurements WHERE session_name = ? ORDER BY timestamp, id`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to load session %q: %w", name, err)
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

// Measurements returns every stored sample, ordered as SessionMeasurements
// within each session.
func (db *DB) Measurements(ctx context.Context) ([]mapping.Measurement, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+measurementColumns+` FROM measurements ORDER BY session_name, timestamp, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to load measurements: %w", err)
	}
	defer rows.Close()
	return scanMeasurements(rows)
}

// CountMeasurements returns the number of stored samples.
func (db *DB) CountMeasurements(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM measurements`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanMeasurements(rows *sql.Rows) ([]mapping.Measurement, error) {
	var out []mapping.Measurement
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMeasurement(rows *sql.Rows) (mapping.Measurement, error) {
	var (
		m                mapping.Measurement
		batch            sql.NullString
		lat, lon         sql.NullFloat64
		acc, alt, altAcc sql.NullFloat64
	)
	if err := rows.Scan(
		&m.ID, &batch, &m.SessionName, &m.Timestamp,
		&m.AccelerationX, &m.AccelerationY, &m.AccelerationZ,
		&m.MagneticMagnitude, &m.MagneticX, &m.MagneticY, &m.MagneticZ,
		&m.Pitch, &m.Roll, &m.Yaw,
		&lat, &lon, &acc, &alt, &altAcc,
	); err != nil {
		return m, err
	}
	m.BatchID = batch.String
	if lat.Valid && lon.Valid {
		m.Location = &mapping.Location{
			Latitude:         lat.Float64,
			Longitude:        lon.Float64,
			Accuracy:         nullFloat(acc),
			Altitude:         nullFloat(alt),
			AltitudeAccuracy: nullFloat(altAcc),
		}
	}
	return m, nil
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}
