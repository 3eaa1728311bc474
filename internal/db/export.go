package db

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

// CSVHeader is the column order written by ExportCSV.
var CSVHeader = []string{
	"id", "batch_id", "session_name", "timestamp",
	"acceleration_x", "acceleration_y", "acceleration_z",
	"magnetic_magnitude", "magnetic_x", "magnetic_y", "magnetic_z",
	"orientation_pitch", "orientation_roll", "orientation_yaw",
	"latitude", "longitude", "accuracy", "altitude", "altitude_accuracy",
}

// ExportCSV writes every stored measurement as CSV, restricted to one session
// when session is non-empty. It returns the number of data rows written.
func (db *DB) ExportCSV(ctx context.Context, w io.Writer, session string) (int, error) {
	query := `SELECT ` + measurementColumns + ` FROM measurements`
	var args []any
	if session != "" {
		query += ` WHERE session_name = ?`
		args = append(args, session)
	}
	query += ` ORDER BY session_name, timestamp, id`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return 0, err
	}

	n := 0
	for rows.Next() {
		m, err := scanMeasurement(rows)
		if err != nil {
			return n, err
		}
		if err := cw.Write(csvRecord(m)); err != nil {
			return n, err
		}
		n++
	}
	if err := rows.Err(); err != nil {
		return n, err
	}
	cw.Flush()
	return n, cw.Error()
}

func csvRecord(m mapping.Measurement) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	opt := func(v *float64) string {
		if v == nil {
			return ""
		}
		return f(*v)
	}

	var lat, lon, acc, alt, altAcc string
	if loc := m.Location; loc != nil {
		lat, lon = f(loc.Latitude), f(loc.Longitude)
		acc, alt, altAcc = opt(loc.Accuracy), opt(loc.Altitude), opt(loc.AltitudeAccuracy)
	}
	return []string{
		strconv.FormatInt(m.ID, 10), m.BatchID, m.SessionName, strconv.FormatInt(m.Timestamp, 10),
		f(m.AccelerationX), f(m.AccelerationY), f(m.AccelerationZ),
		f(m.MagneticMagnitude), f(m.MagneticX), f(m.MagneticY), f(m.MagneticZ),
		f(m.Pitch), f(m.Roll), f(m.Yaw),
		lat, lon, acc, alt, altAcc,
	}
}
