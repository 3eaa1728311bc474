package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"

	"github.com/banshee-data/magfield.report/internal/mapping"
)

var _ mapping.SessionSource = (*DB)(nil)

// ErrPathNotFound is returned by StoredPath for a session with no saved path.
var ErrPathNotFound = errors.New("db: no stored path for session")

// SavePaths replaces the stored path of every session in paths within one
// transaction.
func (db *DB) SavePaths(ctx context.Context, paths []mapping.Path) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin path save: %w", err)
	}
	defer tx.Rollback()

	for _, p := range paths {
		if err := savePath(ctx, tx, p); err != nil {
			return fmt.Errorf("session %q: %w", p.SessionName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit paths: %w", err)
	}
	return nil
}

// SavePath replaces the stored path of a single session.
func (db *DB) SavePath(ctx context.Context, p mapping.Path) error {
	return db.SavePaths(ctx, []mapping.Path{p})
}

func savePath(ctx context.Context, tx *sql.Tx, p mapping.Path) error {
	for i, pos := range p.Positions {
		// sqlite stores NaN as NULL
		if !finite(pos.X, pos.Y, pos.Z, pos.MagneticMagnitude) {
			return fmt.Errorf("position %d is not finite", i)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM paths WHERE session_name = ?`, p.SessionName); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO paths (session_name, position_count) VALUES (?, ?)`,
		p.SessionName, len(p.Positions)); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO path_positions
		(session_name, seq, timestamp, x, y, z, magnetic_magnitude)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, pos := range p.Positions {
		if _, err := stmt.ExecContext(ctx, p.SessionName, i, pos.Timestamp,
			pos.X, pos.Y, pos.Z, pos.MagneticMagnitude); err != nil {
			return err
		}
	}
	return nil
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// StoredPath loads the saved path of a session.
func (db *DB) StoredPath(ctx context.Context, name string) (mapping.Path, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT position_count FROM paths WHERE session_name = ?`, name).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return mapping.Path{}, fmt.Errorf("session %q: %w", name, ErrPathNotFound)
	}
	if err != nil {
		return mapping.Path{}, fmt.Errorf("failed to load path %q: %w", name, err)
	}

	rows, err := db.QueryContext(ctx, `SELECT timestamp, x, y, z, magnetic_magnitude
		FROM path_positions WHERE session_name = ? ORDER BY seq`, name)
	if err != nil {
		return mapping.Path{}, fmt.Errorf("failed to load path %q: %w", name, err)
	}
	defer rows.Close()

	p := mapping.Path{SessionName: name, Positions: make([]mapping.Position, 0, count)}
	for rows.Next() {
		pos := mapping.Position{SessionName: name}
		if err := rows.Scan(&pos.Timestamp, &pos.X, &pos.Y, &pos.Z, &pos.MagneticMagnitude); err != nil {
			return mapping.Path{}, err
		}
		p.Positions = append(p.Positions, pos)
	}
	return p, rows.Err()
}

// StoredPathNames lists sessions that have a saved path.
func (db *DB) StoredPathNames(ctx context.Context) ([]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT session_name FROM paths ORDER BY session_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list stored paths: %w", err)
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
