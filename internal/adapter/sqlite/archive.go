// Package sqlite archives each run and its reconciled rows in a local
// SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/sb-lapse-etl/internal/domain"
)

const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		run_at TEXT NOT NULL,
		profile_file TEXT NOT NULL,
		profile_source TEXT NOT NULL,
		plotted_count INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS observations (
		run_id TEXT NOT NULL REFERENCES runs(run_id),
		station_id TEXT NOT NULL,
		name TEXT NOT NULL,
		provider TEXT,
		recent INTEGER NOT NULL,
		elev_m REAL,
		temp_c REAL,
		dew_c REAL,
		temp_ob_time TEXT,
		wind_dir REAL,
		wind_spd_mps REAL,
		wind_gust_mps REAL,
		wind_ob_time TEXT,
		PRIMARY KEY (run_id, station_id)
	);
	CREATE INDEX IF NOT EXISTS idx_observations_station ON observations(station_id, temp_ob_time);
`

// Archive is an open run archive.
type Archive struct {
	db *sql.DB
}

// Open opens (creating if needed) the archive at path and ensures the schema.
func Open(path string) (*Archive, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	// A single connection serialises writers on the file.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create archive schema: %w", err)
	}
	return &Archive{db: db}, nil
}

// WriteRun stores run and its rows. Writing the same run id again replaces
// the earlier rows.
func (a *Archive) WriteRun(ctx context.Context, run domain.RunRecord) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin archive tx: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (run_id, run_at, profile_file, profile_source, plotted_count) VALUES (?, ?, ?, ?, ?)`,
		run.ID, domain.FormatUTC(run.At), run.ProfileFile, string(run.ProfileSource), run.PlottableCount(),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM observations WHERE run_id = ?`, run.ID); err != nil {
		return fmt.Errorf("clear run observations: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO observations
		(run_id, station_id, name, provider, recent, elev_m, temp_c, dew_c, temp_ob_time, wind_dir, wind_spd_mps, wind_gust_mps, wind_ob_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare observation insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range run.Rows {
		if _, err = stmt.ExecContext(ctx,
			run.ID, row.ID, row.Name, nullString(row.Provider), row.Recent,
			nullFloat(row.ElevationM), nullFloat(row.TempC), nullFloat(row.DewpointC), nullTime(row.TempObTime),
			nullFloat(row.WindDirDeg), nullFloat(row.WindSpeedMPS), nullFloat(row.WindGustMPS), nullTime(row.WindObTime),
		); err != nil {
			return fmt.Errorf("insert observation %s: %w", row.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit archive tx: %w", err)
	}
	return nil
}

// Observations returns the archived rows of one run ordered by station id.
func (a *Archive) Observations(ctx context.Context, runID string) ([]domain.StationObservation, error) {
	rows, err := a.db.QueryContext(ctx, `SELECT station_id, name, provider, recent, elev_m, temp_c, dew_c,
		temp_ob_time, wind_dir, wind_spd_mps, wind_gust_mps, wind_ob_time
		FROM observations WHERE run_id = ? ORDER BY station_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query observations: %w", err)
	}
	defer rows.Close()

	var out []domain.StationObservation
	for rows.Next() {
		var (
			o                  domain.StationObservation
			provider           sql.NullString
			elev, temp, dew    sql.NullFloat64
			dir, spd, gust     sql.NullFloat64
			tempTime, windTime sql.NullString
		)
		if err := rows.Scan(&o.ID, &o.Name, &provider, &o.Recent, &elev, &temp, &dew,
			&tempTime, &dir, &spd, &gust, &windTime); err != nil {
			return nil, fmt.Errorf("scan observation: %w", err)
		}
		o.Provider = provider.String
		o.ElevationM = floatPtr(elev)
		o.TempC = floatPtr(temp)
		o.DewpointC = floatPtr(dew)
		o.TempObTime = domain.ParseUTCPtr(tempTime.String)
		o.WindDirDeg = floatPtr(dir)
		o.WindSpeedMPS = floatPtr(spd)
		o.WindGustMPS = floatPtr(gust)
		o.WindObTime = domain.ParseUTCPtr(windTime.String)
		out = append(out, o)
	}
	return out, rows.Err()
}

// RunCount returns the number of archived runs.
func (a *Archive) RunCount(ctx context.Context) (int, error) {
	var n int
	if err := a.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return n, nil
}

func (a *Archive) Close() error {
	return a.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.FormatUTC(*t), Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return domain.Float(v.Float64)
}
