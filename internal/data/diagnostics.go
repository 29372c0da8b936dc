package data

import (
	"context"
	"database/sql"
)

type DiagnosticModel struct {
	DB DBTX
}

const diagColumns = `rid, day, disconnect_count, downtime_seconds, last_status, last_transition_at, battery_low, updated_at`

func (m *DiagnosticModel) GetDiagnostic(ctx context.Context, rid, day string) (*DiagnosticRecord, error) {
	query := `
		SELECT ` + diagColumns + `
		FROM diagnostics
		WHERE rid = $1 AND day = $2
	`
	return m.scanOne(m.DB.QueryRowContext(ctx, query, rid, day))
}

// GetLatestBefore returns the most recent record strictly before day,
// used to carry an open disconnect across a day boundary.
func (m *DiagnosticModel) GetLatestBefore(ctx context.Context, rid, day string) (*DiagnosticRecord, error) {
	query := `
		SELECT ` + diagColumns + `
		FROM diagnostics
		WHERE rid = $1 AND day < $2
		ORDER BY day DESC
		LIMIT 1
	`
	return m.scanOne(m.DB.QueryRowContext(ctx, query, rid, day))
}

func (m *DiagnosticModel) UpsertDiagnostic(ctx context.Context, rec *DiagnosticRecord) error {
	query := `
		INSERT INTO diagnostics (rid, day, disconnect_count, downtime_seconds, last_status, last_transition_at, battery_low, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (rid, day) DO UPDATE SET
			disconnect_count = EXCLUDED.disconnect_count,
			downtime_seconds = EXCLUDED.downtime_seconds,
			last_status = EXCLUDED.last_status,
			last_transition_at = EXCLUDED.last_transition_at,
			battery_low = EXCLUDED.battery_low,
			updated_at = NOW()
	`
	_, err := m.DB.ExecContext(ctx, query,
		rec.RID, rec.Day, rec.DisconnectCount, rec.DowntimeSeconds, rec.LastStatus, rec.LastTransitionAt, rec.BatteryLow)
	return err
}

// AddDowntime increments downtime for a day without touching the rest
// of the record. Used when a reconnect closes a disconnect that started
// on an earlier day.
func (m *DiagnosticModel) AddDowntime(ctx context.Context, rid, day string, seconds int) error {
	if seconds <= 0 {
		return nil
	}
	query := `
		INSERT INTO diagnostics (rid, day, downtime_seconds, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (rid, day) DO UPDATE SET
			downtime_seconds = diagnostics.downtime_seconds + EXCLUDED.downtime_seconds,
			updated_at = NOW()
	`
	_, err := m.DB.ExecContext(ctx, query, rid, day, seconds)
	return err
}

// QueryDiagnostics returns records for one resource, or all resources
// when rid is empty, from fromDay onward ordered by (rid, day).
func (m *DiagnosticModel) QueryDiagnostics(ctx context.Context, rid, fromDay string) ([]*DiagnosticRecord, error) {
	var rows *sql.Rows
	var err error

	if rid != "" {
		query := `
			SELECT ` + diagColumns + `
			FROM diagnostics
			WHERE rid = $1 AND day >= $2
			ORDER BY rid, day
		`
		rows, err = m.DB.QueryContext(ctx, query, rid, fromDay)
	} else {
		query := `
			SELECT ` + diagColumns + `
			FROM diagnostics
			WHERE day >= $1
			ORDER BY rid, day
		`
		rows, err = m.DB.QueryContext(ctx, query, fromDay)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*DiagnosticRecord
	for rows.Next() {
		rec, err := m.scanRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *DiagnosticModel) CountActiveSince(ctx context.Context, day string) (int64, error) {
	var n int64
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(DISTINCT rid) FROM diagnostics WHERE day >= $1`, day).Scan(&n)
	return n, err
}

func (m *DiagnosticModel) scanOne(row *sql.Row) (*DiagnosticRecord, error) {
	var rec DiagnosticRecord
	var transition sql.NullTime
	err := row.Scan(&rec.RID, &rec.Day, &rec.DisconnectCount, &rec.DowntimeSeconds, &rec.LastStatus, &transition, &rec.BatteryLow, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if transition.Valid {
		rec.LastTransitionAt = &transition.Time
	}
	return &rec, nil
}

func (m *DiagnosticModel) scanRow(rows *sql.Rows) (*DiagnosticRecord, error) {
	var rec DiagnosticRecord
	var transition sql.NullTime
	if err := rows.Scan(&rec.RID, &rec.Day, &rec.DisconnectCount, &rec.DowntimeSeconds, &rec.LastStatus, &transition, &rec.BatteryLow, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	if transition.Valid {
		rec.LastTransitionAt = &transition.Time
	}
	return &rec, nil
}
