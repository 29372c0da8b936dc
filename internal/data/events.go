package data

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

type EventModel struct {
	DB DBTX
}

func (m *EventModel) InsertEvent(ctx context.Context, ts time.Time, rid, rtype string, payload map[string]any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	query := `
		INSERT INTO events (ts, rid, rtype, raw)
		VALUES ($1, $2, $3, $4)
	`
	_, err = m.DB.ExecContext(ctx, query, ts, rid, rtype, raw)
	return err
}

func (m *EventModel) ListEvents(ctx context.Context, q string, limit int) ([]*StoredEvent, error) {
	var rows *sql.Rows
	var err error

	if q != "" {
		query := `
			SELECT id, ts, rid, rtype, raw FROM events
			WHERE raw::text ILIKE $1 OR rid ILIKE $1 OR rtype ILIKE $1
			ORDER BY id DESC LIMIT $2
		`
		rows, err = m.DB.QueryContext(ctx, query, "%"+q+"%", limit)
	} else {
		query := `
			SELECT id, ts, rid, rtype, raw FROM events
			ORDER BY id DESC LIMIT $1
		`
		rows, err = m.DB.QueryContext(ctx, query, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*StoredEvent
	for rows.Next() {
		var e StoredEvent
		var rid, rtype sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &rid, &rtype, &e.Raw); err != nil {
			return nil, err
		}
		e.RID = rid.String
		e.RType = rtype.String
		events = append(events, &e)
	}
	return events, rows.Err()
}

func (m *EventModel) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func (m *EventModel) CountEventsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events WHERE ts >= $1`, since).Scan(&n)
	return n, err
}

func (m *EventModel) DeleteEventsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM events WHERE ts < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
