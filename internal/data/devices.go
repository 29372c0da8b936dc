package data

import (
	"context"
	"database/sql"
	"time"
)

type DeviceModel struct {
	DB DBTX
}

// UpsertDevice applies an authoritative catalog entry. last_seen is
// deliberately untouched here; only event processing advances it.
func (m *DeviceModel) UpsertDevice(ctx context.Context, rid, name, productType string) error {
	query := `
		INSERT INTO devices (rid, name, product_type, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (rid) DO UPDATE SET
			name = EXCLUDED.name,
			product_type = EXCLUDED.product_type,
			updated_at = NOW()
	`
	_, err := m.DB.ExecContext(ctx, query, rid, name, productType)
	return err
}

// TouchDevice advances last_seen, creating a placeholder row when the
// resource has never appeared in the catalog.
func (m *DeviceModel) TouchDevice(ctx context.Context, rid string, seen time.Time) error {
	query := `
		INSERT INTO devices (rid, name, product_type, last_seen, updated_at)
		VALUES ($1, $1, 'device', $2, NOW())
		ON CONFLICT (rid) DO UPDATE SET
			last_seen = EXCLUDED.last_seen,
			updated_at = NOW()
	`
	_, err := m.DB.ExecContext(ctx, query, rid, seen)
	return err
}

// SetDeviceBattery records the latest battery flag for a device,
// creating a placeholder row for resources the catalog never listed.
func (m *DeviceModel) SetDeviceBattery(ctx context.Context, rid string, low bool) error {
	query := `
		INSERT INTO devices (rid, name, product_type, battery_low, updated_at)
		VALUES ($1, $1, 'device', $2, NOW())
		ON CONFLICT (rid) DO UPDATE SET
			battery_low = EXCLUDED.battery_low,
			updated_at = NOW()
	`
	_, err := m.DB.ExecContext(ctx, query, rid, low)
	return err
}

func (m *DeviceModel) GetDevice(ctx context.Context, rid string) (*Device, error) {
	query := `
		SELECT rid, name, product_type, last_seen, battery_low, onboard_age_days, updated_at
		FROM devices
		WHERE rid = $1
	`
	var d Device
	var lastSeen sql.NullTime
	var batteryLow sql.NullBool
	var age sql.NullInt64

	err := m.DB.QueryRowContext(ctx, query, rid).Scan(
		&d.RID, &d.Name, &d.ProductType, &lastSeen, &batteryLow, &age, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	if lastSeen.Valid {
		d.LastSeen = &lastSeen.Time
	}
	if batteryLow.Valid {
		b := batteryLow.Bool
		d.BatteryLow = &b
	}
	if age.Valid {
		n := int(age.Int64)
		d.AgeAtOnboarding = &n
	}
	return &d, nil
}

func (m *DeviceModel) ListDevices(ctx context.Context) ([]*Device, error) {
	query := `
		SELECT rid, name, product_type, last_seen, battery_low, onboard_age_days, updated_at
		FROM devices
		ORDER BY name
	`
	rows, err := m.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []*Device
	for rows.Next() {
		var d Device
		var lastSeen sql.NullTime
		var batteryLow sql.NullBool
		var age sql.NullInt64
		if err := rows.Scan(&d.RID, &d.Name, &d.ProductType, &lastSeen, &batteryLow, &age, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if lastSeen.Valid {
			d.LastSeen = &lastSeen.Time
		}
		if batteryLow.Valid {
			b := batteryLow.Bool
			d.BatteryLow = &b
		}
		if age.Valid {
			n := int(age.Int64)
			d.AgeAtOnboarding = &n
		}
		devices = append(devices, &d)
	}
	return devices, rows.Err()
}

func (m *DeviceModel) CountDevices(ctx context.Context) (int64, error) {
	var n int64
	err := m.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&n)
	return n, err
}
