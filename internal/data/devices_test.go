package data_test

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-hubmon/internal/data"
)

func newDeviceModel(t *testing.T) (*data.DeviceModel, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &data.DeviceModel{DB: db}, mock
}

func TestTouchDeviceUpserts(t *testing.T) {
	m, mock := newDeviceModel(t)
	seen := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO devices")).
		WithArgs("dev-1", seen).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.TouchDevice(context.Background(), "dev-1", seen))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetDeviceBattery(t *testing.T) {
	m, mock := newDeviceModel(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO devices")).
		WithArgs("dev-1", true).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, m.SetDeviceBattery(context.Background(), "dev-1", true))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDeviceNotFound(t *testing.T) {
	m, mock := newDeviceModel(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT rid, name, product_type, last_seen, battery_low, onboard_age_days, updated_at")).
		WithArgs("nope").
		WillReturnRows(sqlmock.NewRows([]string{"rid", "name", "product_type", "last_seen", "battery_low", "onboard_age_days", "updated_at"}))

	_, err := m.GetDevice(context.Background(), "nope")
	require.ErrorIs(t, err, data.ErrRecordNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDeviceNullableColumns(t *testing.T) {
	m, mock := newDeviceModel(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM devices")).
		WithArgs("dev-1").
		WillReturnRows(sqlmock.NewRows([]string{"rid", "name", "product_type", "last_seen", "battery_low", "onboard_age_days", "updated_at"}).
			AddRow("dev-1", "Sensor", "motion sensor", nil, nil, nil, now))

	d, err := m.GetDevice(context.Background(), "dev-1")
	require.NoError(t, err)
	require.Nil(t, d.LastSeen)
	require.Nil(t, d.BatteryLow)
	require.Nil(t, d.AgeAtOnboarding)
	require.NoError(t, mock.ExpectationsWereMet())
}
