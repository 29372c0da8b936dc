package diag_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/technosupport/ts-hubmon/internal/data"
	"github.com/technosupport/ts-hubmon/internal/diag"
)

func TestFleetHealthAggregatesAndSorts(t *testing.T) {
	diags := diag.NewMockDiagRepo()
	devices := diag.NewMockDeviceRepo()
	ctx := context.Background()
	now := ts("2026-03-03", "12:00:00")

	require.NoError(t, devices.UpsertDevice(ctx, "dev-bad", "Hallway sensor", "motion sensor"))
	require.NoError(t, devices.UpsertDevice(ctx, "dev-good", "Kitchen bulb", "light"))
	require.NoError(t, devices.TouchDevice(ctx, "dev-bad", now.Add(-10*time.Minute)))
	require.NoError(t, devices.TouchDevice(ctx, "dev-good", now.Add(-5*time.Minute)))

	// dev-bad: disconnects across two days plus half an hour of downtime.
	require.NoError(t, diags.UpsertDiagnostic(ctx, &data.DiagnosticRecord{
		RID: "dev-bad", Day: "2026-03-02", DisconnectCount: 2, DowntimeSeconds: 1200, LastStatus: data.StatusConnected,
	}))
	require.NoError(t, diags.UpsertDiagnostic(ctx, &data.DiagnosticRecord{
		RID: "dev-bad", Day: "2026-03-03", DisconnectCount: 1, DowntimeSeconds: 600, LastStatus: data.StatusConnected,
	}))

	reporter := diag.NewReporter(diags, devices, time.UTC)
	report, err := reporter.FleetHealth(ctx, "2026-03-01", now)
	require.NoError(t, err)
	require.Len(t, report, 2)

	// Worst first.
	require.Equal(t, "dev-bad", report[0].RID)
	require.Equal(t, 3, report[0].Disconnects)
	require.Equal(t, 30, report[0].DowntimeMinutes)
	require.False(t, report[0].Stale)
	require.Equal(t, diag.Score(3, 30, false, false), report[0].Score)

	require.Equal(t, "dev-good", report[1].RID)
	require.Equal(t, 0, report[1].Score)
}

func TestFleetHealthBatteryUsesLatestDay(t *testing.T) {
	diags := diag.NewMockDiagRepo()
	devices := diag.NewMockDeviceRepo()
	ctx := context.Background()
	now := ts("2026-03-03", "12:00:00")

	require.NoError(t, devices.UpsertDevice(ctx, "dev-1", "Sensor", "sensor"))
	require.NoError(t, devices.TouchDevice(ctx, "dev-1", now))

	require.NoError(t, diags.UpsertDiagnostic(ctx, &data.DiagnosticRecord{
		RID: "dev-1", Day: "2026-03-01", BatteryLow: false, LastStatus: data.StatusConnected,
	}))
	require.NoError(t, diags.UpsertDiagnostic(ctx, &data.DiagnosticRecord{
		RID: "dev-1", Day: "2026-03-03", BatteryLow: true, LastStatus: data.StatusConnected,
	}))

	reporter := diag.NewReporter(diags, devices, time.UTC)
	report, err := reporter.FleetHealth(ctx, "2026-03-01", now)
	require.NoError(t, err)
	require.Len(t, report, 1)
	require.True(t, report[0].BatteryLow)
}

func TestFleetHealthStaleAndUnknownDevices(t *testing.T) {
	diags := diag.NewMockDiagRepo()
	devices := diag.NewMockDeviceRepo()
	ctx := context.Background()
	now := ts("2026-03-03", "12:00:00")

	// Cataloged but silent for two hours.
	require.NoError(t, devices.UpsertDevice(ctx, "dev-stale", "Attic sensor", "sensor"))
	require.NoError(t, devices.TouchDevice(ctx, "dev-stale", now.Add(-2*time.Hour)))

	// Diagnostics for a resource the catalog never listed.
	require.NoError(t, diags.UpsertDiagnostic(ctx, &data.DiagnosticRecord{
		RID: "dev-ghost", Day: "2026-03-03", DisconnectCount: 1, LastStatus: data.StatusDisconnected,
	}))

	reporter := diag.NewReporter(diags, devices, time.UTC)
	report, err := reporter.FleetHealth(ctx, "2026-03-01", now)
	require.NoError(t, err)
	require.Len(t, report, 2)

	byRID := map[string]diag.DeviceHealth{}
	for _, row := range report {
		byRID[row.RID] = row
	}
	require.True(t, byRID["dev-stale"].Stale)
	ghost := byRID["dev-ghost"]
	require.True(t, ghost.Stale, "never-seen devices are stale")
	require.Equal(t, 1, ghost.Disconnects)
	require.Equal(t, "device", ghost.ProductType)
}

func TestDaysAgo(t *testing.T) {
	reporter := diag.NewReporter(diag.NewMockDiagRepo(), diag.NewMockDeviceRepo(), time.UTC)
	require.Equal(t, "2026-02-24", reporter.DaysAgo(ts("2026-03-03", "12:00:00"), 7))
}
