package diag

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/technosupport/ts-hubmon/internal/data"
)

// MockDiagRepo is an in-memory data.DiagnosticsRepository for tests.
type MockDiagRepo struct {
	mu      sync.Mutex
	records map[string]*data.DiagnosticRecord
	Err     error
}

func NewMockDiagRepo() *MockDiagRepo {
	return &MockDiagRepo{records: make(map[string]*data.DiagnosticRecord)}
}

func diagKey(rid, day string) string { return rid + "|" + day }

func copyRecord(rec *data.DiagnosticRecord) *data.DiagnosticRecord {
	cp := *rec
	if rec.LastTransitionAt != nil {
		t := *rec.LastTransitionAt
		cp.LastTransitionAt = &t
	}
	return &cp
}

func (m *MockDiagRepo) GetDiagnostic(ctx context.Context, rid, day string) (*data.DiagnosticRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[diagKey(rid, day)]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (m *MockDiagRepo) GetLatestBefore(ctx context.Context, rid, day string) (*data.DiagnosticRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *data.DiagnosticRecord
	for _, rec := range m.records {
		if rec.RID != rid || rec.Day >= day {
			continue
		}
		if best == nil || rec.Day > best.Day {
			best = rec
		}
	}
	if best == nil {
		return nil, nil
	}
	return copyRecord(best), nil
}

func (m *MockDiagRepo) UpsertDiagnostic(ctx context.Context, rec *data.DiagnosticRecord) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[diagKey(rec.RID, rec.Day)] = copyRecord(rec)
	return nil
}

func (m *MockDiagRepo) AddDowntime(ctx context.Context, rid, day string, seconds int) error {
	if m.Err != nil {
		return m.Err
	}
	if seconds <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	key := diagKey(rid, day)
	rec, ok := m.records[key]
	if !ok {
		rec = &data.DiagnosticRecord{RID: rid, Day: day, LastStatus: data.StatusUnknown}
		m.records[key] = rec
	}
	rec.DowntimeSeconds += seconds
	return nil
}

func (m *MockDiagRepo) QueryDiagnostics(ctx context.Context, rid, fromDay string) ([]*data.DiagnosticRecord, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.DiagnosticRecord
	for _, rec := range m.records {
		if rid != "" && rec.RID != rid {
			continue
		}
		if rec.Day < fromDay {
			continue
		}
		out = append(out, copyRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RID != out[j].RID {
			return out[i].RID < out[j].RID
		}
		return out[i].Day < out[j].Day
	})
	return out, nil
}

func (m *MockDiagRepo) CountActiveSince(ctx context.Context, day string) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rids := make(map[string]bool)
	for _, rec := range m.records {
		if rec.Day >= day {
			rids[rec.RID] = true
		}
	}
	return int64(len(rids)), nil
}

// Record returns the stored record for assertions, or nil.
func (m *MockDiagRepo) Record(rid, day string) *data.DiagnosticRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[diagKey(rid, day)]
	if !ok {
		return nil
	}
	return copyRecord(rec)
}

// MockDeviceRepo is an in-memory data.DeviceRepository for tests.
type MockDeviceRepo struct {
	mu      sync.Mutex
	devices map[string]*data.Device
	Touches map[string]int
	Err     error
}

func NewMockDeviceRepo() *MockDeviceRepo {
	return &MockDeviceRepo{
		devices: make(map[string]*data.Device),
		Touches: make(map[string]int),
	}
}

func (m *MockDeviceRepo) UpsertDevice(ctx context.Context, rid, name, productType string) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[rid]
	if !ok {
		d = &data.Device{RID: rid}
		m.devices[rid] = d
	}
	d.Name = name
	d.ProductType = productType
	d.UpdatedAt = time.Now()
	return nil
}

func (m *MockDeviceRepo) TouchDevice(ctx context.Context, rid string, seen time.Time) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Touches[rid]++
	d, ok := m.devices[rid]
	if !ok {
		d = &data.Device{RID: rid, Name: rid, ProductType: "device"}
		m.devices[rid] = d
	}
	t := seen
	d.LastSeen = &t
	return nil
}

func (m *MockDeviceRepo) SetDeviceBattery(ctx context.Context, rid string, low bool) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[rid]
	if !ok {
		d = &data.Device{RID: rid, Name: rid, ProductType: "device"}
		m.devices[rid] = d
	}
	b := low
	d.BatteryLow = &b
	return nil
}

func (m *MockDeviceRepo) GetDevice(ctx context.Context, rid string) (*data.Device, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[rid]
	if !ok {
		return nil, data.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MockDeviceRepo) ListDevices(ctx context.Context) ([]*data.Device, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*data.Device
	for _, d := range m.devices {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MockDeviceRepo) CountDevices(ctx context.Context) (int64, error) {
	if m.Err != nil {
		return 0, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.devices)), nil
}
