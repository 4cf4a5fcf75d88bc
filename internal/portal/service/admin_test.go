package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"genieacs-portal/internal/audit"
	auditdomain "genieacs-portal/internal/audit/domain"
	"genieacs-portal/internal/device/domain"
	"genieacs-portal/internal/gateway"
	"genieacs-portal/internal/genieacs"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/settings"
)

type captureAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (c *captureAudit) LogEvent(ctx context.Context, e audit.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func newAdmin(t *testing.T, dir *fakeDirectory, store SettingsStore, messenger *fakeMessenger, opts AdminOptions) (*Admin, *captureAudit) {
	t.Helper()
	creds := security.NewAdminCredentials("admin", "", "s3cret")
	trail := &captureAudit{}
	return NewAdmin(dir, store, messenger, newTokens(t), creds, nil, NewRecorder(trail, nil), opts), trail
}

func TestAuthenticate(t *testing.T) {
	a, trail := newAdmin(t, &fakeDirectory{}, newSettingsStore(t, nil), &fakeMessenger{}, AdminOptions{})

	if _, err := a.Authenticate(context.Background(), "admin", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("wrong password err = %v", err)
	}
	res, err := a.Authenticate(context.Background(), " admin ", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !res.Session.IsAdmin() || res.Token == "" {
		t.Errorf("session = %+v", res.Session)
	}
	if len(trail.events) != 2 || trail.events[0].Outcome != auditdomain.OutcomeFailure || trail.events[1].Outcome != auditdomain.OutcomeSuccess {
		t.Errorf("audit events = %+v", trail.events)
	}
}

func TestListDevices(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	online := domain.Record{
		"_id":         "OUI-HG8245-SN1",
		"_tags":       []any{"111"},
		"_lastInform": now.Add(-time.Minute).Format(time.RFC3339),
		"VirtualParameters": map[string]any{
			"activedevices": map[string]any{"_value": "5"},
			"RXPower":       map[string]any{"_value": "-20"},
		},
		"InternetGatewayDevice": map[string]any{
			"LANDevice": map[string]any{"1": map[string]any{
				"Hosts": map[string]any{"HostNumberOfEntries": map[string]any{"_value": 7}},
			}},
		},
	}
	offline := domain.Record{
		"_id":         "OUI-F609-SN2",
		"_lastInform": now.Add(-10 * time.Minute).Format(time.RFC3339),
	}
	dir := &fakeDirectory{devices: []domain.Record{online, offline}}
	a, _ := newAdmin(t, dir, newSettingsStore(t, nil), &fakeMessenger{}, AdminOptions{})
	a.nowF = func() time.Time { return now }

	got, err := a.ListDevices(context.Background())
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	first := got[0]
	if !first.Online || first.UserConnected2G != "3" || first.UserConnected5G != "3" {
		t.Errorf("first = %+v, want online with 3 per band", first)
	}
	if first.ConnectedDevices != "7" || first.RxPowerClass != string(domain.RxPowerGood) {
		t.Errorf("first hosts=%q class=%q", first.ConnectedDevices, first.RxPowerClass)
	}
	if first.Model != "HG8245" || first.SerialNumber != "SN1" {
		t.Errorf("first model/serial = %q/%q", first.Model, first.SerialNumber)
	}
	second := got[1]
	if second.Online || second.UserConnected2G != "0" || second.RxPower != "N/A" || second.RxPowerClass != "" {
		t.Errorf("second = %+v", second)
	}
	if len(second.Tags) != 0 || second.Tags == nil {
		t.Errorf("tags = %#v, want empty non-nil", second.Tags)
	}

	dir.listErr = errors.New("timeout")
	if _, err := a.ListDevices(context.Background()); !errors.Is(err, ErrUpstream) {
		t.Errorf("list error = %v, want ErrUpstream", err)
	}
}

func TestPerBandEstimate(t *testing.T) {
	testCases := []struct {
		raw  string
		want int
	}{
		{"0", 0}, {"1", 1}, {"2", 1}, {"5", 3}, {"N/A", 0}, {"", 0}, {"-4", 0},
	}
	for _, tc := range testCases {
		if got := perBandEstimate(tc.raw); got != tc.want {
			t.Errorf("perBandEstimate(%q) = %d, want %d", tc.raw, got, tc.want)
		}
	}
}

func TestRefreshDevice(t *testing.T) {
	dir := &fakeDirectory{devices: []domain.Record{device("202BC1-BM632w-000001")}}
	a, _ := newAdmin(t, dir, newSettingsStore(t, nil), &fakeMessenger{}, AdminOptions{SettleDelay: time.Millisecond})

	id, err := a.RefreshDevice(context.Background(), "admin", "202BC1%2DBM632w%2D000001")
	if err != nil {
		t.Fatalf("RefreshDevice: %v", err)
	}
	if id != "202BC1-BM632w-000001" {
		t.Errorf("id = %q", id)
	}
	task := dir.tasks[0]
	if task.DeviceID != id || task.Task.Name != genieacs.TaskSetParameterValues {
		t.Fatalf("task = %+v", task)
	}
	pv := task.Task.ParameterValues[0]
	if pv.Path != periodicInformParam || pv.Value != "1" || pv.Type != genieacs.TypeBoolean {
		t.Errorf("parameter = %+v", pv)
	}

	if _, err := a.RefreshDevice(context.Background(), "admin", "missing"); !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("missing err = %v", err)
	}
	if _, err := a.RefreshDevice(context.Background(), "admin", " "); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("empty err = %v", err)
	}
}

func TestRefreshAll_SettlesEveryDevice(t *testing.T) {
	const n = 25
	devices := make([]domain.Record, n)
	fail := map[string]bool{}
	for i := range devices {
		id := fmt.Sprintf("dev-%02d", i)
		devices[i] = device(id)
		if i%4 == 0 {
			fail[id] = true
		}
	}
	dir := &fakeDirectory{devices: devices, failTask: fail}
	reader := metric.NewManualReader()
	meter := metric.NewMeterProvider(metric.WithReader(reader)).Meter("test")
	a, trail := newAdmin(t, dir, newSettingsStore(t, nil), &fakeMessenger{}, AdminOptions{Concurrency: 3, Meter: meter})

	summary, err := a.RefreshAll(context.Background(), "admin")
	if err != nil {
		t.Fatalf("RefreshAll: %v", err)
	}
	m := len(fail)
	if summary.Total != n || summary.Succeeded != n-m || summary.Failed != m {
		t.Errorf("summary = %d/%d/%d, want %d/%d/%d", summary.Total, summary.Succeeded, summary.Failed, n, n-m, m)
	}
	if dir.taskCount() != n-m {
		t.Errorf("posted tasks = %d, want %d", dir.taskCount(), n-m)
	}
	for i, d := range summary.Details {
		if d.DeviceID != devices[i].ID() {
			t.Errorf("details[%d] = %q, want input order", i, d.DeviceID)
		}
		if d.Success == fail[d.DeviceID] {
			t.Errorf("details[%d] success = %v", i, d.Success)
		}
		if !d.Success && d.Error == "" {
			t.Errorf("details[%d] missing error", i)
		}
	}
	if want := fmt.Sprintf("Refresh completed. Success: %d, Failed: %d", n-m, m); summary.Message() != want {
		t.Errorf("Message() = %q", summary.Message())
	}
	last := trail.events[len(trail.events)-1]
	if last.Action != "admin.devices.refresh_all" || last.Metadata["failed"] != fmt.Sprint(m) {
		t.Errorf("audit = %+v", last)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, mt := range sm.Metrics {
			if mt.Name != "portal.device.refresh" {
				continue
			}
			for _, dp := range mt.Data.(metricdata.Sum[int64]).DataPoints {
				total += dp.Value
			}
		}
	}
	if total != n {
		t.Errorf("refresh counter total = %d, want %d", total, n)
	}
}

func TestRefreshAll_ListFailure(t *testing.T) {
	dir := &fakeDirectory{listErr: errors.New("boom")}
	a, _ := newAdmin(t, dir, newSettingsStore(t, nil), &fakeMessenger{}, AdminOptions{})
	if _, err := a.RefreshAll(context.Background(), "admin"); !errors.Is(err, ErrUpstream) {
		t.Errorf("err = %v, want ErrUpstream", err)
	}

	dir.listErr = nil
	summary, err := a.RefreshAll(context.Background(), "admin")
	if err != nil || summary.Total != 0 || len(summary.Details) != 0 {
		t.Errorf("empty fleet = %+v, %v", summary, err)
	}
}

func TestSaveSettings(t *testing.T) {
	store := newSettingsStore(t, nil)
	a, _ := newAdmin(t, &fakeDirectory{}, store, &fakeMessenger{}, AdminOptions{})

	doc, err := a.SaveOTPSettings(context.Background(), "admin", settings.OTP{Enabled: true, Expiry: 600, Length: 4, AdminWhatsapp: "0811"})
	if err != nil {
		t.Fatalf("SaveOTPSettings: %v", err)
	}
	if !doc.OTPEnabled || doc.OTPExpiry != 600 || doc.OTPLength != 4 {
		t.Errorf("doc = %+v", doc)
	}
	if _, err := a.SaveOTPSettings(context.Background(), "admin", settings.OTP{Expiry: 30, Length: 6}); !errors.Is(err, settings.ErrInvalidSettings) {
		t.Errorf("short expiry err = %v", err)
	}

	gws := gateway.Gateways{Wablas: gateway.Credentials{Token: "tok", Enabled: true, ServerURL: "https://x"}}
	doc, err = a.SaveGatewaySettings(context.Background(), "admin", gateway.ProviderWablas, gws)
	if err != nil {
		t.Fatalf("SaveGatewaySettings: %v", err)
	}
	if doc.WhatsappGateway != gateway.ProviderWablas || doc.Gateways.Wablas.Token != "tok" {
		t.Errorf("doc = %+v", doc)
	}
	if _, err := a.SaveGatewaySettings(context.Background(), "admin", "telegram", gws); !errors.Is(err, settings.ErrInvalidSettings) {
		t.Errorf("bad provider err = %v", err)
	}

	got, err := a.Settings(context.Background())
	if err != nil || got.OTPLength != 4 || got.WhatsappGateway != gateway.ProviderWablas {
		t.Errorf("Settings = %+v, %v", got, err)
	}
}

func TestTestGateway(t *testing.T) {
	store := newSettingsStore(t, nil)
	messenger := &fakeMessenger{ok: true}
	a, _ := newAdmin(t, &fakeDirectory{}, store, messenger, AdminOptions{})

	if err := a.TestGateway(context.Background(), "admin"); !errors.Is(err, ErrAdminWhatsappMissing) {
		t.Errorf("no admin number err = %v", err)
	}
	if len(messenger.msgs) != 0 {
		t.Error("nothing should be sent without an admin number")
	}

	if _, err := store.SaveOTP(settings.OTP{Expiry: 300, Length: 6, AdminWhatsapp: "08123"}); err != nil {
		t.Fatalf("SaveOTP: %v", err)
	}
	if err := a.TestGateway(context.Background(), "admin"); err != nil {
		t.Fatalf("TestGateway: %v", err)
	}
	if messenger.numbers[0] != "08123" || messenger.msgs[0] != TestMessage {
		t.Errorf("sent %q to %q", messenger.msgs[0], messenger.numbers[0])
	}
	if messenger.cfgs[0].Selected != gateway.ProviderFonnte {
		t.Errorf("provider = %q", messenger.cfgs[0].Selected)
	}

	messenger.ok = false
	if err := a.TestGateway(context.Background(), "admin"); !errors.Is(err, ErrGatewaySendFailed) {
		t.Errorf("send failure err = %v", err)
	}
}

func TestAuditLog_Disabled(t *testing.T) {
	a, _ := newAdmin(t, &fakeDirectory{}, newSettingsStore(t, nil), &fakeMessenger{}, AdminOptions{})
	entries, err := a.AuditLog(context.Background(), "", 10)
	if err != nil || entries != nil {
		t.Errorf("AuditLog = %v, %v; want nil, nil", entries, err)
	}
}
