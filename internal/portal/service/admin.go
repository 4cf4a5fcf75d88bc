package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"genieacs-portal/internal/audit"
	auditdomain "genieacs-portal/internal/audit/domain"
	"genieacs-portal/internal/gateway"
	"genieacs-portal/internal/genieacs"
	"genieacs-portal/internal/otp"
	policydomain "genieacs-portal/internal/policy/domain"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/settings"
)

const (
	periodicInformParam = "InternetGatewayDevice.ManagementServer.PeriodicInformEnable"
	defaultConcurrency  = 8
)

// RefreshOutcome is the result of one device in a bulk refresh.
type RefreshOutcome struct {
	DeviceID string `json:"deviceId"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// RefreshSummary aggregates a bulk refresh. Succeeded + Failed == Total.
type RefreshSummary struct {
	Total     int              `json:"total"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Details   []RefreshOutcome `json:"details"`
}

// Message is the human readable summary line.
func (r RefreshSummary) Message() string {
	return fmt.Sprintf("Refresh completed. Success: %d, Failed: %d", r.Succeeded, r.Failed)
}

// AdminOptions tune the admin flows.
type AdminOptions struct {
	// Concurrency caps in-flight task posts during RefreshAll.
	Concurrency int
	// SettleDelay is how long RefreshDevice waits after posting the task.
	SettleDelay time.Duration
	Logger      *zap.Logger
	Meter       metric.Meter
}

// Admin implements the administrator flows: fleet listing, refresh, and settings.
type Admin struct {
	devices     Directory
	settings    SettingsStore
	messenger   otp.Messenger
	tokens      SessionIssuer
	creds       AdminVerifier
	trail       AuditTrail
	recorder    *Recorder
	logger      *zap.Logger
	concurrency int
	settleDelay time.Duration
	nowF        func() time.Time

	refreshed metric.Int64Counter
}

// NewAdmin returns an Admin service. trail and recorder may be nil.
func NewAdmin(devices Directory, store SettingsStore, messenger otp.Messenger, tokens SessionIssuer, creds AdminVerifier, trail AuditTrail, recorder *Recorder, opts AdminOptions) *Admin {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := opts.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("")
	}
	refreshed, err := meter.Int64Counter("portal.device.refresh",
		metric.WithDescription("Device refresh task posts by result"))
	if err != nil {
		logger.Warn("metrics: portal.device.refresh counter unavailable", zap.Error(err))
		refreshed, _ = noop.NewMeterProvider().Meter("").Int64Counter("portal.device.refresh")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Admin{
		devices:     devices,
		settings:    store,
		messenger:   messenger,
		tokens:      tokens,
		creds:       creds,
		trail:       trail,
		recorder:    recorder,
		logger:      logger,
		concurrency: concurrency,
		settleDelay: opts.SettleDelay,
		nowF:        time.Now,
		refreshed:   refreshed,
	}
}

// Authenticate checks the admin login and opens an admin session.
func (s *Admin) Authenticate(ctx context.Context, username, password string) (*SessionResult, error) {
	username = strings.TrimSpace(username)
	if !s.creds.Verify(username, password) {
		s.record(ctx, EventAdminLogin, username, "", ErrInvalidCredentials, nil)
		return nil, ErrInvalidCredentials
	}
	token, sess, err := s.tokens.IssueAdmin(username)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	s.record(ctx, EventAdminLogin, username, "", nil, nil)
	return &SessionResult{Token: token, Session: sess}, nil
}

// ListDevices summarizes every device known to the platform.
func (s *Admin) ListDevices(ctx context.Context) ([]DeviceSummary, error) {
	recs, err := s.devices.ListDevices(ctx)
	if err != nil {
		return nil, upstream(err, ErrDeviceNotFound)
	}
	now := s.nowF()
	out := make([]DeviceSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, buildSummary(rec, now))
	}
	return out, nil
}

// RefreshDevice verifies the device exists, enables periodic inform on it, and waits for the
// platform to process the task. id may arrive percent-encoded. Returns the decoded device id.
func (s *Admin) RefreshDevice(ctx context.Context, actor, id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", invalidInput("device id is required")
	}
	rec, err := s.devices.GetDevice(ctx, id)
	if err != nil {
		err = upstream(err, ErrDeviceNotFound)
		s.record(ctx, string(policydomain.ActionAdminRefreshDevice), actor, id, err, nil)
		return "", err
	}
	deviceID := rec.ID()
	if err := s.postPeriodicInform(ctx, deviceID); err != nil {
		err = upstream(err, ErrDeviceNotFound)
		s.record(ctx, string(policydomain.ActionAdminRefreshDevice), actor, deviceID, err, nil)
		return deviceID, err
	}
	err = sleep(ctx, s.settleDelay)
	s.record(ctx, string(policydomain.ActionAdminRefreshDevice), actor, deviceID, err, nil)
	return deviceID, err
}

// RefreshAll posts the periodic-inform task to every device concurrently and waits for all of
// them. One device failing never cancels the others; only listing the fleet can fail the call.
func (s *Admin) RefreshAll(ctx context.Context, actor string) (RefreshSummary, error) {
	recs, err := s.devices.ListDevices(ctx)
	if err != nil {
		return RefreshSummary{}, upstream(err, ErrDeviceNotFound)
	}

	details := make([]RefreshOutcome, len(recs))
	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			id := rec.ID()
			outcome := RefreshOutcome{DeviceID: id, Success: true}
			if err := s.postPeriodicInform(ctx, id); err != nil {
				s.logger.Warn("refresh: device failed", zap.String("device_id", id), zap.Error(err))
				outcome.Success = false
				outcome.Error = err.Error()
			}
			details[i] = outcome
			return nil
		})
	}
	_ = g.Wait()

	summary := RefreshSummary{Total: len(details), Details: details}
	for _, d := range details {
		if d.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	s.record(ctx, string(policydomain.ActionAdminRefreshAll), actor, "", nil, map[string]string{
		"total":     fmt.Sprint(summary.Total),
		"succeeded": fmt.Sprint(summary.Succeeded),
		"failed":    fmt.Sprint(summary.Failed),
	})
	return summary, nil
}

func (s *Admin) postPeriodicInform(ctx context.Context, deviceID string) error {
	task := genieacs.SetParameterValues(genieacs.ParameterValue{
		Path:  periodicInformParam,
		Value: "1",
		Type:  genieacs.TypeBoolean,
	})
	err := s.devices.PostTask(ctx, deviceID, task, genieacs.TaskOptions{})
	result := "success"
	if err != nil {
		result = "failure"
	}
	s.refreshed.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	return err
}

// Settings returns the current settings document.
func (s *Admin) Settings(ctx context.Context) (settings.Settings, error) {
	return s.settings.Load()
}

// SaveOTPSettings replaces the OTP section. Invalid values wrap settings.ErrInvalidSettings.
func (s *Admin) SaveOTPSettings(ctx context.Context, actor string, o settings.OTP) (settings.Settings, error) {
	doc, err := s.settings.SaveOTP(o)
	s.record(ctx, string(policydomain.ActionAdminWriteSettings), actor, "", err, map[string]string{
		"section":    "otp",
		"otpEnabled": fmt.Sprint(o.Enabled),
	})
	return doc, err
}

// SaveGatewaySettings selects the provider and replaces all provider credentials.
func (s *Admin) SaveGatewaySettings(ctx context.Context, actor string, provider gateway.Provider, gateways gateway.Gateways) (settings.Settings, error) {
	doc, err := s.settings.SaveGateway(provider, gateways)
	s.record(ctx, string(policydomain.ActionAdminWriteSettings), actor, "", err, map[string]string{
		"section":  "gateway",
		"provider": string(provider),
	})
	return doc, err
}

// TestGateway sends TestMessage to the configured admin WhatsApp number through the selected provider.
func (s *Admin) TestGateway(ctx context.Context, actor string) error {
	doc, err := s.settings.Load()
	if err != nil {
		return err
	}
	if strings.TrimSpace(doc.AdminWhatsapp) == "" {
		return ErrAdminWhatsappMissing
	}
	var sendErr error
	if !s.messenger.Send(ctx, doc.GatewayConfig(), doc.AdminWhatsapp, TestMessage) {
		sendErr = ErrGatewaySendFailed
	}
	s.record(ctx, string(policydomain.ActionAdminTestGateway), actor, "", sendErr, map[string]string{
		"provider": string(doc.WhatsappGateway),
	})
	return sendErr
}

// AuditLog returns recent audit entries, newest first. Empty when auditing is disabled.
func (s *Admin) AuditLog(ctx context.Context, deviceID string, limit int) ([]*auditdomain.AuditLog, error) {
	if s.trail == nil {
		return nil, nil
	}
	return s.trail.Recent(ctx, deviceID, limit)
}

func (s *Admin) record(ctx context.Context, action, actor, deviceID string, err error, meta map[string]string) {
	if err != nil {
		if meta == nil {
			meta = map[string]string{}
		}
		meta["error"] = err.Error()
	}
	s.recorder.Record(ctx, audit.Event{
		Actor:    actor,
		Role:     string(security.RoleAdmin),
		Action:   action,
		DeviceID: deviceID,
		Outcome:  outcome(err),
		Metadata: meta,
	})
}
