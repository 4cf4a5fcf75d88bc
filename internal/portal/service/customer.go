package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"genieacs-portal/internal/audit"
	"genieacs-portal/internal/genieacs"
	"genieacs-portal/internal/otp"
	policydomain "genieacs-portal/internal/policy/domain"
	"genieacs-portal/internal/security"
)

const (
	wlanObject      = "InternetGatewayDevice.LANDevice.1.WLANConfiguration"
	wlanIndex2G     = "1"
	wlanIndex5G     = "5"
	minPassphrase   = 8
	maxPassphrase   = 63
	maxSSIDLength   = 32
	rebootTimeout   = 3 * time.Second
	msgSSIDUpdated  = "SSID updated"
	msgWiFiPassword = "WiFi password updated"
)

// OTPChallenge tells the client a code was sent and how to prompt for it.
type OTPChallenge struct {
	CustomerNumber string `json:"customerNumber"`
	Length         int    `json:"otpLength"`
	ExpiryMinutes  int    `json:"otpExpiry"`
}

// LoginResult is either a session (OTP disabled) or an OTP challenge.
type LoginResult struct {
	Session *SessionResult
	OTP     *OTPChallenge
}

// WiFiUpdate carries the requested wireless changes. Empty fields are left unchanged.
type WiFiUpdate struct {
	SSID2G     string `json:"ssid2G"`
	SSID5G     string `json:"ssid5G"`
	Password2G string `json:"password2G"`
	Password5G string `json:"password5G"`
}

// CustomerOptions tune the customer flows.
type CustomerOptions struct {
	// SettleDelay is how long Refresh waits for the device to answer the connection request.
	SettleDelay time.Duration
	Logger      *zap.Logger
}

// Customer implements login, OTP verification, and self-service actions on the bound device.
type Customer struct {
	devices     Directory
	settings    SettingsStore
	otp         OTPEngine
	tokens      SessionIssuer
	recorder    *Recorder
	logger      *zap.Logger
	settleDelay time.Duration
	nowF        func() time.Time
}

// NewCustomer returns a Customer service. recorder may be nil.
func NewCustomer(devices Directory, store SettingsStore, engine OTPEngine, tokens SessionIssuer, recorder *Recorder, opts CustomerOptions) *Customer {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Customer{
		devices:     devices,
		settings:    store,
		otp:         engine,
		tokens:      tokens,
		recorder:    recorder,
		logger:      logger,
		settleDelay: opts.SettleDelay,
		nowF:        time.Now,
	}
}

// Login finds the device tagged with the customer number. With OTP disabled it opens a session;
// otherwise it sends a code to the customer number and returns the challenge.
func (s *Customer) Login(ctx context.Context, customerNumber string) (*LoginResult, error) {
	number, err := validateCustomerNumber(customerNumber)
	if err != nil {
		return nil, err
	}
	rec, err := s.devices.FindByTag(ctx, number)
	if err != nil {
		err = upstream(err, ErrCustomerNotFound)
		s.record(ctx, EventCustomerLogin, number, "", err)
		return nil, err
	}
	doc, err := s.settings.Load()
	if err != nil {
		return nil, err
	}

	if !doc.OTPEnabled {
		res, err := s.openSession(number, rec.ID())
		s.record(ctx, EventCustomerLogin, number, rec.ID(), err)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Session: res}, nil
	}

	sent := s.otp.Issue(ctx, number, number, otp.Policy{
		Length:        doc.OTPLength,
		ExpirySeconds: doc.OTPExpiry,
		Template:      doc.Message(),
		Gateway:       doc.GatewayConfig(),
	})
	if !sent {
		s.record(ctx, EventOTPIssued, number, rec.ID(), ErrOTPSendFailed)
		return nil, ErrOTPSendFailed
	}
	s.record(ctx, EventOTPIssued, number, rec.ID(), nil)
	return &LoginResult{OTP: &OTPChallenge{
		CustomerNumber: number,
		Length:         doc.OTPLength,
		ExpiryMinutes:  doc.ExpiryMinutes(),
	}}, nil
}

// Challenge returns the current OTP prompt parameters for a customer number, used to re-render
// the prompt after a failed verification.
func (s *Customer) Challenge(customerNumber string) (*OTPChallenge, error) {
	doc, err := s.settings.Load()
	if err != nil {
		return nil, err
	}
	return &OTPChallenge{
		CustomerNumber: strings.TrimSpace(customerNumber),
		Length:         doc.OTPLength,
		ExpiryMinutes:  doc.ExpiryMinutes(),
	}, nil
}

// VerifyOTP checks the code and opens a session for the device tagged with the number.
func (s *Customer) VerifyOTP(ctx context.Context, customerNumber, code string) (*SessionResult, error) {
	number, err := validateCustomerNumber(customerNumber)
	if err != nil {
		return nil, err
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, invalidInput("OTP code is required")
	}
	if !s.otp.Verify(ctx, number, code) {
		s.record(ctx, EventOTPVerify, number, "", ErrInvalidOTP)
		return nil, ErrInvalidOTP
	}
	rec, err := s.devices.FindByTag(ctx, number)
	if err != nil {
		err = upstream(err, ErrCustomerNotFound)
		s.record(ctx, EventOTPVerify, number, "", err)
		return nil, err
	}
	res, err := s.openSession(number, rec.ID())
	s.record(ctx, EventOTPVerify, number, rec.ID(), err)
	return res, err
}

// Dashboard reads the bound device and resolves every display attribute.
func (s *Customer) Dashboard(ctx context.Context, deviceID, username string) (DeviceView, error) {
	rec, err := s.devices.QueryDeviceByID(ctx, deviceID)
	if err != nil {
		return UnavailableView(username), upstream(err, ErrDeviceNotFound)
	}
	return buildDeviceView(rec, username, s.nowF()), nil
}

// UpdateWiFi sets the requested SSIDs and passphrases, then asks the device to re-read its
// wireless configuration. It returns a message describing what changed.
func (s *Customer) UpdateWiFi(ctx context.Context, actor, deviceID string, u WiFiUpdate) (string, error) {
	values, err := wifiParameterValues(u)
	if err != nil {
		return "", err
	}
	err = s.devices.PostTask(ctx, deviceID, genieacs.SetParameterValues(values...), genieacs.TaskOptions{})
	if err == nil {
		err = s.devices.PostTask(ctx, deviceID, genieacs.RefreshObject(wlanObject), genieacs.TaskOptions{})
	}
	if err != nil {
		err = upstream(err, ErrDeviceNotFound)
	}
	s.recordMeta(ctx, string(policydomain.ActionDeviceUpdateWiFi), actor, deviceID, err, map[string]string{
		"ssid2G":     u.SSID2G,
		"ssid5G":     u.SSID5G,
		"password2G": changed(u.Password2G),
		"password5G": changed(u.Password5G),
	})
	if err != nil {
		return "", err
	}
	if u.SSID2G != "" {
		return msgSSIDUpdated, nil
	}
	return msgWiFiPassword, nil
}

// Reboot queues a reboot with an immediate connection request.
func (s *Customer) Reboot(ctx context.Context, actor, deviceID string) error {
	err := s.devices.PostTask(ctx, deviceID, genieacs.Reboot(), genieacs.TaskOptions{
		ConnectionRequest: true,
		Timeout:           rebootTimeout,
	})
	if err != nil {
		err = upstream(err, ErrDeviceNotFound)
	}
	s.record(ctx, string(policydomain.ActionDeviceReboot), actor, deviceID, err)
	return err
}

// Refresh asks the device to re-report its whole parameter tree and waits for it to settle.
func (s *Customer) Refresh(ctx context.Context, actor, deviceID string) error {
	err := s.devices.PostTask(ctx, deviceID, genieacs.RefreshObject(""), genieacs.TaskOptions{ConnectionRequest: true})
	if err != nil {
		err = upstream(err, ErrDeviceNotFound)
	} else {
		err = sleep(ctx, s.settleDelay)
	}
	s.record(ctx, string(policydomain.ActionDeviceRefresh), actor, deviceID, err)
	return err
}

// UpdateCustomerNumber replaces every numeric tag on the device with number.
func (s *Customer) UpdateCustomerNumber(ctx context.Context, actor, deviceID, customerNumber string) error {
	if strings.TrimSpace(deviceID) == "" {
		return invalidInput("device id and customer number are required")
	}
	number, err := validateCustomerNumber(customerNumber)
	if err != nil {
		return err
	}
	rec, err := s.devices.QueryDeviceByID(ctx, deviceID)
	if err != nil {
		return upstream(err, ErrDeviceNotFound)
	}
	err = s.retag(ctx, deviceID, rec.Tags(), number)
	s.recordMeta(ctx, string(policydomain.ActionDeviceUpdateTag), actor, deviceID, err, map[string]string{"customerNumber": number})
	return err
}

func (s *Customer) retag(ctx context.Context, deviceID string, current []string, number string) error {
	for _, tag := range current {
		if !digitsOnly.MatchString(tag) {
			continue
		}
		if err := s.devices.DeleteTag(ctx, deviceID, tag); err != nil {
			return upstream(err, ErrDeviceNotFound)
		}
	}
	if err := s.devices.AddTag(ctx, deviceID, number); err != nil {
		return upstream(err, ErrDeviceNotFound)
	}
	return nil
}

func (s *Customer) openSession(number, deviceID string) (*SessionResult, error) {
	token, sess, err := s.tokens.IssueCustomer(number, deviceID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}
	return &SessionResult{Token: token, Session: sess}, nil
}

func (s *Customer) record(ctx context.Context, action, actor, deviceID string, err error) {
	s.recordMeta(ctx, action, actor, deviceID, err, nil)
}

func (s *Customer) recordMeta(ctx context.Context, action, actor, deviceID string, err error, meta map[string]string) {
	if err != nil {
		s.logger.Info("customer action failed",
			zap.String("action", action),
			zap.String("device_id", deviceID),
			zap.Error(err))
		if meta == nil {
			meta = map[string]string{}
		}
		meta["error"] = err.Error()
	}
	s.recorder.Record(ctx, audit.Event{
		Actor:    actor,
		Role:     string(security.RoleCustomer),
		Action:   action,
		DeviceID: deviceID,
		Outcome:  outcome(err),
		Metadata: pruneEmpty(meta),
	})
}

// wifiParameterValues maps the requested changes to TR-098 parameters. Each passphrase is
// written to both the PreSharedKey and the legacy KeyPassphrase leaf.
func wifiParameterValues(u WiFiUpdate) ([]genieacs.ParameterValue, error) {
	var values []genieacs.ParameterValue
	for _, band := range []struct {
		index, ssid, password, label string
	}{
		{wlanIndex2G, u.SSID2G, u.Password2G, "2.4GHz"},
		{wlanIndex5G, u.SSID5G, u.Password5G, "5GHz"},
	} {
		prefix := wlanObject + "." + band.index + "."
		if band.ssid != "" {
			if len(band.ssid) > maxSSIDLength {
				return nil, invalidInput(band.label + " SSID must be at most 32 characters")
			}
			values = append(values, genieacs.ParameterValue{Path: prefix + "SSID", Value: band.ssid, Type: genieacs.TypeString})
		}
		if band.password != "" {
			if len(band.password) < minPassphrase || len(band.password) > maxPassphrase {
				return nil, invalidInput(band.label + " password must be 8 to 63 characters")
			}
			values = append(values,
				genieacs.ParameterValue{Path: prefix + "PreSharedKey.1.KeyPassphrase", Value: band.password, Type: genieacs.TypeString},
				genieacs.ParameterValue{Path: prefix + "KeyPassphrase", Value: band.password, Type: genieacs.TypeString},
			)
		}
	}
	if len(values) == 0 {
		return nil, invalidInput("no parameters to change")
	}
	return values, nil
}

func changed(secret string) string {
	if secret == "" {
		return ""
	}
	return "changed"
}

func pruneEmpty(meta map[string]string) map[string]string {
	for k, v := range meta {
		if v == "" {
			delete(meta, k)
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}
