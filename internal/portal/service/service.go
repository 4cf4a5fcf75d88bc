// Package service implements the customer and admin portal flows on top of the device
// directory, the settings document, the OTP engine, and the message gateway.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	auditdomain "genieacs-portal/internal/audit/domain"
	"genieacs-portal/internal/device/domain"
	"genieacs-portal/internal/gateway"
	"genieacs-portal/internal/genieacs"
	"genieacs-portal/internal/otp"
	"genieacs-portal/internal/security"
	"genieacs-portal/internal/settings"
)

// Sentinel errors; the HTTP handler maps them to status codes.
var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrCustomerNotFound     = errors.New("customer number not found")
	ErrDeviceNotFound       = errors.New("device not found")
	ErrOTPSendFailed        = errors.New("failed to send OTP")
	ErrInvalidOTP           = errors.New("invalid or expired OTP")
	ErrInvalidCredentials   = errors.New("invalid admin credentials")
	ErrAdminWhatsappMissing = errors.New("admin WhatsApp number is not configured")
	ErrGatewaySendFailed    = errors.New("failed to send test message")
	ErrUpstream             = errors.New("device management platform error")
)

// TestMessage is sent to the admin number by TestGateway.
const TestMessage = "Ini adalah pesan test dari WebPortal. Jika Anda menerima pesan ini, berarti pengaturan WhatsApp gateway berhasil."

var digitsOnly = regexp.MustCompile(`^\d+$`)

// Directory is the subset of the GenieACS client used by the portal.
type Directory interface {
	ListDevices(ctx context.Context) ([]domain.Record, error)
	QueryDeviceByID(ctx context.Context, id string) (domain.Record, error)
	GetDevice(ctx context.Context, id string) (domain.Record, error)
	FindByTag(ctx context.Context, tag string) (domain.Record, error)
	PostTask(ctx context.Context, deviceID string, task genieacs.Task, opts genieacs.TaskOptions) error
	AddTag(ctx context.Context, deviceID, tag string) error
	DeleteTag(ctx context.Context, deviceID, tag string) error
}

// SettingsStore reads and writes the settings document.
type SettingsStore interface {
	Load() (settings.Settings, error)
	SaveOTP(o settings.OTP) (settings.Settings, error)
	SaveGateway(provider gateway.Provider, gateways gateway.Gateways) (settings.Settings, error)
}

// OTPEngine issues and verifies login codes. *otp.Engine implements it.
type OTPEngine interface {
	Issue(ctx context.Context, key, phone string, p otp.Policy) bool
	Verify(ctx context.Context, key, code string) bool
}

// SessionIssuer mints session tokens. *security.SessionTokens implements it.
type SessionIssuer interface {
	IssueCustomer(username, deviceID string) (string, security.Session, error)
	IssueAdmin(username string) (string, security.Session, error)
}

// AdminVerifier checks the admin login. *security.AdminCredentials implements it.
type AdminVerifier interface {
	Verify(username, password string) bool
}

// AuditTrail reads recent audit entries. *audit.Logger implements it.
type AuditTrail interface {
	Recent(ctx context.Context, deviceID string, limit int) ([]*auditdomain.AuditLog, error)
}

// SessionResult is a freshly issued session and its signed token.
type SessionResult struct {
	Token   string
	Session security.Session
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// upstream classifies a directory error: missing devices map to notFound, the rest to ErrUpstream.
func upstream(err, notFound error) error {
	if errors.Is(err, genieacs.ErrDeviceNotFound) {
		return notFound
	}
	return fmt.Errorf("%w: %v", ErrUpstream, err)
}

func validateCustomerNumber(number string) (string, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return "", invalidInput("customer number is required")
	}
	if !digitsOnly.MatchString(number) {
		return "", invalidInput("customer number must be numeric")
	}
	return number, nil
}

// sleep waits d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
