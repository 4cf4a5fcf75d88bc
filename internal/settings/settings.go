// Package settings stores the portal's runtime settings document (OTP policy and WhatsApp
// gateway credentials) as JSON on disk. The document is read fresh on every access.
package settings

import (
	"errors"
	"fmt"

	"genieacs-portal/internal/gateway"
)

const (
	MinOTPExpiry = 60
	MaxOTPExpiry = 3600

	DefaultOTPMessage = "Kode OTP Anda untuk login WebPortal: {{otp}}. Kode ini berlaku selama {{expiry}} menit."
	DefaultWablasURL  = "https://solo.wablas.com/api"
	DefaultMPWAURL    = "https://mpwa.id/api"
)

// ErrInvalidSettings is returned when the document or an update fails validation.
var ErrInvalidSettings = errors.New("settings: invalid")

// Settings is the whole settings document.
type Settings struct {
	OTPEnabled      bool             `json:"otpEnabled"`
	OTPExpiry       int              `json:"otpExpiry"`
	OTPLength       int              `json:"otpLength"`
	OTPMessage      string           `json:"otpMessage"`
	AdminWhatsapp   string           `json:"adminWhatsapp"`
	WhatsappGateway gateway.Provider `json:"whatsappGateway"`
	Gateways        gateway.Gateways `json:"gateways"`
}

// OTP is the OTP section of the document, updated as a unit.
type OTP struct {
	Enabled       bool   `json:"otpEnabled"`
	Expiry        int    `json:"otpExpiry"`
	Length        int    `json:"otpLength"`
	Message       string `json:"otpMessage"`
	AdminWhatsapp string `json:"adminWhatsapp"`
}

// Defaults returns the document written when none exists.
func Defaults() Settings {
	return Settings{
		OTPEnabled:      false,
		OTPExpiry:       300,
		OTPLength:       6,
		OTPMessage:      DefaultOTPMessage,
		AdminWhatsapp:   "",
		WhatsappGateway: gateway.ProviderFonnte,
		Gateways: gateway.Gateways{
			Fonnte: gateway.Credentials{},
			Wablas: gateway.Credentials{ServerURL: DefaultWablasURL},
			MPWA:   gateway.Credentials{ServerURL: DefaultMPWAURL},
		},
	}
}

// ExpiryMinutes is the OTP expiry in whole minutes.
func (s Settings) ExpiryMinutes() int {
	return s.OTPExpiry / 60
}

// Message returns the OTP template, falling back to DefaultOTPMessage when blank.
func (s Settings) Message() string {
	if s.OTPMessage == "" {
		return DefaultOTPMessage
	}
	return s.OTPMessage
}

// GatewayConfig returns the gateway selection for the dispatcher.
func (s Settings) GatewayConfig() gateway.Config {
	return gateway.Config{Selected: s.WhatsappGateway, Gateways: s.Gateways}
}

// Validate checks the whole document.
func (s Settings) Validate() error {
	if err := s.OTPSection().Validate(); err != nil {
		return err
	}
	return validateProvider(s.WhatsappGateway)
}

// OTPSection extracts the OTP section.
func (s Settings) OTPSection() OTP {
	return OTP{
		Enabled:       s.OTPEnabled,
		Expiry:        s.OTPExpiry,
		Length:        s.OTPLength,
		Message:       s.OTPMessage,
		AdminWhatsapp: s.AdminWhatsapp,
	}
}

// Validate checks expiry and length bounds.
func (o OTP) Validate() error {
	if o.Expiry < MinOTPExpiry || o.Expiry > MaxOTPExpiry {
		return fmt.Errorf("%w: otpExpiry must be between %d and %d seconds", ErrInvalidSettings, MinOTPExpiry, MaxOTPExpiry)
	}
	if o.Length != 4 && o.Length != 6 {
		return fmt.Errorf("%w: otpLength must be 4 or 6", ErrInvalidSettings)
	}
	return nil
}

func validateProvider(p gateway.Provider) error {
	if !p.Valid() {
		return fmt.Errorf("%w: unknown whatsappGateway %q", ErrInvalidSettings, p)
	}
	return nil
}
