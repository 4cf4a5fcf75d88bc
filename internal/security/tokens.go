package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned when the signing secret is too short.
	ErrWeakSecret = errors.New("session secret must be at least 16 bytes")
)

// Role is the kind of principal a session belongs to.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

const sessionIssuer = "genieacs-portal"

// SessionClaims are carried in the session cookie.
type SessionClaims struct {
	jwt.RegisteredClaims
	Role Role `json:"role"`
	// Username is the customer number for customers and the login name for admins.
	Username string `json:"username"`
	// DeviceID is the device bound to a customer session; empty for admins.
	DeviceID string `json:"device_id,omitempty"`
}

// Session is a validated session.
type Session struct {
	ID        string
	Role      Role
	Username  string
	DeviceID  string
	ExpiresAt time.Time
}

// IsAdmin reports whether the session belongs to an administrator.
func (s Session) IsAdmin() bool { return s.Role == RoleAdmin }

// SessionTokens issues and validates HS256 session tokens.
type SessionTokens struct {
	secret []byte
	ttl    time.Duration
	nowF   func() time.Time
}

// NewSessionTokens returns SessionTokens signing with secret.
func NewSessionTokens(secret []byte, ttl time.Duration) (*SessionTokens, error) {
	if len(secret) < 16 {
		return nil, ErrWeakSecret
	}
	return &SessionTokens{secret: secret, ttl: ttl, nowF: time.Now}, nil
}

// TTL returns the session lifetime.
func (p *SessionTokens) TTL() time.Duration { return p.ttl }

// IssueCustomer issues a session bound to deviceID for the customer identified by username.
func (p *SessionTokens) IssueCustomer(username, deviceID string) (string, Session, error) {
	return p.issue(RoleCustomer, username, deviceID)
}

// IssueAdmin issues an admin session.
func (p *SessionTokens) IssueAdmin(username string) (string, Session, error) {
	return p.issue(RoleAdmin, username, "")
}

func (p *SessionTokens) issue(role Role, username, deviceID string) (string, Session, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", Session{}, err
	}
	now := p.nowF().UTC()
	expiresAt := now.Add(p.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   username,
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:     role,
		Username: username,
		DeviceID: deviceID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", Session{}, err
	}
	return token, Session{ID: jti, Role: role, Username: username, DeviceID: deviceID, ExpiresAt: expiresAt}, nil
}

// Validate parses and validates tokenString (signature, exp, iss, role).
func (p *SessionTokens) Validate(tokenString string) (Session, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); ok {
			return p.secret, nil
		}
		return nil, ErrInvalidToken
	},
		jwt.WithIssuer(sessionIssuer),
		jwt.WithTimeFunc(p.nowF),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Session{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	switch claims.Role {
	case RoleAdmin:
	case RoleCustomer:
		if claims.DeviceID == "" {
			return Session{}, ErrInvalidToken
		}
	default:
		return Session{}, ErrInvalidToken
	}
	return Session{
		ID:        claims.ID,
		Role:      claims.Role,
		Username:  claims.Username,
		DeviceID:  claims.DeviceID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
