package security

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to 4–31.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	cost = max(bcrypt.MinCost, min(cost, bcrypt.MaxCost))
	return &Hasher{Cost: cost}
}

// Hash produces a bcrypt hash of password.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare returns nil if password matches hash.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// AdminCredentials checks the single portal administrator login.
type AdminCredentials struct {
	Username string
	// PasswordHash is a bcrypt hash; when set, Password is ignored.
	PasswordHash string
	// Password is a plain-text development fallback.
	Password string
	hasher   *Hasher
}

// NewAdminCredentials returns the admin login check.
func NewAdminCredentials(username, passwordHash, password string) *AdminCredentials {
	return &AdminCredentials{
		Username:     username,
		PasswordHash: passwordHash,
		Password:     password,
		hasher:       NewHasher(0),
	}
}

// Verify reports whether username and password match. The password is checked even when
// the username is wrong so timing does not reveal which one failed.
func (a *AdminCredentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(a.Username)) == 1
	var passOK bool
	switch {
	case a.PasswordHash != "":
		passOK = a.hasher.Compare(a.PasswordHash, []byte(password)) == nil
	case a.Password != "":
		passOK = subtle.ConstantTimeCompare([]byte(password), []byte(a.Password)) == 1
	}
	return userOK && passOK && a.Username != ""
}
