package otp

import (
	"crypto/rand"
	"errors"
)

// ErrInvalidLength is returned when a code of non-positive length is requested.
var ErrInvalidLength = errors.New("otp: length must be positive")

// Generate returns length independent random decimal digits (leading zeros allowed).
// Uses crypto/rand; bytes >= 250 are rejected so every digit is equally likely.
func Generate(length int) (string, error) {
	if length <= 0 {
		return "", ErrInvalidLength
	}
	s := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(s) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			s = append(s, '0'+b%10)
			if len(s) == length {
				break
			}
		}
	}
	return string(s), nil
}
