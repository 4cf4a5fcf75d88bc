package otp

import (
	"strconv"
	"strings"
)

const (
	codePlaceholder   = "{{otp}}"
	expiryPlaceholder = "{{expiry}}"
)

// RenderMessage substitutes the first {{otp}} with code and the first {{expiry}} with the
// expiry in whole minutes (floor of expirySeconds/60).
func RenderMessage(template, code string, expirySeconds int) string {
	msg := strings.Replace(template, codePlaceholder, code, 1)
	return strings.Replace(msg, expiryPlaceholder, strconv.Itoa(expirySeconds/60), 1)
}
