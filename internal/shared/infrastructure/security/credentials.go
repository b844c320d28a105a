package security

import (
	"crypto/subtle"
	"encoding/base64"
	"strings"
)

// BasicCredentials verifies HTTP Basic authorization headers in constant time.
type BasicCredentials struct {
	username string
	password string
}

// NewBasicCredentials creates a verifier for username:password.
func NewBasicCredentials(username, password string) BasicCredentials {
	return BasicCredentials{username: username, password: password}
}

// Enabled reports whether a password is configured.
func (c BasicCredentials) Enabled() bool {
	return c.password != ""
}

// Verify reports whether header is "Basic base64(username:password)".
func (c BasicCredentials) Verify(header string) bool {
	const prefix = "Basic "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return false
	}

	decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(header[len(prefix):]))
	if err != nil {
		return false
	}

	user, pass, ok := strings.Cut(string(decoded), ":")
	if !ok {
		return false
	}

	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(c.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(c.password)) == 1
	return userOK && passOK
}

// Header renders the Authorization header value for these credentials.
func (c BasicCredentials) Header() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(c.username+":"+c.password))
}
