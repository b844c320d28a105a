package security

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
)

func basic(s string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(s))
}

func TestBasicCredentials_Verify(t *testing.T) {
	creds := NewBasicCredentials("Paycom", "s3cret")

	tests := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "valid", header: basic("Paycom:s3cret"), want: true},
		{name: "lowercase scheme", header: "basic " + base64.StdEncoding.EncodeToString([]byte("Paycom:s3cret")), want: true},
		{name: "wrong password", header: basic("Paycom:nope"), want: false},
		{name: "wrong user", header: basic("Click:s3cret"), want: false},
		{name: "missing colon", header: basic("Paycom"), want: false},
		{name: "not base64", header: "Basic %%%", want: false},
		{name: "bearer", header: "Bearer abc", want: false},
		{name: "empty", header: "", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, creds.Verify(tt.header))
		})
	}
}

func TestBasicCredentials_HeaderRoundTrip(t *testing.T) {
	creds := NewBasicCredentials("Paycom", "key:with:colons")

	assert.True(t, creds.Enabled())
	assert.True(t, creds.Verify(creds.Header()))
	assert.False(t, NewBasicCredentials("Paycom", "").Enabled())
}

func TestSanitizeInput(t *testing.T) {
	assert.Equal(t, "u1", SanitizeInput("  u1 "))
	assert.Equal(t, "scriptalert(1)/script", SanitizeInput("<script>alert(1)</script>"))
	assert.Equal(t, "abc", SanitizeInput(`a'b"c;`))
	assert.Len(t, SanitizeInput(string(make([]byte, 2000))), MaxInputLength)
}
