package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckPassword(t *testing.T) {
	attrs := PasswordContext{Email: "alice.smith@x.com", Username: "alicesmith", FirstName: "Alice", LastName: "Smith"}
	cases := []struct {
		name     string
		password string
		want     []string
	}{
		{"acceptable", "P@ssw0rd1", nil},
		{"too short", "Xy7!", []string{"This password is too short. It must contain at least 8 characters."}},
		{"numeric", "9081726354", []string{"This password is entirely numeric."}},
		{"common", "Password123", []string{"This password is too common."}},
		{"similar to username", "alicesmith1", []string{"The password is too similar to the username."}},
		{"similar to email", "smith@x.com", []string{"The password is too similar to the email address."}},
		{"too long", strings.Repeat("Zq9!", 19), []string{"This password is too long. It must contain at most 72 bytes."}},
		{"short and numeric", "1234", []string{
			"This password is too short. It must contain at least 8 characters.",
			"This password is entirely numeric.",
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CheckPassword(tc.password, attrs))
		})
	}
}

func TestQuickRatio(t *testing.T) {
	assert.InDelta(t, 1.0, quickRatio("abc", "cba"), 1e-9)
	assert.InDelta(t, 0.0, quickRatio("abc", "xyz"), 1e-9)
	assert.InDelta(t, 0.5, quickRatio("ab", "ax"), 1e-9)
}
