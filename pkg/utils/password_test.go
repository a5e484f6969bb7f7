package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPassword_Matches(t *testing.T) {
	h, err := HashPassword("Foobar58")
	require.NoError(t, err)
	assert.NotEqual(t, "Foobar58", h)
	assert.True(t, CheckPassword("Foobar58", h))
	assert.False(t, CheckPassword("Foobar59", h))
}

func TestPasswordStrong(t *testing.T) {
	cases := map[string]bool{
		"Foobar58":                        true,
		"foobar58":                        false,
		"FOOBAR58":                        false,
		"Foobarxx":                        false,
		"Fo1":                             false,
		"Abcdefghijklmnopqrstuvwxyz12345": false, // 31
		"Abcdefghijklmnopqrstuvwxyz1234":  true,  // 30
	}
	for pw, want := range cases {
		assert.Equal(t, want, PasswordStrong(pw), pw)
	}
}

// 字符数合规但字节数超出 bcrypt 上限
func TestPasswordStrong_MultibyteFitsBcrypt(t *testing.T) {
	wide := "Aa1" + strings.Repeat("€", 27) // 30 字符，84 字节
	assert.False(t, PasswordStrong(wide))

	edge := "Aa1" + strings.Repeat("€", 23) // 72 字节
	require.True(t, PasswordStrong(edge))
	h, err := HashPassword(edge)
	require.NoError(t, err)
	assert.True(t, CheckPassword(edge, h))
}

func TestPinValid(t *testing.T) {
	assert.True(t, PinValid("1234"))
	assert.True(t, PinValid("åäöø"))
	assert.False(t, PinValid("123"))
	assert.False(t, PinValid("12345"))
}

func TestEmailValid(t *testing.T) {
	assert.True(t, EmailValid("test@moo.no"))
	assert.False(t, EmailValid("test.moo.no"))
	assert.False(t, EmailValid("test@moo"))
	assert.True(t, Blank("  "))
	assert.False(t, Blank(" a "))
}
