package utils

import (
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(pw, hashed string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(pw)) == nil
}

// bcrypt 只接受 72 字节以内的输入
const bcryptMaxBytes = 72

// PasswordStrong 8~30 个字符且不超过 72 字节，至少一个大写、一个小写、一个数字
func PasswordStrong(pw string) bool {
	n := utf8.RuneCountInString(pw)
	if n < 8 || n > 30 || len(pw) > bcryptMaxBytes {
		return false
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	return upper && lower && digit
}

// PinValid pin 固定 4 个字符
func PinValid(pin string) bool { return utf8.RuneCountInString(pin) == 4 }
