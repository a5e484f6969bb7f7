package utils

import (
	"regexp"
	"strings"
)

var emailRe = regexp.MustCompile(`^(.+)@(.+)\.(.+)$`)

func EmailValid(email string) bool { return emailRe.MatchString(email) }

func Blank(s string) bool { return strings.TrimSpace(s) == "" }
