package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MinNameLength     = 2
	MinPasswordLength = 8
	MaxPasswordLength = 64
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail validates an email address
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(email)
}

// ValidatePassword validates a password length in characters
func ValidatePassword(password string) bool {
	n := utf8.RuneCountInString(password)
	return n >= MinPasswordLength && n <= MaxPasswordLength
}

// ValidateName validates a display name
func ValidateName(name string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(name)) >= MinNameLength
}

// SanitizeEmail sanitizes an email address
func SanitizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Field errors for the sign-up and password forms, keyed by JSON field name
type FieldErrors map[string]string

// ValidateSignUp checks every sign-up field and returns the failures
func ValidateSignUp(name, email, password, confirm string) FieldErrors {
	errs := FieldErrors{}
	if !ValidateName(name) {
		errs["name"] = "Please provide your name"
	}
	if !ValidateEmail(email) {
		errs["email"] = "Invalid email address"
	}
	errs.addPassword(password, confirm)
	return errs
}

// ValidateNewPassword checks a new password and its confirmation
func ValidateNewPassword(password, confirm string) FieldErrors {
	errs := FieldErrors{}
	errs.addPassword(password, confirm)
	return errs
}

func (f FieldErrors) addPassword(password, confirm string) {
	switch n := utf8.RuneCountInString(password); {
	case n < MinPasswordLength:
		f["password"] = "Password must be at least 8 characters"
	case n > MaxPasswordLength:
		f["password"] = "Password must be less than 64 characters"
	}
	if password != confirm {
		f["confirmPassword"] = "Passwords do not match"
	}
}
