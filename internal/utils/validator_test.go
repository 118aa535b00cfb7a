package utils

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("a@x.com"))
	assert.True(t, ValidateEmail("first.last+tag@sub.example.org"))
	assert.False(t, ValidateEmail("no-at-sign"))
	assert.False(t, ValidateEmail("a@x"))
	assert.False(t, ValidateEmail(""))
}

func TestValidatePassword(t *testing.T) {
	assert.False(t, ValidatePassword("short"))
	assert.True(t, ValidatePassword("Passw0rd!"))
	assert.True(t, ValidatePassword(strings.Repeat("a", 64)))
	assert.False(t, ValidatePassword(strings.Repeat("a", 65)))
}

func TestSanitizeEmail(t *testing.T) {
	assert.Equal(t, "a@x.com", SanitizeEmail("  A@X.com "))
}

func TestValidateSignUp(t *testing.T) {
	errs := ValidateSignUp("A", "bad", "short", "other")
	assert.Len(t, errs, 4)
	assert.Contains(t, errs, "name")
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
	assert.Contains(t, errs, "confirmPassword")

	assert.Empty(t, ValidateSignUp("Alice", "a@x.com", "Passw0rd!", "Passw0rd!"))
}

func TestValidateNewPassword(t *testing.T) {
	errs := ValidateNewPassword(strings.Repeat("a", 70), strings.Repeat("a", 70))
	assert.Equal(t, "Password must be less than 64 characters", errs["password"])
	assert.NotContains(t, errs, "confirmPassword")
}

func TestCheckPasswordHash(t *testing.T) {
	hash, err := HashPassword("Passw0rd!", 4)
	assert.NoError(t, err)

	assert.True(t, CheckPasswordHash("Passw0rd!", &hash))
	assert.False(t, CheckPasswordHash("wrong", &hash))
	assert.False(t, CheckPasswordHash("Passw0rd!", nil))
}
