package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVerificationMode(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  VerificationMode
	}{
		{"captcha", VerificationModeCaptcha},
		{"ADMIN", VerificationModeAdmin},
		{" none ", VerificationModeNone},
	} {
		got, err := ParseVerificationMode(tc.input)
		require.NoError(t, err, tc.input)
		require.Equal(t, tc.want, got)
	}

	_, err := ParseVerificationMode("xyz")
	require.Error(t, err)
	_, err = ParseVerificationMode("")
	require.Error(t, err)
}

func TestNewGroupSettingsDefaults(t *testing.T) {
	a := assert.New(t)
	s := NewGroupSettings(-100, 0, nil)

	a.Equal(int64(-100), s.ChatID)
	a.Equal(VerificationModeCaptcha, s.VerificationMode)
	a.Equal(DefaultWelcomeMessage, s.WelcomeMessage)
	a.Equal(DefaultRules, s.Rules)
	a.Equal(DefaultCaptchaTimeoutMinutes, s.CaptchaTimeoutMinutes)
	a.Equal(5*time.Minute, s.CaptchaTimeout())
	a.Empty(s.PendingVerifications)
	a.Empty(s.PendingApprovals)
	a.Equal(0, s.Punishments.Len())

	a.Equal(7*time.Minute, NewGroupSettings(-100, 7, nil).CaptchaTimeout())
}

func TestGroupSettingsWelcome(t *testing.T) {
	a := assert.New(t)
	s := NewGroupSettings(-100, 5, nil)

	a.Equal("👋 Welcome @bob! Please complete the verification.", s.Welcome("@bob"))

	s.WelcomeMessage = "{name}, hi {name}"
	a.Equal("Ann, hi Ann", s.Welcome("Ann"))

	s.WelcomeMessage = "Hello there"
	a.Equal("Hello there", s.Welcome("Ann"))
}

func TestMemberDisplayName(t *testing.T) {
	a := assert.New(t)

	a.Equal("@bob", Member{ID: 1, Username: "bob", FirstName: "Bob"}.DisplayName())
	a.Equal("Bob Smith", Member{ID: 1, FirstName: "Bob", LastName: "Smith"}.DisplayName())
	a.Equal("Bob", Member{ID: 1, FirstName: "Bob"}.DisplayName())
	a.Equal("user 7", Member{ID: 7}.DisplayName())
}
