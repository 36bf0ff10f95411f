package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCaptchaCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		code := NewCaptchaCode()
		require.Len(t, code, CaptchaLength)
		for _, r := range code {
			require.True(t, strings.ContainsRune(CaptchaAlphabet, r), "unexpected symbol %q in %s", r, code)
		}
		seen[code] = struct{}{}
	}
	require.Greater(t, len(seen), 90)
}

func TestChallengeMatches(t *testing.T) {
	a := assert.New(t)
	ch := &Challenge{Code: "AB23CD"}

	a.True(ch.Matches("AB23CD"))
	a.True(ch.Matches(" ab23cd "))
	a.True(ch.Matches("Ab23cD\n"))
	a.False(ch.Matches("AB23C"))
	a.False(ch.Matches("AB 23CD"))
	a.False(ch.Matches(""))
}

func TestChallengeRecordFailure(t *testing.T) {
	a := assert.New(t)
	ch := &Challenge{Code: "AB23CD"}

	remaining, exhausted := ch.RecordFailure()
	a.Equal(2, remaining)
	a.False(exhausted)

	remaining, exhausted = ch.RecordFailure()
	a.Equal(1, remaining)
	a.False(exhausted)

	remaining, exhausted = ch.RecordFailure()
	a.Equal(0, remaining)
	a.True(exhausted)
	a.Equal(MaxCaptchaAttempts, ch.AttemptsUsed)

	remaining, exhausted = ch.RecordFailure()
	a.Equal(0, remaining)
	a.True(exhausted)
	a.Equal(MaxCaptchaAttempts, ch.AttemptsUsed)
}
