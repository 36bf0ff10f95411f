package models

import (
	"fmt"
	"strings"
	"time"
)

type VerificationMode string

const (
	VerificationModeCaptcha VerificationMode = "captcha"
	VerificationModeAdmin   VerificationMode = "admin"
	VerificationModeNone    VerificationMode = "none"
)

func ParseVerificationMode(s string) (VerificationMode, error) {
	switch mode := VerificationMode(strings.ToLower(strings.TrimSpace(s))); mode {
	case VerificationModeCaptcha, VerificationModeAdmin, VerificationModeNone:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown verification mode %q", s)
	}
}

const (
	DefaultWelcomeMessage        = "👋 Welcome {name}! Please complete the verification."
	DefaultRules                 = "🚫 No advertising\n🚫 No personal attacks\n🚫 No sensitive content"
	DefaultCaptchaTimeoutMinutes = 5

	namePlaceholder = "{name}"
)

// GroupSettings is the configuration and mutable moderation state of one chat.
// It is owned by the event loop and must not be touched from other goroutines.
type GroupSettings struct {
	ChatID int64

	VerificationMode      VerificationMode
	WelcomeMessage        string
	Rules                 string
	CaptchaTimeoutMinutes int

	PendingVerifications map[int64]*Challenge
	PendingApprovals     map[int64]*ApprovalRequest
	Punishments          *Ledger
}

func NewGroupSettings(chatID int64, captchaTimeoutMinutes int, now func() time.Time) *GroupSettings {
	if captchaTimeoutMinutes <= 0 {
		captchaTimeoutMinutes = DefaultCaptchaTimeoutMinutes
	}
	return &GroupSettings{
		ChatID:                chatID,
		VerificationMode:      VerificationModeCaptcha,
		WelcomeMessage:        DefaultWelcomeMessage,
		Rules:                 DefaultRules,
		CaptchaTimeoutMinutes: captchaTimeoutMinutes,
		PendingVerifications:  make(map[int64]*Challenge),
		PendingApprovals:      make(map[int64]*ApprovalRequest),
		Punishments:           NewLedger(now),
	}
}

func (s *GroupSettings) CaptchaTimeout() time.Duration {
	return time.Duration(s.CaptchaTimeoutMinutes) * time.Minute
}

func (s *GroupSettings) Welcome(name string) string {
	return strings.ReplaceAll(s.WelcomeMessage, namePlaceholder, name)
}

func (s *GroupSettings) String() string {
	return fmt.Sprintf(
		"GroupSettings(%d, mode=%s, timeout=%dm, pending=%d, approvals=%d, punishments=%d)",
		s.ChatID,
		s.VerificationMode,
		s.CaptchaTimeoutMinutes,
		len(s.PendingVerifications),
		len(s.PendingApprovals),
		s.Punishments.Len(),
	)
}
