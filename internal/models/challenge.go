package models

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/scheduler"
)

const (
	// CaptchaAlphabet leaves out I, O, 0 and 1.
	CaptchaAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CaptchaLength      = 6
	MaxCaptchaAttempts = 3
)

type MessageRef struct {
	ChatID    int64
	MessageID int
}

func (r MessageRef) IsZero() bool {
	return r.MessageID == 0
}

// Challenge is a pending captcha for one member of one chat.
type Challenge struct {
	ID     string
	ChatID int64
	Member Member

	Code         string
	AttemptsUsed int

	IssuedAt  time.Time
	ExpiresAt time.Time

	Prompt  MessageRef
	Timeout *scheduler.Task
}

func NewCaptchaCode() string {
	alphabetSize := big.NewInt(int64(len(CaptchaAlphabet)))
	var sb strings.Builder
	for i := 0; i < CaptchaLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			panic(err)
		}
		sb.WriteByte(CaptchaAlphabet[n.Int64()])
	}
	return sb.String()
}

func (c *Challenge) Matches(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), c.Code)
}

// RecordFailure counts a wrong answer and reports how many attempts are left.
func (c *Challenge) RecordFailure() (remaining int, exhausted bool) {
	if c.AttemptsUsed < MaxCaptchaAttempts {
		c.AttemptsUsed++
	}
	remaining = MaxCaptchaAttempts - c.AttemptsUsed
	return remaining, remaining == 0
}

type ApprovalRequest struct {
	Member      Member
	Prompt      MessageRef
	RequestedAt time.Time
}
