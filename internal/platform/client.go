package platform

import (
	"context"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
)

type Button struct {
	Text   string
	Unique string
	Data   string
}

type Keyboard [][]Button

type SendOptions struct {
	Keyboard Keyboard
}

type Permissions int

const (
	PermissionsMuted Permissions = iota
	PermissionsFull
)

// Client is the messaging platform as seen by the moderation engine. Every
// call may fail with a transport error; callers log and carry on.
type Client interface {
	SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (models.MessageRef, error)
	EditMessageText(ctx context.Context, ref models.MessageRef, text string) error
	RestrictMember(ctx context.Context, chatID, memberID int64, perms Permissions, until time.Time) error
	// RemoveMember bans the member from the chat.
	RemoveMember(ctx context.Context, chatID, memberID int64) error
	// RemoveAndReadmit kicks: the member is removed but may join again.
	RemoveAndReadmit(ctx context.Context, chatID, memberID int64) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
}
