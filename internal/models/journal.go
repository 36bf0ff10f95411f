package models

import (
	"fmt"
	"time"
)

type JournalChannel string

const (
	JournalChannelAdmin JournalChannel = "admin"
	JournalChannelChat  JournalChannel = "chat"
	JournalChannelError JournalChannel = "error"
)

type JournalEntry struct {
	ID      string         `gorm:"type:uuid;primaryKey"`
	Channel JournalChannel `gorm:"index:idx_journal_chat_channel"`
	ChatID  int64          `gorm:"index:idx_journal_chat_channel"`

	Actor    string
	TargetID int64
	Action   string
	Message  string

	Details map[string]any `gorm:"type:jsonb;serializer:json"`

	CreatedAt time.Time `gorm:"autoCreateTime;index"`
}

func (e *JournalEntry) String() string {
	return fmt.Sprintf(
		"JournalEntry(%s, %s, chat=%d, actor=%s, action=%q, target=%d)",
		e.ID,
		e.Channel,
		e.ChatID,
		e.Actor,
		e.Action,
		e.TargetID,
	)
}
