package verification

import (
	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
)

// Event is one inbound occurrence handled by the loop. The set is closed.
type Event interface {
	Kind() string
	isEvent()
}

type JoinEvent struct {
	Chat   models.Chat
	Member models.Member
}

type LeaveEvent struct {
	Chat   models.Chat
	Member models.Member
}

type MessageEvent struct {
	Chat      models.Chat
	Sender    models.Member
	Text      string
	IsPrivate bool

	// ReplyTo is the author of the message this one replies to.
	ReplyTo *models.Member
}

type CallbackEvent struct {
	ID      string
	Chat    models.Chat
	Actor   models.Member
	Data    string
	Message models.MessageRef
}

// TimeoutEvent is posted by the scheduler when a captcha deadline passes.
type TimeoutEvent struct {
	ChatID      int64
	MemberID    int64
	ChallengeID string
}

func (JoinEvent) Kind() string     { return "join" }
func (LeaveEvent) Kind() string    { return "leave" }
func (MessageEvent) Kind() string  { return "message" }
func (CallbackEvent) Kind() string { return "callback" }
func (TimeoutEvent) Kind() string  { return "timeout" }

func (JoinEvent) isEvent()     {}
func (LeaveEvent) isEvent()    {}
func (MessageEvent) isEvent()  {}
func (CallbackEvent) isEvent() {}
func (TimeoutEvent) isEvent()  {}
