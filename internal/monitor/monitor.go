package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/platform"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/verification"
	"gopkg.in/telebot.v4"
)

// Submitter is the event loop as seen from the update handlers.
type Submitter interface {
	Submit(ctx context.Context, ev verification.Event) error
}

// Monitor turns telebot updates into loop events. The bot runs handlers
// synchronously, so events reach the loop in update order.
type Monitor struct {
	loop          Submitter
	handleTimeout time.Duration
}

func New(loop Submitter, handleTimeout time.Duration) *Monitor {
	return &Monitor{
		loop:          loop,
		handleTimeout: handleTimeout,
	}
}

func (m *Monitor) Register(bot *telebot.Bot) {
	for _, updateType := range []string{
		telebot.OnText,
		telebot.OnUserJoined,
		telebot.OnUserLeft,
	} {
		bot.Handle(updateType, m.HandleAnyUpdate)
	}
	bot.Handle(telebot.OnCallback, m.HandleCallback)
}

func (m *Monitor) HandleAnyUpdate(c telebot.Context) error {
	// Queue wait plus handling time.
	ctx, cancel := context.WithTimeout(context.Background(), 2*m.handleTimeout)
	defer cancel()

	uc := NewUpdateContext(ctx, c)

	if uc.Message() == nil || !uc.HasChat() {
		uc.L().Debugf("ignoring update without message")
		return nil
	}

	uc.L().Debugf(
		"Received update message=%v, user_joined=%v, user_left=%v",
		uc.Message().ID,
		uc.Message().UserJoined,
		uc.Message().UserLeft,
	)

	switch {
	case uc.Message().UserJoined != nil || len(uc.Message().UsersJoined) > 0:
		if err := m.HandleUserJoined(uc); err != nil {
			uc.L().Errorf("failed to handle user joined: %v", err)
		}
	case uc.Message().UserLeft != nil:
		if err := m.HandleChatLeft(uc); err != nil {
			uc.L().Errorf("failed to handle chat left: %v", err)
		}
	default:
		if err := m.HandleMessage(uc); err != nil {
			uc.L().Errorf("failed to handle message: %v", err)
		}
	}

	return nil
}

func (m *Monitor) HandleUserJoined(uc *UpdateContext) error {
	chat := uc.Chat()
	if !uc.InGroup() {
		uc.L().Debugf("ignoring join in non-group chat %d", chat.ID)
		return nil
	}

	for _, member := range joinedMembers(uc.Message()) {
		uc.L().Infof("User %s (%d) joined the chat %d", member.DisplayName(), member.ID, chat.ID)

		if err := m.submit(uc, verification.JoinEvent{
			Chat:   chat,
			Member: member,
		}); err != nil {
			return err
		}
	}
	return nil
}

// joinedMembers prefers new_chat_members; the single new_chat_member field
// only names the first of them.
func joinedMembers(msg *telebot.Message) []models.Member {
	if len(msg.UsersJoined) == 0 {
		return []models.Member{platform.MemberFromUser(msg.UserJoined)}
	}
	members := make([]models.Member, 0, len(msg.UsersJoined))
	for i := range msg.UsersJoined {
		members = append(members, platform.MemberFromUser(&msg.UsersJoined[i]))
	}
	return members
}

func (m *Monitor) HandleChatLeft(uc *UpdateContext) error {
	chat := uc.Chat()
	member := platform.MemberFromUser(uc.Message().UserLeft)
	uc.L().Infof("User %s (%d) left the chat %d", member.DisplayName(), member.ID, chat.ID)

	return m.submit(uc, verification.LeaveEvent{
		Chat:   chat,
		Member: member,
	})
}

func (m *Monitor) HandleMessage(uc *UpdateContext) error {
	sender, ok := uc.Sender()
	if !ok {
		uc.L().Debugf("ignoring message without sender")
		return nil
	}

	chat := uc.Chat()
	return m.submit(uc, verification.MessageEvent{
		Chat:      chat,
		Sender:    sender,
		Text:      uc.Message().Text,
		IsPrivate: chat.Private,
		ReplyTo:   uc.ReplyTarget(),
	})
}

func (m *Monitor) HandleCallback(c telebot.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*m.handleTimeout)
	defer cancel()

	uc := NewUpdateContext(ctx, c)

	cb := uc.Callback()
	if cb == nil || cb.Message == nil || cb.Message.Chat == nil {
		uc.L().Debugf("ignoring callback without message")
		return nil
	}

	ev := verification.CallbackEvent{
		ID:    cb.ID,
		Chat:  platform.ChatFromTelebot(cb.Message.Chat),
		Actor: platform.MemberFromUser(cb.Sender),
		Data:  cb.Data,
		Message: models.MessageRef{
			ChatID:    cb.Message.Chat.ID,
			MessageID: cb.Message.ID,
		},
	}
	if err := m.submit(uc, ev); err != nil {
		uc.L().Errorf("failed to handle callback: %v", err)
	}
	return nil
}

func (m *Monitor) submit(uc *UpdateContext, ev verification.Event) error {
	err := m.loop.Submit(uc, ev)
	if errors.Is(err, verification.ErrLoopStopped) {
		uc.L().Warnf("dropping %s event, shutting down", ev.Kind())
		return nil
	}
	if err != nil {
		return fmt.Errorf("submitting %s event: %w", ev.Kind(), err)
	}
	return nil
}
