package monitor

import (
	"context"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/platform"
	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

// UpdateContext carries one telebot update through the handlers together with
// its deadline and a logger tagged with the update's identifiers.
type UpdateContext struct {
	context.Context
	tc  telebot.Context
	log *logrus.Entry
}

func NewUpdateContext(c context.Context, tc telebot.Context) *UpdateContext {
	fields := logrus.Fields{
		"update_id": tc.Update().ID,
	}
	if chat := tc.Chat(); chat != nil {
		fields["chat_id"] = chat.ID
		fields["chat_type"] = chat.Type
	}
	if sender := tc.Sender(); sender != nil {
		fields["sender_id"] = sender.ID
		fields["sender_username"] = sender.Username
	}
	if cb := tc.Callback(); cb != nil {
		fields["callback_id"] = cb.ID
	}

	return &UpdateContext{
		Context: c,
		tc:      tc,
		log:     logrus.WithFields(fields),
	}
}

func (uc *UpdateContext) L() *logrus.Entry {
	return uc.log
}

func (uc *UpdateContext) Message() *telebot.Message {
	return uc.tc.Message()
}

func (uc *UpdateContext) Callback() *telebot.Callback {
	return uc.tc.Callback()
}

func (uc *UpdateContext) HasChat() bool {
	return uc.tc.Chat() != nil
}

func (uc *UpdateContext) Chat() models.Chat {
	return platform.ChatFromTelebot(uc.tc.Chat())
}

// Sender reports false for updates without a user, e.g. channel posts.
func (uc *UpdateContext) Sender() (models.Member, bool) {
	if uc.tc.Sender() == nil {
		return models.Member{}, false
	}
	return platform.MemberFromUser(uc.tc.Sender()), true
}

// ReplyTarget is the author of the message being replied to, if any.
func (uc *UpdateContext) ReplyTarget() *models.Member {
	msg := uc.tc.Message()
	if msg == nil || msg.ReplyTo == nil || msg.ReplyTo.Sender == nil {
		return nil
	}
	target := platform.MemberFromUser(msg.ReplyTo.Sender)
	return &target
}

func (uc *UpdateContext) InGroup() bool {
	chat := uc.tc.Chat()
	return chat != nil && (chat.Type == telebot.ChatGroup || chat.Type == telebot.ChatSuperGroup)
}
