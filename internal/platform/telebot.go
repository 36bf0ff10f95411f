package platform

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"gopkg.in/telebot.v4"
)

// Telebot implements Client on top of a telebot bot. Messages are sent as HTML.
type Telebot struct {
	bot telebot.API
}

func NewTelebot(bot telebot.API) *Telebot {
	return &Telebot{bot: bot}
}

func (t *Telebot) SendMessage(ctx context.Context, chatID int64, text string, opts *SendOptions) (models.MessageRef, error) {
	if err := ctx.Err(); err != nil {
		return models.MessageRef{}, err
	}

	sendOpts := &telebot.SendOptions{ParseMode: telebot.ModeHTML}
	if opts != nil && len(opts.Keyboard) > 0 {
		sendOpts.ReplyMarkup = inlineMarkup(opts.Keyboard)
	}

	msg, err := t.bot.Send(&telebot.Chat{ID: chatID}, text, sendOpts)
	if err != nil {
		return models.MessageRef{}, fmt.Errorf("sending message to %d: %w", chatID, err)
	}
	return models.MessageRef{ChatID: chatID, MessageID: msg.ID}, nil
}

func (t *Telebot) EditMessageText(ctx context.Context, ref models.MessageRef, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	stored := telebot.StoredMessage{
		MessageID: strconv.Itoa(ref.MessageID),
		ChatID:    ref.ChatID,
	}
	// An edit without reply markup drops the inline keyboard.
	if _, err := t.bot.Edit(stored, text, &telebot.SendOptions{ParseMode: telebot.ModeHTML}); err != nil {
		return fmt.Errorf("editing message %d in %d: %w", ref.MessageID, ref.ChatID, err)
	}
	return nil
}

func (t *Telebot) RestrictMember(ctx context.Context, chatID, memberID int64, perms Permissions, until time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	member := &telebot.ChatMember{User: &telebot.User{ID: memberID}}
	switch perms {
	case PermissionsMuted:
		member.Rights = telebot.NoRights()
	case PermissionsFull:
		member.Rights = telebot.NoRestrictions()
	default:
		return fmt.Errorf("unknown permissions %d", perms)
	}
	if !until.IsZero() {
		member.RestrictedUntil = until.Unix()
	}

	if err := t.bot.Restrict(&telebot.Chat{ID: chatID}, member); err != nil {
		return fmt.Errorf("restricting %d in %d: %w", memberID, chatID, err)
	}
	return nil
}

func (t *Telebot) RemoveMember(ctx context.Context, chatID, memberID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	member := &telebot.ChatMember{
		User:            &telebot.User{ID: memberID},
		RestrictedUntil: telebot.Forever(),
	}
	if err := t.bot.Ban(&telebot.Chat{ID: chatID}, member); err != nil {
		return fmt.Errorf("banning %d in %d: %w", memberID, chatID, err)
	}
	return nil
}

func (t *Telebot) RemoveAndReadmit(ctx context.Context, chatID, memberID int64) error {
	if err := t.RemoveMember(ctx, chatID, memberID); err != nil {
		return err
	}
	if err := t.bot.Unban(&telebot.Chat{ID: chatID}, &telebot.User{ID: memberID}); err != nil {
		return fmt.Errorf("unbanning %d in %d: %w", memberID, chatID, err)
	}
	return nil
}

func (t *Telebot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := t.bot.Respond(&telebot.Callback{ID: callbackID}, &telebot.CallbackResponse{Text: text}); err != nil {
		return fmt.Errorf("answering callback %s: %w", callbackID, err)
	}
	return nil
}

func inlineMarkup(kb Keyboard) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	rows := make([]telebot.Row, 0, len(kb))
	for _, buttons := range kb {
		row := make(telebot.Row, 0, len(buttons))
		for _, b := range buttons {
			row = append(row, markup.Data(b.Text, b.Unique, b.Data))
		}
		rows = append(rows, row)
	}
	markup.Inline(rows...)
	return markup
}

func MemberFromUser(u *telebot.User) models.Member {
	if u == nil {
		return models.Member{}
	}
	return models.Member{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		IsBot:     u.IsBot,
	}
}

func ChatFromTelebot(c *telebot.Chat) models.Chat {
	if c == nil {
		return models.Chat{}
	}
	return models.Chat{
		ID:      c.ID,
		Title:   c.Title,
		Private: c.Type == telebot.ChatPrivate,
	}
}
