package verification

import (
	"context"
	"fmt"
	"html"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/authutil"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/command"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/metrics"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/platform"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/scheduler"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/storage"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	OutcomeVerified       = "verified"
	OutcomeKickedTimeout  = "kicked_timeout"
	OutcomeKickedAttempts = "kicked_attempts"
	OutcomeAdminApproved  = "admin_approved"
	OutcomeAdminRejected  = "admin_rejected"
	OutcomeAutoBanned     = "auto_banned"
	OutcomeWelcomed       = "welcomed"
)

type Deps struct {
	Store     *storage.SettingsStore
	Client    platform.Client
	Journal   journal.Sink
	Scheduler scheduler.Scheduler
	Admins    *authutil.Admins

	// Enqueue hands a scheduled timeout back to the event loop.
	Enqueue func(Event)
	Now     func() time.Time

	Weather WeatherLookup
	Quotes  QuoteLookup
}

// Coordinator owns the per-(chat, member) verification state machine.
// It is not safe for concurrent use; the Loop serialises all calls.
//
// Every terminal transition first removes the pending record and cancels its
// timeout, and only then talks to the platform. Whoever removes the record
// wins; every other path finds it absent and does nothing.
type Coordinator struct {
	store   *storage.SettingsStore
	client  platform.Client
	journal journal.Sink
	sched   scheduler.Scheduler
	admins  *authutil.Admins
	enqueue func(Event)
	now     func() time.Time

	moderator *Moderator
	log       *logrus.Entry
}

func NewCoordinator(deps Deps) *Coordinator {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	c := &Coordinator{
		store:   deps.Store,
		client:  deps.Client,
		journal: deps.Journal,
		sched:   deps.Scheduler,
		admins:  deps.Admins,
		enqueue: deps.Enqueue,
		now:     deps.Now,
		log:     logrus.WithField("component", "coordinator"),
	}
	c.moderator = newModerator(c, deps.Weather, deps.Quotes)
	return c
}

func (c *Coordinator) Handle(ctx context.Context, ev Event) error {
	defer metrics.SetPending(c.store.PendingCount())

	switch ev := ev.(type) {
	case JoinEvent:
		return c.OnJoin(ctx, ev)
	case LeaveEvent:
		return c.OnLeave(ctx, ev)
	case MessageEvent:
		return c.OnMessage(ctx, ev)
	case CallbackEvent:
		return c.OnCallback(ctx, ev)
	case TimeoutEvent:
		return c.OnTimeout(ctx, ev)
	default:
		return fmt.Errorf("unexpected event %T", ev)
	}
}

func (c *Coordinator) OnJoin(ctx context.Context, ev JoinEvent) error {
	settings := c.store.GetOrCreate(ev.Chat.ID)
	member := ev.Member
	log := c.log.WithFields(logrus.Fields{"chat_id": ev.Chat.ID, "member_id": member.ID})

	c.journal.Admin(ctx, ev.Chat.ID, models.SystemIssuer, "new_member", member.ID, map[string]any{
		"name": member.DisplayName(),
	})

	if member.IsBot {
		log.Infof("bot %s joined, ignoring", member.DisplayName())
		return nil
	}

	if settings.Punishments.IsBannedNow(member.ID) {
		p, _ := settings.Punishments.Get(member.ID)
		log.Infof("member is banned (%v), removing", p)
		if err := c.client.RemoveMember(ctx, ev.Chat.ID, member.ID); err != nil {
			c.transportError(ctx, ev.Chat.ID, "remove_member", "auto ban failed", err)
		} else {
			c.journal.Admin(ctx, ev.Chat.ID, models.SystemIssuer, "auto_ban", member.ID, map[string]any{
				"reason": p.Reason,
			})
		}
		metrics.IncOutcome(OutcomeAutoBanned)
		return nil
	}

	switch settings.VerificationMode {
	case models.VerificationModeCaptcha:
		c.startChallenge(ctx, ev.Chat, settings, member)
	case models.VerificationModeAdmin:
		c.requestApproval(ctx, ev.Chat, settings, member)
	case models.VerificationModeNone:
		c.send(ctx, ev.Chat.ID, html.EscapeString(settings.Welcome(member.DisplayName())), nil)
		metrics.IncOutcome(OutcomeWelcomed)
	default:
		return fmt.Errorf("chat %d has unknown verification mode %q", ev.Chat.ID, settings.VerificationMode)
	}
	return nil
}

func (c *Coordinator) startChallenge(ctx context.Context, chat models.Chat, settings *models.GroupSettings, member models.Member) {
	if prev := c.claimChallenge(settings, member.ID); prev != nil {
		c.log.Infof("member %d joined chat %d again, replacing challenge %s", member.ID, chat.ID, prev.ID)
	}

	now := c.now()
	ch := &models.Challenge{
		ID:        uuid.New().String(),
		ChatID:    chat.ID,
		Member:    member,
		Code:      models.NewCaptchaCode(),
		IssuedAt:  now,
		ExpiresAt: now.Add(settings.CaptchaTimeout()),
	}
	timeout := TimeoutEvent{ChatID: chat.ID, MemberID: member.ID, ChallengeID: ch.ID}
	ch.Timeout = c.sched.Schedule(settings.CaptchaTimeout(), func() {
		c.enqueue(timeout)
	})
	settings.PendingVerifications[member.ID] = ch

	ref, err := c.client.SendMessage(
		ctx,
		chat.ID,
		groupCaptchaPrompt(member, ch.Code, settings.CaptchaTimeoutMinutes),
		&platform.SendOptions{Keyboard: overrideKeyboard(
			member.ID,
			CallbackActionCaptchaApprove,
			CallbackActionCaptchaReject,
		)},
	)
	if err != nil {
		c.transportError(ctx, chat.ID, "send_message", "sending captcha prompt failed", err)
	} else {
		ch.Prompt = ref
	}

	if _, err := c.client.SendMessage(ctx, member.ID, privateCaptchaPrompt(chat, ch.Code, settings.CaptchaTimeoutMinutes), nil); err != nil {
		c.log.Warnf("failed to send captcha to %d privately: %v", member.ID, err)
		metrics.IncTransportError("send_message")
		c.send(ctx, chat.ID, privatePromptFailed(member), nil)
	}

	c.log.Infof("challenge %s issued to %d in chat %d, expires at %s", ch.ID, member.ID, chat.ID, ch.ExpiresAt.Format(time.RFC3339))
}

func (c *Coordinator) requestApproval(ctx context.Context, chat models.Chat, settings *models.GroupSettings, member models.Member) {
	req := &models.ApprovalRequest{Member: member, RequestedAt: c.now()}
	settings.PendingApprovals[member.ID] = req

	ref, err := c.client.SendMessage(ctx, chat.ID, approvalRequest(member), &platform.SendOptions{
		Keyboard: overrideKeyboard(member.ID, CallbackActionJoinApprove, CallbackActionJoinReject),
	})
	if err != nil {
		c.transportError(ctx, chat.ID, "send_message", "sending approval request failed", err)
		return
	}
	req.Prompt = ref
}

func (c *Coordinator) OnLeave(ctx context.Context, ev LeaveEvent) error {
	c.journal.Admin(ctx, ev.Chat.ID, models.SystemIssuer, "member_left", ev.Member.ID, map[string]any{
		"name": ev.Member.DisplayName(),
	})
	return nil
}

func (c *Coordinator) OnMessage(ctx context.Context, ev MessageEvent) error {
	c.journal.Chat(ctx, ev.Chat.ID, ev.Sender, ev.Text)

	if ev.IsPrivate && c.handleAnswer(ctx, ev) {
		return nil
	}

	cmd, err := command.Parse(ev.Text)
	if cmd == nil {
		return nil
	}
	return c.moderator.Execute(ctx, ev, cmd, err)
}

// handleAnswer treats a private message as a captcha answer when the sender
// has a pending challenge in any chat.
func (c *Coordinator) handleAnswer(ctx context.Context, ev MessageEvent) bool {
	pending := c.store.PendingChallenges(ev.Sender.ID)
	if len(pending) == 0 {
		return false
	}

	for _, ch := range pending {
		if ch.Matches(ev.Text) {
			c.verified(ctx, c.store.GetOrCreate(ch.ChatID), ch.Member.ID)
			return true
		}
	}

	// Charge the newest challenge, it is the code the member most likely has.
	c.wrongAnswer(ctx, c.store.GetOrCreate(pending[0].ChatID), pending[0])
	return true
}

func (c *Coordinator) verified(ctx context.Context, settings *models.GroupSettings, memberID int64) {
	ch := c.claimChallenge(settings, memberID)
	if ch == nil {
		return
	}
	c.log.Infof("member %d passed challenge %s in chat %d", memberID, ch.ID, ch.ChatID)
	metrics.IncOutcome(OutcomeVerified)

	c.send(ctx, memberID, privateVerified(), nil)
	c.edit(ctx, ch.Prompt, promptVerified(ch.Member))
	c.send(ctx, ch.ChatID, groupWelcome(ch.Member), nil)
}

func (c *Coordinator) wrongAnswer(ctx context.Context, settings *models.GroupSettings, ch *models.Challenge) {
	remaining, exhausted := ch.RecordFailure()
	if !exhausted {
		c.send(ctx, ch.Member.ID, privateRetry(remaining), nil)
		return
	}

	if c.claimChallenge(settings, ch.Member.ID) == nil {
		return
	}
	c.log.Infof("member %d exhausted attempts for challenge %s in chat %d", ch.Member.ID, ch.ID, ch.ChatID)
	metrics.IncOutcome(OutcomeKickedAttempts)

	c.kick(ctx, ch, kickedAttempts(ch.Member), "too many failed verification attempts")
}

func (c *Coordinator) OnTimeout(ctx context.Context, ev TimeoutEvent) error {
	settings := c.store.GetOrCreate(ev.ChatID)

	current, ok := settings.PendingVerifications[ev.MemberID]
	if !ok || current.ID != ev.ChallengeID {
		c.log.Debugf("timeout for challenge %s of %d in chat %d is stale", ev.ChallengeID, ev.MemberID, ev.ChatID)
		return nil
	}

	ch := c.claimChallenge(settings, ev.MemberID)
	c.log.Infof("challenge %s of %d in chat %d timed out", ch.ID, ch.Member.ID, ch.ChatID)
	metrics.IncOutcome(OutcomeKickedTimeout)

	c.kick(ctx, ch, kickedTimeout(ch.Member), "verification timeout")
	return nil
}

func (c *Coordinator) kick(ctx context.Context, ch *models.Challenge, notice, reason string) {
	if err := c.client.RemoveAndReadmit(ctx, ch.ChatID, ch.Member.ID); err != nil {
		c.transportError(ctx, ch.ChatID, "remove_and_readmit", "auto kick failed", err)
		return
	}
	c.send(ctx, ch.ChatID, notice, nil)
	c.journal.Admin(ctx, ch.ChatID, models.SystemIssuer, "auto_kick", ch.Member.ID, map[string]any{
		"reason": reason,
	})
}

func (c *Coordinator) OnCallback(ctx context.Context, ev CallbackEvent) error {
	action, memberID, err := ParseCallbackData(ev.Data)
	if err != nil {
		c.log.Debugf("ignoring callback %s: %v", ev.ID, err)
		return nil
	}

	if !c.admins.IsAdmin(ev.Actor.ID) {
		c.answer(ctx, ev.ID, "Only administrators can do that")
		return nil
	}

	settings := c.store.GetOrCreate(ev.Chat.ID)
	actor := journal.IssuerID(ev.Actor.ID)

	switch action {
	case CallbackActionCaptchaApprove:
		ch := c.claimChallenge(settings, memberID)
		if ch == nil {
			c.answer(ctx, ev.ID, "Already resolved")
			return nil
		}
		metrics.IncOutcome(OutcomeAdminApproved)
		c.answer(ctx, ev.ID, "Member approved")
		c.edit(ctx, promptRef(ch.Prompt, ev.Message), promptApprovedBy(ev.Actor, ch.Member))
		c.send(ctx, ev.Chat.ID, groupWelcome(ch.Member), nil)
		c.journal.Admin(ctx, ev.Chat.ID, actor, "admin_approve", memberID, nil)

	case CallbackActionCaptchaReject:
		ch := c.claimChallenge(settings, memberID)
		if ch == nil {
			c.answer(ctx, ev.ID, "Already resolved")
			return nil
		}
		metrics.IncOutcome(OutcomeAdminRejected)
		c.answer(ctx, ev.ID, "Member rejected")
		c.edit(ctx, promptRef(ch.Prompt, ev.Message), promptRejectedBy(ev.Actor, ch.Member))
		c.ban(ctx, ev.Chat.ID, memberID)
		c.journal.Admin(ctx, ev.Chat.ID, actor, "admin_reject", memberID, nil)

	case CallbackActionJoinApprove:
		req := claimApproval(settings, memberID)
		if req == nil {
			c.answer(ctx, ev.ID, "Already resolved")
			return nil
		}
		metrics.IncOutcome(OutcomeAdminApproved)
		c.answer(ctx, ev.ID, "Member approved")
		c.edit(ctx, promptRef(req.Prompt, ev.Message), promptApprovedBy(ev.Actor, req.Member))
		c.send(ctx, ev.Chat.ID, groupWelcome(req.Member), nil)
		c.journal.Admin(ctx, ev.Chat.ID, actor, "approve", memberID, nil)

	case CallbackActionJoinReject:
		req := claimApproval(settings, memberID)
		if req == nil {
			c.answer(ctx, ev.ID, "Already resolved")
			return nil
		}
		metrics.IncOutcome(OutcomeAdminRejected)
		c.answer(ctx, ev.ID, "Member rejected")
		c.edit(ctx, promptRef(req.Prompt, ev.Message), promptRejectedBy(ev.Actor, req.Member))
		c.ban(ctx, ev.Chat.ID, memberID)
		c.journal.Admin(ctx, ev.Chat.ID, actor, "reject", memberID, nil)
	}
	return nil
}

// claimChallenge removes the member's pending challenge and cancels its
// timeout. A nil result means another path already resolved it.
func (c *Coordinator) claimChallenge(settings *models.GroupSettings, memberID int64) *models.Challenge {
	ch, ok := settings.PendingVerifications[memberID]
	if !ok {
		return nil
	}
	delete(settings.PendingVerifications, memberID)
	ch.Timeout.Cancel()
	return ch
}

func claimApproval(settings *models.GroupSettings, memberID int64) *models.ApprovalRequest {
	req, ok := settings.PendingApprovals[memberID]
	if !ok {
		return nil
	}
	delete(settings.PendingApprovals, memberID)
	return req
}

func (c *Coordinator) ban(ctx context.Context, chatID, memberID int64) {
	if err := c.client.RemoveMember(ctx, chatID, memberID); err != nil {
		c.transportError(ctx, chatID, "remove_member", "ban after rejection failed", err)
	}
}

func (c *Coordinator) send(ctx context.Context, chatID int64, text string, opts *platform.SendOptions) {
	if _, err := c.client.SendMessage(ctx, chatID, text, opts); err != nil {
		c.transportError(ctx, chatID, "send_message", "sending message failed", err)
	}
}

func (c *Coordinator) edit(ctx context.Context, ref models.MessageRef, text string) {
	if ref.IsZero() {
		return
	}
	if err := c.client.EditMessageText(ctx, ref, text); err != nil {
		c.transportError(ctx, ref.ChatID, "edit_message", "editing prompt failed", err)
	}
}

func (c *Coordinator) answer(ctx context.Context, callbackID, text string) {
	if err := c.client.AnswerCallback(ctx, callbackID, text); err != nil {
		c.transportError(ctx, 0, "answer_callback", "answering callback failed", err)
	}
}

func (c *Coordinator) transportError(ctx context.Context, chatID int64, call, message string, err error) {
	metrics.IncTransportError(call)
	c.journal.Error(ctx, chatID, message, err)
}

func overrideKeyboard(memberID int64, approve, reject CallbackAction) platform.Keyboard {
	return platform.Keyboard{{
		{Text: "✅ Approve", Unique: approve.String(), Data: approve.Payload(memberID)},
		{Text: "❌ Reject", Unique: reject.String(), Data: reject.Payload(memberID)},
	}}
}

func promptRef(stored, pressed models.MessageRef) models.MessageRef {
	if !stored.IsZero() {
		return stored
	}
	return pressed
}
