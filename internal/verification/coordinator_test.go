package verification

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/authutil"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/platform"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/scheduler"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChatID  int64 = -100123
	testAdminID int64 = 1
)

var (
	testChat   = models.Chat{ID: testChatID, Title: "Test Group"}
	testAdmin  = models.Member{ID: testAdminID, Username: "admin"}
	testMember = models.Member{ID: 42, Username: "newbie"}
)

type harness struct {
	t      *testing.T
	ctx    context.Context
	clock  *scheduler.Manual
	client *platform.Recorder
	store  *storage.SettingsStore
	coord  *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		clock:  scheduler.NewManual(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)),
		client: platform.NewRecorder(),
	}
	h.store = storage.NewSettingsStore(models.DefaultCaptchaTimeoutMinutes, h.clock.Now)
	h.coord = NewCoordinator(Deps{
		Store:     h.store,
		Client:    h.client,
		Journal:   journal.New(nil),
		Scheduler: h.clock,
		Admins:    authutil.NewAdmins([]int64{testAdminID}),
		Enqueue: func(ev Event) {
			require.NoError(t, h.coord.Handle(h.ctx, ev))
		},
		Now: h.clock.Now,
	})
	h.coord.moderator.async = func(f func()) { f() }
	return h
}

func (h *harness) handle(ev Event) {
	h.t.Helper()
	require.NoError(h.t, h.coord.Handle(h.ctx, ev))
}

func (h *harness) join(m models.Member) {
	h.t.Helper()
	h.handle(JoinEvent{Chat: testChat, Member: m})
}

func (h *harness) answer(m models.Member, text string) {
	h.t.Helper()
	h.handle(MessageEvent{
		Chat:      models.Chat{ID: m.ID, Private: true},
		Sender:    m,
		Text:      text,
		IsPrivate: true,
	})
}

func (h *harness) press(actor models.Member, action CallbackAction, memberID int64) {
	h.t.Helper()
	h.handle(CallbackEvent{
		ID:      "cb-" + action.String(),
		Chat:    testChat,
		Actor:   actor,
		Data:    "\f" + action.String() + "|" + action.Payload(memberID),
		Message: models.MessageRef{ChatID: testChatID, MessageID: 1},
	})
}

func (h *harness) settings() *models.GroupSettings {
	return h.store.GetOrCreate(testChatID)
}

func (h *harness) challenge(memberID int64) *models.Challenge {
	return h.settings().PendingVerifications[memberID]
}

func containsText(texts []string, substr string) bool {
	for _, text := range texts {
		if strings.Contains(text, substr) {
			return true
		}
	}
	return false
}

func TestJoinCaptchaCreatesChallenge(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)

	ch := h.challenge(testMember.ID)
	require.NotNil(t, ch)
	require.Len(t, ch.Code, models.CaptchaLength)
	require.Equal(t, 0, ch.AttemptsUsed)
	require.Equal(t, h.clock.Now().Add(5*time.Minute), ch.ExpiresAt)
	require.NotEmpty(t, ch.ID)
	require.Equal(t, 1, h.clock.Pending())

	group := h.client.MessagesTo(testChatID)
	require.Len(t, group, 1)
	require.Contains(t, group[0], ch.Code)
	require.Contains(t, group[0], "@newbie")

	sends := h.client.CallsTo("SendMessage")
	require.Len(t, sends[0].Keyboard, 1)
	require.Equal(t, CallbackActionCaptchaApprove.String(), sends[0].Keyboard[0][0].Unique)
	require.Equal(t, "42", sends[0].Keyboard[0][0].Data)
	require.Equal(t, CallbackActionCaptchaReject.String(), sends[0].Keyboard[0][1].Unique)
	require.Equal(t, models.MessageRef{ChatID: testChatID, MessageID: 1}, ch.Prompt)

	private := h.client.MessagesTo(testMember.ID)
	require.Len(t, private, 1)
	require.Contains(t, private[0], ch.Code)
	require.Contains(t, private[0], "Test Group")
}

func TestJoinPrivatePromptFailureKeepsChallenge(t *testing.T) {
	h := newHarness(t)
	h.client.FailSendTo[testMember.ID] = platform.ErrInjected

	h.join(testMember)

	require.NotNil(t, h.challenge(testMember.ID))
	group := h.client.MessagesTo(testChatID)
	require.Len(t, group, 2)
	require.Contains(t, group[1], "Could not send the code")
}

func TestJoinGroupPromptFailureStillTimesOut(t *testing.T) {
	h := newHarness(t)
	h.client.FailSendTo[testChatID] = platform.ErrInjected

	h.join(testMember)

	ch := h.challenge(testMember.ID)
	require.NotNil(t, ch)
	require.True(t, ch.Prompt.IsZero())

	delete(h.client.FailSendTo, testChatID)
	h.clock.Advance(5 * time.Minute)

	require.Nil(t, h.challenge(testMember.ID))
	require.Len(t, h.client.CallsTo("RemoveAndReadmit"), 1)
}

func TestJoinBannedMemberIsRemoved(t *testing.T) {
	h := newHarness(t)
	h.settings().Punishments.RecordBan(testMember.ID, "spam", "1")

	h.join(testMember)

	removes := h.client.CallsTo("RemoveMember")
	require.Len(t, removes, 1)
	require.Equal(t, testMember.ID, removes[0].MemberID)
	require.Nil(t, h.challenge(testMember.ID))
	require.Empty(t, h.client.MessagesTo(testChatID))
	require.Equal(t, 0, h.clock.Pending())
}

func TestJoinBannedMemberRemovalFailureSkipsChallenge(t *testing.T) {
	h := newHarness(t)
	h.settings().Punishments.RecordBan(testMember.ID, "spam", "1")
	h.client.FailMethods["RemoveMember"] = platform.ErrInjected

	h.join(testMember)

	require.Nil(t, h.challenge(testMember.ID))
	require.Equal(t, 0, h.clock.Pending())
}

func TestJoinBotIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.join(models.Member{ID: 77, Username: "helper_bot", IsBot: true})

	require.Empty(t, h.settings().PendingVerifications)
	require.Empty(t, h.client.Calls())
}

func TestCorrectAnswerIsCaseAndSpaceInsensitive(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)

	ch := h.challenge(testMember.ID)
	ch.Code = "AB23CD"
	h.client.Reset()

	h.answer(testMember, " ab23cd ")

	require.Nil(t, h.challenge(testMember.ID))
	require.True(t, ch.Timeout.Cancelled())

	require.True(t, containsText(h.client.MessagesTo(testMember.ID), "Verification passed"))
	edits := h.client.CallsTo("EditMessageText")
	require.Len(t, edits, 1)
	require.Equal(t, ch.Prompt, edits[0].Ref)
	require.Contains(t, edits[0].Text, "passed the verification")
	require.True(t, containsText(h.client.MessagesTo(testChatID), "Welcome @newbie"))

	h.clock.Advance(10 * time.Minute)
	require.Empty(t, h.client.CallsTo("RemoveAndReadmit"))
}

func TestThreeWrongAnswersKick(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)
	h.client.Reset()

	h.answer(testMember, "nope")
	h.answer(testMember, "still nope")
	require.NotNil(t, h.challenge(testMember.ID))
	require.Equal(t, 2, h.challenge(testMember.ID).AttemptsUsed)

	h.answer(testMember, "wrong again")

	private := h.client.MessagesTo(testMember.ID)
	require.Len(t, private, 2)
	require.Equal(t, "❌ Wrong code! You have 2 attempts left.", private[0])
	require.Equal(t, "❌ Wrong code! You have 1 attempt left.", private[1])
	require.False(t, containsText(private, "0 attempts"))

	require.Nil(t, h.challenge(testMember.ID))
	kicks := h.client.CallsTo("RemoveAndReadmit")
	require.Len(t, kicks, 1)
	require.Equal(t, testMember.ID, kicks[0].MemberID)
	require.True(t, containsText(h.client.MessagesTo(testChatID), "too many failed verification attempts"))

	_, ok := h.settings().Punishments.Get(testMember.ID)
	require.False(t, ok)

	// A fourth message is no longer an answer.
	h.answer(testMember, "wrong again")
	require.Len(t, h.client.CallsTo("RemoveAndReadmit"), 1)

	h.clock.Advance(10 * time.Minute)
	require.Len(t, h.client.CallsTo("RemoveAndReadmit"), 1)
}

func TestTimeoutKicks(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)

	h.clock.Advance(5*time.Minute - time.Second)
	require.NotNil(t, h.challenge(testMember.ID))
	require.Empty(t, h.client.CallsTo("RemoveAndReadmit"))

	h.clock.Advance(time.Second)
	require.Nil(t, h.challenge(testMember.ID))
	require.Len(t, h.client.CallsTo("RemoveAndReadmit"), 1)
	require.True(t, containsText(h.client.MessagesTo(testChatID), "did not complete the verification in time"))
}

func TestTimeoutTransportFailureStillResolves(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)
	h.client.FailMethods["RemoveAndReadmit"] = platform.ErrInjected

	h.clock.Advance(5 * time.Minute)

	require.Nil(t, h.challenge(testMember.ID))
	require.False(t, containsText(h.client.MessagesTo(testChatID), "did not complete"))
}

func TestAdminApproveBeforeTimeout(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)
	ch := h.challenge(testMember.ID)

	h.clock.Advance(4*time.Minute + 59*time.Second)
	h.press(testAdmin, CallbackActionCaptchaApprove, testMember.ID)

	require.Nil(t, h.challenge(testMember.ID))
	answers := h.client.CallsTo("AnswerCallback")
	require.Len(t, answers, 1)
	require.Equal(t, "Member approved", answers[0].Text)

	edits := h.client.CallsTo("EditMessageText")
	require.Len(t, edits, 1)
	require.Equal(t, ch.Prompt, edits[0].Ref)
	require.Contains(t, edits[0].Text, "@admin approved @newbie")
	require.True(t, containsText(h.client.MessagesTo(testChatID), "Welcome @newbie"))

	h.clock.Advance(time.Minute)
	require.Empty(t, h.client.CallsTo("RemoveAndReadmit"))
	require.Empty(t, h.client.CallsTo("RemoveMember"))
}

func TestAdminRejectBans(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)

	h.press(testAdmin, CallbackActionCaptchaReject, testMember.ID)

	require.Nil(t, h.challenge(testMember.ID))
	removes := h.client.CallsTo("RemoveMember")
	require.Len(t, removes, 1)
	require.Equal(t, testMember.ID, removes[0].MemberID)
	require.Contains(t, h.client.CallsTo("EditMessageText")[0].Text, "rejected")
	require.Equal(t, 0, h.settings().Punishments.Len())

	h.clock.Advance(10 * time.Minute)
	require.Empty(t, h.client.CallsTo("RemoveAndReadmit"))
}

func TestNonAdminCallbackIsRejected(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)
	h.client.Reset()

	h.press(models.Member{ID: 99, Username: "random"}, CallbackActionCaptchaApprove, testMember.ID)

	require.NotNil(t, h.challenge(testMember.ID))
	calls := h.client.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "AnswerCallback", calls[0].Method)
	require.Equal(t, "Only administrators can do that", calls[0].Text)
}

func TestOnlyFirstResolverWins(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)
	code := h.challenge(testMember.ID).Code

	h.press(testAdmin, CallbackActionCaptchaApprove, testMember.ID)
	h.client.Reset()

	h.press(testAdmin, CallbackActionCaptchaReject, testMember.ID)
	h.answer(testMember, code)
	h.clock.Advance(10 * time.Minute)

	calls := h.client.Calls()
	require.Len(t, calls, 1)
	require.Equal(t, "AnswerCallback", calls[0].Method)
	require.Equal(t, "Already resolved", calls[0].Text)
}

func TestStaleTimeoutIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.join(testMember)
	first := h.challenge(testMember.ID)

	h.clock.Advance(3 * time.Minute)
	h.join(testMember)
	second := h.challenge(testMember.ID)
	require.NotEqual(t, first.ID, second.ID)
	require.True(t, first.Timeout.Cancelled())

	h.handle(TimeoutEvent{ChatID: testChatID, MemberID: testMember.ID, ChallengeID: first.ID})
	require.Equal(t, second, h.challenge(testMember.ID))
	require.Empty(t, h.client.CallsTo("RemoveAndReadmit"))

	h.clock.Advance(2 * time.Minute)
	require.NotNil(t, h.challenge(testMember.ID))

	h.clock.Advance(3 * time.Minute)
	require.Nil(t, h.challenge(testMember.ID))
	require.Len(t, h.client.CallsTo("RemoveAndReadmit"), 1)
}

func TestAnswerResolvesMatchingChat(t *testing.T) {
	h := newHarness(t)
	other := models.Chat{ID: -100999, Title: "Other Group"}

	h.join(testMember)
	h.clock.Advance(time.Minute)
	h.handle(JoinEvent{Chat: other, Member: testMember})

	older := h.challenge(testMember.ID)
	newer := h.store.GetOrCreate(other.ID).PendingVerifications[testMember.ID]
	require.NotNil(t, newer)

	h.answer(testMember, older.Code)
	require.Nil(t, h.challenge(testMember.ID))
	require.NotNil(t, h.store.GetOrCreate(other.ID).PendingVerifications[testMember.ID])

	h.answer(testMember, "bad")
	require.Equal(t, 1, newer.AttemptsUsed)
}

func TestAdminModeApproval(t *testing.T) {
	h := newHarness(t)
	h.settings().VerificationMode = models.VerificationModeAdmin

	h.join(testMember)

	require.Empty(t, h.settings().PendingVerifications)
	req := h.settings().PendingApprovals[testMember.ID]
	require.NotNil(t, req)
	require.Equal(t, 0, h.clock.Pending())

	sends := h.client.CallsTo("SendMessage")
	require.Len(t, sends, 1)
	require.Equal(t, CallbackActionJoinApprove.String(), sends[0].Keyboard[0][0].Unique)

	h.press(testAdmin, CallbackActionJoinApprove, testMember.ID)
	require.Empty(t, h.settings().PendingApprovals)
	require.True(t, containsText(h.client.MessagesTo(testChatID), "Welcome @newbie"))

	h.client.Reset()
	h.press(testAdmin, CallbackActionJoinReject, testMember.ID)
	require.Empty(t, h.client.CallsTo("RemoveMember"))
	require.Equal(t, "Already resolved", h.client.CallsTo("AnswerCallback")[0].Text)
}

func TestAdminModeReject(t *testing.T) {
	h := newHarness(t)
	h.settings().VerificationMode = models.VerificationModeAdmin
	h.join(testMember)

	h.press(testAdmin, CallbackActionJoinReject, testMember.ID)

	require.Empty(t, h.settings().PendingApprovals)
	require.Len(t, h.client.CallsTo("RemoveMember"), 1)
}

func TestModeNoneWelcomes(t *testing.T) {
	h := newHarness(t)
	h.settings().VerificationMode = models.VerificationModeNone
	h.settings().WelcomeMessage = "Hi {name}, read the <rules>"

	h.join(testMember)

	require.Empty(t, h.settings().PendingVerifications)
	require.Equal(t, []string{"Hi @newbie, read the &lt;rules&gt;"}, h.client.MessagesTo(testChatID))
}

func TestUnknownCallbackIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.handle(CallbackEvent{ID: "x", Chat: testChat, Actor: testAdmin, Data: "garbage"})
	assert.Empty(t, h.client.Calls())
}
