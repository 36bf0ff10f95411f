package verification

import (
	"context"
	"errors"
	"fmt"
	"html"
	"runtime/debug"
	"strings"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/command"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/lookup"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/metrics"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/platform"
	"github.com/sirupsen/logrus"
)

type WeatherLookup interface {
	Lookup(ctx context.Context, location string) (*lookup.Conditions, error)
}

type QuoteLookup interface {
	Random(ctx context.Context) (*lookup.Quote, error)
}

const lookupTimeout = 15 * time.Second

// Moderator executes parsed commands on behalf of chat members. It shares
// the coordinator's state and platform client and runs on the loop.
type Moderator struct {
	c       *Coordinator
	weather WeatherLookup
	quotes  QuoteLookup

	// async runs slow lookups off the loop; they touch no chat state.
	async func(func())
	log   *logrus.Entry
}

func newModerator(c *Coordinator, weather WeatherLookup, quotes QuoteLookup) *Moderator {
	return &Moderator{
		c:       c,
		weather: weather,
		quotes:  quotes,
		async:   func(f func()) { go f() },
		log:     logrus.WithField("component", "moderator"),
	}
}

func (m *Moderator) Execute(ctx context.Context, ev MessageEvent, cmd command.Command, parseErr error) error {
	name := cmd.Name()
	chatID := ev.Chat.ID

	if name.AdminOnly() && !m.c.admins.IsAdmin(ev.Sender.ID) {
		m.log.Debugf("ignoring /%s from non-admin %d in chat %d", name, ev.Sender.ID, chatID)
		return nil
	}

	var verr *command.ValidationError
	if errors.As(parseErr, &verr) {
		m.c.send(ctx, chatID, html.EscapeString(verr.Usage), nil)
		return nil
	} else if parseErr != nil {
		return fmt.Errorf("parsing /%s: %w", name, parseErr)
	}

	if name.NeedsTarget() && ev.ReplyTo == nil {
		m.c.send(ctx, chatID, fmt.Sprintf("Reply to the member's message to use /%s", name), nil)
		return nil
	}

	settings := m.c.store.GetOrCreate(chatID)
	issuer := journal.IssuerID(ev.Sender.ID)

	switch cmd := cmd.(type) {
	case command.Start:
		m.c.send(ctx, chatID, startText(), nil)

	case command.Help:
		m.c.send(ctx, chatID, helpText(settings), nil)

	case command.Rules:
		m.c.send(ctx, chatID, "📜 <b>Group rules</b>\n\n"+html.EscapeString(settings.Rules), nil)

	case command.Kick:
		target := *ev.ReplyTo
		m.dropPending(settings, target.ID)
		if err := m.c.client.RemoveAndReadmit(ctx, chatID, target.ID); err != nil {
			m.c.transportError(ctx, chatID, "remove_and_readmit", "kick failed", err)
			return nil
		}
		m.c.send(ctx, chatID, fmt.Sprintf("🚫 %s was kicked.\nReason: %s", mention(target), html.EscapeString(cmd.Reason)), nil)
		m.done(ctx, chatID, issuer, "kick", target.ID, map[string]any{"reason": cmd.Reason})

	case command.Ban:
		target := *ev.ReplyTo
		settings.Punishments.RecordBan(target.ID, cmd.Reason, issuer)
		m.dropPending(settings, target.ID)
		if err := m.c.client.RemoveMember(ctx, chatID, target.ID); err != nil {
			m.c.transportError(ctx, chatID, "remove_member", "ban failed", err)
			return nil
		}
		m.c.send(ctx, chatID, fmt.Sprintf("🔒 %s was banned permanently.\nReason: %s", mention(target), html.EscapeString(cmd.Reason)), nil)
		m.done(ctx, chatID, issuer, "ban", target.ID, map[string]any{"reason": cmd.Reason})

	case command.Mute:
		target := *ev.ReplyTo
		p := settings.Punishments.RecordMute(target.ID, cmd.Reason, issuer, cmd.Minutes)
		if err := m.c.client.RestrictMember(ctx, chatID, target.ID, platform.PermissionsMuted, *p.ExpiresAt); err != nil {
			m.c.transportError(ctx, chatID, "restrict_member", "mute failed", err)
			return nil
		}
		m.c.send(ctx, chatID, fmt.Sprintf("🔇 %s was muted for %d minutes.\nReason: %s", mention(target), cmd.Minutes, html.EscapeString(cmd.Reason)), nil)
		m.done(ctx, chatID, issuer, "mute", target.ID, map[string]any{"reason": cmd.Reason, "duration": cmd.Minutes})

	case command.Unmute:
		target := *ev.ReplyTo
		settings.Punishments.Clear(target.ID)
		if err := m.c.client.RestrictMember(ctx, chatID, target.ID, platform.PermissionsFull, time.Time{}); err != nil {
			m.c.transportError(ctx, chatID, "restrict_member", "unmute failed", err)
			return nil
		}
		m.c.send(ctx, chatID, fmt.Sprintf("🔊 %s was unmuted.", mention(target)), nil)
		m.done(ctx, chatID, issuer, "unmute", target.ID, nil)

	case command.Warn:
		target := *ev.ReplyTo
		settings.Punishments.RecordWarn(target.ID, cmd.Reason, issuer)
		m.c.send(ctx, chatID, fmt.Sprintf("⚠️ %s has been warned.\nReason: %s", mention(target), html.EscapeString(cmd.Reason)), nil)
		if _, err := m.c.client.SendMessage(ctx, target.ID, fmt.Sprintf(
			"⚠️ You received a warning in %s:\n%s",
			html.EscapeString(ev.Chat.Title),
			html.EscapeString(cmd.Reason),
		), nil); err != nil {
			m.log.Warnf("failed to notify %d about warning: %v", target.ID, err)
		}
		m.done(ctx, chatID, issuer, "warn", target.ID, map[string]any{"reason": cmd.Reason})

	case command.VerifyMode:
		settings.VerificationMode = cmd.Mode
		m.c.send(ctx, chatID, fmt.Sprintf("✅ Verification mode set to: %s", cmd.Mode), nil)
		m.done(ctx, chatID, issuer, "verify_mode", 0, map[string]any{"mode": string(cmd.Mode)})

	case command.SetWelcome:
		settings.WelcomeMessage = cmd.Text
		m.c.send(ctx, chatID, "✅ Welcome message updated:\n"+html.EscapeString(cmd.Text), nil)
		m.done(ctx, chatID, issuer, "set_welcome", 0, nil)

	case command.SetRules:
		settings.Rules = cmd.Text
		m.c.send(ctx, chatID, "✅ Rules updated:\n"+html.EscapeString(cmd.Text), nil)
		m.done(ctx, chatID, issuer, "set_rules", 0, nil)

	case command.SetCaptchaTimeout:
		settings.CaptchaTimeoutMinutes = cmd.Minutes
		m.c.send(ctx, chatID, fmt.Sprintf("✅ Verification timeout set to %d minutes", cmd.Minutes), nil)
		m.done(ctx, chatID, issuer, "set_captcha_timeout", 0, map[string]any{"minutes": cmd.Minutes})

	case command.MyWarns:
		m.c.send(ctx, chatID, myWarnsText(ev.Sender, settings.Punishments), nil)

	case command.Report:
		m.report(ctx, ev, cmd)

	case command.Weather:
		m.lookupWeather(ctx, chatID, cmd.Location)

	case command.Quote:
		m.lookupQuote(ctx, chatID)

	default:
		return fmt.Errorf("unhandled command %T", cmd)
	}
	return nil
}

// dropPending resolves any verification of the target so its timeout cannot
// readmit a member an administrator has just removed.
func (m *Moderator) dropPending(settings *models.GroupSettings, memberID int64) {
	if ch := m.c.claimChallenge(settings, memberID); ch != nil {
		m.log.Infof("challenge %s of %d in chat %d dropped by moderation", ch.ID, memberID, ch.ChatID)
	}
	if claimApproval(settings, memberID) != nil {
		m.log.Infof("approval request of %d in chat %d dropped by moderation", memberID, settings.ChatID)
	}
}

func (m *Moderator) done(ctx context.Context, chatID int64, issuer, action string, targetID int64, details map[string]any) {
	metrics.IncModeration(action)
	m.c.journal.Admin(ctx, chatID, issuer, action, targetID, details)
}

func (m *Moderator) report(ctx context.Context, ev MessageEvent, cmd command.Report) {
	target := *ev.ReplyTo
	text := fmt.Sprintf(
		"📣 Report in %s\nFrom: %s\nAbout: %s\nReason: %s",
		html.EscapeString(ev.Chat.Title),
		mention(ev.Sender),
		mention(target),
		html.EscapeString(cmd.Reason),
	)
	for _, adminID := range m.c.admins.IDs() {
		if _, err := m.c.client.SendMessage(ctx, adminID, text, nil); err != nil {
			m.log.Warnf("failed to deliver report to admin %d: %v", adminID, err)
		}
	}
	m.c.send(ctx, ev.Chat.ID, "✅ Thank you, the administrators have been notified.", nil)
	m.c.journal.Admin(ctx, ev.Chat.ID, journal.IssuerID(ev.Sender.ID), "report", target.ID, map[string]any{
		"reason": cmd.Reason,
	})
}

func (m *Moderator) lookupWeather(ctx context.Context, chatID int64, location string) {
	if m.weather == nil {
		m.c.send(ctx, chatID, "Weather lookup is not configured", nil)
		return
	}
	client := m.c.client
	m.async(m.recovering(chatID, "weather", func() {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()

		cond, err := m.weather.Lookup(ctx, location)
		if err != nil {
			m.log.Warnf("weather lookup for %q failed: %v", location, err)
			if _, err := client.SendMessage(ctx, chatID, fmt.Sprintf(
				"Could not get the weather for %s, please check the city name",
				html.EscapeString(location),
			), nil); err != nil {
				m.log.Errorf("failed to send weather error: %v", err)
			}
			return
		}
		if _, err := client.SendMessage(ctx, chatID, weatherText(cond), nil); err != nil {
			m.log.Errorf("failed to send weather: %v", err)
		}
	}))
}

func (m *Moderator) lookupQuote(ctx context.Context, chatID int64) {
	if m.quotes == nil {
		m.c.send(ctx, chatID, "Quotes are not configured", nil)
		return
	}
	client := m.c.client
	m.async(m.recovering(chatID, "quote", func() {
		ctx, cancel := context.WithTimeout(context.Background(), lookupTimeout)
		defer cancel()

		quote, err := m.quotes.Random(ctx)
		if err != nil {
			m.log.Warnf("quote lookup failed: %v", err)
			return
		}
		text := "💬 " + html.EscapeString(quote.Text)
		if quote.Source != "" {
			text += "\n— " + html.EscapeString(quote.Source)
		}
		if _, err := client.SendMessage(ctx, chatID, text, nil); err != nil {
			m.log.Errorf("failed to send quote: %v", err)
		}
	}))
}

// recovering wraps work that runs off the loop: a panic is logged to the
// error journal instead of taking the process down.
func (m *Moderator) recovering(chatID int64, kind string, f func()) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("panic in %s lookup: %v", kind, r)
				m.log.Errorf("%v\n%s", err, debug.Stack())
				m.c.journal.Error(context.Background(), chatID, "unexpected failure", err)
				metrics.IncEvent(kind, "panic")
			}
		}()
		f()
	}
}

func startText() string {
	return "🤖 Hi! I am a group moderation bot: human verification, join approval, mutes and bans.\n\nUse /help to see what I can do."
}

func helpText(settings *models.GroupSettings) string {
	var sb strings.Builder
	sb.WriteString("🤖 <b>Help</b>\n\n")
	sb.WriteString("<b>👮 Moderation</b> (administrators only, reply to a message):\n")
	sb.WriteString("/kick [reason] - remove a member\n")
	sb.WriteString("/ban [reason] - ban a member permanently\n")
	sb.WriteString("/mute [minutes] [reason] - mute a member\n")
	sb.WriteString("/unmute - lift a mute\n")
	sb.WriteString("/warn [reason] - warn a member\n\n")
	sb.WriteString("<b>⚙️ Settings</b> (administrators only):\n")
	sb.WriteString("/verify_mode captcha|admin|none - how new members are checked\n")
	sb.WriteString("/set_welcome [text] - welcome message, {name} is replaced\n")
	sb.WriteString("/set_rules [text] - group rules\n")
	sb.WriteString("/set_captcha_timeout [minutes] - verification timeout\n\n")
	sb.WriteString("<b>👤 Everyone</b>:\n")
	sb.WriteString("/rules - show the rules\n")
	sb.WriteString("/weather [city] - current weather\n")
	sb.WriteString("/quote - quote of the day\n")
	sb.WriteString("/report [reason] - report a member (reply to a message)\n")
	sb.WriteString("/mywarns - show your record\n\n")
	fmt.Fprintf(&sb, "Verification mode: %s\n", settings.VerificationMode)
	fmt.Fprintf(&sb, "Verification timeout: %d minutes", settings.CaptchaTimeoutMinutes)
	return sb.String()
}

func myWarnsText(sender models.Member, ledger *models.Ledger) string {
	p, ok := ledger.Get(sender.ID)
	if !ok {
		return fmt.Sprintf("✅ %s, you have a clean record.", mention(sender))
	}
	text := fmt.Sprintf(
		"📋 %s, your record: %s\nReason: %s\nIssued: %s",
		mention(sender),
		p.Kind,
		html.EscapeString(p.Reason),
		p.IssuedAt.UTC().Format("2006-01-02 15:04 MST"),
	)
	if p.ExpiresAt != nil {
		text += "\nUntil: " + p.ExpiresAt.UTC().Format("2006-01-02 15:04 MST")
	}
	return text
}

func weatherText(c *lookup.Conditions) string {
	return fmt.Sprintf(
		"🌤️ <b>%s</b>\n\n"+
			"🕒 Observed: %s\n"+
			"🌡️ Temperature: %s°C (feels like %s°C)\n"+
			"📝 Conditions: %s\n"+
			"💨 Wind: %s, force %s\n"+
			"💧 Humidity: %s%%",
		html.EscapeString(c.City),
		html.EscapeString(c.ObservedAt),
		html.EscapeString(c.Temp),
		html.EscapeString(c.FeelsLike),
		html.EscapeString(c.Text),
		html.EscapeString(c.WindDir),
		html.EscapeString(c.WindScale),
		html.EscapeString(c.Humidity),
	)
}
