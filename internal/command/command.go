// Package command turns chat text into typed bot commands. Parse is the only
// place where command text is interpreted; everything downstream switches on
// the concrete Command type.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
)

type Name string

const (
	NameStart             Name = "start"
	NameHelp              Name = "help"
	NameRules             Name = "rules"
	NameKick              Name = "kick"
	NameBan               Name = "ban"
	NameMute              Name = "mute"
	NameUnmute            Name = "unmute"
	NameWarn              Name = "warn"
	NameVerifyMode        Name = "verify_mode"
	NameSetWelcome        Name = "set_welcome"
	NameSetRules          Name = "set_rules"
	NameSetCaptchaTimeout Name = "set_captcha_timeout"
	NameWeather           Name = "weather"
	NameQuote             Name = "quote"
	NameMyWarns           Name = "mywarns"
	NameReport            Name = "report"
)

const (
	DefaultReason      = "No reason provided"
	DefaultMuteMinutes = 60

	// MaxMinutes bounds mute durations and captcha timeouts to one year.
	MaxMinutes = 365 * 24 * 60
)

func (n Name) AdminOnly() bool {
	switch n {
	case NameKick, NameBan, NameMute, NameUnmute, NameWarn,
		NameVerifyMode, NameSetWelcome, NameSetRules, NameSetCaptchaTimeout:
		return true
	}
	return false
}

// NeedsTarget reports whether the command acts on the author of the message
// being replied to.
func (n Name) NeedsTarget() bool {
	switch n {
	case NameKick, NameBan, NameMute, NameUnmute, NameWarn, NameReport:
		return true
	}
	return false
}

type Command interface {
	Name() Name
	isCommand()
}

type (
	Start struct{}
	Help  struct{}
	Rules struct{}

	Kick struct{ Reason string }
	Ban  struct{ Reason string }
	Mute struct {
		Minutes int
		Reason  string
	}
	Unmute struct{}
	Warn   struct{ Reason string }

	VerifyMode        struct{ Mode models.VerificationMode }
	SetWelcome        struct{ Text string }
	SetRules          struct{ Text string }
	SetCaptchaTimeout struct{ Minutes int }

	Weather struct{ Location string }
	Quote   struct{}
	MyWarns struct{}
	Report  struct{ Reason string }
)

func (Start) Name() Name             { return NameStart }
func (Help) Name() Name              { return NameHelp }
func (Rules) Name() Name             { return NameRules }
func (Kick) Name() Name              { return NameKick }
func (Ban) Name() Name               { return NameBan }
func (Mute) Name() Name              { return NameMute }
func (Unmute) Name() Name            { return NameUnmute }
func (Warn) Name() Name              { return NameWarn }
func (VerifyMode) Name() Name        { return NameVerifyMode }
func (SetWelcome) Name() Name        { return NameSetWelcome }
func (SetRules) Name() Name          { return NameSetRules }
func (SetCaptchaTimeout) Name() Name { return NameSetCaptchaTimeout }
func (Weather) Name() Name           { return NameWeather }
func (Quote) Name() Name             { return NameQuote }
func (MyWarns) Name() Name           { return NameMyWarns }
func (Report) Name() Name            { return NameReport }

func (Start) isCommand()             {}
func (Help) isCommand()              {}
func (Rules) isCommand()             {}
func (Kick) isCommand()              {}
func (Ban) isCommand()               {}
func (Mute) isCommand()              {}
func (Unmute) isCommand()            {}
func (Warn) isCommand()              {}
func (VerifyMode) isCommand()        {}
func (SetWelcome) isCommand()        {}
func (SetRules) isCommand()          {}
func (SetCaptchaTimeout) isCommand() {}
func (Weather) isCommand()           {}
func (Quote) isCommand()             {}
func (MyWarns) isCommand()           {}
func (Report) isCommand()            {}

// ValidationError carries the usage hint that is echoed back to the sender.
type ValidationError struct {
	Command Name
	Usage   string
}

func (e *ValidationError) Error() string {
	return e.Usage
}

// Parse returns (nil, nil) for text that is not a known command. When the
// arguments are invalid it returns the zero command of the right kind along
// with a *ValidationError, so callers can still check authorization first.
func Parse(text string) (Command, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return nil, nil
	}

	head, rest := splitHead(text[1:])
	// Commands may be addressed as /ban@some_bot.
	head, _, _ = strings.Cut(head, "@")

	switch Name(strings.ToLower(head)) {
	case NameStart:
		return Start{}, nil
	case NameHelp:
		return Help{}, nil
	case NameRules:
		return Rules{}, nil
	case NameKick:
		return Kick{Reason: reasonOrDefault(rest)}, nil
	case NameBan:
		return Ban{Reason: reasonOrDefault(rest)}, nil
	case NameMute:
		return parseMute(rest)
	case NameUnmute:
		return Unmute{}, nil
	case NameWarn:
		return Warn{Reason: reasonOrDefault(rest)}, nil
	case NameVerifyMode:
		arg, _ := splitHead(rest)
		mode, err := models.ParseVerificationMode(arg)
		if err != nil {
			return VerifyMode{}, &ValidationError{
				Command: NameVerifyMode,
				Usage:   "Please specify a verification mode: captcha, admin or none",
			}
		}
		return VerifyMode{Mode: mode}, nil
	case NameSetWelcome:
		if rest == "" {
			return SetWelcome{}, &ValidationError{
				Command: NameSetWelcome,
				Usage:   "Please provide the welcome message, e.g. /set_welcome Welcome {name}!",
			}
		}
		return SetWelcome{Text: rest}, nil
	case NameSetRules:
		if rest == "" {
			return SetRules{}, &ValidationError{
				Command: NameSetRules,
				Usage:   "Please provide the rules, e.g. /set_rules 1. No ads 2. Be nice",
			}
		}
		return SetRules{Text: rest}, nil
	case NameSetCaptchaTimeout:
		arg, _ := splitHead(rest)
		minutes, err := strconv.Atoi(arg)
		if err != nil || minutes <= 0 || minutes > MaxMinutes {
			return SetCaptchaTimeout{}, &ValidationError{
				Command: NameSetCaptchaTimeout,
				Usage:   fmt.Sprintf("Please specify the timeout in minutes, from 1 to %d, e.g. /set_captcha_timeout 5", MaxMinutes),
			}
		}
		return SetCaptchaTimeout{Minutes: minutes}, nil
	case NameWeather:
		if rest == "" {
			return Weather{}, &ValidationError{
				Command: NameWeather,
				Usage:   "Please provide a city name, e.g. /weather Berlin",
			}
		}
		return Weather{Location: rest}, nil
	case NameQuote:
		return Quote{}, nil
	case NameMyWarns:
		return MyWarns{}, nil
	case NameReport:
		return Report{Reason: reasonOrDefault(rest)}, nil
	}

	return nil, nil
}

func parseMute(rest string) (Command, error) {
	arg, tail := splitHead(rest)
	minutes, err := strconv.Atoi(arg)
	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrSyntax) {
		return Mute{Minutes: DefaultMuteMinutes, Reason: reasonOrDefault(rest)}, nil
	}
	if err != nil || minutes <= 0 || minutes > MaxMinutes {
		return Mute{}, &ValidationError{
			Command: NameMute,
			Usage: fmt.Sprintf(
				"Mute duration must be from 1 to %d minutes, e.g. /mute %d spam",
				MaxMinutes, DefaultMuteMinutes,
			),
		}
	}
	return Mute{Minutes: minutes, Reason: reasonOrDefault(tail)}, nil
}

// splitHead cuts off the first whitespace separated word and returns the
// trimmed remainder with its inner line breaks intact.
func splitHead(s string) (string, string) {
	s = strings.TrimSpace(s)
	idx := strings.IndexFunc(s, unicode.IsSpace)
	if idx < 0 {
		return s, ""
	}
	return s[:idx], strings.TrimSpace(s[idx:])
}

func reasonOrDefault(s string) string {
	if s == "" {
		return DefaultReason
	}
	return s
}
