package models

import (
	"fmt"
	"time"
)

type PunishmentKind string

const (
	PunishmentBan  PunishmentKind = "ban"
	PunishmentMute PunishmentKind = "mute"
	PunishmentWarn PunishmentKind = "warn"
)

const SystemIssuer = "system"

type Punishment struct {
	Kind     PunishmentKind
	Reason   string
	IssuedBy string
	IssuedAt time.Time

	// ExpiresAt is nil for permanent bans and for warnings.
	ExpiresAt *time.Time
}

func (p *Punishment) ActiveAt(t time.Time) bool {
	return p.ExpiresAt == nil || p.ExpiresAt.After(t)
}

func (p *Punishment) String() string {
	until := "never"
	if p.ExpiresAt != nil {
		until = p.ExpiresAt.Format(time.RFC3339)
	}
	return fmt.Sprintf("Punishment(%s, %q, by=%s, until=%s)", p.Kind, p.Reason, p.IssuedBy, until)
}

// Ledger keeps at most one punishment per member; a new record replaces the old one.
type Ledger struct {
	records map[int64]*Punishment
	now     func() time.Time
}

func NewLedger(now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{
		records: make(map[int64]*Punishment),
		now:     now,
	}
}

func (l *Ledger) RecordBan(memberID int64, reason, issuer string) *Punishment {
	return l.put(memberID, &Punishment{
		Kind:     PunishmentBan,
		Reason:   reason,
		IssuedBy: issuer,
		IssuedAt: l.now(),
	})
}

func (l *Ledger) RecordMute(memberID int64, reason, issuer string, durationMinutes int) *Punishment {
	issuedAt := l.now()
	expiresAt := issuedAt.Add(time.Duration(durationMinutes) * time.Minute)
	return l.put(memberID, &Punishment{
		Kind:      PunishmentMute,
		Reason:    reason,
		IssuedBy:  issuer,
		IssuedAt:  issuedAt,
		ExpiresAt: &expiresAt,
	})
}

func (l *Ledger) RecordWarn(memberID int64, reason, issuer string) *Punishment {
	return l.put(memberID, &Punishment{
		Kind:     PunishmentWarn,
		Reason:   reason,
		IssuedBy: issuer,
		IssuedAt: l.now(),
	})
}

// Clear removes whatever record the member has. It reports whether one existed.
func (l *Ledger) Clear(memberID int64) bool {
	_, ok := l.records[memberID]
	delete(l.records, memberID)
	return ok
}

func (l *Ledger) Get(memberID int64) (*Punishment, bool) {
	p, ok := l.records[memberID]
	return p, ok
}

func (l *Ledger) IsBannedNow(memberID int64) bool {
	p, ok := l.records[memberID]
	return ok && p.Kind == PunishmentBan && p.ActiveAt(l.now())
}

func (l *Ledger) Len() int {
	return len(l.records)
}

func (l *Ledger) put(memberID int64, p *Punishment) *Punishment {
	l.records[memberID] = p
	return p
}
