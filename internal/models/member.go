package models

import (
	"fmt"
	"strings"
)

type Chat struct {
	ID      int64
	Title   string
	Private bool
}

type Member struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
	IsBot     bool
}

// DisplayName prefers the @username and falls back to the full name.
func (m Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := strings.TrimSpace(m.FirstName + " " + m.LastName)
	if name == "" {
		return fmt.Sprintf("user %d", m.ID)
	}
	return name
}

func (m Member) String() string {
	return fmt.Sprintf("Member(%d, %q)", m.ID, m.DisplayName())
}
