package authutil

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Admins is the fixed allow-list of identities that may run moderation
// commands and press override buttons.
type Admins struct {
	ids map[int64]struct{}
}

func NewAdmins(ids []int64) *Admins {
	a := &Admins{ids: make(map[int64]struct{}, len(ids))}
	for _, id := range ids {
		a.ids[id] = struct{}{}
	}
	return a
}

// ParseAdmins reads a comma separated list of numeric user ids.
func ParseAdmins(raw string) (*Admins, error) {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing admin id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("admin list is empty")
	}
	return NewAdmins(ids), nil
}

func (a *Admins) IsAdmin(id int64) bool {
	_, ok := a.ids[id]
	return ok
}

func (a *Admins) IDs() []int64 {
	ids := make([]int64, 0, len(a.ids))
	for id := range a.ids {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
