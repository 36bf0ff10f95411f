package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
)

// SettingsStore holds one GroupSettings per chat for the lifetime of the
// process. Entries are created on first reference and never removed, so
// memory grows with the number of distinct chats seen.
type SettingsStore struct {
	mu    sync.Mutex
	chats map[int64]*models.GroupSettings

	captchaTimeoutMinutes int
	now                   func() time.Time
}

func NewSettingsStore(captchaTimeoutMinutes int, now func() time.Time) *SettingsStore {
	if now == nil {
		now = time.Now
	}
	return &SettingsStore{
		chats:                 make(map[int64]*models.GroupSettings),
		captchaTimeoutMinutes: captchaTimeoutMinutes,
		now:                   now,
	}
}

func (s *SettingsStore) GetOrCreate(chatID int64) *models.GroupSettings {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settings, ok := s.chats[chatID]; ok {
		return settings
	}
	settings := models.NewGroupSettings(chatID, s.captchaTimeoutMinutes, s.now)
	s.chats[chatID] = settings
	return settings
}

// PendingChallenges returns every pending captcha of the member across all
// chats, most recently issued first.
func (s *SettingsStore) PendingChallenges(memberID int64) []*models.Challenge {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []*models.Challenge
	for _, settings := range s.chats {
		if ch, ok := settings.PendingVerifications[memberID]; ok {
			result = append(result, ch)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].IssuedAt.Equal(result[j].IssuedAt) {
			return result[i].ChatID < result[j].ChatID
		}
		return result[i].IssuedAt.After(result[j].IssuedAt)
	})
	return result
}

func (s *SettingsStore) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for _, settings := range s.chats {
		n += len(settings.PendingVerifications) + len(settings.PendingApprovals)
	}
	return n
}

func (s *SettingsStore) Chats() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}
