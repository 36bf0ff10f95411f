package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const maxJournalPage = 500

type Storage struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Storage {
	return &Storage{db: db}
}

// Open picks the gorm dialector from the DSN: sqlite://path for a local file
// (or sqlite://:memory:), anything else is handed to the postgres driver.
func Open(dsn string) (*gorm.DB, error) {
	var dial gorm.Dialector
	if path, ok := strings.CutPrefix(dsn, "sqlite://"); ok {
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
				return nil, fmt.Errorf("creating sqlite directory: %w", err)
			}
		}
		dial = sqlite.Open(path)
	} else {
		dial = postgres.Open(dsn)
	}

	db, err := gorm.Open(dial, &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return db, nil
}

func (s *Storage) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&models.JournalEntry{}); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	return nil
}

func (s *Storage) AddEntry(ctx context.Context, entry *models.JournalEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("creating journal entry: %w", err)
	}
	return nil
}

type EntryFilter struct {
	ChatID  int64
	Channel models.JournalChannel
	Limit   int
}

func (s *Storage) ListEntries(ctx context.Context, filter EntryFilter) ([]*models.JournalEntry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > maxJournalPage {
		limit = maxJournalPage
	}

	q := s.db.WithContext(ctx).Model(&models.JournalEntry{})
	if filter.ChatID != 0 {
		q = q.Where("chat_id = ?", filter.ChatID)
	}
	if filter.Channel != "" {
		q = q.Where("channel = ?", filter.Channel)
	}

	var result []*models.JournalEntry
	if err := q.
		Order("created_at DESC").
		Limit(limit).
		Find(&result).
		Error; err != nil {
		return nil, fmt.Errorf("listing journal entries: %w", err)
	}
	return result, nil
}

func (s *Storage) DeleteEntriesOlderThan(ctx context.Context, olderThan time.Time) (int64, error) {
	res := s.db.
		WithContext(ctx).
		Where("created_at < ?", olderThan).
		Delete(&models.JournalEntry{})
	if res.Error != nil {
		return 0, fmt.Errorf("deleting journal entries: %w", res.Error)
	}
	return res.RowsAffected, nil
}
