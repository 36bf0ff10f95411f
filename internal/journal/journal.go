package journal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/storage"
	"github.com/sirupsen/logrus"
)

// Sink is the append-only record of what the bot saw and did. Writes never
// fail from the caller's point of view.
type Sink interface {
	Admin(ctx context.Context, chatID int64, actor, action string, targetID int64, details map[string]any)
	Chat(ctx context.Context, chatID int64, sender models.Member, text string)
	Error(ctx context.Context, chatID int64, message string, err error)
}

const (
	queueSize    = 256
	writeTimeout = 5 * time.Second
)

// Journal writes every entry to the log and, when a storage is attached,
// queues it for the database writer started by Run.
type Journal struct {
	storage *storage.Storage
	queue   chan *models.JournalEntry
	log     *logrus.Entry

	// mu guards closed and the send/close of queue.
	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func New(st *storage.Storage) *Journal {
	return &Journal{
		storage: st,
		queue:   make(chan *models.JournalEntry, queueSize),
		log:     logrus.WithField("component", "journal"),
		done:    make(chan struct{}),
	}
}

func IssuerID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (j *Journal) Admin(ctx context.Context, chatID int64, actor, action string, targetID int64, details map[string]any) {
	j.log.WithFields(logrus.Fields{
		"channel": models.JournalChannelAdmin,
		"chat_id": chatID,
		"actor":   actor,
		"target":  targetID,
		"details": details,
	}).Infof("admin action %s", action)

	j.enqueue(&models.JournalEntry{
		Channel:  models.JournalChannelAdmin,
		ChatID:   chatID,
		Actor:    actor,
		TargetID: targetID,
		Action:   action,
		Details:  details,
	})
}

func (j *Journal) Chat(ctx context.Context, chatID int64, sender models.Member, text string) {
	j.log.WithFields(logrus.Fields{
		"channel":   models.JournalChannelChat,
		"chat_id":   chatID,
		"sender_id": sender.ID,
	}).Debugf("message from %s: %q", sender.DisplayName(), text)

	j.enqueue(&models.JournalEntry{
		Channel: models.JournalChannelChat,
		ChatID:  chatID,
		Actor:   IssuerID(sender.ID),
		Action:  "message",
		Message: text,
		Details: map[string]any{"name": sender.DisplayName()},
	})
}

func (j *Journal) Error(ctx context.Context, chatID int64, message string, err error) {
	j.log.WithFields(logrus.Fields{
		"channel": models.JournalChannelError,
		"chat_id": chatID,
	}).Errorf("%s: %v", message, err)

	entry := &models.JournalEntry{
		Channel: models.JournalChannelError,
		ChatID:  chatID,
		Actor:   models.SystemIssuer,
		Action:  "error",
		Message: message,
	}
	if err != nil {
		entry.Details = map[string]any{"error": err.Error()}
	}
	j.enqueue(entry)
}

// Run drains the queue into storage until ctx is done or Close is called.
func (j *Journal) Run(ctx context.Context) {
	defer close(j.done)

	for {
		select {
		case entry, ok := <-j.queue:
			if !ok {
				return
			}
			j.write(entry)
		case <-ctx.Done():
			j.drain()
			return
		}
	}
}

// Close stops accepting entries and waits for Run to flush the queue.
func (j *Journal) Close() {
	j.mu.Lock()
	if !j.closed {
		j.closed = true
		close(j.queue)
	}
	j.mu.Unlock()

	if j.storage != nil {
		<-j.done
	}
}

func (j *Journal) enqueue(entry *models.JournalEntry) {
	if j.storage == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		j.log.Warnf("journal closed, dropping %v", entry)
		return
	}
	select {
	case j.queue <- entry:
	default:
		j.log.Warnf("journal queue is full, dropping %v", entry)
	}
}

func (j *Journal) drain() {
	for {
		select {
		case entry, ok := <-j.queue:
			if !ok {
				return
			}
			j.write(entry)
		default:
			return
		}
	}
}

// write uses its own deadline, independent of the ctx passed to Run.
func (j *Journal) write(entry *models.JournalEntry) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := j.storage.AddEntry(ctx, entry); err != nil {
		j.log.Errorf("failed to store %v: %v", entry, err)
	}
}
