package verification

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/metrics"
	"github.com/sirupsen/logrus"
)

var ErrLoopStopped = errors.New("event loop stopped")

type Handler interface {
	Handle(ctx context.Context, ev Event) error
}

type envelope struct {
	ev   Event
	done chan error
}

// Loop processes events one at a time, in arrival order. A handler runs to
// completion, including its platform calls, before the next event starts.
type Loop struct {
	events        chan envelope
	stopped       chan struct{}
	handleTimeout time.Duration
	journal       journal.Sink
	log           *logrus.Entry
}

func NewLoop(buffer int, handleTimeout time.Duration, j journal.Sink) *Loop {
	return &Loop{
		events:        make(chan envelope, buffer),
		stopped:       make(chan struct{}),
		handleTimeout: handleTimeout,
		journal:       j,
		log:           logrus.WithField("component", "loop"),
	}
}

func (l *Loop) Run(ctx context.Context, h Handler) {
	defer close(l.stopped)

	for {
		select {
		case env := <-l.events:
			err := l.process(ctx, h, env.ev)
			if env.done != nil {
				env.done <- err
			}
		case <-ctx.Done():
			l.log.Info("event loop stopped")
			return
		}
	}
}

// Submit enqueues the event and waits until it has been handled.
func (l *Loop) Submit(ctx context.Context, ev Event) error {
	env := envelope{ev: ev, done: make(chan error, 1)}
	select {
	case l.events <- env:
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-env.done:
		return err
	case <-l.stopped:
		return ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Post enqueues the event without waiting. It is what scheduled timeouts use.
func (l *Loop) Post(ev Event) {
	select {
	case l.events <- envelope{ev: ev}:
	case <-l.stopped:
		l.log.Warnf("dropping %s event, loop stopped", ev.Kind())
	}
}

func (l *Loop) process(ctx context.Context, h Handler, ev Event) (err error) {
	hctx, cancel := context.WithTimeout(ctx, l.handleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s event: %v", ev.Kind(), r)
			l.log.Errorf("%v\n%s", err, debug.Stack())
			l.journal.Error(ctx, chatOf(ev), "unexpected failure", err)
			metrics.IncEvent(ev.Kind(), "panic")
		}
	}()

	if err := h.Handle(hctx, ev); err != nil {
		l.journal.Error(ctx, chatOf(ev), fmt.Sprintf("handling %s event", ev.Kind()), err)
		metrics.IncEvent(ev.Kind(), "error")
		return err
	}
	metrics.IncEvent(ev.Kind(), "ok")
	return nil
}

func chatOf(ev Event) int64 {
	switch ev := ev.(type) {
	case JoinEvent:
		return ev.Chat.ID
	case LeaveEvent:
		return ev.Chat.ID
	case MessageEvent:
		return ev.Chat.ID
	case CallbackEvent:
		return ev.Chat.ID
	case TimeoutEvent:
		return ev.ChatID
	}
	return 0
}
