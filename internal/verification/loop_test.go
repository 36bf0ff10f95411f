package verification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/journal"
	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, ev Event) error

func (f handlerFunc) Handle(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

func startLoop(t *testing.T, h Handler) (*Loop, context.CancelFunc) {
	t.Helper()

	loop := NewLoop(16, time.Second, journal.New(nil))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loop.Run(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return loop, cancel
}

func TestLoopProcessesInOrder(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []int64
	)
	loop, _ := startLoop(t, handlerFunc(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.(TimeoutEvent).MemberID)
		return nil
	}))

	for i := int64(1); i <= 5; i++ {
		loop.Post(TimeoutEvent{MemberID: i})
	}
	require.NoError(t, loop.Submit(context.Background(), TimeoutEvent{MemberID: 6}))

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int64{1, 2, 3, 4, 5, 6}, seen)
}

func TestLoopReturnsHandlerError(t *testing.T) {
	boom := errors.New("boom")
	loop, _ := startLoop(t, handlerFunc(func(context.Context, Event) error {
		return boom
	}))

	err := loop.Submit(context.Background(), LeaveEvent{Chat: models.Chat{ID: -100}})
	require.ErrorIs(t, err, boom)
}

func TestLoopRecoversPanic(t *testing.T) {
	loop, _ := startLoop(t, handlerFunc(func(_ context.Context, ev Event) error {
		if _, ok := ev.(JoinEvent); ok {
			panic("nil map")
		}
		return nil
	}))

	err := loop.Submit(context.Background(), JoinEvent{Chat: models.Chat{ID: -100}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "nil map")

	require.NoError(t, loop.Submit(context.Background(), LeaveEvent{}))
}

func TestLoopHandlerDeadline(t *testing.T) {
	loop, _ := startLoop(t, handlerFunc(func(ctx context.Context, _ Event) error {
		if _, ok := ctx.Deadline(); !ok {
			return errors.New("handler context has no deadline")
		}
		return nil
	}))

	require.NoError(t, loop.Submit(context.Background(), LeaveEvent{}))
}

func TestLoopStopped(t *testing.T) {
	loop, cancel := startLoop(t, handlerFunc(func(context.Context, Event) error {
		return nil
	}))
	cancel()
	<-loop.stopped

	require.ErrorIs(t, loop.Submit(context.Background(), LeaveEvent{}), ErrLoopStopped)
}

func TestLoopDrivesCoordinator(t *testing.T) {
	h := newHarness(t)
	loop, _ := startLoop(t, h.coord)

	require.NoError(t, loop.Submit(h.ctx, JoinEvent{Chat: testChat, Member: testMember}))
	require.NotNil(t, h.challenge(testMember.ID))
}
