package platform

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/C4T-BuT-S4D/gatekeeper/internal/models"
)

var ErrInjected = errors.New("injected transport failure")

type Call struct {
	Method     string
	ChatID     int64
	MemberID   int64
	Text       string
	Keyboard   Keyboard
	Ref        models.MessageRef
	Perms      Permissions
	Until      time.Time
	CallbackID string
}

// Recorder is an in-memory Client that records every call. Failures can be
// injected per method, and per destination chat for SendMessage.
type Recorder struct {
	mu     sync.Mutex
	calls  []Call
	nextID int

	FailMethods map[string]error
	FailSendTo  map[int64]error
}

func NewRecorder() *Recorder {
	return &Recorder{
		FailMethods: make(map[string]error),
		FailSendTo:  make(map[int64]error),
	}
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string, opts *SendOptions) (models.MessageRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	call := Call{Method: "SendMessage", ChatID: chatID, Text: text}
	if opts != nil {
		call.Keyboard = opts.Keyboard
	}
	r.calls = append(r.calls, call)

	if err := r.failure("SendMessage"); err != nil {
		return models.MessageRef{}, err
	}
	if err, ok := r.FailSendTo[chatID]; ok {
		return models.MessageRef{}, err
	}
	r.nextID++
	return models.MessageRef{ChatID: chatID, MessageID: r.nextID}, nil
}

func (r *Recorder) EditMessageText(_ context.Context, ref models.MessageRef, text string) error {
	return r.record(Call{Method: "EditMessageText", ChatID: ref.ChatID, Ref: ref, Text: text})
}

func (r *Recorder) RestrictMember(_ context.Context, chatID, memberID int64, perms Permissions, until time.Time) error {
	return r.record(Call{Method: "RestrictMember", ChatID: chatID, MemberID: memberID, Perms: perms, Until: until})
}

func (r *Recorder) RemoveMember(_ context.Context, chatID, memberID int64) error {
	return r.record(Call{Method: "RemoveMember", ChatID: chatID, MemberID: memberID})
}

func (r *Recorder) RemoveAndReadmit(_ context.Context, chatID, memberID int64) error {
	return r.record(Call{Method: "RemoveAndReadmit", ChatID: chatID, MemberID: memberID})
}

func (r *Recorder) AnswerCallback(_ context.Context, callbackID, text string) error {
	return r.record(Call{Method: "AnswerCallback", CallbackID: callbackID, Text: text})
}

func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsTo filters recorded calls by method name.
func (r *Recorder) CallsTo(method string) []Call {
	var result []Call
	for _, c := range r.Calls() {
		if c.Method == method {
			result = append(result, c)
		}
	}
	return result
}

// MessagesTo returns the texts sent to a chat, in order.
func (r *Recorder) MessagesTo(chatID int64) []string {
	var result []string
	for _, c := range r.CallsTo("SendMessage") {
		if c.ChatID == chatID {
			result = append(result, c.Text)
		}
	}
	return result
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

func (r *Recorder) record(call Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.calls = append(r.calls, call)
	return r.failure(call.Method)
}

func (r *Recorder) failure(method string) error {
	if err, ok := r.FailMethods[method]; ok {
		return err
	}
	return nil
}
