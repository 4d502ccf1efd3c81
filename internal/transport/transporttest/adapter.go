// Package transporttest provides an in-memory transport.Adapter for tests.
package transporttest

import (
	"context"
	"sync"

	kit "habitbot/internal/transport"
)

// Sent is one recorded SendText call.
type Sent struct {
	To   kit.ChatTarget
	Text string
	Opts kit.SendOptions
}

// Adapter records outgoing messages. Fail, when set, is consulted before each
// send; a non-nil return fails that send.
type Adapter struct {
	mu   sync.Mutex
	sent []Sent
	out  chan<- kit.Update

	Fail func(n int, text string) error
}

var _ kit.Adapter = (*Adapter)(nil)

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.mu.Lock()
	a.out = out
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	a.out = nil
	a.mu.Unlock()
	return nil
}

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Fail != nil {
		if err := a.Fail(len(a.sent), text); err != nil {
			return kit.MessageRef{}, err
		}
	}
	s := Sent{To: to, Text: text}
	if opt != nil {
		s.Opts = *opt
	}
	a.sent = append(a.sent, s)
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(a.sent)}, nil
}

// Deliver pushes an incoming text message as if a user had sent it.
// It reports false when the adapter is not started or the channel is full.
func (a *Adapter) Deliver(fromID int64, text string) bool {
	a.mu.Lock()
	out := a.out
	a.mu.Unlock()
	if out == nil {
		return false
	}
	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: fromID, FromID: fromID, Text: text, IsPrivate: true}}
	select {
	case out <- up:
		return true
	default:
		return false
	}
}

func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

func (a *Adapter) Last() (Sent, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return Sent{}, false
	}
	return a.sent[len(a.sent)-1], true
}
