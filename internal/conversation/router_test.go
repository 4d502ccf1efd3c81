package conversation

import (
	"context"
	"testing"
	"time"

	kit "habitbot/internal/transport"
)

func TestRunKeepsPerOwnerOrder(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.bot.cfg.Workers = 3

	updates := make(chan kit.Update, 64)
	owners := []int64{10, 11, 12, 13}
	for _, o := range owners {
		for _, text := range []string{BtnAddHabit, "Habit", BtnMyItems} {
			updates <- kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: o, FromID: o, Text: text, IsPrivate: true}}
		}
	}
	updates <- kit.Update{Kind: kit.UpdateMessage}
	close(updates)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.bot.Run(ctx, updates); err != nil {
		t.Fatalf("Run: %v", err)
	}

	byOwner := map[int64][]string{}
	for _, r := range h.out.all() {
		byOwner[r.chatID] = append(byOwner[r.chatID], r.text)
	}
	for _, o := range owners {
		got := byOwner[o]
		if len(got) != 3 {
			t.Fatalf("owner %d replies = %q, want 3", o, got)
		}
		if got[0] != msgAskHabit || got[2] == msgNoItems {
			t.Fatalf("owner %d replies = %q, want ask, added, list", o, got)
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.bot.Run(ctx, make(chan kit.Update)) }()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after cancel")
	}
}

func TestShardOf(t *testing.T) {
	t.Parallel()
	for _, o := range []int64{0, 1, 7, 1 << 40, -5} {
		s := shardOf(o, 4)
		if s < 0 || s >= 4 {
			t.Fatalf("shardOf(%d, 4) = %d, out of range", o, s)
		}
		if s != shardOf(o, 4) {
			t.Fatalf("shardOf(%d) not stable", o)
		}
	}
}
