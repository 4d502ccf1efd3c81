package conversation

import (
	"context"
	"fmt"
	"time"

	rtsup "habitbot/internal/runtime/supervisor"
	kit "habitbot/internal/transport"
	logx "habitbot/pkg/logx"
)

const sweepEvery = time.Minute

// Run reads updates until ctx is cancelled or updates is closed. Messages of
// one owner always land on the same worker, so an owner's dialog never runs
// concurrently with itself. Messages already queued are handled before Run
// returns.
func (b *Bot) Run(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx, rtsup.WithLogger(b.log), rtsup.WithCancelOnError(false))
	stop := make(chan struct{})

	shards := make([]chan *kit.Message, b.cfg.Workers)
	for i := range shards {
		ch := make(chan *kit.Message, b.cfg.QueueSize)
		shards[i] = ch
		sup.Go0(fmt.Sprintf("conversation.worker.%d", i), func(c context.Context) {
			b.worker(c, ch)
		})
	}
	sup.Go0("conversation.sweep", func(c context.Context) {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-stop:
				return
			case <-t.C:
				if n := b.sess.sweep(); n > 0 {
					b.log.Debug("expired dialogs dropped", logx.Int("count", n))
				}
			}
		}
	})

	b.log.Info("conversation started", logx.Int("workers", len(shards)))
	err := b.feed(sup.Context(), updates, shards)
	for _, ch := range shards {
		close(ch)
	}
	close(stop)

	waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if werr := sup.Wait(waitCtx); werr != nil {
		b.log.Warn("conversation stop", logx.Err(werr))
	}
	sup.Cancel()
	b.log.Info("conversation stopped")
	return err
}

func (b *Bot) feed(ctx context.Context, updates <-chan kit.Update, shards []chan *kit.Message) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			if up.Kind != kit.UpdateMessage || up.Message == nil {
				continue
			}
			ch := shards[shardOf(up.Message.FromID, len(shards))]
			select {
			case ch <- up.Message:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (b *Bot) worker(ctx context.Context, in <-chan *kit.Message) {
	for msg := range in {
		// Errors are already logged by the request middleware.
		_ = b.Handle(ctx, msg)
	}
}

func shardOf(owner int64, n int) int {
	return int(uint64(owner) % uint64(n))
}
