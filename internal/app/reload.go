package app

import (
	"context"
	"strings"

	"habitbot/internal/config"
	logx "habitbot/pkg/logx"
)

// reloadLoop applies committed configs until ctx is done. Bursts are
// coalesced so only the newest config is applied.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer, ok := <-sub:
					if !ok {
						return
					}
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			if next == nil {
				continue
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

// applyConfig pushes the live sections of next into running components.
// Sections that need a restart are only reported.
func (a *App) applyConfig(prev, next *config.Config) config.Change {
	ch := config.Diff(prev, next)
	if ch.Empty() {
		a.log.Debug("config reload received, but no effective changes detected")
		return ch
	}
	changed := logx.String("changed", strings.Join(ch.Sections, ","))
	a.log.Debug("config change summary", append([]logx.Field{changed}, ch.Fields...)...)

	d, err := config.ParseDurations(next)
	if err != nil {
		// Manager validates before publishing, so this is unexpected.
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return ch
	}

	if len(ch.RestartRequired) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(ch.RestartRequired, ",")))
	}
	if a.logs != nil {
		a.logs.Apply(mapLogConfig(next))
	}
	a.notif.Apply(mapNotifierConfig(next, d))

	a.log.Info("config applied", changed)
	return ch
}
