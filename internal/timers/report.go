package timers

import (
	"errors"
	"time"

	logx "habitbot/pkg/logx"
)

const dispatchWarnThrottle = 5 * time.Second

func (r *Registry) reportDispatchError(name string, err error) {
	if err == nil {
		return
	}
	// Overlap skips can happen during normal operation.
	if errors.Is(err, ErrBusy) {
		r.log.Debug("timer tick skipped", logx.String("job", name), logx.Err(err))
		return
	}

	now := time.Now()
	r.warnMu.Lock()
	last := r.lastWarn[name]
	if !last.IsZero() && now.Sub(last) < dispatchWarnThrottle {
		r.warnMu.Unlock()
		return
	}
	r.lastWarn[name] = now
	r.warnMu.Unlock()

	// Queue full / stopping are important but can be bursty.
	r.log.Warn("timer tick failed to dispatch", logx.String("job", name), logx.Err(err))
}
