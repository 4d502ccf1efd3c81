package timers

import (
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

const defaultMaxStartupSpread = 30 * time.Second

// Schedule is one of Interval or Daily.
type Schedule interface {
	Spec() string
	validate() error
}

// Interval fires after FirstDelay (plus a random 0..Spread), then every Every.
// A zero FirstDelay means the first tick comes one full period after arming.
type Interval struct {
	Every      time.Duration
	FirstDelay time.Duration
	Spread     time.Duration
}

func (s Interval) Spec() string { return "@every " + s.Every.String() }

func (s Interval) validate() error {
	if s.Every < time.Second {
		return fmt.Errorf("interval must be at least 1s, got %s", s.Every)
	}
	if s.FirstDelay < 0 || s.Spread < 0 {
		return fmt.Errorf("negative first delay or spread")
	}
	return nil
}

// Daily fires once per day at Hour:Minute UTC, all seven weekdays.
type Daily struct {
	Hour   int
	Minute int
}

// DailyAt returns the Daily schedule matching t's UTC wall-clock time.
func DailyAt(t time.Time) Daily {
	t = t.UTC()
	return Daily{Hour: t.Hour(), Minute: t.Minute()}
}

func (s Daily) Spec() string { return fmt.Sprintf("%d %d * * *", s.Minute, s.Hour) }

func (s Daily) validate() error {
	if s.Hour < 0 || s.Hour > 23 {
		return fmt.Errorf("invalid hour %d", s.Hour)
	}
	if s.Minute < 0 || s.Minute > 59 {
		return fmt.Errorf("invalid minute %d", s.Minute)
	}
	return nil
}

// firstRunSchedule wraps a base schedule and overrides the first run time.
// After the first run, it delegates to the base schedule.
type firstRunSchedule struct {
	base  cron.Schedule
	first time.Time
}

func (s *firstRunSchedule) Next(t time.Time) time.Time {
	if !s.first.IsZero() && t.Before(s.first) {
		return s.first
	}
	return s.base.Next(t)
}

// every repeats at a fixed period without cron.Every's whole-second
// truncation, so ticks after a jittered first run never come early.
type every struct {
	d time.Duration
}

func (e every) Next(t time.Time) time.Time { return t.Add(e.d) }

var spreadSeq uint64

// intervalSchedule builds the cron schedule for an Interval armed at now.
func intervalSchedule(iv Interval, now time.Time, maxSpread time.Duration, tag string) (cron.Schedule, time.Time, time.Duration) {
	base := every{d: iv.Every}

	spread := iv.Spread
	if spread > maxSpread {
		spread = maxSpread
	}
	if spread > iv.Every {
		spread = iv.Every
	}
	var jitter time.Duration
	if spread > 0 {
		seed := time.Now().UnixNano() ^ int64(atomic.AddUint64(&spreadSeq, 1)) ^ int64(fnv64a(tag))
		rng := rand.New(rand.NewSource(seed))
		jitter = time.Duration(rng.Int63n(int64(spread)))
	}

	delay := iv.FirstDelay
	if delay <= 0 {
		delay = iv.Every
	}
	first := now.Add(delay + jitter)
	return &firstRunSchedule{base: base, first: first}, first, jitter
}

func fnv64a(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}
