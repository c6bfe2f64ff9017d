// Package timer derives the remaining time of an attempt and finishes it
// when the time is up.
package timer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/quizrunner/internal/model"
)

// Countdown is the window between a session's start and expiry.
type Countdown struct {
	Start   time.Time
	Expires time.Time
}

// Remaining returns whole seconds left at now. It is zero or negative once
// the session has expired.
func (c Countdown) Remaining(now time.Time) int {
	return model.RemainingSeconds(c.Expires, now)
}

// Expired reports whether no whole second is left.
func (c Countdown) Expired(now time.Time) bool {
	return c.Remaining(now) <= 0
}

// Clock formats the remaining time as MM:SS, never below 00:00.
func (c Countdown) Clock(now time.Time) string {
	left := c.Remaining(now)
	if left < 0 {
		left = 0
	}
	return fmt.Sprintf("%02d:%02d", left/60, left%60)
}

// Progress returns elapsed/total as a percentage in [0, 100].
func (c Countdown) Progress(now time.Time) float64 {
	total := c.Expires.Sub(c.Start)
	if total <= 0 {
		return 100
	}
	p := float64(now.Sub(c.Start)) / float64(total) * 100
	return min(max(p, 0), 100)
}

// Expirer finishes the active session once it is due.
type Expirer interface {
	ExpireIfDue(ctx context.Context, now time.Time) (bool, error)
}

// Watcher polls an Expirer on a fixed cadence.
type Watcher struct {
	Expirer  Expirer
	Interval time.Duration
	Now      func() time.Time
}

// NewWatcher returns a Watcher ticking once per second.
func NewWatcher(e Expirer) *Watcher {
	return &Watcher{Expirer: e, Interval: time.Second, Now: time.Now}
}

// Tick runs a single check.
func (w *Watcher) Tick(ctx context.Context) bool {
	done, err := w.Expirer.ExpireIfDue(ctx, w.Now())
	if err != nil {
		slog.Error("failed to finish expired session", "error", err)
		return false
	}
	return done
}

// Run ticks until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.Tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}
