package safety

import (
	"context"
	"time"

	"github.com/rcliao/agent-notes/internal/logging"
)

// Timer measures elapsed wall time with nanosecond resolution.
type Timer struct {
	start time.Time
}

// StartTimer starts a timer.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// ElapsedNs returns nanoseconds since the timer started.
func (t Timer) ElapsedNs() int64 {
	return time.Since(t.start).Nanoseconds()
}

// Elapsed returns the time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}

// CheckBudget logs a warning when the timer has exceeded budget and reports
// whether it is still within budget. It never fails the caller.
func CheckBudget(ctx context.Context, t Timer, budget time.Duration, op string) bool {
	if budget <= 0 {
		return true
	}
	elapsed := t.Elapsed()
	if elapsed <= budget {
		return true
	}
	logging.From(ctx).Warn("performance budget exceeded",
		"op", op,
		"elapsed_ns", elapsed.Nanoseconds(),
		"budget_ns", budget.Nanoseconds(),
	)
	return false
}
