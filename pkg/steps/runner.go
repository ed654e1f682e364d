// Package steps runs the numbered stages of the setup wizard with a banner,
// a minimum display time and uniform error wrapping.
package steps

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// DefaultMinDuration is how long a step stays on screen at minimum.
const DefaultMinDuration = 2 * time.Second

// Separator is the rule printed above each step banner.
var Separator = strings.Repeat("=", 83)

// Error reports which step failed. Its message keeps the underlying error's
// text so the failing stage can be reported from the top level.
type Error struct {
	Step int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("Step %d failed with the following error: %s", e.Step, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Runner executes steps.
type Runner struct {
	out   io.Writer
	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithClock replaces the clock and the sleeper, for tests.
func WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) RunnerOption {
	return func(r *Runner) {
		r.now = now
		r.sleep = sleep
	}
}

// NewRunner creates a runner printing banners to out.
func NewRunner(out io.Writer, opts ...RunnerOption) *Runner {
	r := &Runner{out: out, now: time.Now, sleep: sleepContext}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Banner prints the step header without running anything.
func (r *Runner) Banner(step int, description string) {
	fmt.Fprintf(r.out, "\n%s\nStep %d:\n%s\n", Separator, step, description)
}

// Run prints the banner for step, runs action and holds the result until at
// least minDuration has passed since the banner. A failure is returned as
// *Error without waiting.
func Run[T any](ctx context.Context, r *Runner, step int, description string, minDuration time.Duration, action func(context.Context) (T, error)) (T, error) {
	r.Banner(step, description)
	slog.Debug("step_start", "step", step)

	start := r.now()
	result, err := action(ctx)
	elapsed := r.now().Sub(start)
	if err != nil {
		slog.Error("step_failed", "step", step, "elapsed_ms", elapsed.Milliseconds(), "error", err)
		var zero T
		return zero, &Error{Step: step, Err: err}
	}

	if remaining := minDuration - elapsed; remaining > 0 {
		if err := r.sleep(ctx, remaining); err != nil {
			var zero T
			return zero, &Error{Step: step, Err: err}
		}
	}

	slog.Debug("step_complete", "step", step, "elapsed_ms", r.now().Sub(start).Milliseconds())
	return result, nil
}

// Do is Run for actions without a result.
func Do(ctx context.Context, r *Runner, step int, description string, minDuration time.Duration, action func(context.Context) error) error {
	_, err := Run(ctx, r, step, description, minDuration, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, action(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
