package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/core"
	"github.com/hugo-lorenzo-mato/juju-k8s-crashdump/internal/logging"
)

// Runner abstracts command execution for testability.
type Runner interface {
	// Run executes the invocation and returns its standard output.
	Run(ctx context.Context, inv Invocation) (string, error)
}

// RetryPolicy is a fixed-delay retry budget. Attempts counts the attempts
// made after the first one fails.
type RetryPolicy struct {
	Attempts int
	Delay    time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 2,
		Delay:    time.Second,
	}
}

// Observer receives execution events, e.g. for metrics.
type Observer interface {
	// AttemptFinished is called after every process attempt that ran.
	AttemptFinished(inv Invocation, attempt, exitCode int, elapsed time.Duration)
	// CommandFinished is called once per Run with the final error, if any.
	CommandFinished(inv Invocation, attempts int, err error, elapsed time.Duration)
}

type launchFunc func(ctx context.Context, tokens, env []string) (Outcome, error)

type sleepFunc func(ctx context.Context, d time.Duration) error

// ExecRunner is the production Runner that uses os/exec.
type ExecRunner struct {
	policy   RetryPolicy
	logger   *logging.Logger
	slots    *semaphore.Weighted
	limiter  *rate.Limiter
	observer Observer

	launch launchFunc
	sleep  sleepFunc
}

// Option configures an ExecRunner.
type Option func(*ExecRunner)

// WithRetryPolicy sets the retry budget and delay.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(r *ExecRunner) {
		if p.Attempts < 0 {
			p.Attempts = 0
		}
		r.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *ExecRunner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithConcurrencyLimit bounds the number of child processes running at once.
// Zero or a negative value means unbounded.
func WithConcurrencyLimit(n int) Option {
	return func(r *ExecRunner) {
		if n > 0 {
			r.slots = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithSpawnRate limits how fast new processes are started.
// A zero limit disables rate limiting.
func WithSpawnRate(limit rate.Limit, burst int) Option {
	return func(r *ExecRunner) {
		if limit <= 0 {
			r.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(limit, burst)
	}
}

// WithObserver registers an execution observer.
func WithObserver(o Observer) Option {
	return func(r *ExecRunner) {
		r.observer = o
	}
}

// NewExecRunner creates a new ExecRunner.
func NewExecRunner(opts ...Option) *ExecRunner {
	r := &ExecRunner{
		policy: DefaultRetryPolicy(),
		logger: logging.NewNop(),
		launch: launchProcess,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the configured retry policy.
func (r *ExecRunner) Policy() RetryPolicy {
	return r.policy
}

// Run executes the invocation, retrying non-zero exits with a fixed delay
// until the budget is spent. The first zero exit returns stdout.
func (r *ExecRunner) Run(ctx context.Context, inv Invocation) (string, error) {
	tokens := inv.Tokens()
	if len(tokens) == 0 {
		return "", core.ErrValidation(core.CodeEmptyInvocation, "invocation has no tokens")
	}
	env := inv.Environ()
	started := time.Now()

	var last Outcome
	attempt := 1
	for ; ; attempt++ {
		out, err := r.attempt(ctx, inv, tokens, env, attempt)
		if err != nil {
			r.finished(inv, attempt, err, started)
			return "", err
		}
		last = out

		if out.ExitCode == 0 {
			r.finished(inv, attempt, nil, started)
			return out.Stdout, nil
		}
		if attempt > r.policy.Attempts {
			break
		}

		r.logger.Debug("command failed, retrying",
			"command", inv.String(),
			"exit_code", out.ExitCode,
			"attempt", attempt,
			"delay", r.policy.Delay,
		)
		if err := r.sleep(ctx, r.policy.Delay); err != nil {
			err = fmt.Errorf("waiting to retry %s: %w", inv.Tool(), err)
			r.finished(inv, attempt, err, started)
			return "", err
		}
	}

	failure := newFailure(last, attempt)
	r.finished(inv, attempt, failure, started)
	return "", failure
}

// attempt runs the process once while holding a concurrency slot. The slot
// is released before any retry delay.
func (r *ExecRunner) attempt(ctx context.Context, inv Invocation, tokens, env []string, n int) (Outcome, error) {
	if r.slots != nil {
		if err := r.slots.Acquire(ctx, 1); err != nil {
			return Outcome{}, fmt.Errorf("waiting for process slot: %w", err)
		}
		defer r.slots.Release(1)
	}
	if r.limiter != nil {
		if err := r.limiter.Wait(ctx); err != nil {
			return Outcome{}, fmt.Errorf("waiting for spawn rate: %w", err)
		}
	}

	begin := time.Now()
	out, err := r.launch(ctx, tokens, env)
	out.Invocation = inv
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Outcome{}, fmt.Errorf("running %s: %w", inv.Tool(), ctxErr)
		}
		return Outcome{}, &Error{
			Invocation: inv,
			ExitCode:   -1,
			Stdout:     out.Stdout,
			Stderr:     out.Stderr,
			Attempts:   n,
			Err:        err,
		}
	}

	if r.observer != nil {
		r.observer.AttemptFinished(inv, n, out.ExitCode, time.Since(begin))
	}
	return out, nil
}

func (r *ExecRunner) finished(inv Invocation, attempts int, err error, started time.Time) {
	if r.observer != nil {
		r.observer.CommandFinished(inv, attempts, err, time.Since(started))
	}
}

// launchProcess starts the process and waits for it. An error is returned
// only when the process could not run to completion on its own; a non-zero
// exit is reported through Outcome.ExitCode.
func launchProcess(ctx context.Context, tokens, env []string) (Outcome, error) {
	cmd := exec.CommandContext(ctx, tokens[0], tokens[1:]...)
	cmd.Env = env

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Outcome{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && ctx.Err() == nil {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	out.ExitCode = -1
	return out, err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
