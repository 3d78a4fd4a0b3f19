// Package analysis adapts the external pose-analysis executable into a domain.Analyzer.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"example.com/formcoach/internal/domain"
)

const (
	// DefaultTimeout bounds a single engine run.
	DefaultTimeout = 2 * time.Minute
	// DefaultMaxConcurrent bounds the number of engine processes alive at once.
	DefaultMaxConcurrent = 4
	// DefaultQueueTimeout bounds how long a job waits for a free engine slot.
	DefaultQueueTimeout = time.Minute

	maxLoggedStderr = 2 << 10
	waitDelay       = 2 * time.Second
)

// Option configures optional behaviour for the ProcessAnalyzer.
type Option func(*ProcessAnalyzer)

// WithLogger overrides the logger used to report fallbacks.
func WithLogger(logger zerolog.Logger) Option {
	return func(a *ProcessAnalyzer) {
		a.logger = logger
	}
}

// WithTimeout bounds each engine run. Zero or negative disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(a *ProcessAnalyzer) {
		a.timeout = timeout
	}
}

// WithMaxConcurrent bounds concurrent engine processes. Zero or negative disables the bound.
func WithMaxConcurrent(n int) Option {
	return func(a *ProcessAnalyzer) {
		if n <= 0 {
			a.slots = nil
			return
		}
		a.slots = semaphore.NewWeighted(int64(n))
	}
}

// WithQueueTimeout bounds the wait for a free engine slot, independent of the
// caller's context. Zero or negative leaves only the caller's context.
func WithQueueTimeout(timeout time.Duration) Option {
	return func(a *ProcessAnalyzer) {
		a.queueTimeout = timeout
	}
}

// WithFallbackPolicy replaces the default fallback results.
func WithFallbackPolicy(policy FallbackPolicy) Option {
	return func(a *ProcessAnalyzer) {
		a.policy = policy
	}
}

// WithEnv appends variables to the engine's inherited environment.
func WithEnv(env ...string) Option {
	return func(a *ProcessAnalyzer) {
		a.env = append(a.env, env...)
	}
}

// ProcessAnalyzer runs the engine once per call, passing the video path as the
// final positional argument, and buffers stdout and stderr in full before
// deciding anything.
type ProcessAnalyzer struct {
	command      string
	args         []string
	env          []string
	timeout      time.Duration
	queueTimeout time.Duration
	slots        *semaphore.Weighted
	policy       FallbackPolicy
	logger       zerolog.Logger
}

var _ domain.Analyzer = (*ProcessAnalyzer)(nil)

// NewProcessAnalyzer constructs an analyzer for command. Leading args (for
// example an interpreter script) are placed before the video path.
func NewProcessAnalyzer(command string, args []string, opts ...Option) *ProcessAnalyzer {
	a := &ProcessAnalyzer{
		command:      command,
		args:         append([]string(nil), args...),
		timeout:      DefaultTimeout,
		queueTimeout: DefaultQueueTimeout,
		slots:        semaphore.NewWeighted(DefaultMaxConcurrent),
		policy:       DefaultFallbackPolicy(),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze never fails: engine problems are logged and replaced by the fallback policy.
func (a *ProcessAnalyzer) Analyze(ctx context.Context, videoPath string) (domain.AnalysisResult, domain.Outcome) {
	start := time.Now()
	result, outcome := a.analyze(ctx, videoPath)
	recordJob(outcome, time.Since(start))
	return result, outcome
}

func (a *ProcessAnalyzer) analyze(ctx context.Context, videoPath string) (domain.AnalysisResult, domain.Outcome) {
	if a.slots != nil {
		if err := a.acquire(ctx); err != nil {
			a.logger.Warn().Err(err).Str("path", videoPath).Dur("queue_timeout", a.queueTimeout).Msg("gave up waiting for an analysis slot, using fallback")
			return a.policy.forOutcome(domain.OutcomeTimeout), domain.OutcomeTimeout
		}
		defer a.slots.Release(1)
	}

	inflightGauge.Inc()
	defer inflightGauge.Dec()

	runCtx := ctx
	if a.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), a.args...), videoPath)
	cmd := exec.CommandContext(runCtx, a.command, args...)
	cmd.WaitDelay = waitDelay
	if len(a.env) > 0 {
		cmd.Env = append(os.Environ(), a.env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		outcome := domain.OutcomeProcessFailed
		if runCtx.Err() != nil {
			outcome = domain.OutcomeTimeout
		}
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		a.logger.Warn().
			Err(err).
			Str("path", videoPath).
			Int("exit_code", exitCode).
			Str("outcome", string(outcome)).
			Str("stderr", truncate(stderr.String(), maxLoggedStderr)).
			Msg("analysis engine failed, using fallback")
		return a.policy.forOutcome(outcome), outcome
	}

	result, err := ParseResult(stdout.Bytes())
	if err != nil {
		a.logger.Warn().
			Err(err).
			Str("path", videoPath).
			Str("stdout", truncate(stdout.String(), maxLoggedStderr)).
			Str("stderr", truncate(stderr.String(), maxLoggedStderr)).
			Msg("analysis engine output unusable, using fallback")
		return a.policy.forOutcome(domain.OutcomeMalformedOutput), domain.OutcomeMalformedOutput
	}

	if result.ExerciseName == engineErrorExercise {
		engineReportedErrors.Inc()
		a.logger.Info().Str("path", videoPath).Strs("feedback", result.Feedback).Msg("analysis engine reported an internal error")
	}
	return result, domain.OutcomeOK
}

func (a *ProcessAnalyzer) acquire(ctx context.Context) error {
	if a.queueTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.queueTimeout)
		defer cancel()
	}
	queueDepth.Inc()
	defer queueDepth.Dec()
	return a.slots.Acquire(ctx, 1)
}

// engineErrorExercise is what the engine prints when it fails internally but still exits 0.
const engineErrorExercise = "error"

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
