package tinylang

import (
	"log/slog"
	"time"
)

// LoggingMiddleware announces stage entry and exit through a structured
// logger.
type LoggingMiddleware struct {
	Logger *slog.Logger
}

func NewLoggingMiddleware(logger *slog.Logger) *LoggingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingMiddleware{Logger: logger}
}

func (m *LoggingMiddleware) Name() string { return "logging" }

func (m *LoggingMiddleware) Execute(stageName string, ctx *Context, next Continuation) StageOutcome {
	m.Logger.Info("entering stage", "stage", stageName, "entries", ctx.Count())
	outcome := next()
	if outcome.Succeeded {
		m.Logger.Info("completed stage", "stage", stageName, "result", "success")
	} else {
		m.Logger.Warn("completed stage", "stage", stageName, "result", "failure", "error", outcome.Err)
	}
	return outcome
}

// TimingMiddleware records each stage's wall-clock duration into the
// Context under "timing.<stage>", in addition to logging it.
type TimingMiddleware struct {
	Logger *slog.Logger
}

func NewTimingMiddleware(logger *slog.Logger) *TimingMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimingMiddleware{Logger: logger}
}

func (m *TimingMiddleware) Name() string { return "timing" }

func (m *TimingMiddleware) Execute(stageName string, ctx *Context, next Continuation) StageOutcome {
	start := time.Now()
	outcome := next()
	elapsed := time.Since(start)
	m.Logger.Info("stage timing", "stage", stageName, "elapsed_ms", float64(elapsed.Microseconds())/1000.0)
	_ = ctx.Set("timing."+stageName, elapsed, 0, nil)
	return outcome
}

// MemoryMonitorMiddleware samples the Context's memory usage before and
// after a stage and fails it with MemoryLimitExceeded if growth exceeds
// MaxDelta, independent of the Context's own hard cap.
type MemoryMonitorMiddleware struct {
	MaxDelta int
	Logger   *slog.Logger
}

func NewMemoryMonitorMiddleware(maxDelta int, logger *slog.Logger) *MemoryMonitorMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &MemoryMonitorMiddleware{MaxDelta: maxDelta, Logger: logger}
}

func (m *MemoryMonitorMiddleware) Name() string { return "memory-monitor" }

func (m *MemoryMonitorMiddleware) Execute(stageName string, ctx *Context, next Continuation) StageOutcome {
	before := ctx.MemoryUsage()
	outcome := next()
	after := ctx.MemoryUsage()
	delta := after - before
	m.Logger.Info("stage memory", "stage", stageName, "delta_bytes", delta, "total_bytes", after)

	if m.MaxDelta > 0 && delta > m.MaxDelta {
		m.Logger.Warn("memory growth exceeded per-stage budget", "stage", stageName, "delta_bytes", delta, "max_delta", m.MaxDelta)
		return Failure(NewError(Pos{}, ErrMemoryLimitExceeded, "stage %q grew memory by %d bytes, exceeding the %d byte per-stage budget", stageName, delta, m.MaxDelta))
	}
	return outcome
}

// ResourceLimitMiddleware enforces an advisory wall-clock deadline per
// stage. It cannot preempt a running stage; it polls elapsed time after
// the stage returns and raises the Context's interrupted flag if the
// deadline was exceeded, so later stages see it and can stop early.
type ResourceLimitMiddleware struct {
	Deadline time.Duration
	Enabled  bool
	Logger   *slog.Logger
}

func NewResourceLimitMiddleware(deadline time.Duration, logger *slog.Logger) *ResourceLimitMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &ResourceLimitMiddleware{Deadline: deadline, Enabled: true, Logger: logger}
}

func (m *ResourceLimitMiddleware) Name() string { return "resource-limit" }

func (m *ResourceLimitMiddleware) Execute(stageName string, ctx *Context, next Continuation) StageOutcome {
	if !m.Enabled || m.Deadline <= 0 {
		return next()
	}

	start := time.Now()
	outcome := next()
	if elapsed := time.Since(start); elapsed > m.Deadline {
		m.Logger.Warn("stage exceeded its deadline", "stage", stageName, "elapsed", elapsed, "deadline", m.Deadline)
		ctx.Interrupt()
	}
	return outcome
}

// FaultInjectionMiddleware forces a named stage to fail with a given
// error code, for exercising fault-tolerance policies without crafting
// malformed input.
type FaultInjectionMiddleware struct {
	TargetStage string
	Code        ErrorCode
	Enabled     bool
	Logger      *slog.Logger
}

func NewFaultInjectionMiddleware(targetStage string, code ErrorCode, logger *slog.Logger) *FaultInjectionMiddleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &FaultInjectionMiddleware{TargetStage: targetStage, Code: code, Enabled: true, Logger: logger}
}

func (m *FaultInjectionMiddleware) Name() string { return "fault-injection" }

func (m *FaultInjectionMiddleware) Execute(stageName string, ctx *Context, next Continuation) StageOutcome {
	if !m.Enabled || stageName != m.TargetStage {
		return next()
	}
	m.Logger.Warn("injecting synthetic failure", "stage", stageName, "code", m.Code)
	return Failure(NewError(Pos{}, m.Code, "injected failure in stage %q", stageName))
}
