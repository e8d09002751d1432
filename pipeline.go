package tinylang

import (
	"sync/atomic"
)

// FaultTolerance selects how the pipeline reacts to a failing stage.
type FaultTolerance int

const (
	Strict FaultTolerance = iota
	Lenient
	BestEffort
	Custom
)

// StageOutcome is the result of running a single stage.
type StageOutcome struct {
	Succeeded bool
	Err       error // a CompileError when Succeeded is false
}

func Success() StageOutcome {
	return StageOutcome{Succeeded: true}
}

func Failure(err error) StageOutcome {
	return StageOutcome{Succeeded: false, Err: err}
}

// StageFailure describes one stage's failure, as recorded in a PipelineOutcome.
type StageFailure struct {
	StageName string
	Err       error
}

// PipelineOutcome is the result of a full pipeline execution.
type PipelineOutcome struct {
	Succeeded bool
	Failures  []StageFailure
}

// Stage is a named, synchronous unit of work over a Context.
type Stage interface {
	Name() string
	Run(ctx *Context) StageOutcome
}

// StageFunc adapts a plain function into a Stage.
type StageFunc struct {
	StageName string
	Fn        func(ctx *Context) StageOutcome
}

func (s StageFunc) Name() string { return s.StageName }
func (s StageFunc) Run(ctx *Context) StageOutcome { return s.Fn(ctx) }

// Continuation runs the next-innermost middleware, or the stage itself at
// the bottom of the onion.
type Continuation func() StageOutcome

// Middleware is a named interceptor wrapping every stage. It may observe,
// short-circuit, or post-process the stage's outcome; it must invoke next
// at most once.
type Middleware interface {
	Name() string
	Execute(stageName string, ctx *Context, next Continuation) StageOutcome
}

// FailureHandler decides, in Custom fault-tolerance mode, whether a failed
// stage should allow the pipeline to continue.
type FailureHandler func(stageName string, outcome StageOutcome) (continue_ bool)

// Pipeline is an ordered stage list wrapped by an ordered middleware stack,
// sharing a single Context.
type Pipeline struct {
	stages         []Stage
	middlewares    []Middleware
	context        *Context
	faultTolerance FaultTolerance
	detailLevel    DetailLevel
	failureHandler FailureHandler
	executing      int32 // atomic re-entrancy guard
}

// NewPipeline creates a Pipeline over ctx with the given fault-tolerance
// policy. A nil ctx allocates a fresh Context.
func NewPipeline(ctx *Context, ft FaultTolerance) *Pipeline {
	if ctx == nil {
		ctx = NewContext()
	}
	return &Pipeline{
		context:        ctx,
		faultTolerance: ft,
	}
}

func (p *Pipeline) Context() *Context {
	return p.context
}

// AddStage appends a stage. Fails with Reentrancy while execute is running.
func (p *Pipeline) AddStage(s Stage) error {
	if !p.tryMutate() {
		return NewError(Pos{}, ErrReentrancy, "cannot add stage %q while the pipeline is executing", s.Name())
	}
	p.stages = append(p.stages, s)
	return nil
}

// AddMiddleware appends a middleware to the inner end of the stack: the
// first middleware added is the outermost for every stage.
func (p *Pipeline) AddMiddleware(m Middleware) error {
	if !p.tryMutate() {
		return NewError(Pos{}, ErrReentrancy, "cannot add middleware %q while the pipeline is executing", m.Name())
	}
	p.middlewares = append(p.middlewares, m)
	return nil
}

// SetFailureHandler installs the callback used in Custom fault-tolerance
// mode.
func (p *Pipeline) SetFailureHandler(h FailureHandler) {
	p.failureHandler = h
}

// tryMutate reports whether a structural mutation is currently allowed.
func (p *Pipeline) tryMutate() bool {
	return atomic.LoadInt32(&p.executing) == 0
}

// Execute runs every stage in order, each wrapped by the full middleware
// onion, honoring the configured fault-tolerance policy.
func (p *Pipeline) Execute() PipelineOutcome {
	if !atomic.CompareAndSwapInt32(&p.executing, 0, 1) {
		return PipelineOutcome{
			Succeeded: false,
			Failures: []StageFailure{{
				StageName: "<pipeline>",
				Err:       NewError(Pos{}, ErrReentrancy, "execute called while already executing"),
			}},
		}
	}
	defer atomic.StoreInt32(&p.executing, 0)

	outcome := PipelineOutcome{Succeeded: true}
	for _, stage := range p.stages {
		if p.context.Interrupted() {
			break
		}
		result := p.runWithMiddleware(stage)
		if result.Succeeded {
			continue
		}

		failure := StageFailure{StageName: stage.Name(), Err: withDetail(result.Err, p.detailLevel)}
		outcome.Failures = append(outcome.Failures, failure)

		switch p.faultTolerance {
		case Strict:
			outcome.Succeeded = false
			return outcome
		case Lenient:
			outcome.Succeeded = false
			continue
		case BestEffort:
			continue
		case Custom:
			cont := true
			if p.failureHandler != nil {
				cont = p.failureHandler(stage.Name(), result)
			}
			if !cont {
				outcome.Succeeded = false
				return outcome
			}
		}
	}
	return outcome
}

// runWithMiddleware builds and invokes the onion M1(M2(...(Mn(stage)))) for
// a single stage.
func (p *Pipeline) runWithMiddleware(stage Stage) StageOutcome {
	var dispatch func(i int) StageOutcome
	dispatch = func(i int) StageOutcome {
		if i >= len(p.middlewares) {
			return stage.Run(p.context)
		}
		mw := p.middlewares[i]
		return mw.Execute(stage.Name(), p.context, func() StageOutcome {
			return dispatch(i + 1)
		})
	}
	return dispatch(0)
}

func withDetail(err error, level DetailLevel) error {
	if ce, ok := err.(CompileError); ok {
		return ce.WithDetail(level)
	}
	return err
}
