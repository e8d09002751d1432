package tinylang_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinylang"
)

func succeedingStage(name string) tinylang.Stage {
	return tinylang.StageFunc{StageName: name, Fn: func(ctx *tinylang.Context) tinylang.StageOutcome {
		return tinylang.Success()
	}}
}

func failingStage(name string) tinylang.Stage {
	return tinylang.StageFunc{StageName: name, Fn: func(ctx *tinylang.Context) tinylang.StageOutcome {
		return tinylang.Failure(tinylang.NewError(tinylang.Pos{}, tinylang.ErrInvalidInput, "boom in %s", name))
	}}
}

func TestPipelineExecuteAllSucceed(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.Strict)
	require.NoError(t, p.AddStage(succeedingStage("a")))
	require.NoError(t, p.AddStage(succeedingStage("b")))
	outcome := p.Execute()
	assert.True(t, outcome.Succeeded)
	assert.Empty(t, outcome.Failures)
}

func TestPipelineStrictStopsOnFirstFailure(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.Strict)
	var ran []string
	track := func(name string) tinylang.Stage {
		return tinylang.StageFunc{StageName: name, Fn: func(ctx *tinylang.Context) tinylang.StageOutcome {
			ran = append(ran, name)
			return tinylang.Success()
		}}
	}
	require.NoError(t, p.AddStage(failingStage("a")))
	require.NoError(t, p.AddStage(track("b")))
	outcome := p.Execute()
	assert.False(t, outcome.Succeeded)
	assert.Len(t, outcome.Failures, 1)
	assert.Empty(t, ran)
}

func TestPipelineLenientContinuesButMarksFailed(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.Lenient)
	var ran []string
	track := func(name string) tinylang.Stage {
		return tinylang.StageFunc{StageName: name, Fn: func(ctx *tinylang.Context) tinylang.StageOutcome {
			ran = append(ran, name)
			return tinylang.Success()
		}}
	}
	require.NoError(t, p.AddStage(failingStage("a")))
	require.NoError(t, p.AddStage(track("b")))
	outcome := p.Execute()
	assert.False(t, outcome.Succeeded)
	assert.Equal(t, []string{"b"}, ran)
}

func TestPipelineBestEffortDoesNotMarkFailed(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.BestEffort)
	require.NoError(t, p.AddStage(failingStage("a")))
	outcome := p.Execute()
	assert.True(t, outcome.Succeeded)
	assert.Len(t, outcome.Failures, 1)
}

func TestPipelineCustomFailureHandler(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.Custom)
	p.SetFailureHandler(func(stageName string, outcome tinylang.StageOutcome) bool {
		return stageName != "a"
	})
	require.NoError(t, p.AddStage(failingStage("a")))
	outcome := p.Execute()
	assert.False(t, outcome.Succeeded)
}

func TestPipelineMiddlewareOrderingIsOnion(t *testing.T) {
	var order []string
	mw := func(name string) tinylang.Middleware {
		return middlewareFunc{name: name, fn: func(stageName string, ctx *tinylang.Context, next tinylang.Continuation) tinylang.StageOutcome {
			order = append(order, "before:"+name)
			out := next()
			order = append(order, "after:"+name)
			return out
		}}
	}
	p := tinylang.NewPipeline(nil, tinylang.Strict)
	require.NoError(t, p.AddMiddleware(mw("m1")))
	require.NoError(t, p.AddMiddleware(mw("m2")))
	require.NoError(t, p.AddStage(succeedingStage("s")))
	p.Execute()
	assert.Equal(t, []string{"before:m1", "before:m2", "after:m2", "after:m1"}, order)
}

func TestPipelineReentrancyGuard(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.Strict)
	require.NoError(t, p.AddStage(tinylang.StageFunc{StageName: "reenter", Fn: func(ctx *tinylang.Context) tinylang.StageOutcome {
		outcome := p.Execute()
		assert.False(t, outcome.Succeeded)
		var ce tinylang.CompileError
		require.True(t, errors.As(outcome.Failures[0].Err, &ce))
		assert.Equal(t, tinylang.ErrReentrancy, ce.Code)
		return tinylang.Success()
	}}))
	outcome := p.Execute()
	assert.True(t, outcome.Succeeded)
}

func TestPipelineAddStageFailsWhileExecuting(t *testing.T) {
	p := tinylang.NewPipeline(nil, tinylang.Strict)
	require.NoError(t, p.AddStage(tinylang.StageFunc{StageName: "s", Fn: func(ctx *tinylang.Context) tinylang.StageOutcome {
		err := p.AddStage(succeedingStage("late"))
		assert.Error(t, err)
		return tinylang.Success()
	}}))
	p.Execute()
}

type middlewareFunc struct {
	name string
	fn   func(stageName string, ctx *tinylang.Context, next tinylang.Continuation) tinylang.StageOutcome
}

func (m middlewareFunc) Name() string { return m.name }
func (m middlewareFunc) Execute(stageName string, ctx *tinylang.Context, next tinylang.Continuation) tinylang.StageOutcome {
	return m.fn(stageName, ctx, next)
}
