package tinylang_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tinylang"
)

func TestContextSetGetRoundTrip(t *testing.T) {
	ctx := tinylang.NewContext()
	require.NoError(t, ctx.Set("k", "v", 1, nil))
	v, err := ctx.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestContextGetMissingKeyFails(t *testing.T) {
	ctx := tinylang.NewContext()
	_, err := ctx.Get("missing")
	require.Error(t, err)
}

func TestContextKeyTooLongFails(t *testing.T) {
	ctx := tinylang.NewContext()
	longKey := make([]byte, 300)
	for i := range longKey {
		longKey[i] = 'a'
	}
	err := ctx.Set(string(longKey), 1, 1, nil)
	require.Error(t, err)
}

func TestContextMemoryBudgetEnforced(t *testing.T) {
	ctx := tinylang.NewContext()
	ctx.SetMemoryBudget(10)
	require.NoError(t, ctx.Set("a", 1, 5, nil))
	err := ctx.Set("b", 1, 10, nil)
	require.Error(t, err)
}

func TestContextMaxEntriesEnforced(t *testing.T) {
	ctx := tinylang.NewContext()
	ctx.SetMaxEntries(1)
	require.NoError(t, ctx.Set("a", 1, 0, nil))
	err := ctx.Set("b", 1, 0, nil)
	require.Error(t, err)
}

func TestContextReleaseHookFiresExactlyOnceOnRemove(t *testing.T) {
	ctx := tinylang.NewContext()
	calls := 0
	require.NoError(t, ctx.Set("k", "v", 1, func(interface{}) { calls++ }))
	ctx.Remove("k")
	assert.Equal(t, 1, calls)
	ctx.Remove("k")
	assert.Equal(t, 1, calls)
}

func TestContextAcquireKeepsValueAliveAfterRemove(t *testing.T) {
	ctx := tinylang.NewContext()
	calls := 0
	require.NoError(t, ctx.Set("k", "v", 1, func(interface{}) { calls++ }))
	ref, err := ctx.Acquire("k")
	require.NoError(t, err)
	ctx.Remove("k")
	assert.Equal(t, 0, calls)
	assert.Equal(t, "v", ref.Value())
	ref.Release()
	assert.Equal(t, 1, calls)
}

func TestContextClearReleasesEverything(t *testing.T) {
	ctx := tinylang.NewContext()
	calls := 0
	require.NoError(t, ctx.Set("a", 1, 0, func(interface{}) { calls++ }))
	require.NoError(t, ctx.Set("b", 2, 0, func(interface{}) { calls++ }))
	ctx.Clear()
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, ctx.Count())
}

func TestContextInterruptFlag(t *testing.T) {
	ctx := tinylang.NewContext()
	assert.False(t, ctx.Interrupted())
	ctx.Interrupt()
	assert.True(t, ctx.Interrupted())
	ctx.ClearInterrupt()
	assert.False(t, ctx.Interrupted())
}
