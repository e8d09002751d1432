package tinylang

import (
	"sync"
	"sync/atomic"

	"github.com/cznic/mathutil"
)

const (
	maxKeyLength      = 256
	maxContextEntries = 512
	defaultMaxMemory  = 10 * 1024 * 1024 // 10 MB, mirrors the reference implementation's budget
)

// ReleaseFunc runs exactly once, when the last reference to a value is
// dropped.
type ReleaseFunc func(value interface{})

// refCountedValue is the reference-counted wrapper stored behind every
// Context entry.
type refCountedValue struct {
	data    interface{}
	release ReleaseFunc
	count   int32
	size    int
}

func (v *refCountedValue) retain() {
	atomic.AddInt32(&v.count, 1)
}

// releaseOne decrements the reference count and runs the release hook
// exactly once, when the count reaches zero.
func (v *refCountedValue) releaseOne() {
	if atomic.AddInt32(&v.count, -1) == 0 {
		if v.release != nil {
			v.release(v.data)
		}
	}
}

// Ref is an owned, explicitly-released view into a Context value. It keeps
// the underlying value alive even if the Context later rebinds or removes
// the key it was acquired under.
type Ref struct {
	value    *refCountedValue
	released bool
}

func (r *Ref) Value() interface{} {
	return r.value.data
}

func (r *Ref) Release() {
	if r.released {
		return
	}
	r.released = true
	r.value.releaseOne()
}

// Context is the shared, thread-safe, reference-counted, memory-capped
// key/value store passed between pipeline stages.
type Context struct {
	mu          sync.Mutex
	entries     map[string]*refCountedValue
	totalMemory int
	maxMemory   int
	maxEntries  int
	interrupted atomic.Bool
}

// NewContext creates an empty Context with the default resource caps.
func NewContext() *Context {
	return &Context{
		entries:    make(map[string]*refCountedValue),
		maxMemory:  defaultMaxMemory,
		maxEntries: maxContextEntries,
	}
}

// maxConfigurableMemory bounds SetMemoryBudget against runaway presets;
// nothing in this compiler's pipeline legitimately needs more per run.
const maxConfigurableMemory = 1 << 30 // 1 GiB

// SetMemoryBudget overrides the default memory cap, clamped to
// [0, maxConfigurableMemory]. Entries already bound are kept even if they
// exceed the new budget; later Set calls that would exceed it fail.
func (c *Context) SetMemoryBudget(bytes int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxMemory = mathutil.Clamp(bytes, 0, maxConfigurableMemory)
}

// SetMaxEntries overrides the default entry-count cap.
func (c *Context) SetMaxEntries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxEntries = n
}

// Set binds key to value, releasing any prior binding first. size is the
// number of bytes to charge against the memory budget for this entry.
func (c *Context) Set(key string, value interface{}, size int, release ReleaseFunc) error {
	if len(key) > maxKeyLength {
		return NewError(Pos{}, ErrKeyTooLong, "context key %q exceeds %d bytes", key, maxKeyLength)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	prior, existed := c.entries[key]
	var freed int
	if existed {
		freed = prior.size
	}
	projected := c.totalMemory - freed + size
	if projected > c.maxMemory {
		return NewError(Pos{}, ErrMemoryLimitExceeded, "setting %q would use %d bytes, budget is %d", key, projected, c.maxMemory)
	}
	if !existed && len(c.entries) >= c.maxEntries {
		return NewError(Pos{}, ErrCapacityExceeded, "context already holds the maximum of %d entries", c.maxEntries)
	}

	if existed {
		prior.releaseOne()
	}
	c.entries[key] = &refCountedValue{
		data:    value,
		release: release,
		count:   1,
		size:    size,
	}
	c.totalMemory = projected
	return nil
}

// Get returns a borrowed view of the value bound to key. The caller must
// not retain it beyond the current stage.
func (c *Context) Get(key string) (interface{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, NewError(Pos{}, ErrNotFound, "context key %q is not bound", key)
	}
	return v.data, nil
}

// Has reports whether key is currently bound.
func (c *Context) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok
}

// Acquire returns an owned Ref that keeps the bound value alive until
// explicitly released, independent of future Set/Remove calls on key.
func (c *Context) Acquire(key string) (*Ref, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, NewError(Pos{}, ErrNotFound, "context key %q is not bound", key)
	}
	v.retain()
	return &Ref{value: v}, nil
}

// Remove drops the binding for key, releasing its reference.
func (c *Context) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.totalMemory -= v.size
	v.releaseOne()
}

// Count returns the number of bound entries.
func (c *Context) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// MemoryUsage returns the total tracked memory of all bound entries.
func (c *Context) MemoryUsage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalMemory
}

// Clear drops every binding, releasing all references.
func (c *Context) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range c.entries {
		v.releaseOne()
	}
	c.entries = make(map[string]*refCountedValue)
	c.totalMemory = 0
}

// Interrupt raises the advisory interrupted flag. Middleware uses this to
// signal execute should stop cleanly without a stage-level failure.
func (c *Context) Interrupt() {
	c.interrupted.Store(true)
}

// Interrupted reports whether Interrupt has been called since the last
// ClearInterrupt.
func (c *Context) Interrupted() bool {
	return c.interrupted.Load()
}

// ClearInterrupt lowers the advisory interrupted flag.
func (c *Context) ClearInterrupt() {
	c.interrupted.Store(false)
}

// Context entry keys used by the core pipeline.
const (
	KeySourceText = "source_text"
	KeyTokens     = "tokens"
	KeyAST        = "ast"
	KeyOutputCode = "output_code"
	KeyASTTyped   = "ast_typed"
)
