package hwsim

import (
	"sync"

	"github.com/ledctl/corefw/hw"
)

// sourceState tracks one interrupt source's simulated controller state.
type sourceState struct {
	enabled     bool
	priority    hw.InterruptPriority
	subPriority hw.SubPriority
	flagged     bool
}

// InterruptController simulates a vectored interrupt controller: it tracks
// per-source enable/priority/flag state but never actually delivers an
// interrupt - callers drive Module.Service* methods directly to simulate
// one firing.
type InterruptController struct {
	mu      sync.Mutex
	sources map[hw.InterruptSource]*sourceState
	global  bool
}

// NewInterruptController constructs an InterruptController with global
// interrupts disabled, matching reset-state silicon.
func NewInterruptController() *InterruptController {
	return &InterruptController{sources: make(map[hw.InterruptSource]*sourceState)}
}

func (c *InterruptController) state(source hw.InterruptSource) *sourceState {
	s, ok := c.sources[source]
	if !ok {
		s = &sourceState{}
		c.sources[source] = s
	}
	return s
}

func (c *InterruptController) Enable(source hw.InterruptSource, priority hw.InterruptPriority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state(source)
	s.enabled = true
	s.priority = priority
}

func (c *InterruptController) Disable(source hw.InterruptSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(source).enabled = false
}

func (c *InterruptController) SetPriority(source hw.InterruptSource, level hw.InterruptPriority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(source).priority = level
}

func (c *InterruptController) SetSubPriority(source hw.InterruptSource, level hw.SubPriority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(source).subPriority = level
}

func (c *InterruptController) GetFlag(source hw.InterruptSource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state(source).flagged
}

func (c *InterruptController) ClearFlag(source hw.InterruptSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state(source).flagged = false
}

func (c *InterruptController) GlobalEnable()  { c.mu.Lock(); c.global = true; c.mu.Unlock() }
func (c *InterruptController) GlobalDisable() { c.mu.Lock(); c.global = false; c.mu.Unlock() }

// EnableMultivector is a no-op in simulation: there is no shared-vector
// fallback to distinguish from per-source vectoring here.
func (c *InterruptController) EnableMultivector() {}

// IsEnabled reports whether source is currently enabled, for test
// assertions.
func (c *InterruptController) IsEnabled(source hw.InterruptSource) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state(source).enabled
}
