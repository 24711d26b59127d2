// Package hw defines the contracts the serial transport engines consume
// from the platform adapter: atomically-aliased peripheral registers and a
// vectored interrupt controller. Concrete implementations - real
// memory-mapped silicon, or a software simulation for tests - live outside
// this package; hw only describes the shape transports are written against.
package hw

import "sync/atomic"

// Register is a typed wrapper around the set/clear/invert register aliasing
// common to microcontroller peripheral blocks: writing to Clear/Set/Invert
// atomically masks the bits of Value without a read-modify-write race
// against an interrupt handler touching the same register.
//
// This is the Go expression of the firmware's `atomic_reg` macro (four
// consecutive volatile words); here the four operations are methods on one
// atomic-backed word instead of pointer arithmetic into a hardware-defined
// memory layout.
type Register struct {
	value atomic.Uint32
}

// Load reads the register's current value.
func (r *Register) Load() uint32 { return r.value.Load() }

// Store writes the register's value directly (used for one-shot writes
// such as a baud-rate divisor, where masking semantics don't apply).
func (r *Register) Store(v uint32) { r.value.Store(v) }

// SetBits atomically ORs mask into the register.
func (r *Register) SetBits(mask uint32) { r.value.Or(mask) }

// ClearBits atomically ANDs the complement of mask into the register.
func (r *Register) ClearBits(mask uint32) { r.value.And(^mask) }

// InvertBits atomically XORs mask into the register.
func (r *Register) InvertBits(mask uint32) {
	for {
		old := r.value.Load()
		if r.value.CompareAndSwap(old, old^mask) {
			return
		}
	}
}

// TestBits reports whether any bit in mask is currently set.
func (r *Register) TestBits(mask uint32) bool { return r.value.Load()&mask != 0 }

// InterruptSource identifies one interrupt line in the platform's
// interrupt-descriptor table (spec §6).
type InterruptSource int

// InterruptPriority is the interrupt controller's priority level; 0 disables
// the source, 7 is the highest priority (spec §5).
type InterruptPriority uint8

const (
	PriorityDisabled InterruptPriority = iota
	Priority1
	Priority2
	Priority3
	Priority4
	Priority5
	Priority6
	Priority7
)

// SubPriority further orders interrupts that share an InterruptPriority.
type SubPriority uint8

const (
	SubPriority0 SubPriority = iota
	SubPriority1
	SubPriority2
	SubPriority3
)

// InterruptController is the vectored interrupt controller contract
// consumed by the serial transport engines (spec §6). A transport module
// owns exactly the three sources wired to it (fault, RX-done, TX-done) for
// as long as it is assigned.
type InterruptController interface {
	Enable(source InterruptSource, priority InterruptPriority)
	Disable(source InterruptSource)
	SetPriority(source InterruptSource, level InterruptPriority)
	SetSubPriority(source InterruptSource, level SubPriority)
	GetFlag(source InterruptSource) bool
	ClearFlag(source InterruptSource)
	GlobalEnable()
	GlobalDisable()
	EnableMultivector()
}

// ChannelWiring names the three interrupt sources a transport module owns
// for one hardware channel, and the priority/sub-priority to arm them at.
type ChannelWiring struct {
	Fault, RxDone, TxDone InterruptSource
	Priority              InterruptPriority
	SubPriority           SubPriority
}
