// Package framed implements the interrupt-driven synchronous serial
// transport (word link, SPI-like) described in spec §4.5. It is structural
// kin to package async - same ring-buffered TX/RX split, same sticky error
// bitfield - but frames fixed-width words with no parity bit and no
// auto-baud, and exposes a selectable signal enable mask instead of a
// single enable flag.
package framed

import (
	"github.com/pkg/errors"

	"github.com/ledctl/corefw/hw"
	"github.com/ledctl/corefw/ring"
)

// WordWidth selects the frame width in bits.
type WordWidth uint8

const (
	Width8 WordWidth = iota
	Width16
	Width32
)

// Signal identifies one of the three lines a framed link can independently
// enable: slave-select, serial-data-in, serial-data-out.
type Signal uint8

const (
	SignalSS Signal = 1 << iota
	SignalSDI
	SignalSDO
)

// SignalMask is a set of Signal values.
type SignalMask uint8

// FullDuplex is the enable mask for a normal three-wire link.
const FullDuplex = SignalMask(SignalSS | SignalSDI | SignalSDO)

// Error is a sticky bitfield of link errors observed since the last Reset.
type Error uint8

const (
	ErrFrame Error = 1 << iota
	ErrUnderrun
	ErrOverrun
	ErrUnknown
)

// Port is the register-level contract a Module drives.
type Port interface {
	SetEnableMask(mask SignalMask)
	SetWordWidth(w WordWidth)
	SetBaudDivisor(prescaler2, divisor8 uint8)
	SetEnhancedBuffer(enabled bool)
	WriteWord(v uint32)
	ReadWord() uint32
	FrameError() bool
	UnderrunError() bool
	OverrunError() bool
	ClearErrorFlags()
	TxReady() bool
	RxReady() bool
	EnableTxInterrupt(enabled bool)
}

// Config configures one framed link.
type Config struct {
	Baudrate       uint32
	PeripheralHz   uint32
	Width          WordWidth
	EnhancedBuffer bool
	Signals        SignalMask
	TxBufferSize   int
	RxBufferSize   int
}

// ErrNotEnabled is returned by Transmit when the link is disabled.
var ErrNotEnabled = errors.New("framed: link not enabled")

// Module is one synchronous serial channel.
type Module struct {
	port    Port
	irq     hw.InterruptController
	wiring  hw.ChannelWiring
	txPool  *ring.Pool[uint32]
	rxPool  *ring.Pool[uint32]
	tx      *ring.Ring[uint32]
	rx      *ring.Ring[uint32]
	txStore []uint32
	rxStore []uint32

	enabled bool
	signals SignalMask
	errs    Error
}

// NewModule constructs a Module bound to port and, when irq is non-nil, the
// given interrupt wiring.
func NewModule(port Port, irq hw.InterruptController, wiring hw.ChannelWiring) *Module {
	return &Module{
		port:   port,
		irq:    irq,
		wiring: wiring,
		txPool: ring.NewPool[uint32](1),
		rxPool: ring.NewPool[uint32](1),
	}
}

// baudDivisors computes the /2-prescaler-chain, 8-bit-divisor pair the
// hardware's clock generator expects: freq = PeripheralHz / (2^(1+prescaler2)
// * (divisor8+1)).
func baudDivisors(peripheralHz, baudrate uint32) (prescaler2, divisor8 uint8) {
	if baudrate == 0 {
		return 0, 0
	}
	for p := 0; p <= 7; p++ {
		div := peripheralHz / ((uint32(1) << (1 + uint32(p))) * baudrate)
		if div >= 1 && div <= 256 {
			return uint8(p), uint8(div - 1)
		}
	}
	return 7, 255
}

// Configure sets up frame parameters and (re)allocates the TX/RX ring
// buffers. The link remains disabled until Enable is called.
func (m *Module) Configure(cfg Config) error {
	if cfg.TxBufferSize < 1 || cfg.RxBufferSize < 1 {
		return errors.New("framed: buffer sizes must be at least 1")
	}
	m.txPool.Init()
	m.rxPool.Init()
	m.txStore = make([]uint32, cfg.TxBufferSize+1)
	m.rxStore = make([]uint32, cfg.RxBufferSize+1)

	tx, ok := m.txPool.Create(m.txStore, ring.FIFO)
	if !ok {
		return errors.New("framed: tx ring allocation failed")
	}
	rx, ok := m.rxPool.Create(m.rxStore, ring.FIFO)
	if !ok {
		return errors.New("framed: rx ring allocation failed")
	}
	m.tx = tx
	m.rx = rx

	m.signals = cfg.Signals
	if m.signals == 0 {
		m.signals = FullDuplex
	}
	m.port.SetWordWidth(cfg.Width)
	m.port.SetEnhancedBuffer(cfg.EnhancedBuffer)
	p2, d8 := baudDivisors(cfg.PeripheralHz, cfg.Baudrate)
	m.port.SetBaudDivisor(p2, d8)
	return nil
}

// Enable arms the link's configured signal lines and its interrupt sources.
func (m *Module) Enable() {
	m.enabled = true
	m.errs = 0
	m.port.SetEnableMask(m.signals)
	if m.irq != nil {
		m.irq.Enable(m.wiring.Fault, m.wiring.Priority)
		m.irq.Enable(m.wiring.RxDone, m.wiring.Priority)
		m.irq.SetSubPriority(m.wiring.Fault, m.wiring.SubPriority)
		m.irq.SetSubPriority(m.wiring.RxDone, m.wiring.SubPriority)
	}
}

// Disable drops the link's enable mask to zero and silences interrupts.
// Buffered data already queued is left intact.
func (m *Module) Disable() {
	m.enabled = false
	m.port.SetEnableMask(0)
	if m.irq != nil {
		m.irq.Disable(m.wiring.Fault)
		m.irq.Disable(m.wiring.RxDone)
		m.irq.Disable(m.wiring.TxDone)
	}
}

// Reset flushes both rings, clears the sticky error bitfield, and
// reconstructs the enable mask from the module's own Signals configuration.
//
// The original implementation rebuilt this mask with an unparenthesized
// ternary-like OR chain whose operator precedence silently dropped the SDI
// bit under certain enabled/disabled combinations (spec REDESIGN FLAGS).
// Each contributing bit is parenthesized independently here so the mask
// reconstruction can't be reordered by a future edit into the same bug.
func (m *Module) Reset() {
	if m.tx != nil {
		m.tx.Flush()
	}
	if m.rx != nil {
		m.rx.Flush()
	}
	m.errs = 0
	m.port.ClearErrorFlags()

	var mask SignalMask
	mask |= (m.signals & SignalSS)
	mask |= (m.signals & SignalSDI)
	mask |= (m.signals & SignalSDO)
	m.port.SetEnableMask(mask)
}

// Errors returns the sticky error bitfield accumulated since the last Reset.
func (m *Module) Errors() Error { return m.errs }

// RxAvailable reports how many words are queued for receive.
func (m *Module) RxAvailable() int {
	if m.rx == nil {
		return 0
	}
	return m.rx.Len()
}

// TxAvailable reports how much room remains in the transmit queue.
func (m *Module) TxAvailable() int {
	if m.tx == nil {
		return 0
	}
	return m.tx.Capacity() - m.tx.Len()
}

// Transmit enqueues as many words as fit and arms the TX-empty interrupt.
// A short count means the ring filled up; the caller should retry later.
// While a sticky error is latched, Transmit queues nothing and returns 0
// until Reset clears it.
func (m *Module) Transmit(words []uint32) (int, error) {
	if !m.enabled {
		return 0, ErrNotEnabled
	}
	if m.errs != 0 {
		return 0, nil
	}
	n := 0
	for _, w := range words {
		if !m.tx.Add(w) {
			break
		}
		n++
	}
	if n > 0 {
		m.port.EnableTxInterrupt(true)
	}
	return n, nil
}

// Receive dequeues up to len(buf) words into buf and returns the count
// actually dequeued. While a sticky error is latched, Receive dequeues
// nothing and returns 0 until Reset clears it.
func (m *Module) Receive(buf []uint32) int {
	if m.errs != 0 {
		return 0
	}
	n := 0
	for n < len(buf) {
		v, ok := m.rx.Take()
		if !ok {
			break
		}
		buf[n] = v
		n++
	}
	return n
}

// TransmitRaw adapts Transmit to the byte-oriented stream.Transport
// contract, widening each byte to a word.
func (m *Module) TransmitRaw(data []byte) (int, error) {
	words := make([]uint32, len(data))
	for i, b := range data {
		words[i] = uint32(b)
	}
	return m.Transmit(words)
}

// ReceiveRaw adapts Receive to the byte-oriented stream.Transport contract,
// truncating each received word to its low 8 bits.
func (m *Module) ReceiveRaw(buf []byte) int {
	words := make([]uint32, len(buf))
	n := m.Receive(words)
	for i := 0; i < n; i++ {
		buf[i] = byte(words[i])
	}
	return n
}

// ServiceFault is the fault-interrupt handler.
func (m *Module) ServiceFault() {
	if m.port.FrameError() {
		m.errs |= ErrFrame
	}
	if m.port.UnderrunError() {
		m.errs |= ErrUnderrun
	}
	if m.port.OverrunError() {
		m.errs |= ErrOverrun
	}
	m.port.ClearErrorFlags()
	if m.irq != nil {
		m.irq.ClearFlag(m.wiring.Fault)
	}
}

// ServiceRxDone is the receive-complete interrupt handler.
func (m *Module) ServiceRxDone() {
	v := m.port.ReadWord()
	if !m.rx.Add(v) {
		m.errs |= ErrOverrun
	}
	if m.irq != nil {
		m.irq.ClearFlag(m.wiring.RxDone)
	}
}

// ServiceTxDone is the transmit-complete interrupt handler.
func (m *Module) ServiceTxDone() {
	v, ok := m.tx.Take()
	if !ok {
		m.port.EnableTxInterrupt(false)
		if m.irq != nil {
			m.irq.ClearFlag(m.wiring.TxDone)
		}
		return
	}
	m.port.WriteWord(v)
	if m.irq != nil {
		m.irq.ClearFlag(m.wiring.TxDone)
	}
}
