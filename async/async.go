// Package async implements the interrupt-driven asynchronous serial
// transport (character link, UART-like) described in spec §4.4. A Module
// owns one hardware channel: it moves bytes between interrupt context and
// the foreground through a pair of ring.Ring queues, and latches hardware
// error flags into a sticky Error bitfield instead of losing them to the
// next interrupt.
package async

import (
	"github.com/pkg/errors"

	"github.com/ledctl/corefw/hw"
	"github.com/ledctl/corefw/ring"
)

// Data is one transmitted/received unit. Ninth names the 9th data bit used
// by multidrop addressing modes, but the Port is driven with Value alone:
// ServiceTxDone does not send Ninth and ServiceRxDone always leaves it false.
type Data struct {
	Value uint16
	Ninth bool
}

// Error is a sticky bitfield of link errors observed since the last Reset.
type Error uint8

const (
	ErrOverrun Error = 1 << iota
	ErrFraming
	ErrParity
	ErrUnknown
)

// Port is the register-level contract a Module drives. Implementations wrap
// the real UART peripheral registers, or a simulation for tests.
type Port interface {
	SetEnabled(enabled bool)
	SetBaudDivisor(div uint16)
	SetHighSpeed(highSpeed bool)
	SetNinthBit(enabled bool)
	WriteData(v uint16)
	ReadData() uint16
	Overrun() bool
	FramingError() bool
	ParityError() bool
	ClearErrorFlags()
	TxReady() bool
	RxReady() bool
	EnableTxInterrupt(enabled bool)
}

// Config configures one channel's line parameters.
type Config struct {
	Baudrate      uint32
	PeripheralHz  uint32
	HighSpeed     bool // selects the /4 prescaler instead of /16
	NinthBitData  bool
	AutoAddress   bool
	TxBufferSize  int
	RxBufferSize  int
}

// ErrNotEnabled is returned by Transmit when the channel is disabled.
// Receive does not check whether the channel is enabled.
var ErrNotEnabled = errors.New("async: channel not enabled")

// Module is one asynchronous serial channel.
type Module struct {
	port    Port
	irq     hw.InterruptController
	wiring  hw.ChannelWiring
	txPool  *ring.Pool[Data]
	rxPool  *ring.Pool[Data]
	tx      *ring.Ring[Data]
	rx      *ring.Ring[Data]
	txStore []Data
	rxStore []Data

	enabled      bool
	highSpeed    bool
	autoAddress  bool
	autoBaud     bool
	autoBaudDone bool
	errs         Error
}

// NewModule constructs a Module bound to port and, when irq is non-nil, the
// given interrupt wiring. irq may be nil in tests that drive Service*
// methods directly instead of through a real interrupt controller.
func NewModule(port Port, irq hw.InterruptController, wiring hw.ChannelWiring) *Module {
	return &Module{
		port:   port,
		irq:    irq,
		wiring: wiring,
		txPool: ring.NewPool[Data](1),
		rxPool: ring.NewPool[Data](1),
	}
}

// baudDivisor computes the hardware baud-rate divisor. HighSpeed selects a
// /4 prescaler chain instead of the standard /16 one, matching the
// HIGH_SPEED-driven prescaler selection the original firmware makes
// available but the distilled spec omits.
func baudDivisor(peripheralHz, baudrate uint32, highSpeed bool) uint16 {
	prescale := uint32(16)
	if highSpeed {
		prescale = 4
	}
	if baudrate == 0 {
		return 0
	}
	div := peripheralHz/(prescale*baudrate) - 1
	if div > 0xFFFF {
		div = 0xFFFF
	}
	return uint16(div)
}

// Configure sets up line parameters and (re)allocates the TX/RX ring
// buffers. The channel remains disabled until Enable is called.
func (m *Module) Configure(cfg Config) error {
	if cfg.TxBufferSize < 1 || cfg.RxBufferSize < 1 {
		return errors.New("async: buffer sizes must be at least 1")
	}
	m.txPool.Init()
	m.rxPool.Init()
	m.txStore = make([]Data, cfg.TxBufferSize+1)
	m.rxStore = make([]Data, cfg.RxBufferSize+1)

	tx, ok := m.txPool.Create(m.txStore, ring.FIFO)
	if !ok {
		return errors.New("async: tx ring allocation failed")
	}
	rx, ok := m.rxPool.Create(m.rxStore, ring.FIFO)
	if !ok {
		return errors.New("async: rx ring allocation failed")
	}
	m.tx = tx
	m.rx = rx

	m.highSpeed = cfg.HighSpeed
	m.autoAddress = cfg.AutoAddress
	m.port.SetHighSpeed(cfg.HighSpeed)
	m.port.SetNinthBit(cfg.NinthBitData)
	m.port.SetBaudDivisor(baudDivisor(cfg.PeripheralHz, cfg.Baudrate, cfg.HighSpeed))
	return nil
}

// Enable arms the channel and its interrupt sources.
func (m *Module) Enable() {
	m.enabled = true
	m.errs = 0
	m.port.SetEnabled(true)
	if m.irq != nil {
		m.irq.Enable(m.wiring.Fault, m.wiring.Priority)
		m.irq.Enable(m.wiring.RxDone, m.wiring.Priority)
		m.irq.SetSubPriority(m.wiring.Fault, m.wiring.SubPriority)
		m.irq.SetSubPriority(m.wiring.RxDone, m.wiring.SubPriority)
	}
}

// Disable silences the channel's interrupt sources and the port itself.
// Buffered data already queued is left intact.
func (m *Module) Disable() {
	m.enabled = false
	m.port.SetEnabled(false)
	if m.irq != nil {
		m.irq.Disable(m.wiring.Fault)
		m.irq.Disable(m.wiring.RxDone)
		m.irq.Disable(m.wiring.TxDone)
	}
}

// Reset flushes both rings and clears the sticky error bitfield and
// auto-baud state.
func (m *Module) Reset() {
	if m.tx != nil {
		m.tx.Flush()
	}
	if m.rx != nil {
		m.rx.Flush()
	}
	m.errs = 0
	m.autoBaud = false
	m.autoBaudDone = false
	m.port.ClearErrorFlags()
}

// Errors returns the sticky error bitfield accumulated since the last Reset.
func (m *Module) Errors() Error { return m.errs }

// RxAvailable reports how many received units are queued.
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

// Transmit enqueues as many elements of data as fit, arms the TX-empty
// interrupt, and returns the count actually queued. A short count (less
// than len(data)) means the ring filled up; the caller should retry the
// remainder later rather than treat it as an error. While a sticky error is
// latched, Transmit queues nothing and returns 0 until Reset clears it.
func (m *Module) Transmit(data []Data) (int, error) {
	if !m.enabled {
		return 0, ErrNotEnabled
	}
	if m.errs != 0 {
		return 0, nil
	}
	n := 0
	for _, d := range data {
		if !m.tx.Add(d) {
			break
		}
		n++
	}
	if n > 0 {
		m.port.EnableTxInterrupt(true)
	}
	return n, nil
}

// Receive dequeues up to len(buf) elements into buf and returns the count
// actually dequeued. While a sticky error is latched, Receive dequeues
// nothing and returns 0 until Reset clears it.
func (m *Module) Receive(buf []Data) int {
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
// contract, queuing each byte as an 8-bit Data unit.
func (m *Module) TransmitRaw(data []byte) (int, error) {
	units := make([]Data, len(data))
	for i, b := range data {
		units[i] = Data{Value: uint16(b)}
	}
	return m.Transmit(units)
}

// ReceiveRaw adapts Receive to the byte-oriented stream.Transport contract,
// truncating each received unit to its low 8 bits.
func (m *Module) ReceiveRaw(buf []byte) int {
	units := make([]Data, len(buf))
	n := m.Receive(units)
	for i := 0; i < n; i++ {
		buf[i] = byte(units[i].Value)
	}
	return n
}

// StartAutoBaud arms auto-baud detection in the module; the next unit
// received through ServiceRxDone marks it complete. The Port is not told to
// measure a bit period, and the baud divisor is left unchanged.
func (m *Module) StartAutoBaud() {
	m.autoBaud = true
	m.autoBaudDone = false
}

// AutoBaudComplete reports whether a StartAutoBaud measurement has landed.
func (m *Module) AutoBaudComplete() bool { return m.autoBaudDone }

// ServiceFault is the fault-interrupt handler: it latches whichever sticky
// error bits the hardware is currently reporting and clears the hardware
// flags so the interrupt doesn't re-fire on stale state.
func (m *Module) ServiceFault() {
	if m.port.Overrun() {
		m.errs |= ErrOverrun
	}
	if m.port.FramingError() {
		m.errs |= ErrFraming
	}
	if m.port.ParityError() {
		m.errs |= ErrParity
	}
	m.port.ClearErrorFlags()
	if m.irq != nil {
		m.irq.ClearFlag(m.wiring.Fault)
	}
}

// ServiceRxDone is the receive-complete interrupt handler: it reads one unit
// from the port and pushes it onto the receive ring. A full ring drops the
// unit and latches ErrOverrun, mirroring the hardware's own overrun
// behavior on an un-drained shift register.
func (m *Module) ServiceRxDone() {
	v := m.port.ReadData()
	if m.autoBaud {
		m.autoBaud = false
		m.autoBaudDone = true
	}
	if !m.rx.Add(Data{Value: v}) {
		m.errs |= ErrOverrun
	}
	if m.irq != nil {
		m.irq.ClearFlag(m.wiring.RxDone)
	}
}

// ServiceTxDone is the transmit-complete interrupt handler: it pops the next
// queued unit and writes it to the port, or disables the TX-empty interrupt
// once the ring has drained.
func (m *Module) ServiceTxDone() {
	v, ok := m.tx.Take()
	if !ok {
		m.port.EnableTxInterrupt(false)
		if m.irq != nil {
			m.irq.ClearFlag(m.wiring.TxDone)
		}
		return
	}
	m.port.WriteData(v.Value)
	if m.irq != nil {
		m.irq.ClearFlag(m.wiring.TxDone)
	}
}
