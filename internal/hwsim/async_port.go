package hwsim

import "sync"

// AsyncPort simulates an asynchronous (UART-like) peripheral register block.
// Loopback is optional: when Loopback is true, every WriteData is mirrored
// back as the next ReadData, letting tests exercise a Module end-to-end
// without a second Module on the other end of the wire.
type AsyncPort struct {
	mu          sync.Mutex
	Loopback    bool
	enabled     bool
	highSpeed   bool
	ninthBit    bool
	baudDiv     uint16
	pendingRx   []uint16
	overrun     bool
	framing     bool
	parity      bool
	txIntEnable bool
}

func (p *AsyncPort) SetEnabled(v bool)       { p.mu.Lock(); p.enabled = v; p.mu.Unlock() }
func (p *AsyncPort) SetBaudDivisor(v uint16) { p.mu.Lock(); p.baudDiv = v; p.mu.Unlock() }
func (p *AsyncPort) SetHighSpeed(v bool)     { p.mu.Lock(); p.highSpeed = v; p.mu.Unlock() }
func (p *AsyncPort) SetNinthBit(v bool)      { p.mu.Lock(); p.ninthBit = v; p.mu.Unlock() }

func (p *AsyncPort) WriteData(v uint16) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Loopback {
		p.pendingRx = append(p.pendingRx, v)
	}
}

func (p *AsyncPort) ReadData() uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pendingRx) == 0 {
		return 0
	}
	v := p.pendingRx[0]
	p.pendingRx = p.pendingRx[1:]
	return v
}

// InjectReceive queues v as if it had just arrived over the wire, for
// driving Module.ServiceRxDone from a test without a real transmitter.
func (p *AsyncPort) InjectReceive(v uint16) {
	p.mu.Lock()
	p.pendingRx = append(p.pendingRx, v)
	p.mu.Unlock()
}

func (p *AsyncPort) Overrun() bool      { p.mu.Lock(); defer p.mu.Unlock(); return p.overrun }
func (p *AsyncPort) FramingError() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.framing }
func (p *AsyncPort) ParityError() bool  { p.mu.Lock(); defer p.mu.Unlock(); return p.parity }

func (p *AsyncPort) ClearErrorFlags() {
	p.mu.Lock()
	p.overrun, p.framing, p.parity = false, false, false
	p.mu.Unlock()
}

func (p *AsyncPort) TxReady() bool { return true }
func (p *AsyncPort) RxReady() bool { p.mu.Lock(); defer p.mu.Unlock(); return len(p.pendingRx) > 0 }

func (p *AsyncPort) EnableTxInterrupt(v bool) { p.mu.Lock(); p.txIntEnable = v; p.mu.Unlock() }
