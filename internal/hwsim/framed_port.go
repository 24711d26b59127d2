package hwsim

import (
	"sync"

	"github.com/ledctl/corefw/framed"
)

// FramedPort simulates a synchronous (SPI-like) peripheral register block,
// with the same optional write-to-read loopback as AsyncPort.
type FramedPort struct {
	mu         sync.Mutex
	Loopback   bool
	mask       framed.SignalMask
	width      framed.WordWidth
	prescaler2 uint8
	divisor8   uint8
	enhanced   bool
	pendingRx  []uint32
	frameErr   bool
	underrun   bool
	overrun    bool
	txInt      bool
}

func (p *FramedPort) SetEnableMask(m framed.SignalMask)      { p.mu.Lock(); p.mask = m; p.mu.Unlock() }
func (p *FramedPort) SetWordWidth(w framed.WordWidth)        { p.mu.Lock(); p.width = w; p.mu.Unlock() }
func (p *FramedPort) SetEnhancedBuffer(v bool)                { p.mu.Lock(); p.enhanced = v; p.mu.Unlock() }

func (p *FramedPort) SetBaudDivisor(pre2, div8 uint8) {
	p.mu.Lock()
	p.prescaler2, p.divisor8 = pre2, div8
	p.mu.Unlock()
}

func (p *FramedPort) WriteWord(v uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Loopback {
		p.pendingRx = append(p.pendingRx, v)
	}
}

func (p *FramedPort) ReadWord() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pendingRx) == 0 {
		return 0
	}
	v := p.pendingRx[0]
	p.pendingRx = p.pendingRx[1:]
	return v
}

// InjectReceive queues v as if it had just arrived over the wire.
func (p *FramedPort) InjectReceive(v uint32) {
	p.mu.Lock()
	p.pendingRx = append(p.pendingRx, v)
	p.mu.Unlock()
}

func (p *FramedPort) FrameError() bool    { p.mu.Lock(); defer p.mu.Unlock(); return p.frameErr }
func (p *FramedPort) UnderrunError() bool { p.mu.Lock(); defer p.mu.Unlock(); return p.underrun }
func (p *FramedPort) OverrunError() bool  { p.mu.Lock(); defer p.mu.Unlock(); return p.overrun }

func (p *FramedPort) ClearErrorFlags() {
	p.mu.Lock()
	p.frameErr, p.underrun, p.overrun = false, false, false
	p.mu.Unlock()
}

func (p *FramedPort) TxReady() bool { return true }
func (p *FramedPort) RxReady() bool { p.mu.Lock(); defer p.mu.Unlock(); return len(p.pendingRx) > 0 }

func (p *FramedPort) EnableTxInterrupt(v bool) { p.mu.Lock(); p.txInt = v; p.mu.Unlock() }
