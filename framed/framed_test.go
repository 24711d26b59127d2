package framed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledctl/corefw/hw"
)

type fakePort struct {
	mask        SignalMask
	width       WordWidth
	prescaler2  uint8
	divisor8    uint8
	enhanced    bool
	txWord      uint32
	rxWord      uint32
	frameErr    bool
	underrun    bool
	overrun     bool
	txIntEnable bool
}

func (p *fakePort) SetEnableMask(m SignalMask)              { p.mask = m }
func (p *fakePort) SetWordWidth(w WordWidth)                { p.width = w }
func (p *fakePort) SetBaudDivisor(pre2, div8 uint8)         { p.prescaler2, p.divisor8 = pre2, div8 }
func (p *fakePort) SetEnhancedBuffer(v bool)                { p.enhanced = v }
func (p *fakePort) WriteWord(v uint32)                      { p.txWord = v }
func (p *fakePort) ReadWord() uint32                        { return p.rxWord }
func (p *fakePort) FrameError() bool                        { return p.frameErr }
func (p *fakePort) UnderrunError() bool                     { return p.underrun }
func (p *fakePort) OverrunError() bool                      { return p.overrun }
func (p *fakePort) ClearErrorFlags()                        { p.frameErr, p.underrun, p.overrun = false, false, false }
func (p *fakePort) TxReady() bool                           { return true }
func (p *fakePort) RxReady() bool                           { return true }
func (p *fakePort) EnableTxInterrupt(v bool)                { p.txIntEnable = v }

func newTestModule(t *testing.T) (*Module, *fakePort) {
	t.Helper()
	port := &fakePort{}
	m := NewModule(port, nil, hw.ChannelWiring{})
	require.NoError(t, m.Configure(Config{
		Baudrate:     1_000_000,
		PeripheralHz: 16_000_000,
		Width:        Width16,
		Signals:      FullDuplex,
		TxBufferSize: 4,
		RxBufferSize: 4,
	}))
	m.Enable()
	return m, port
}

func TestEnableWritesConfiguredSignalMask(t *testing.T) {
	_, port := newTestModule(t)
	assert.Equal(t, FullDuplex, port.mask)
}

func TestDisableClearsEnableMask(t *testing.T) {
	m, port := newTestModule(t)
	m.Disable()
	assert.Zero(t, port.mask)
}

func TestResetReconstructsFullSignalMaskWithoutDroppingSDI(t *testing.T) {
	m, port := newTestModule(t)
	port.mask = 0 // simulate a disable before Reset
	m.Reset()
	assert.Equal(t, FullDuplex, port.mask)
	assert.NotZero(t, port.mask&SignalMask(SignalSDI), "SDI bit must survive mask reconstruction")
}

func TestResetReconstructsPartialMaskIndependently(t *testing.T) {
	m, port := newTestModule(t)
	m.signals = SignalMask(SignalSS | SignalSDO) // no SDI: receive-only link disabled
	m.Reset()
	assert.Zero(t, port.mask&SignalMask(SignalSDI))
	assert.NotZero(t, port.mask&SignalMask(SignalSS))
	assert.NotZero(t, port.mask&SignalMask(SignalSDO))
}

func TestTransmitAndServiceTxDoneRoundTrip(t *testing.T) {
	m, port := newTestModule(t)
	n, err := m.Transmit([]uint32{0x1234})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	m.ServiceTxDone()
	assert.Equal(t, uint32(0x1234), port.txWord)

	m.ServiceTxDone()
	assert.False(t, port.txIntEnable)
}

func TestServiceRxDoneOverrunWhenRingFull(t *testing.T) {
	m, port := newTestModule(t)
	for i := 0; i < m.rx.Capacity(); i++ {
		port.rxWord = uint32(i)
		m.ServiceRxDone()
	}
	assert.Zero(t, m.Errors())

	m.ServiceRxDone()
	assert.NotZero(t, m.Errors()&ErrOverrun)
}

func TestServiceFaultLatchesAllThreeErrorKinds(t *testing.T) {
	m, port := newTestModule(t)
	port.frameErr = true
	port.underrun = true
	port.overrun = true
	m.ServiceFault()
	assert.Equal(t, ErrFrame|ErrUnderrun|ErrOverrun, m.Errors())
}

func TestBaudDivisorsStayInRange(t *testing.T) {
	pre2, div8 := baudDivisors(16_000_000, 1_000_000)
	freq := 16_000_000 / ((1 << (1 + uint32(pre2))) * (uint32(div8) + 1))
	assert.InDelta(t, 1_000_000, freq, 1_000_000*0.5)
}

// TestTransmitReturnsZeroWhileErrorLatched reproduces end-to-end scenario
// 6 for the synchronous link: once a fault latches an error, transmit/
// receive return 0 until reset clears it.
func TestTransmitReturnsZeroWhileErrorLatched(t *testing.T) {
	m, port := newTestModule(t)
	port.overrun = true
	m.ServiceFault()
	require.NotZero(t, m.Errors()&ErrOverrun)

	n, err := m.Transmit([]uint32{0x1})
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, m.tx.IsEmpty(), "transmit must not queue while an error is latched")

	port.rxWord = 0x2
	m.ServiceRxDone() // pushes onto the rx ring directly, bypassing Receive's gate
	buf := make([]uint32, 1)
	assert.Equal(t, 0, m.Receive(buf), "receive must not dequeue while an error is latched")

	m.Reset()
	n, err = m.Transmit([]uint32{0x1})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "transmit resumes once reset clears the sticky error")
}

func TestTransmitRejectedWhenDisabled(t *testing.T) {
	m, _ := newTestModule(t)
	m.Disable()
	_, err := m.Transmit([]uint32{1})
	assert.ErrorIs(t, err, ErrNotEnabled)
}
