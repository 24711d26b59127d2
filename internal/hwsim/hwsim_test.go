package hwsim

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ledctl/corefw/hw"
)

func TestTimerTicksAndWrapsAt16Bits(t *testing.T) {
	tm := &Timer{}
	tm.Tick(0xFFFE)
	assert.Equal(t, uint16(0xFFFE), tm.Counter())
	tm.Tick(4) // wraps past 0xFFFF
	assert.Equal(t, uint16(2), tm.Counter())
}

func TestTimerConfigureRecordsConfigWord(t *testing.T) {
	tm := &Timer{}
	tm.Configure(0xABCD)
	assert.Equal(t, uint32(0xABCD), tm.ConfigWord())
}

func TestInterruptControllerTracksEnableState(t *testing.T) {
	c := NewInterruptController()
	const src hw.InterruptSource = 3
	assert.False(t, c.IsEnabled(src))

	c.Enable(src, hw.Priority4)
	assert.True(t, c.IsEnabled(src))

	c.Disable(src)
	assert.False(t, c.IsEnabled(src))
}

func TestAsyncPortLoopbackDeliversWrittenByte(t *testing.T) {
	p := &AsyncPort{Loopback: true}
	p.WriteData('q')
	assert.Equal(t, uint16('q'), p.ReadData())
}

func TestAsyncPortInjectReceiveFeedsReadData(t *testing.T) {
	p := &AsyncPort{}
	p.InjectReceive(0x42)
	assert.True(t, p.RxReady())
	assert.Equal(t, uint16(0x42), p.ReadData())
	assert.False(t, p.RxReady())
}

func TestFramedPortLoopbackDeliversWrittenWord(t *testing.T) {
	p := &FramedPort{Loopback: true}
	p.WriteWord(0xBEEF)
	assert.Equal(t, uint32(0xBEEF), p.ReadWord())
}
