package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport is an in-memory stand-in for a serial transport's raw byte
// interface, with a configurable per-call cap to exercise short writes.
type fakeTransport struct {
	sent     []byte
	recvBuf  []byte
	capacity int
}

func (t *fakeTransport) TransmitRaw(data []byte) (int, error) {
	n := len(data)
	if t.capacity > 0 && n > t.capacity {
		n = t.capacity
	}
	t.sent = append(t.sent, data[:n]...)
	return n, nil
}

func (t *fakeTransport) ReceiveRaw(buf []byte) int {
	n := copy(buf, t.recvBuf)
	t.recvBuf = t.recvBuf[n:]
	return n
}

func (t *fakeTransport) TxAvailable() int { return t.capacity }

func TestPutsAndGetsRequireOpen(t *testing.T) {
	s := New("console", &fakeTransport{})
	_, err := s.Puts([]byte("hi"))
	assert.ErrorIs(t, err, ErrClosed)

	_, err = s.Gets(make([]byte, 4))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPutsForwardsToTransport(t *testing.T) {
	tr := &fakeTransport{}
	s := New("console", tr)
	s.Open()

	n, err := s.Puts([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, []byte("hello"), tr.sent)
}

func TestBlockingPutsSpinsThroughShortWrites(t *testing.T) {
	tr := &fakeTransport{capacity: 2}
	s := New("console", tr)
	s.Open()

	require.NoError(t, BlockingPuts(s, []byte("hello world")))
	assert.Equal(t, []byte("hello world"), tr.sent)
}

func TestBlockingPutsPropagatesError(t *testing.T) {
	tr := &fakeTransport{}
	s := New("console", tr) // left closed
	assert.ErrorIs(t, BlockingPuts(s, []byte("x")), ErrClosed)
}

func TestGetsDrainsReceiveBuffer(t *testing.T) {
	tr := &fakeTransport{recvBuf: []byte("abc")}
	s := New("debug", tr)
	s.Open()

	buf := make([]byte, 2)
	n, err := s.Gets(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []byte("ab"), buf)
}

func TestCloseStopsFurtherIO(t *testing.T) {
	tr := &fakeTransport{}
	s := New("console", tr)
	s.Open()
	s.Close()

	_, err := s.Puts([]byte("x"))
	assert.ErrorIs(t, err, ErrClosed)
}
