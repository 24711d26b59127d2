// Package stream implements the print-stream abstraction used to redirect
// formatted output (and, for interactive channels, input) onto a serial
// transport, per spec §6. It also keeps the original firmware's std-stream
// contract (Gets alongside Puts) in one type rather than splitting it into
// a write-only PrintStream and a separate StdStream, since Go has no
// equivalent to the original's two parallel header files.
package stream

import (
	"github.com/pkg/errors"
)

// Transport is the byte-oriented contract a PrintStream redirects onto. The
// async and framed packages each provide an adapter satisfying it.
type Transport interface {
	TransmitRaw(data []byte) (int, error)
	ReceiveRaw(buf []byte) int
	TxAvailable() int
}

// ErrClosed is returned by Puts/Gets on a stream that hasn't been Opened.
var ErrClosed = errors.New("stream: not open")

// PrintStream redirects formatted output (and, when the underlying
// transport supports it, input) onto one Transport.
type PrintStream struct {
	name      string
	transport Transport
	open      bool
}

// New constructs a PrintStream bound to transport, identified by name for
// diagnostics (e.g. "console", "debug").
func New(name string, transport Transport) *PrintStream {
	return &PrintStream{name: name, transport: transport}
}

// Name returns the stream's diagnostic name.
func (s *PrintStream) Name() string { return s.name }

// Open marks the stream ready for Puts/Gets.
func (s *PrintStream) Open() { s.open = true }

// Close marks the stream unavailable; Puts/Gets return ErrClosed until the
// next Open.
func (s *PrintStream) Close() { s.open = false }

// IsOpen reports whether the stream is open.
func (s *PrintStream) IsOpen() bool { return s.open }

// Puts makes one non-blocking attempt to queue data on the transport and
// returns the number of bytes actually accepted. A short count is not an
// error: the caller (or BlockingPuts) is expected to retry the remainder.
func (s *PrintStream) Puts(data []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	return s.transport.TransmitRaw(data)
}

// Gets makes one non-blocking attempt to drain received bytes into buf and
// returns the number of bytes actually read.
func (s *PrintStream) Gets(buf []byte) (int, error) {
	if !s.open {
		return 0, ErrClosed
	}
	return s.transport.ReceiveRaw(buf), nil
}

// BlockingPuts spins on Puts until every byte of data has been queued. It
// implements the foreground "blocking puts" contract the original firmware
// gives callers that can't tolerate a short write - formatted logging, for
// instance - while the transport itself stays non-blocking and
// interrupt-driven underneath.
func BlockingPuts(s *PrintStream, data []byte) error {
	for len(data) > 0 {
		n, err := s.Puts(data)
		if err != nil {
			return err
		}
		data = data[n:]
	}
	return nil
}
