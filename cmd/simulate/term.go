package main

import (
	"os"

	"golang.org/x/term"
)

// enterRawMode puts stdin into raw mode for the duration of interactive
// mode, returning a restore function. On a non-terminal stdin (e.g. when
// piped in CI) it is a no-op.
func enterRawMode() (func(), error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	prev, err := term.MakeRaw(fd)
	if err != nil {
		return nil, err
	}
	return func() { _ = term.Restore(fd, prev) }, nil
}
