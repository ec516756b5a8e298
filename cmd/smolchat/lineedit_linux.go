//go:build linux

package main

import (
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// ReadLine reads one line. Ctrl+C and Ctrl+D on an empty line return io.EOF.
func (r *lineReader) ReadLine(prompt string) (string, error) {
	f, ok := r.in.(*os.File)
	if !ok || !stdinIsTTY() {
		return r.readPlain(prompt)
	}

	fd := int(f.Fd())
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return r.readPlain(prompt)
	}
	raw := *old
	raw.Lflag &^= unix.ICANON | unix.ECHO
	raw.Cc[unix.VMIN] = 1
	raw.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return "", err
	}
	defer func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, old) }()

	ed := newLineEditor(prompt, r.out, r.history)
	ed.redraw()
	var buf [32]byte
	for {
		n, err := f.Read(buf[:])
		if err != nil {
			return "", err
		}
		for _, b := range buf[:n] {
			switch ed.feed(b) {
			case keyEnter:
				line := ed.String()
				r.remember(line)
				return line, nil
			case keyEOF:
				return "", io.EOF
			}
		}
	}
}
