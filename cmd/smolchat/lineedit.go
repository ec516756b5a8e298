package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"
)

// lineReader reads REPL input. On a Linux terminal it puts stdin in raw
// mode and edits the line itself; elsewhere it reads plain lines.
type lineReader struct {
	in      io.Reader
	out     io.Writer
	buf     *bufio.Reader
	history []string
}

func newLineReader(in io.Reader, out io.Writer) *lineReader {
	return &lineReader{in: in, out: out, buf: bufio.NewReader(in)}
}

func (r *lineReader) readPlain(prompt string) (string, error) {
	_, _ = fmt.Fprint(r.out, prompt)
	s, err := r.buf.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", err
	}
	return strings.TrimRight(s, "\r\n"), nil
}

func (r *lineReader) remember(line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	if n := len(r.history); n > 0 && r.history[n-1] == line {
		return
	}
	r.history = append(r.history, line)
}

type keyResult int

const (
	keyMore keyResult = iota
	keyEnter
	keyEOF
)

// lineEditor holds the state of one line being edited in raw mode.
type lineEditor struct {
	prompt  string
	out     io.Writer
	history []string

	line   []rune
	cursor int

	histPos  int
	browsing bool
	draft    []rune

	esc    int
	escSeq strings.Builder
	utf    []byte
}

func newLineEditor(prompt string, out io.Writer, history []string) *lineEditor {
	return &lineEditor{prompt: prompt, out: out, history: history, histPos: len(history)}
}

func (e *lineEditor) String() string { return string(e.line) }

func (e *lineEditor) redraw() {
	_, _ = fmt.Fprintf(e.out, "\r%s%s\x1b[K", e.prompt, string(e.line))
	if e.cursor < len(e.line) {
		_, _ = fmt.Fprintf(e.out, "\r%s%s", e.prompt, string(e.line[:e.cursor]))
	}
}

// feed processes one input byte.
func (e *lineEditor) feed(b byte) keyResult {
	switch e.esc {
	case 1:
		e.esc = 0
		switch b {
		case '[':
			e.esc = 2
			e.escSeq.Reset()
		case 'b', 'B':
			e.wordLeft()
		case 'f', 'F':
			e.wordRight()
		case 127:
			e.deleteWordBack()
		}
		return keyMore
	case 2:
		e.escSeq.WriteByte(b)
		if (b >= 'A' && b <= 'Z') || (b >= 'a' && b <= 'z') || b == '~' {
			e.esc = 0
			e.csi(e.escSeq.String())
		}
		return keyMore
	}

	if len(e.utf) > 0 || b >= utf8.RuneSelf {
		e.utf = append(e.utf, b)
		if !utf8.FullRune(e.utf) {
			return keyMore
		}
		r, _ := utf8.DecodeRune(e.utf)
		e.utf = e.utf[:0]
		e.insert(r)
		return keyMore
	}

	switch b {
	case 27:
		e.esc = 1
	case '\r', '\n':
		_, _ = fmt.Fprint(e.out, "\r\n")
		return keyEnter
	case 3: // Ctrl+C
		_, _ = fmt.Fprint(e.out, "^C\r\n")
		return keyEOF
	case 4: // Ctrl+D
		if len(e.line) == 0 {
			_, _ = fmt.Fprint(e.out, "\r\n")
			return keyEOF
		}
	case 127, 8:
		if e.cursor > 0 {
			e.line = append(e.line[:e.cursor-1], e.line[e.cursor:]...)
			e.cursor--
			e.redraw()
		}
	case 1: // Ctrl+A
		e.moveTo(0)
	case 5: // Ctrl+E
		e.moveTo(len(e.line))
	case 11: // Ctrl+K
		e.line = e.line[:e.cursor]
		e.redraw()
	case 21: // Ctrl+U
		e.line = append(e.line[:0], e.line[e.cursor:]...)
		e.cursor = 0
		e.redraw()
	case 23: // Ctrl+W
		e.deleteWordBack()
	default:
		if b >= 32 {
			e.insert(rune(b))
		}
	}
	return keyMore
}

func (e *lineEditor) insert(r rune) {
	e.line = append(e.line, 0)
	copy(e.line[e.cursor+1:], e.line[e.cursor:])
	e.line[e.cursor] = r
	e.cursor++
	e.redraw()
}

func (e *lineEditor) moveTo(pos int) {
	e.cursor = max(0, min(pos, len(e.line)))
	e.redraw()
}

func (e *lineEditor) csi(seq string) {
	switch seq {
	case "A":
		e.historyPrev()
	case "B":
		e.historyNext()
	case "D":
		e.moveTo(e.cursor - 1)
	case "C":
		e.moveTo(e.cursor + 1)
	case "H", "1~":
		e.moveTo(0)
	case "F", "4~":
		e.moveTo(len(e.line))
	case "3~":
		if e.cursor < len(e.line) {
			e.line = append(e.line[:e.cursor], e.line[e.cursor+1:]...)
			e.redraw()
		}
	case "1;5D", "5D":
		e.wordLeft()
	case "1;5C", "5C":
		e.wordRight()
	case "3;5~":
		e.deleteWordForward()
	}
}

func (e *lineEditor) historyPrev() {
	if e.histPos == 0 {
		return
	}
	if !e.browsing {
		e.draft = append([]rune(nil), e.line...)
		e.browsing = true
	}
	e.histPos--
	e.setLine([]rune(e.history[e.histPos]))
}

func (e *lineEditor) historyNext() {
	if !e.browsing {
		return
	}
	if e.histPos < len(e.history)-1 {
		e.histPos++
		e.setLine([]rune(e.history[e.histPos]))
		return
	}
	e.histPos = len(e.history)
	e.browsing = false
	e.setLine(e.draft)
}

func (e *lineEditor) setLine(r []rune) {
	e.line = append(e.line[:0], r...)
	e.cursor = len(e.line)
	e.redraw()
}

func isBlank(r rune) bool { return r == ' ' || r == '\t' }

func (e *lineEditor) wordStart() int {
	i := e.cursor
	for i > 0 && isBlank(e.line[i-1]) {
		i--
	}
	for i > 0 && !isBlank(e.line[i-1]) {
		i--
	}
	return i
}

func (e *lineEditor) wordEnd() int {
	i := e.cursor
	for i < len(e.line) && isBlank(e.line[i]) {
		i++
	}
	for i < len(e.line) && !isBlank(e.line[i]) {
		i++
	}
	return i
}

func (e *lineEditor) wordLeft()  { e.moveTo(e.wordStart()) }
func (e *lineEditor) wordRight() { e.moveTo(e.wordEnd()) }

func (e *lineEditor) deleteWordBack() {
	start := e.wordStart()
	e.line = append(e.line[:start], e.line[e.cursor:]...)
	e.cursor = start
	e.redraw()
}

func (e *lineEditor) deleteWordForward() {
	end := e.wordEnd()
	e.line = append(e.line[:e.cursor], e.line[end:]...)
	e.redraw()
}
