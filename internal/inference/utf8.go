package inference

import (
	"strings"
	"unicode/utf8"
)

// carveUTF8 removes from buf the longest prefix that can be emitted without
// splitting a code point and returns it as text. An incomplete sequence at
// the end stays in buf. Bytes that can never complete a sequence become
// U+FFFD.
func carveUTF8(buf *[]byte) string {
	b := *buf
	var out strings.Builder
	i := 0
	for i < len(b) {
		if b[i] < utf8.RuneSelf {
			out.WriteByte(b[i])
			i++
			continue
		}
		if !utf8.FullRune(b[i:]) {
			break
		}
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			out.WriteRune(utf8.RuneError)
		} else {
			out.Write(b[i : i+size])
		}
		i += size
	}
	*buf = append(b[:0], b[i:]...)
	return out.String()
}
