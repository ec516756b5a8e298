package gguf

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// maxStringLen caps string allocations when the stream size is unknown.
const maxStringLen = 64 << 20

type reader struct {
	r       *bufio.Reader
	off     int64
	size    int64
	scratch [8]byte
}

func newReader(rd io.Reader, size int64) *reader {
	return &reader{r: bufio.NewReaderSize(rd, 64<<10), size: size}
}

func (r *reader) fill(buf []byte) error {
	if r.size > 0 && r.off+int64(len(buf)) > r.size {
		return io.ErrUnexpectedEOF
	}
	if _, err := io.ReadFull(r.r, buf); err != nil {
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		return err
	}
	r.off += int64(len(buf))
	return nil
}

func (r *reader) readN(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid read length %d", n)
	}
	buf := make([]byte, n)
	if err := r.fill(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func (r *reader) fixed(n int) ([]byte, error) {
	b := r.scratch[:n]
	if err := r.fill(b); err != nil {
		return nil, err
	}
	return b, nil
}

func (r *reader) readU8() (uint8, error) {
	b, err := r.fixed(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readI8() (int8, error) {
	v, err := r.readU8()
	return int8(v), err
}

func (r *reader) readU16() (uint16, error) {
	b, err := r.fixed(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) readI16() (int16, error) {
	v, err := r.readU16()
	return int16(v), err
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.fixed(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readI32() (int32, error) {
	v, err := r.readU32()
	return int32(v), err
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.fixed(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readI64() (int64, error) {
	v, err := r.readU64()
	return int64(v), err
}

func (r *reader) readF32() (float32, error) {
	u, err := r.readU32()
	return math.Float32frombits(u), err
}

func (r *reader) readF64() (float64, error) {
	u, err := r.readU64()
	return math.Float64frombits(u), err
}

func (r *reader) readString() (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if r.size > 0 && n > uint64(r.size-r.off) {
		return "", fmt.Errorf("string length %d: %w", n, io.ErrUnexpectedEOF)
	}
	if n > maxStringLen {
		return "", fmt.Errorf("string length too large: %d", n)
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
