// Package gguf reads the key/value metadata block of GGUF model files.
// Tensor descriptors and weights are never touched; the backend owns those.
package gguf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const magicGGUF = "GGUF"

// Well-known metadata keys.
const (
	KeyArchitecture = "general.architecture"
	KeyName         = "general.name"
	KeyChatTemplate = "tokenizer.chat_template"
	KeyBOSTokenID   = "tokenizer.ggml.bos_token_id"
	KeyEOSTokenID   = "tokenizer.ggml.eos_token_id"
	keyContextLen   = "context_length"
)

var ErrInvalidMagic = errors.New("gguf: invalid magic")

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

func (t ValueType) String() string {
	switch t {
	case TypeUint8:
		return "u8"
	case TypeInt8:
		return "i8"
	case TypeUint16:
		return "u16"
	case TypeInt16:
		return "i16"
	case TypeUint32:
		return "u32"
	case TypeInt32:
		return "i32"
	case TypeUint64:
		return "u64"
	case TypeInt64:
		return "i64"
	case TypeFloat32:
		return "f32"
	case TypeFloat64:
		return "f64"
	case TypeBool:
		return "bool"
	case TypeString:
		return "string"
	case TypeArray:
		return "array"
	default:
		return fmt.Sprintf("type(%d)", uint32(t))
	}
}

type ArrayValue struct {
	ElemType ValueType
	Len      uint64
	// Values is nil when the array was skipped (see ParseOptions.MaxArrayLen).
	Values []any
}

type Value struct {
	Type  ValueType
	Value any
}

// Metadata is the header and key/value section of a GGUF file.
type Metadata struct {
	Path        string
	Version     uint32
	TensorCount uint64
	KV          map[string]Value
}

// ParseOptions tunes metadata parsing.
type ParseOptions struct {
	// MaxArrayLen limits how many array elements are materialised. Larger
	// arrays (vocabularies, merges) are read and discarded. Zero keeps all.
	MaxArrayLen uint64
}

// DefaultParseOptions skips vocabulary-sized arrays.
var DefaultParseOptions = ParseOptions{MaxArrayLen: 1024}

// ReadMetadata opens path and parses its metadata block.
func ReadMetadata(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	md, err := Parse(f, st.Size(), DefaultParseOptions)
	if err != nil {
		return nil, fmt.Errorf("gguf %s: %w", path, err)
	}
	md.Path = path
	return md, nil
}

// Parse reads the header and key/value pairs from rd. size bounds string and
// array lengths; pass 0 when unknown.
func Parse(rd io.Reader, size int64, opts ParseOptions) (*Metadata, error) {
	r := newReader(rd, size)

	magic, err := r.readN(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != magicGGUF {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMagic, string(magic))
	}
	version, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version < 2 {
		return nil, fmt.Errorf("unsupported gguf version %d", version)
	}
	tensorCount, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read tensor count: %w", err)
	}
	kvCount, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read kv count: %w", err)
	}
	if size > 0 && kvCount > uint64(size) {
		return nil, fmt.Errorf("kv count %d exceeds file size", kvCount)
	}

	kv := make(map[string]Value, kvCount)
	for i := range kvCount {
		key, err := r.readString()
		if err != nil {
			return nil, fmt.Errorf("read key %d: %w", i, err)
		}
		vt, err := r.readU32()
		if err != nil {
			return nil, fmt.Errorf("read value type for %s: %w", key, err)
		}
		val, err := readValue(r, ValueType(vt), opts)
		if err != nil {
			return nil, fmt.Errorf("read value for %s: %w", key, err)
		}
		kv[key] = Value{Type: ValueType(vt), Value: val}
	}

	return &Metadata{
		Version:     version,
		TensorCount: tensorCount,
		KV:          kv,
	}, nil
}

func readValue(r *reader, vt ValueType, opts ParseOptions) (any, error) {
	switch vt {
	case TypeUint8:
		return r.readU8()
	case TypeInt8:
		return r.readI8()
	case TypeUint16:
		return r.readU16()
	case TypeInt16:
		return r.readI16()
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		return r.readI32()
	case TypeUint64:
		return r.readU64()
	case TypeInt64:
		return r.readI64()
	case TypeFloat32:
		return r.readF32()
	case TypeFloat64:
		return r.readF64()
	case TypeBool:
		v, err := r.readU8()
		return v != 0, err
	case TypeString:
		return r.readString()
	case TypeArray:
		et, err := r.readU32()
		if err != nil {
			return nil, err
		}
		n, err := r.readU64()
		if err != nil {
			return nil, err
		}
		if r.size > 0 && n > uint64(r.size) {
			return nil, fmt.Errorf("array length %d exceeds file size", n)
		}
		keep := opts.MaxArrayLen == 0 || n <= opts.MaxArrayLen
		arr := ArrayValue{ElemType: ValueType(et), Len: n}
		if keep {
			arr.Values = make([]any, 0, n)
		}
		for range n {
			v, err := readValue(r, ValueType(et), opts)
			if err != nil {
				return nil, err
			}
			if keep {
				arr.Values = append(arr.Values, v)
			}
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("unsupported value type %d", uint32(vt))
	}
}

// Architecture returns general.architecture, or "".
func (m *Metadata) Architecture() string {
	s, _ := GetString(m.KV, KeyArchitecture)
	return s
}

// Name returns general.name, or "".
func (m *Metadata) Name() string {
	s, _ := GetString(m.KV, KeyName)
	return s
}

// ContextLength returns <arch>.context_length. When the architecture key is
// missing, any key ending in .context_length is accepted.
func (m *Metadata) ContextLength() (int, bool) {
	if arch := m.Architecture(); arch != "" {
		if v, ok := GetUint64(m.KV, arch+"."+keyContextLen); ok && v > 0 {
			return int(v), true
		}
	}
	for _, k := range sortedKeys(m.KV) {
		if strings.HasSuffix(k, "."+keyContextLen) {
			if v, ok := GetUint64(m.KV, k); ok && v > 0 {
				return int(v), true
			}
		}
	}
	return 0, false
}

// ChatTemplate returns tokenizer.chat_template when present and non-empty.
func (m *Metadata) ChatTemplate() (string, bool) {
	s, ok := GetString(m.KV, KeyChatTemplate)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Keys returns the metadata keys in sorted order.
func (m *Metadata) Keys() []string { return sortedKeys(m.KV) }
