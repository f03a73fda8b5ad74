// Package wire holds the binary stream primitives shared by every codec in
// novaquery: length-prefixed strings, presence-flagged optionals and a few
// fixed-width integers.
//
// Format:
//
//	string:          [u32 BE byte length][UTF-8 bytes]
//	optional string: [u8 flag 0|1][string if flag == 1]
//	bool:            [u8 0|1]
//	uint64:          [u64 BE]
//	uvarint:         encoding/binary uvarint
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

// MaxStringLen caps a single decoded string so a hostile length prefix
// cannot force a huge allocation.
const MaxStringLen = 1 << 20 // 1 MiB

var (
	ErrTruncated       = errors.New("wire: truncated data")
	ErrStringTooLong   = errors.New("wire: string exceeds max length")
	ErrInvalidUTF8     = errors.New("wire: string is not valid utf-8")
	ErrBadPresenceFlag = errors.New("wire: invalid presence flag")
	ErrBadBool         = errors.New("wire: invalid bool byte")
	ErrVarintOverflow  = errors.New("wire: uvarint overflows u64")
)

const (
	flagAbsent  byte = 0
	flagPresent byte = 1
)

// ---- Output ----

// Output writes primitives to an io.Writer. It is not safe for concurrent use.
type Output struct {
	w   io.Writer
	buf [binary.MaxVarintLen64]byte
}

func NewOutput(w io.Writer) *Output {
	return &Output{w: w}
}

func (o *Output) WriteByte(b byte) error {
	o.buf[0] = b
	_, err := o.w.Write(o.buf[:1])
	return err
}

func (o *Output) WriteBool(v bool) error {
	if v {
		return o.WriteByte(1)
	}
	return o.WriteByte(0)
}

func (o *Output) WriteUint32(v uint32) error {
	binary.BigEndian.PutUint32(o.buf[:4], v)
	_, err := o.w.Write(o.buf[:4])
	return err
}

func (o *Output) WriteUint64(v uint64) error {
	binary.BigEndian.PutUint64(o.buf[:8], v)
	_, err := o.w.Write(o.buf[:8])
	return err
}

func (o *Output) WriteUvarint(v uint64) error {
	n := binary.PutUvarint(o.buf[:], v)
	_, err := o.w.Write(o.buf[:n])
	return err
}

func (o *Output) WriteString(s string) error {
	if len(s) > MaxStringLen {
		return fmt.Errorf("%w: %d > %d", ErrStringTooLong, len(s), MaxStringLen)
	}
	if err := o.WriteUint32(uint32(len(s))); err != nil {
		return err
	}
	if len(s) == 0 {
		return nil
	}
	_, err := io.WriteString(o.w, s)
	return err
}

// WriteOptionalString writes only the absent flag when s is nil.
func (o *Output) WriteOptionalString(s *string) error {
	if s == nil {
		return o.WriteByte(flagAbsent)
	}
	if err := o.WriteByte(flagPresent); err != nil {
		return err
	}
	return o.WriteString(*s)
}

func (o *Output) WriteStringSlice(ss []string) error {
	if err := o.WriteUvarint(uint64(len(ss))); err != nil {
		return err
	}
	for _, s := range ss {
		if err := o.WriteString(s); err != nil {
			return err
		}
	}
	return nil
}

// ---- Input ----

// Input reads primitives from an io.Reader. Any short read is reported as
// ErrTruncated.
type Input struct {
	r   io.Reader
	buf [8]byte
}

func NewInput(r io.Reader) *Input {
	return &Input{r: r}
}

func (in *Input) readFull(b []byte) error {
	if _, err := io.ReadFull(in.r, b); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrTruncated
		}
		return err
	}
	return nil
}

func (in *Input) ReadByte() (byte, error) {
	if err := in.readFull(in.buf[:1]); err != nil {
		return 0, err
	}
	return in.buf[0], nil
}

func (in *Input) ReadBool() (bool, error) {
	b, err := in.ReadByte()
	if err != nil {
		return false, err
	}
	switch b {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("%w: %#x", ErrBadBool, b)
	}
}

func (in *Input) ReadUint32() (uint32, error) {
	if err := in.readFull(in.buf[:4]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(in.buf[:4]), nil
}

func (in *Input) ReadUint64() (uint64, error) {
	if err := in.readFull(in.buf[:8]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(in.buf[:8]), nil
}

func (in *Input) ReadUvarint() (uint64, error) {
	var x uint64
	var s uint
	for i := 0; i < binary.MaxVarintLen64; i++ {
		b, err := in.ReadByte()
		if err != nil {
			return 0, err
		}
		if b < 0x80 {
			if i == binary.MaxVarintLen64-1 && b > 1 {
				return 0, ErrVarintOverflow
			}
			return x | uint64(b)<<s, nil
		}
		x |= uint64(b&0x7f) << s
		s += 7
	}
	return 0, ErrVarintOverflow
}

func (in *Input) ReadString() (string, error) {
	n, err := in.ReadUint32()
	if err != nil {
		return "", err
	}
	if n > MaxStringLen {
		return "", fmt.Errorf("%w: %d > %d", ErrStringTooLong, n, MaxStringLen)
	}
	if n == 0 {
		return "", nil
	}
	b := make([]byte, n)
	if err := in.readFull(b); err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", ErrInvalidUTF8
	}
	return string(b), nil
}

// ReadOptionalString returns nil when the presence flag says absent.
func (in *Input) ReadOptionalString() (*string, error) {
	flag, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	switch flag {
	case flagAbsent:
		return nil, nil
	case flagPresent:
		s, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		return &s, nil
	default:
		return nil, fmt.Errorf("%w: %#x", ErrBadPresenceFlag, flag)
	}
}

func (in *Input) ReadStringSlice() ([]string, error) {
	n, err := in.ReadUvarint()
	if err != nil {
		return nil, err
	}
	// every element costs at least its 4-byte length prefix
	if n > MaxStringLen/4 {
		return nil, fmt.Errorf("%w: slice of %d strings", ErrStringTooLong, n)
	}
	out := make([]string, 0, n)
	for i := uint64(0); i < n; i++ {
		s, err := in.ReadString()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
