package command

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// RecordSize is the encoded size of a Command on the wire.
const RecordSize = 5*4 + NumInts*4 + NumDoubles*8 + MaxStringLen

const (
	// FrameHeaderSize is the length prefix written before each record on a
	// stream socket.
	FrameHeaderSize = 4
	maxFrameSize    = 1 << 16
)

var (
	ErrShortRecord = errors.New("command record too short")
	ErrBadFrame    = errors.New("bad command frame length")
)

// AppendBinary appends the fixed-size little-endian encoding of c to dst.
func (c Command) AppendBinary(dst []byte) []byte {
	var rec [RecordSize]byte
	c.encode(rec[:])
	return append(dst, rec[:]...)
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (c Command) MarshalBinary() ([]byte, error) {
	buf := make([]byte, RecordSize)
	c.encode(buf)
	return buf, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (c *Command) UnmarshalBinary(data []byte) error {
	if len(data) < RecordSize {
		return fmt.Errorf("%w: %d bytes", ErrShortRecord, len(data))
	}
	le := binary.LittleEndian

	c.Kind = Kind(int32(le.Uint32(data[0:])))
	c.Target = Target(int32(le.Uint32(data[4:])))
	c.ParmType = ParmType(int32(le.Uint32(data[8:])))
	c.Tag = int32(le.Uint32(data[12:]))
	c.ID = le.Uint32(data[16:])

	off := 20
	for i := range c.Ints {
		c.Ints[i] = int32(le.Uint32(data[off:]))
		off += 4
	}
	for i := range c.Doubles {
		c.Doubles[i] = math.Float64frombits(le.Uint64(data[off:]))
		off += 8
	}

	str := data[off : off+MaxStringLen]
	if idx := bytes.IndexByte(str, 0); idx >= 0 {
		str = str[:idx]
	}
	c.Str = string(str)

	if !c.Kind.Valid() {
		return fmt.Errorf("decoding command: unknown kind %d", int32(c.Kind))
	}
	if !c.Target.Valid() {
		return fmt.Errorf("decoding command: unknown target %d", int32(c.Target))
	}
	return nil
}

func (c Command) encode(buf []byte) {
	le := binary.LittleEndian

	le.PutUint32(buf[0:], uint32(c.Kind))
	le.PutUint32(buf[4:], uint32(c.Target))
	le.PutUint32(buf[8:], uint32(c.ParmType))
	le.PutUint32(buf[12:], uint32(c.Tag))
	le.PutUint32(buf[16:], c.ID)

	off := 20
	for _, v := range c.Ints {
		le.PutUint32(buf[off:], uint32(v))
		off += 4
	}
	for _, v := range c.Doubles {
		le.PutUint64(buf[off:], math.Float64bits(v))
		off += 8
	}

	str := buf[off : off+MaxStringLen]
	n := copy(str, truncate(c.Str))
	for i := n; i < len(str); i++ {
		str[i] = 0
	}
}

// WriteFrame writes c to w preceded by its 4-byte little-endian length.
func WriteFrame(w io.Writer, c Command) error {
	var frame [FrameHeaderSize + RecordSize]byte
	binary.LittleEndian.PutUint32(frame[:], RecordSize)
	c.encode(frame[FrameHeaderSize:])

	_, err := w.Write(frame[:])
	return err
}

// ReadFrame reads one length-prefixed record from r. The whole frame is
// consumed before the length is validated so the stream stays aligned.
func ReadFrame(r io.Reader) (Command, error) {
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Command{}, err
	}

	size := binary.LittleEndian.Uint32(hdr[:])
	if size > maxFrameSize {
		return Command{}, fmt.Errorf("%w: %d", ErrBadFrame, size)
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return Command{}, err
	}
	if size != RecordSize {
		return Command{}, fmt.Errorf("%w: got %d want %d", ErrBadFrame, size, RecordSize)
	}

	var c Command
	if err := c.UnmarshalBinary(body); err != nil {
		return Command{}, err
	}
	return c, nil
}
