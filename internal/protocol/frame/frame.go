package frame

import (
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderLen covers flags, length and type.
	HeaderLen = 3
	// MaxLen is bounded by the single length byte.
	MaxLen = 255
	// StartByte is the flags value the device expects on host frames.
	StartByte byte = 0x01
	crcLen         = 2
)

var (
	ErrShortFrame    = errors.New("frame: length below header size")
	ErrFrameTooLarge = errors.New("frame: encoded frame exceeds length byte")
)

// Frame is one complete wire message: [flags][length][type][payload].
// Length counts every byte of the frame, header included.
type Frame struct {
	Flags   byte
	Length  byte
	Type    byte
	Payload []byte
}

// Bytes re-encodes the frame exactly as it was received.
func (f Frame) Bytes() []byte {
	out := make([]byte, 0, HeaderLen+len(f.Payload))
	out = append(out, f.Flags, f.Length, f.Type)
	return append(out, f.Payload...)
}

func (f Frame) String() string {
	return fmt.Sprintf("frame{type=0x%02x len=%d payload=% x}", f.Type, f.Length, f.Payload)
}

// Build encodes a host frame: start byte, length, type, options, data and
// a little-endian CRC trailer.
func Build(msgType, options byte, data []byte) ([]byte, error) {
	total := HeaderLen + 1 + len(data) + crcLen
	if total > MaxLen {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, total)
	}
	buf := make([]byte, total)
	buf[0] = StartByte
	buf[1] = byte(total)
	buf[2] = msgType
	buf[3] = options
	copy(buf[4:], data)
	crc := Checksum(buf[:total-crcLen])
	buf[total-2] = byte(crc)
	buf[total-1] = byte(crc >> 8)
	return buf, nil
}

// Parse decodes one complete frame from raw. Trailing bytes are ignored.
func Parse(raw []byte) (Frame, error) {
	if len(raw) < 2 {
		return Frame{}, io.ErrUnexpectedEOF
	}
	length := int(raw[1])
	if length < HeaderLen {
		return Frame{}, fmt.Errorf("%w: length=%d", ErrShortFrame, length)
	}
	if len(raw) < length {
		return Frame{}, io.ErrUnexpectedEOF
	}
	payload := make([]byte, length-HeaderLen)
	copy(payload, raw[HeaderLen:length])
	return Frame{
		Flags:   raw[0],
		Length:  raw[1],
		Type:    raw[2],
		Payload: payload,
	}, nil
}

// ReadFrame reads exactly one frame from r, however the bytes are split
// across underlying reads.
func ReadFrame(r io.Reader) (Frame, error) {
	var head [2]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return Frame{}, err
	}
	length := int(head[1])
	if length < HeaderLen {
		return Frame{}, fmt.Errorf("%w: length=%d", ErrShortFrame, length)
	}
	raw := make([]byte, length)
	copy(raw, head[:])
	if _, err := io.ReadFull(r, raw[2:]); err != nil {
		if errors.Is(err, io.EOF) {
			return Frame{}, io.ErrUnexpectedEOF
		}
		return Frame{}, err
	}
	return Parse(raw)
}
