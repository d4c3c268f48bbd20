package blive

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
)

// Wire format: every packet starts with a 16-byte big-endian header
// {total length u32, header length u16, protocol version u16,
// operation u32, sequence u32}. A single websocket frame may carry
// several packets back to back, and compressed packets (version 2/3)
// wrap a batch of further packets.
const headerSize = 16

// Protocol versions.
const (
	ProtoPlain  uint16 = 0 // body is JSON
	ProtoBinary uint16 = 1 // body is a big-endian integer (heartbeat reply)
	ProtoZlib   uint16 = 2 // body is a zlib-compressed packet batch
	ProtoBrotli uint16 = 3 // body is a brotli-compressed packet batch
)

// Operations.
const (
	OpHeartbeat      uint32 = 2
	OpHeartbeatReply uint32 = 3
	OpCommand        uint32 = 5
	OpAuth           uint32 = 7
	OpAuthReply      uint32 = 8
)

var ErrInvalidFrame = errors.New("invalid frame")

// Packet is one decoded protocol packet.
type Packet struct {
	ProtoVer uint16
	Op       uint32
	Seq      uint32
	Body     []byte
}

// Encode serialises a packet for the wire.
func Encode(p Packet) []byte {
	buf := make([]byte, headerSize+len(p.Body))
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	binary.BigEndian.PutUint16(buf[4:6], headerSize)
	binary.BigEndian.PutUint16(buf[6:8], p.ProtoVer)
	binary.BigEndian.PutUint32(buf[8:12], p.Op)
	binary.BigEndian.PutUint32(buf[12:16], p.Seq)
	copy(buf[headerSize:], p.Body)
	return buf
}

// Decode parses one websocket frame into the packets it carries,
// inflating compressed batches along the way.
func Decode(frame []byte) ([]Packet, error) {
	var out []Packet
	if err := decodeInto(&out, frame); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInto(out *[]Packet, buf []byte) error {
	for len(buf) > 0 {
		if len(buf) < headerSize {
			return fmt.Errorf("%w: %d trailing bytes", ErrInvalidFrame, len(buf))
		}
		packLen := int(binary.BigEndian.Uint32(buf[0:4]))
		headLen := int(binary.BigEndian.Uint16(buf[4:6]))
		ver := binary.BigEndian.Uint16(buf[6:8])
		op := binary.BigEndian.Uint32(buf[8:12])
		seq := binary.BigEndian.Uint32(buf[12:16])

		if headLen < headerSize || packLen < headLen || packLen > len(buf) {
			return fmt.Errorf("%w: header claims %d/%d bytes, frame has %d",
				ErrInvalidFrame, headLen, packLen, len(buf))
		}
		body := buf[headLen:packLen]

		switch ver {
		case ProtoZlib:
			inflated, err := inflateZlib(body)
			if err != nil {
				return fmt.Errorf("inflate zlib batch: %w", err)
			}
			if err := decodeInto(out, inflated); err != nil {
				return err
			}
		case ProtoBrotli:
			inflated, err := inflateBrotli(body)
			if err != nil {
				return fmt.Errorf("inflate brotli batch: %w", err)
			}
			if err := decodeInto(out, inflated); err != nil {
				return err
			}
		default:
			*out = append(*out, Packet{ProtoVer: ver, Op: op, Seq: seq, Body: body})
		}

		buf = buf[packLen:]
	}
	return nil
}

func inflateZlib(data []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func inflateBrotli(data []byte) ([]byte, error) {
	return io.ReadAll(brotli.NewReader(bytes.NewReader(data)))
}

// Popularity extracts the room popularity from a heartbeat reply body.
func Popularity(p Packet) (uint32, bool) {
	if p.Op != OpHeartbeatReply || len(p.Body) < 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(p.Body[0:4]), true
}
