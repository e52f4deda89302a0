package base

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	frameHeaderSize = 20 // shard id (8) + request id (8) + payload length (4)

	// MaxFrameSize bounds the payload of a single frame. A length above it is
	// treated as a corrupt stream.
	MaxFrameSize = 64 * 1024 * 1024 // 64 MB
)

// ErrFrameTooLarge is returned for frames whose payload exceeds MaxFrameSize
var ErrFrameTooLarge = errors.New("frame too large")

// frameHeader is the fixed size prefix of every frame, all fields big endian
type frameHeader struct {
	shardID   uint64
	requestID uint64
	length    uint32
}

func (h frameHeader) encode() []byte {
	b := make([]byte, frameHeaderSize)
	binary.BigEndian.PutUint64(b[:8], h.shardID)
	binary.BigEndian.PutUint64(b[8:16], h.requestID)
	binary.BigEndian.PutUint32(b[16:20], h.length)
	return b
}

func decodeFrameHeader(b []byte) frameHeader {
	return frameHeader{
		shardID:   binary.BigEndian.Uint64(b[:8]),
		requestID: binary.BigEndian.Uint64(b[8:16]),
		length:    binary.BigEndian.Uint32(b[16:20]),
	}
}

// writeFrame writes header and payload with a single vectored write
func writeFrame(conn net.Conn, shardID uint64, requestID uint64, data []byte) error {
	if len(data) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(data))
	}
	header := frameHeader{shardID: shardID, requestID: requestID, length: uint32(len(data))}

	b := net.Buffers{header.encode()}
	if len(data) > 0 {
		b = append(b, data)
	}
	_, err := b.WriteTo(conn)
	return err
}

// readFrame reads one frame. The payload is read into buf when it fits,
// otherwise into a new slice. The returned payload aliases that memory.
func readFrame(conn net.Conn, buf []byte) (shardID uint64, requestID uint64, data []byte, err error) {
	var head [frameHeaderSize]byte
	if _, err := io.ReadFull(conn, head[:]); err != nil {
		return 0, 0, nil, err
	}
	header := decodeFrameHeader(head[:])

	if header.length > MaxFrameSize {
		return 0, 0, nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, header.length)
	}
	if header.length == 0 {
		return header.shardID, header.requestID, []byte{}, nil
	}

	n := int(header.length)
	if len(buf) < n {
		buf = make([]byte, n)
	}
	if _, err := io.ReadFull(conn, buf[:n]); err != nil {
		return 0, 0, nil, err
	}
	return header.shardID, header.requestID, buf[:n], nil
}
