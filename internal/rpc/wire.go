package rpc

import (
	"encoding/binary"
	"fmt"

	"github.com/banshee-data/camerasync/internal/syncerr"
)

// MaxPayloadSize is the largest payload the transport will send in a
// single datagram. The transport never fragments; larger payloads are
// rejected at the sender.
const MaxPayloadSize = 64 * 1024

// headerSize is the fixed-width int32 method_id + int32 payload_len prefix.
const headerSize = 8

// EncodeMessage serializes a method id and opaque payload into the wire
// format: big-endian int32 method_id, big-endian int32 payload_len,
// followed by the payload bytes.
func EncodeMessage(methodID int32, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload is %d bytes, max is %d", syncerr.ErrPayloadTooLarge, len(payload), MaxPayloadSize)
	}

	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(methodID))
	binary.BigEndian.PutUint32(buf[4:8], uint32(len(payload)))
	copy(buf[headerSize:], payload)
	return buf, nil
}

// DecodeMessage parses a datagram produced by EncodeMessage. It returns
// ErrProtocol if the datagram is shorter than the header or the declared
// payload length does not match the remaining bytes.
func DecodeMessage(datagram []byte) (methodID int32, payload []byte, err error) {
	if len(datagram) < headerSize {
		return 0, nil, fmt.Errorf("%w: datagram shorter than header (%d bytes)", syncerr.ErrProtocol, len(datagram))
	}

	methodID = int32(binary.BigEndian.Uint32(datagram[0:4]))
	payloadLen := int32(binary.BigEndian.Uint32(datagram[4:8]))
	if payloadLen < 0 {
		return 0, nil, fmt.Errorf("%w: negative payload_len %d", syncerr.ErrProtocol, payloadLen)
	}

	rest := datagram[headerSize:]
	if int(payloadLen) != len(rest) {
		return 0, nil, fmt.Errorf("%w: payload_len %d does not match %d remaining bytes", syncerr.ErrProtocol, payloadLen, len(rest))
	}

	payload = make([]byte, len(rest))
	copy(payload, rest)
	return methodID, payload, nil
}
