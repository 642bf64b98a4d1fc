package rpc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	datagram, err := EncodeMessage(7, []byte("client_id=abc,synced=false"))
	require.NoError(t, err)

	methodID, payload, err := DecodeMessage(datagram)
	require.NoError(t, err)
	assert.Equal(t, int32(7), methodID)
	assert.Equal(t, "client_id=abc,synced=false", string(payload))
}

func TestEncodeEmptyPayload(t *testing.T) {
	datagram, err := EncodeMessage(1, nil)
	require.NoError(t, err)

	methodID, payload, err := DecodeMessage(datagram)
	require.NoError(t, err)
	assert.Equal(t, int32(1), methodID)
	assert.Empty(t, payload)
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	_, err := EncodeMessage(1, make([]byte, MaxPayloadSize+1))
	require.Error(t, err)
}

func TestDecodeRejectsShortDatagram(t *testing.T) {
	_, _, err := DecodeMessage([]byte{0, 0, 0, 1})
	require.Error(t, err)
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	datagram, err := EncodeMessage(1, []byte("hello"))
	require.NoError(t, err)
	// Truncate the payload without updating the declared length.
	truncated := datagram[:len(datagram)-2]

	_, _, err = DecodeMessage(truncated)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "payload_len"))
}
