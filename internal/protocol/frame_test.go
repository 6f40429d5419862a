package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
)

func TestWriteReadFrameRoundtrip(t *testing.T) {
	body := []byte(`{"hello":"world"}`)

	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, body))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestReadFrameEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, nil))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteFrameMaxBodyLen(t *testing.T) {
	body := make([]byte, MaxBodyLen)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, body))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Len(t, got, MaxBodyLen)
}

func TestWriteFrameOversizedBody(t *testing.T) {
	body := make([]byte, MaxBodyLen+1)
	err := WriteFrame(io.Discard, body)
	require.Error(t, err)
	assert.Equal(t, locneterrors.BadRequest, locneterrors.CodeOf(err))
}

func TestReadFrameShortHeader(t *testing.T) {
	buf := bytes.NewBuffer([]byte{1, 0, 0})
	_, err := ReadFrame(buf)
	require.Error(t, err)
	assert.Equal(t, locneterrors.ProtocolViolation, locneterrors.CodeOf(err))
}

func TestReadFrameCleanEOFBeforeHeader(t *testing.T) {
	buf := bytes.NewBuffer(nil)
	_, err := ReadFrame(buf)
	require.Error(t, err)
	assert.Equal(t, locneterrors.InvalidState, locneterrors.CodeOf(err))
}

func TestReadFrameShortBody(t *testing.T) {
	var buf bytes.Buffer
	hdr := make([]byte, headerLen)
	hdr[0] = FrameVersion
	hdr[1] = 10 // claims 10 bytes of body, but we'll only write 2
	buf.Write(hdr)
	buf.Write([]byte{0x01, 0x02})

	_, err := ReadFrame(&buf)
	require.Error(t, err)
	assert.Equal(t, locneterrors.ProtocolViolation, locneterrors.CodeOf(err))
}

func TestDecodeRequestEmptyBodyIsBadRequest(t *testing.T) {
	_, err := DecodeRequest(nil)
	require.Error(t, err)
	assert.Equal(t, locneterrors.BadRequest, locneterrors.CodeOf(err))
}

func TestEncodeDecodeRequestRoundtrip(t *testing.T) {
	req := Request{
		CorrelationID: 42,
		Payload: RequestPayload{
			Kind:         KindGetNodeCount,
			MaxNodeCount: 10,
		},
	}
	body, err := EncodeRequest(req)
	require.NoError(t, err)

	decoded, err := DecodeRequest(body)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
}
