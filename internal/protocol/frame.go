// Package protocol implements the overlay's wire framing and message
// taxonomy: a length-prefixed frame carrying a JSON-encoded request or
// response envelope.
package protocol

import (
	"encoding/binary"
	"io"

	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
)

const (
	// FrameVersion is the only version tag this implementation emits or
	// accepts.
	FrameVersion byte = 1

	// MaxBodyLen is the largest body a frame may carry.
	MaxBodyLen = 1 << 20 // 1 MiB

	headerLen = 5 // 1 version byte + 4-byte LE length
)

// WriteFrame writes version + length-prefixed body to w.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > MaxBodyLen {
		return locneterrors.Newf(locneterrors.BadRequest,
			"frame body %d bytes exceeds max %d", len(body), MaxBodyLen)
	}
	var hdr [headerLen]byte
	hdr[0] = FrameVersion
	binary.LittleEndian.PutUint32(hdr[1:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return locneterrors.New(locneterrors.ProtocolViolation, err.Error())
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return locneterrors.New(locneterrors.ProtocolViolation, err.Error())
	}
	return nil
}

// ReadFrame reads one frame from r and returns its body.
//
// Failure semantics per spec §4.3: a short read anywhere inside the header
// or body is a ProtocolViolation; a clean EOF before any byte of the header
// arrives is reported as InvalidState (the session was never live to begin
// with, or the peer closed cleanly between frames); an oversized body length
// in the header is a BadRequest.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [headerLen]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		if err == io.EOF && n == 0 {
			return nil, locneterrors.New(locneterrors.InvalidState, "session closed before next frame")
		}
		return nil, locneterrors.New(locneterrors.ProtocolViolation, "short read on frame header")
	}
	if hdr[0] != FrameVersion {
		return nil, locneterrors.Newf(locneterrors.BadRequest, "unsupported frame version %d", hdr[0])
	}
	bodyLen := binary.LittleEndian.Uint32(hdr[1:])
	if bodyLen > MaxBodyLen {
		return nil, locneterrors.Newf(locneterrors.BadRequest,
			"frame body %d bytes exceeds max %d", bodyLen, MaxBodyLen)
	}
	if bodyLen == 0 {
		return nil, nil
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, locneterrors.New(locneterrors.ProtocolViolation, "short read on frame body")
	}
	return body, nil
}
