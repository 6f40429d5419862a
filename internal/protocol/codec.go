package protocol

import (
	"encoding/json"

	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
)

// EncodeRequest serialises req as a frame body.
func EncodeRequest(req Request) ([]byte, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, locneterrors.New(locneterrors.Internal, err.Error())
	}
	return b, nil
}

// DecodeRequest parses a frame body into a Request. An empty body (no
// bytes) or a body with no recognizable Kind is BadRequest — per spec.md's
// framing stress scenario, a well-formed zero-length frame carries no
// variant and must be rejected at the message layer, not the frame layer.
func DecodeRequest(body []byte) (Request, error) {
	if len(body) == 0 {
		return Request{}, locneterrors.New(locneterrors.BadRequest, "empty message body carries no request")
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return Request{}, locneterrors.New(locneterrors.BadRequest, "malformed request: "+err.Error())
	}
	if req.Payload.Kind == "" {
		return Request{}, locneterrors.New(locneterrors.BadRequest, "request carries no payload variant")
	}
	return req, nil
}

// EncodeResponse serialises resp as a frame body.
func EncodeResponse(resp Response) ([]byte, error) {
	b, err := json.Marshal(resp)
	if err != nil {
		return nil, locneterrors.New(locneterrors.Internal, err.Error())
	}
	return b, nil
}

// DecodeResponse parses a frame body into a Response.
func DecodeResponse(body []byte) (Response, error) {
	if len(body) == 0 {
		return Response{}, locneterrors.New(locneterrors.BadResponse, "empty response body")
	}
	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return Response{}, locneterrors.New(locneterrors.BadResponse, "malformed response: "+err.Error())
	}
	return resp, nil
}

// StatusFromCode maps a domain error Code onto its wire StatusCode.
func StatusFromCode(c locneterrors.Code) StatusCode {
	switch c {
	case locneterrors.BadRequest, locneterrors.ConflictingID, locneterrors.NotFound, locneterrors.InvalidCoordinate:
		return StatusErrorBadRequest
	case locneterrors.BadResponse:
		return StatusErrorBadResponse
	case locneterrors.Connection:
		return StatusErrorConnection
	case locneterrors.ProtocolViolation:
		return StatusErrorProtocolViolation
	case locneterrors.InvalidState:
		return StatusErrorInvalidState
	case locneterrors.Unsupported:
		return StatusErrorUnsupported
	default:
		return StatusErrorInternal
	}
}
