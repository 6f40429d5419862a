package nodeproxy

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/session"
)

// fakeServer answers exactly one request with resp, for exercising one
// Proxy call at a time.
func fakeServer(t *testing.T, handle func(req protocol.Request) protocol.Response) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		sess := session.Accept(conn)
		defer sess.Close()

		req, err := sess.ReceiveRequest()
		if err != nil {
			return
		}
		resp := handle(req)
		resp.CorrelationID = req.CorrelationID
		sess.SendResponse(resp) //nolint:errcheck
	}()

	return ln.Addr().String()
}

func TestGetNodeInfo(t *testing.T) {
	want := protocol.NodeInfo{Profile: protocol.NodeProfile{NodeID: "peer-1"}, Location: geo.Location{LatitudeDeg: 1, LongitudeDeg: 2}}
	addr := fakeServer(t, func(req protocol.Request) protocol.Response {
		assert.Equal(t, protocol.KindGetNodeInfo, req.Payload.Kind)
		return protocol.Response{Status: protocol.StatusOK, Payload: protocol.ResponsePayload{NodeInfo: &want}}
	})

	f := NewFactory()
	p, err := f.Connect(addr)
	require.NoError(t, err)
	defer p.Close()

	got, err := p.GetNodeInfo()
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestGetNodeCount(t *testing.T) {
	count := 42
	addr := fakeServer(t, func(req protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusOK, Payload: protocol.ResponsePayload{NodeCount: &count}}
	})

	f := NewFactory()
	p, err := f.Connect(addr)
	require.NoError(t, err)
	defer p.Close()

	got, err := p.GetNodeCount()
	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestAcceptNeighbourRefusalReturnsOkFalse(t *testing.T) {
	addr := fakeServer(t, func(req protocol.Request) protocol.Response {
		assert.Equal(t, protocol.KindAcceptNeighbour, req.Payload.Kind)
		return protocol.Response{Status: protocol.StatusOK, Payload: protocol.ResponsePayload{}}
	})

	f := NewFactory()
	p, err := f.Connect(addr)
	require.NoError(t, err)
	defer p.Close()

	_, ok, err := p.AcceptNeighbour(protocol.NodeInfo{Profile: protocol.NodeProfile{NodeID: "self"}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAcceptNeighbourAcceptanceReturnsCounterpart(t *testing.T) {
	counterpart := protocol.NodeInfo{Profile: protocol.NodeProfile{NodeID: "remote"}}
	addr := fakeServer(t, func(req protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusOK, Payload: protocol.ResponsePayload{NodeInfo: &counterpart}}
	})

	f := NewFactory()
	p, err := f.Connect(addr)
	require.NoError(t, err)
	defer p.Close()

	got, ok, err := p.AcceptNeighbour(protocol.NodeInfo{Profile: protocol.NodeProfile{NodeID: "self"}})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, counterpart, got)
}

func TestCallFailsOnNonOKStatus(t *testing.T) {
	addr := fakeServer(t, func(req protocol.Request) protocol.Response {
		return protocol.Response{Status: protocol.StatusErrorInternal, Details: "boom"}
	})

	f := NewFactory()
	p, err := f.Connect(addr)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.GetNodeInfo()
	assert.Error(t, err)
}
