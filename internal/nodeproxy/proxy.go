// Package nodeproxy implements the overlay's Proxy Factory: given a remote
// endpoint, it produces a handle that speaks the NodeToNode/Client RPC
// surface over a freshly-dialed Session.
//
// Grounded on the teacher's internal/proxy.Server/Dialer factory shape
// (a Dialer abstraction wrapped by a small server) and on
// original_source/src/network.cpp's TcpStreamConnectionFactory::ConnectTo,
// which is exactly this: dial an endpoint, hand back a thing that can issue
// RPCs over it.
package nodeproxy

import (
	"sync/atomic"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/session"
)

// Factory dials remote overlay nodes and returns RPC handles to them.
type Factory struct {
	correlationSeq atomic.Uint32
}

// NewFactory creates a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// Connect dials addr (a "host:port" NodeToNode endpoint) and returns a Proxy
// for issuing RPCs against it.
func (f *Factory) Connect(addr string) (*Proxy, error) {
	sess, err := session.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Proxy{sess: sess, factory: f}, nil
}

// Proxy is a live RPC handle to one remote node, over one Session.
type Proxy struct {
	sess    *session.Session
	factory *Factory
}

// Close tears down the underlying session.
func (p *Proxy) Close() error { return p.sess.Close() }

func (p *Proxy) nextCorrelationID() uint32 {
	return p.factory.correlationSeq.Add(1)
}

// call sends req and returns the decoded response, failing with BadResponse
// if the remote reports a non-OK status.
func (p *Proxy) call(payload protocol.RequestPayload) (protocol.Response, error) {
	req := protocol.Request{
		CorrelationID: p.nextCorrelationID(),
		Payload:       payload,
	}
	if err := p.sess.SendRequest(req); err != nil {
		return protocol.Response{}, err
	}
	resp, err := p.sess.ReceiveResponse()
	if err != nil {
		return protocol.Response{}, err
	}
	if resp.CorrelationID != req.CorrelationID {
		return protocol.Response{}, locneterrors.New(locneterrors.BadResponse, "correlation id mismatch")
	}
	if resp.Status != protocol.StatusOK {
		return resp, locneterrors.Newf(locneterrors.BadResponse, "remote returned %s: %s", resp.Status, resp.Details)
	}
	return resp, nil
}

// GetNodeInfo fetches the remote's own NodeInfo.
func (p *Proxy) GetNodeInfo() (protocol.NodeInfo, error) {
	resp, err := p.call(protocol.RequestPayload{Kind: protocol.KindGetNodeInfo})
	if err != nil {
		return protocol.NodeInfo{}, err
	}
	if resp.Payload.NodeInfo == nil {
		return protocol.NodeInfo{}, locneterrors.New(locneterrors.BadResponse, "missing nodeInfo in response")
	}
	return *resp.Payload.NodeInfo, nil
}

// GetNodeCount fetches the remote's count of all stored nodes, with no
// relation filter (see GetNodeCountByRelation for a filtered count).
func (p *Proxy) GetNodeCount() (int, error) {
	resp, err := p.call(protocol.RequestPayload{Kind: protocol.KindGetNodeCount})
	if err != nil {
		return 0, err
	}
	if resp.Payload.NodeCount == nil {
		return 0, locneterrors.New(locneterrors.BadResponse, "missing nodeCount in response")
	}
	return *resp.Payload.NodeCount, nil
}

// GetNodeCountByRelation fetches the remote's count of stored nodes
// restricted to relation, for CLI inspection. RemotePeer's GetNodeCount
// deliberately has no filter — engine-to-engine RPCs never need one — so
// this is a CLI-only addition, not part of the RemotePeer interface.
func (p *Proxy) GetNodeCountByRelation(relation protocol.RelationType) (int, error) {
	resp, err := p.call(protocol.RequestPayload{Kind: protocol.KindGetNodeCount, Relation: &relation})
	if err != nil {
		return 0, err
	}
	if resp.Payload.NodeCount == nil {
		return 0, locneterrors.New(locneterrors.BadResponse, "missing nodeCount in response")
	}
	return *resp.Payload.NodeCount, nil
}

// GetRandomNodes fetches up to max nodes sampled at random by the remote.
func (p *Proxy) GetRandomNodes(max int, filter protocol.NeighbourFilter) ([]protocol.NodeInfo, error) {
	resp, err := p.call(protocol.RequestPayload{
		Kind:         protocol.KindGetRandomNodes,
		MaxNodeCount: max,
		Filter:       filter,
	})
	if err != nil {
		return nil, err
	}
	return resp.Payload.Nodes, nil
}

// GetClosestNodesByDistance fetches up to max nodes within radiusKm of
// center, sorted ascending by distance from center.
func (p *Proxy) GetClosestNodesByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) ([]protocol.NodeInfo, error) {
	resp, err := p.call(protocol.RequestPayload{
		Kind:         protocol.KindGetClosestNodesByDistance,
		Center:       &center,
		RadiusKm:     radiusKm,
		MaxNodeCount: max,
		Filter:       filter,
	})
	if err != nil {
		return nil, err
	}
	return resp.Payload.Nodes, nil
}

// ExploreNetworkNodesByDistance asks the remote to drive its own multi-hop
// search and return the merged results (spec.md §4.5, Client surface).
func (p *Proxy) ExploreNetworkNodesByDistance(center geo.Location, targetCount, maxHops int) ([]protocol.NodeInfo, error) {
	resp, err := p.call(protocol.RequestPayload{
		Kind:            protocol.KindExploreNetworkNodesByDistance,
		Center:          &center,
		TargetNodeCount: targetCount,
		MaxNodeHops:     maxHops,
	})
	if err != nil {
		return nil, err
	}
	return resp.Payload.Nodes, nil
}

// acceptLike issues one of the four acceptance-handshake RPCs, returning the
// remote's own NodeInfo on acceptance, or ok=false on refusal.
func (p *Proxy) acceptLike(kind protocol.PayloadKind, self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	resp, err := p.call(protocol.RequestPayload{Kind: kind, Node: &self})
	if err != nil {
		return protocol.NodeInfo{}, false, err
	}
	if resp.Payload.NodeInfo == nil {
		return protocol.NodeInfo{}, false, nil
	}
	return *resp.Payload.NodeInfo, true, nil
}

// RegisterService registers a locally-hosted service with the remote over
// the LocalService surface (spec.md §4.2) — used by the CLI to reach a
// running daemon over its client port rather than calling the engine
// in-process.
func (p *Proxy) RegisterService(info protocol.ServiceInfo) error {
	_, err := p.call(protocol.RequestPayload{Kind: protocol.KindRegisterService, RegisterService: &info})
	return err
}

// DeregisterService removes a locally-hosted service by type.
func (p *Proxy) DeregisterService(serviceType string) error {
	_, err := p.call(protocol.RequestPayload{Kind: protocol.KindDeregisterService, DeregisterService: serviceType})
	return err
}

// GetNeighbourNodes fetches the remote's current Neighbours over the
// LocalService surface.
func (p *Proxy) GetNeighbourNodes() ([]protocol.NodeInfo, error) {
	resp, err := p.call(protocol.RequestPayload{Kind: protocol.KindGetNeighbourNodes})
	if err != nil {
		return nil, err
	}
	return resp.Payload.Nodes, nil
}

// AcceptColleague asks the remote to accept self as a Colleague.
func (p *Proxy) AcceptColleague(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.acceptLike(protocol.KindAcceptColleague, self)
}

// RenewColleague asks the remote to renew self's Colleague relation.
func (p *Proxy) RenewColleague(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.acceptLike(protocol.KindRenewColleague, self)
}

// AcceptNeighbour asks the remote to accept self as a Neighbour.
func (p *Proxy) AcceptNeighbour(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.acceptLike(protocol.KindAcceptNeighbour, self)
}

// RenewNeighbour asks the remote to renew self's Neighbour relation.
func (p *Proxy) RenewNeighbour(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.acceptLike(protocol.KindRenewNeighbour, self)
}
