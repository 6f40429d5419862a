package node

import (
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/nodeproxy"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// RemotePeer is everything the Overlay Engine needs from a live RPC handle
// to a remote node. *nodeproxy.Proxy satisfies this structurally; tests
// substitute fakes.
type RemotePeer interface {
	GetNodeInfo() (protocol.NodeInfo, error)
	GetNodeCount() (int, error)
	GetRandomNodes(max int, filter protocol.NeighbourFilter) ([]protocol.NodeInfo, error)
	GetClosestNodesByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) ([]protocol.NodeInfo, error)
	ExploreNetworkNodesByDistance(center geo.Location, targetCount, maxHops int) ([]protocol.NodeInfo, error)
	AcceptColleague(self protocol.NodeInfo) (protocol.NodeInfo, bool, error)
	RenewColleague(self protocol.NodeInfo) (protocol.NodeInfo, bool, error)
	AcceptNeighbour(self protocol.NodeInfo) (protocol.NodeInfo, bool, error)
	RenewNeighbour(self protocol.NodeInfo) (protocol.NodeInfo, bool, error)
	Close() error
}

// ProxyFactory connects to a remote endpoint and returns a RemotePeer handle.
// Grounded on original_source/src/network.cpp's connection-factory
// abstraction: the Overlay Engine never dials a socket directly.
type ProxyFactory interface {
	Connect(addr string) (RemotePeer, error)
}

// defaultProxyFactory adapts *nodeproxy.Factory (whose Connect returns the
// concrete *nodeproxy.Proxy type) to the ProxyFactory interface.
type defaultProxyFactory struct {
	f *nodeproxy.Factory
}

// NewDefaultProxyFactory wraps a nodeproxy.Factory for production use.
func NewDefaultProxyFactory(f *nodeproxy.Factory) ProxyFactory {
	return defaultProxyFactory{f: f}
}

func (d defaultProxyFactory) Connect(addr string) (RemotePeer, error) {
	p, err := d.f.Connect(addr)
	if err != nil {
		return nil, err
	}
	return p, nil
}
