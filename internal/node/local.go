package node

import (
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// RegisterService implements LocalService.
func (n *Node) RegisterService(info protocol.ServiceInfo) error {
	return n.registry.Register(info)
}

// DeregisterService implements LocalService.
func (n *Node) DeregisterService(serviceType string) error {
	return n.registry.Deregister(serviceType)
}

// GetNeighbourNodes implements LocalService: the currently known
// Neighbours, ordered by distance from Self.
func (n *Node) GetNeighbourNodes() []protocol.NodeInfo {
	entries := n.store.GetNeighboursByDistance()
	return entriesToInfos(entries)
}

// GetNodeInfo implements PeerService/ClientService: this node's own
// identity and location.
func (n *Node) GetNodeInfo() protocol.NodeInfo {
	return n.cfg.Self
}

// GetNodeCount implements PeerService/ClientService.
func (n *Node) GetNodeCount(relation *protocol.RelationType) int {
	return n.store.GetNodeCount(relation)
}

// GetRandomNodes implements PeerService/ClientService.
func (n *Node) GetRandomNodes(max int, filter protocol.NeighbourFilter) []protocol.NodeInfo {
	entries := n.store.GetRandom(max, filter)
	return entriesToInfos(entries)
}

// GetClosestNodesByDistance implements PeerService/ClientService. It is
// intentionally not recursive (spec.md §4.5 "Search routing") — wide-area
// exploration is ExploreNetworkNodesByDistance's job.
func (n *Node) GetClosestNodesByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) []protocol.NodeInfo {
	entries := n.store.GetClosestByDistance(center, radiusKm, max, filter)
	return entriesToInfos(entries)
}

func entriesToInfos(entries []protocol.NodeDbEntry) []protocol.NodeInfo {
	out := make([]protocol.NodeInfo, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Info)
	}
	return out
}
