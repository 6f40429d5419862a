package node

import (
	"math"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// ExpireOldNodes delegates to the Spatial Store (spec.md §4.5).
func (n *Node) ExpireOldNodes() {
	n.store.ExpireOldNodes()
}

// RenewNodeRelations renews every relation this node initiated. A refusal
// or connection failure removes the entry locally — renewal failure is the
// only maintenance action spec.md §7 allows to remove an entry.
func (n *Node) RenewNodeRelations() {
	for _, e := range n.store.GetNodes(protocol.RoleInitiator) {
		peer, err := n.proxies.Connect(contactAddr(e.Info.Profile.Contact))
		if err != nil {
			n.store.Remove(e.NodeID()) //nolint:errcheck
			continue
		}

		var ok bool
		var rerr error
		switch e.RelationType {
		case protocol.RelationNeighbour:
			ok, rerr = n.InitiateRenewNeighbour(peer)
		case protocol.RelationColleague:
			ok, rerr = n.InitiateRenewColleague(peer)
		default:
			peer.Close() //nolint:errcheck
			continue
		}
		peer.Close() //nolint:errcheck

		if rerr != nil || !ok {
			n.store.Remove(e.NodeID()) //nolint:errcheck
		}
	}
}

func (n *Node) randomLocation() geo.Location {
	lat := n.rand.Float64()*180 - 90
	lon := n.rand.Float64()*360 - 180
	if lon <= -180 {
		lon = 180
	}
	return geo.Location{LatitudeDeg: lat, LongitudeDeg: lon}
}

// DiscoverUnknownAreas samples a random geographic direction and asks a
// random known node for its closest nodes around that point, attempting
// colleague acceptance on whatever comes back (spec.md §4.5).
func (n *Node) DiscoverUnknownAreas() {
	known := n.store.GetRandom(1, protocol.NeighboursIncluded)
	if len(known) == 0 {
		return
	}
	sampled := n.randomLocation()

	peer, err := n.proxies.Connect(contactAddr(known[0].Info.Profile.Contact))
	if err != nil {
		return
	}
	defer peer.Close() //nolint:errcheck

	infos, err := peer.GetClosestNodesByDistance(sampled, math.MaxFloat64, n.cfg.RandomSampleMax, protocol.NeighboursIncluded)
	if err != nil {
		return
	}
	for _, info := range infos {
		n.safeStoreNode(info, protocol.RoleInitiator, protocol.RelationColleague)
	}
}

// EnsureMapFilled re-runs bootstrapping against the configured seeds if the
// known node count is low or the neighbourhood is under target (spec.md
// §4.5).
func (n *Node) EnsureMapFilled() {
	total := n.store.GetNodeCount(nil) - 1 // exclude Self
	if total < n.cfg.MinNodeCountThreshold || n.neighbourCount() < n.cfg.NeighbourhoodTargetSize {
		n.InitializeWorld()
		n.InitializeNeighbourhood()
	}
}
