package node

import (
	"math"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// InitializeWorld implements spec.md §4.5's bootstrap-from-seeds algorithm:
// try each seed in order until at least one remote entry has been stored.
// Connection failures are skipped, not fatal. Returns true if any node was
// stored.
func (n *Node) InitializeWorld() bool {
	storedAny := false
	for _, seed := range n.cfg.Seeds {
		if storedAny {
			break
		}
		peer, err := n.proxies.Connect(seed)
		if err != nil {
			continue
		}

		info, err := peer.GetNodeInfo()
		if err == nil {
			if n.safeStoreNode(info, protocol.RoleInitiator, protocol.RelationColleague) {
				storedAny = true
			}
			randomNodes, err := peer.GetRandomNodes(n.cfg.RandomSampleMax, protocol.NeighboursIncluded)
			if err == nil {
				for _, rn := range randomNodes {
					if n.safeStoreNode(rn, protocol.RoleInitiator, protocol.RelationColleague) {
						storedAny = true
					}
				}
			}
		}
		peer.Close() //nolint:errcheck
	}
	return storedAny
}

func (n *Node) closestKnownNode() *protocol.NodeInfo {
	entries := n.store.GetClosestByDistance(n.cfg.Self.Location, math.MaxFloat64, 1, protocol.NeighboursIncluded)
	if len(entries) == 0 {
		return nil
	}
	return &entries[0].Info
}

func (n *Node) neighbourCount() int {
	neighbour := protocol.RelationNeighbour
	return n.store.GetNodeCount(&neighbour)
}

func closestUnqueriedInfo(pool map[string]protocol.NodeInfo, queried map[string]bool, from geo.Location) *protocol.NodeInfo {
	var best *protocol.NodeInfo
	var bestDist float64
	for id, info := range pool {
		if queried[id] {
			continue
		}
		d := geo.DistanceKm(from, info.Location)
		if best == nil || d < bestDist || (d == bestDist && info.Profile.NodeID < best.Profile.NodeID) {
			copied := info
			best = &copied
			bestDist = d
		}
	}
	return best
}

// InitializeNeighbourhood implements spec.md §4.5's neighbourhood discovery:
// starting from the closest known node, collect candidate neighbours,
// attempt a mutual AcceptNeighbour handshake with each, and hop to the
// closest-yet-unqueried candidate until either the target neighbourhood
// size is reached or maxNodeHops remote queries have run.
func (n *Node) InitializeNeighbourhood() {
	target := n.cfg.NeighbourhoodTargetSize
	current := n.closestKnownNode()
	if current == nil {
		return
	}

	candidatePool := make(map[string]protocol.NodeInfo)
	queried := map[string]bool{n.cfg.Self.Profile.NodeID: true}
	attempted := make(map[string]bool)

	addCandidates := func(infos []protocol.NodeInfo) {
		for _, info := range infos {
			if info.Profile.NodeID == n.cfg.Self.Profile.NodeID {
				continue
			}
			candidatePool[info.Profile.NodeID] = info
		}
	}

	hops := 0
	for {
		peer, err := n.proxies.Connect(contactAddr(current.Profile.Contact))
		queried[current.Profile.NodeID] = true
		if err == nil {
			infos, err2 := peer.GetClosestNodesByDistance(n.cfg.Self.Location, math.MaxFloat64, target, protocol.NeighboursIncluded)
			peer.Close() //nolint:errcheck
			if err2 == nil {
				addCandidates(infos)
			}
		}
		hops++

		for id, info := range candidatePool {
			if attempted[id] {
				continue
			}
			attempted[id] = true
			if n.neighbourCount() >= target {
				break
			}
			hp, herr := n.proxies.Connect(contactAddr(info.Profile.Contact))
			if herr != nil {
				continue
			}
			n.InitiateAcceptNeighbour(hp) //nolint:errcheck
			hp.Close()                   //nolint:errcheck
		}

		if n.neighbourCount() >= target || hops >= n.cfg.MaxNodeHops {
			return
		}
		next := closestUnqueriedInfo(candidatePool, queried, n.cfg.Self.Location)
		if next == nil {
			return
		}
		current = next
	}
}
