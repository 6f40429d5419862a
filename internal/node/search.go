package node

import (
	"fmt"
	"math"
	"sort"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

func contactAddr(c protocol.NodeContact) string {
	return fmt.Sprintf("%s:%d", c.Address, c.NodePort)
}

// ExploreNetworkNodesByDistance implements ClientService's multi-hop search
// (spec.md §4.5): start from the locally-closest nodes, then repeatedly hop
// to the not-yet-queried closest-to-center remote node and merge its
// closest nodes in, until targetCount distinct nodes are collected or
// maxHops remote queries have run.
func (n *Node) ExploreNetworkNodesByDistance(center geo.Location, targetCount, maxHops int) []protocol.NodeInfo {
	results := n.store.GetClosestByDistance(center, math.MaxFloat64, targetCount, protocol.NeighboursIncluded)
	byID := make(map[string]protocol.NodeDbEntry, len(results))
	for _, e := range results {
		byID[e.NodeID()] = e
	}

	queried := map[string]bool{n.cfg.Self.Profile.NodeID: true}
	hops := 0

	for hops < maxHops && len(byID) < targetCount {
		candidate := closestUnqueried(byID, queried, center)
		if candidate == nil {
			break
		}
		queried[candidate.NodeID()] = true
		hops++

		peer, err := n.proxies.Connect(contactAddr(candidate.Info.Profile.Contact))
		if err != nil {
			continue
		}
		remoteInfos, err := peer.GetClosestNodesByDistance(center, math.MaxFloat64, targetCount, protocol.NeighboursIncluded)
		peer.Close() //nolint:errcheck
		if err != nil {
			continue
		}
		for _, info := range remoteInfos {
			if info.Profile.NodeID == n.cfg.Self.Profile.NodeID {
				continue
			}
			if _, dup := byID[info.Profile.NodeID]; dup {
				continue
			}
			byID[info.Profile.NodeID] = protocol.NodeDbEntry{Info: info}
		}
	}

	out := make([]protocol.NodeInfo, 0, len(byID))
	for _, e := range byID {
		out = append(out, e.Info)
	}
	sortInfosByDistanceThenID(out, center)
	return out
}

func closestUnqueried(byID map[string]protocol.NodeDbEntry, queried map[string]bool, center geo.Location) *protocol.NodeDbEntry {
	var best *protocol.NodeDbEntry
	var bestDist float64
	for id, e := range byID {
		if queried[id] {
			continue
		}
		d := geo.DistanceKm(center, e.Info.Location)
		if best == nil || d < bestDist || (d == bestDist && e.NodeID() < best.NodeID()) {
			entry := e
			best = &entry
			bestDist = d
		}
	}
	return best
}

func sortInfosByDistanceThenID(infos []protocol.NodeInfo, from geo.Location) {
	sort.SliceStable(infos, func(i, j int) bool {
		di := geo.DistanceKm(from, infos[i].Location)
		dj := geo.DistanceKm(from, infos[j].Location)
		if di != dj {
			return di < dj
		}
		return infos[i].Profile.NodeID < infos[j].Profile.NodeID
	})
}
