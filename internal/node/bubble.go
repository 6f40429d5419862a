package node

import (
	"math"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// bubbleRadius implements spec.md §4.5's bubble-overlap rule: half the
// distance from loc to the Nth closest Neighbour of Self, if at least N
// Neighbours are known; otherwise the configured minimum.
func (n *Node) bubbleRadius(loc geo.Location) float64 {
	neighbours := n.store.GetNeighboursByDistance()
	target := n.cfg.NeighbourhoodTargetSize
	if len(neighbours) >= target {
		nth := neighbours[target-1]
		return geo.DistanceKm(loc, nth.Info.Location) / 2
	}
	return n.cfg.BubbleMinRadiusKm
}

// bubbleOverlaps reports whether candidate overlaps the bubble of any
// existing Neighbour or Colleague other than ignoreID. Used to reject
// colleague-acceptance candidates; neighbours are exempt from the rule.
func (n *Node) bubbleOverlaps(candidate protocol.NodeInfo, ignoreID string) bool {
	others := n.store.GetClosestByDistance(candidate.Location, math.MaxFloat64, math.MaxInt32, protocol.NeighboursIncluded)
	candidateRadius := n.bubbleRadius(candidate.Location)

	for _, k := range others {
		if k.NodeID() == ignoreID {
			continue
		}
		d := geo.DistanceKm(candidate.Location, k.Info.Location)
		if d < candidateRadius+n.bubbleRadius(k.Info.Location) {
			return true
		}
	}
	return false
}
