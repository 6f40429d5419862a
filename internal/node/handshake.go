package node

import (
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

func (n *Node) newExpiry() int64 {
	return n.clock.Now().Add(n.cfg.RelationTTL).Unix()
}

// AcceptColleague is the receiver side of the Colleague handshake (spec.md
// §4.5 decision matrix): accept candidate as a Colleague if it is not
// already stored and its bubble does not overlap an existing one.
func (n *Node) AcceptColleague(candidate protocol.NodeInfo) (protocol.NodeInfo, bool) {
	if !candidate.Location.Valid() {
		return protocol.NodeInfo{}, false
	}
	if _, exists := n.store.Load(candidate.Profile.NodeID); exists {
		return protocol.NodeInfo{}, false
	}
	if n.bubbleOverlaps(candidate, "") {
		return protocol.NodeInfo{}, false
	}
	entry := protocol.NodeDbEntry{
		Info:          candidate,
		Role:          protocol.RoleAcceptor,
		RelationType:  protocol.RelationColleague,
		ExpiresAtUnix: n.newExpiry(),
	}
	if err := n.store.Store(entry, true); err != nil {
		return protocol.NodeInfo{}, false
	}
	return n.cfg.Self, true
}

// RenewColleague is the receiver side of Colleague renewal: refresh
// candidate's expiry if it is already stored as a Colleague.
func (n *Node) RenewColleague(candidate protocol.NodeInfo) (protocol.NodeInfo, bool) {
	existing, ok := n.store.Load(candidate.Profile.NodeID)
	if !ok || existing.RelationType != protocol.RelationColleague {
		return protocol.NodeInfo{}, false
	}
	existing.Info = candidate
	existing.ExpiresAtUnix = n.newExpiry()
	if err := n.store.Update(existing, true); err != nil {
		return protocol.NodeInfo{}, false
	}
	return n.cfg.Self, true
}

// AcceptNeighbour is the receiver side of the Neighbour handshake.
// Acceptance on an already-stored Neighbour is equivalent to renewal
// (spec.md §8 acceptance idempotence).
func (n *Node) AcceptNeighbour(candidate protocol.NodeInfo) (protocol.NodeInfo, bool) {
	if !candidate.Location.Valid() {
		return protocol.NodeInfo{}, false
	}
	if existing, ok := n.store.Load(candidate.Profile.NodeID); ok && existing.RelationType == protocol.RelationNeighbour {
		return n.RenewNeighbour(candidate)
	}

	neighbours := n.store.GetNeighboursByDistance()
	target := n.cfg.NeighbourhoodTargetSize
	selfLoc := n.cfg.Self.Location

	if len(neighbours) < target {
		return n.storeAsNeighbour(candidate)
	}

	farthest := neighbours[len(neighbours)-1]
	if geo.DistanceKm(selfLoc, candidate.Location) < geo.DistanceKm(selfLoc, farthest.Info.Location) {
		n.demoteOrRemoveNeighbour(farthest)
		return n.storeAsNeighbour(candidate)
	}
	return protocol.NodeInfo{}, false
}

// RenewNeighbour is the receiver side of Neighbour renewal: refresh
// candidate's expiry if it is already stored as a Neighbour.
func (n *Node) RenewNeighbour(candidate protocol.NodeInfo) (protocol.NodeInfo, bool) {
	existing, ok := n.store.Load(candidate.Profile.NodeID)
	if !ok || existing.RelationType != protocol.RelationNeighbour {
		return protocol.NodeInfo{}, false
	}
	existing.Info = candidate
	existing.ExpiresAtUnix = n.newExpiry()
	if err := n.store.Update(existing, true); err != nil {
		return protocol.NodeInfo{}, false
	}
	return n.cfg.Self, true
}

func (n *Node) storeAsNeighbour(candidate protocol.NodeInfo) (protocol.NodeInfo, bool) {
	entry := protocol.NodeDbEntry{
		Info:          candidate,
		Role:          protocol.RoleAcceptor,
		RelationType:  protocol.RelationNeighbour,
		ExpiresAtUnix: n.newExpiry(),
	}
	var err error
	if _, exists := n.store.Load(candidate.Profile.NodeID); exists {
		err = n.store.Update(entry, true)
	} else {
		err = n.store.Store(entry, true)
	}
	if err != nil {
		return protocol.NodeInfo{}, false
	}
	return n.cfg.Self, true
}

// demoteOrRemoveNeighbour moves a displaced farthest Neighbour down to
// Colleague, unless it would itself violate the bubble invariant as a
// Colleague, in which case it is dropped entirely.
func (n *Node) demoteOrRemoveNeighbour(e protocol.NodeDbEntry) {
	if n.bubbleOverlaps(e.Info, e.NodeID()) {
		n.store.Remove(e.NodeID()) //nolint:errcheck
		return
	}
	e.RelationType = protocol.RelationColleague
	n.store.Update(e, true) //nolint:errcheck
}

// safeStoreNode stores info locally as relation/role if it is not Self,
// not already known, has a valid coordinate, and (for Colleague) does not
// overlap an existing bubble. Grounded on InitializeWorld's "SafeStoreNode"
// (spec.md §4.5). Returns whether the entry was stored.
func (n *Node) safeStoreNode(info protocol.NodeInfo, role protocol.Role, relation protocol.RelationType) bool {
	if !info.Location.Valid() {
		return false
	}
	if info.Profile.NodeID == n.cfg.Self.Profile.NodeID {
		return false
	}
	if _, exists := n.store.Load(info.Profile.NodeID); exists {
		return false
	}
	if relation == protocol.RelationColleague && n.bubbleOverlaps(info, "") {
		return false
	}
	entry := protocol.NodeDbEntry{
		Info:          info,
		Role:          role,
		RelationType:  relation,
		ExpiresAtUnix: n.newExpiry(),
	}
	return n.store.Store(entry, true) == nil
}

// storeInitiatorResult records the counterpart of a successful
// initiator-side handshake, upgrading an existing Colleague entry to
// Neighbour but never downgrading (invariant 3: the more specific relation
// type wins).
func (n *Node) storeInitiatorResult(counterpart protocol.NodeInfo, relation protocol.RelationType) {
	entry := protocol.NodeDbEntry{
		Info:          counterpart,
		Role:          protocol.RoleInitiator,
		RelationType:  relation,
		ExpiresAtUnix: n.newExpiry(),
	}
	existing, exists := n.store.Load(counterpart.Profile.NodeID)
	if !exists {
		n.store.Store(entry, true) //nolint:errcheck
		return
	}
	if existing.RelationType == protocol.RelationNeighbour {
		entry.RelationType = protocol.RelationNeighbour
	}
	n.store.Update(entry, true) //nolint:errcheck
}

// InitiateAcceptColleague drives the initiator side of a Colleague
// handshake against peer.
func (n *Node) InitiateAcceptColleague(peer RemotePeer) (bool, error) {
	counterpart, ok, err := peer.AcceptColleague(n.cfg.Self)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	n.storeInitiatorResult(counterpart, protocol.RelationColleague)
	return true, nil
}

// InitiateRenewColleague drives the initiator side of a Colleague renewal
// against peer.
func (n *Node) InitiateRenewColleague(peer RemotePeer) (bool, error) {
	counterpart, ok, err := peer.RenewColleague(n.cfg.Self)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	n.storeInitiatorResult(counterpart, protocol.RelationColleague)
	return true, nil
}

// InitiateAcceptNeighbour drives the initiator side of a Neighbour
// handshake against peer.
func (n *Node) InitiateAcceptNeighbour(peer RemotePeer) (bool, error) {
	counterpart, ok, err := peer.AcceptNeighbour(n.cfg.Self)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	n.storeInitiatorResult(counterpart, protocol.RelationNeighbour)
	return true, nil
}

// InitiateRenewNeighbour drives the initiator side of a Neighbour renewal
// against peer.
func (n *Node) InitiateRenewNeighbour(peer RemotePeer) (bool, error) {
	counterpart, ok, err := peer.RenewNeighbour(n.cfg.Self)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	n.storeInitiatorResult(counterpart, protocol.RelationNeighbour)
	return true, nil
}
