package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// TestInitializeWorldSeedBootstrapSinglePeer implements spec.md §8 scenario
// 1: node A bootstraps from seed B, B has no further random nodes to offer,
// A ends up storing B as Colleague/Initiator.
func TestInitializeWorldSeedBootstrapSinglePeer(t *testing.T) {
	factory := newMapFactory()
	bInfo := candidateInfo("B", geo.Location{LatitudeDeg: 48.0, LongitudeDeg: 20.0})
	factory.peers["seed-b:9000"] = &fakePeer{info: bInfo, randomNodes: nil}

	a, store, _ := newTestNode(t, "A", geo.Location{LatitudeDeg: 47.5, LongitudeDeg: 19.0}, factory)
	a.cfg.Seeds = []string{"seed-b:9000"}

	ok := a.InitializeWorld()
	assert.True(t, ok)

	entry, found := store.Load("B")
	require.True(t, found)
	assert.Equal(t, protocol.RelationColleague, entry.RelationType)
	assert.Equal(t, protocol.RoleInitiator, entry.Role)
}

func TestInitializeWorldSkipsUnreachableSeeds(t *testing.T) {
	factory := newMapFactory()
	reachable := candidateInfo("reachable", geo.Location{LatitudeDeg: 1, LongitudeDeg: 1})
	factory.peers["seed-2:9000"] = &fakePeer{info: reachable}

	a, store, _ := newTestNode(t, "A", geo.Location{}, factory)
	a.cfg.Seeds = []string{"seed-1:9000", "seed-2:9000"}

	ok := a.InitializeWorld()
	assert.True(t, ok)

	_, found := store.Load("reachable")
	assert.True(t, found)
}

func TestInitializeWorldStopsAfterFirstSuccess(t *testing.T) {
	factory := newMapFactory()
	first := candidateInfo("first", geo.Location{LatitudeDeg: 1, LongitudeDeg: 1})
	second := candidateInfo("second", geo.Location{LatitudeDeg: 2, LongitudeDeg: 2})
	factory.peers["seed-1:9000"] = &fakePeer{info: first}
	factory.peers["seed-2:9000"] = &fakePeer{info: second}

	a, store, _ := newTestNode(t, "A", geo.Location{}, factory)
	a.cfg.Seeds = []string{"seed-1:9000", "seed-2:9000"}

	a.InitializeWorld()

	_, found := store.Load("second")
	assert.False(t, found)
}

func TestInitializeNeighbourhoodEstablishesMutualNeighbour(t *testing.T) {
	factory := newMapFactory()
	bAddr := "127.0.0.1:9100"
	bInfo := protocol.NodeInfo{
		Profile:  protocol.NodeProfile{NodeID: "B", Contact: protocol.NodeContact{Address: "127.0.0.1", NodePort: 9100}},
		Location: geo.Location{LatitudeDeg: 48.0, LongitudeDeg: 20.0},
	}
	factory.peers[bAddr] = &fakePeer{
		closestNodes: []protocol.NodeInfo{bInfo},
		acceptResult: bInfo,
		acceptOK:     true,
	}

	a, store, _ := newTestNode(t, "A", geo.Location{LatitudeDeg: 47.5, LongitudeDeg: 19.0}, factory)
	require.NoError(t, store.Store(protocol.NodeDbEntry{Info: bInfo, Role: protocol.RoleInitiator, RelationType: protocol.RelationColleague}, false))

	a.InitializeNeighbourhood()

	entry, found := store.Load("B")
	require.True(t, found)
	assert.Equal(t, protocol.RelationNeighbour, entry.RelationType)
}
