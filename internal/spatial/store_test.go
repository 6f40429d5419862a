package spatial

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deuszex/iop-location-based-network/internal/changebus"
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/randsrc"
)

func newTestStore(t *testing.T) (*Store, *clock.Mock) {
	t.Helper()
	dir := t.TempDir()
	mockClock := clock.NewMock()
	s, err := Open(filepath.Join(dir, "spatial.db"), changebus.New(), mockClock, randsrc.NewSeeded(1))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, mockClock
}

func remoteEntry(id string, loc geo.Location, relation protocol.RelationType) protocol.NodeDbEntry {
	return protocol.NodeDbEntry{
		Info: protocol.NodeInfo{
			Profile:  protocol.NodeProfile{NodeID: id},
			Location: loc,
		},
		Role:         protocol.RoleAcceptor,
		RelationType: relation,
	}
}

func TestStoreAndLoad(t *testing.T) {
	s, _ := newTestStore(t)
	e := remoteEntry("node-a", geo.Location{LatitudeDeg: 1, LongitudeDeg: 1}, protocol.RelationColleague)

	require.NoError(t, s.Store(e, false))

	got, ok := s.Load("node-a")
	require.True(t, ok)
	assert.Equal(t, e, got)
}

func TestStoreConflictingIDFails(t *testing.T) {
	s, _ := newTestStore(t)
	e := remoteEntry("node-a", geo.Location{}, protocol.RelationColleague)
	require.NoError(t, s.Store(e, false))

	err := s.Store(e, false)
	require.Error(t, err)
	assert.Equal(t, locneterrors.ConflictingID, locneterrors.CodeOf(err))
}

func TestUpdateUnknownIDFails(t *testing.T) {
	s, _ := newTestStore(t)
	e := remoteEntry("node-a", geo.Location{}, protocol.RelationColleague)

	err := s.Update(e, false)
	require.Error(t, err)
	assert.Equal(t, locneterrors.NotFound, locneterrors.CodeOf(err))
}

func TestRemoveUnknownIDFails(t *testing.T) {
	s, _ := newTestStore(t)
	err := s.Remove("missing")
	require.Error(t, err)
	assert.Equal(t, locneterrors.NotFound, locneterrors.CodeOf(err))
}

func TestStoreInvalidCoordinateFails(t *testing.T) {
	s, _ := newTestStore(t)
	e := remoteEntry("node-a", geo.Location{LatitudeDeg: 200}, protocol.RelationColleague)

	err := s.Store(e, false)
	require.Error(t, err)
	assert.Equal(t, locneterrors.InvalidCoordinate, locneterrors.CodeOf(err))
}

func TestGetClosestByDistanceOrdersAscendingWithIDTiebreak(t *testing.T) {
	s, _ := newTestStore(t)
	center := geo.Location{LatitudeDeg: 0, LongitudeDeg: 0}

	// b and c are equidistant from center; tie should break on NodeID.
	require.NoError(t, s.Store(remoteEntry("c", geo.Location{LatitudeDeg: 1, LongitudeDeg: 0}, protocol.RelationColleague), false))
	require.NoError(t, s.Store(remoteEntry("b", geo.Location{LatitudeDeg: -1, LongitudeDeg: 0}, protocol.RelationColleague), false))
	require.NoError(t, s.Store(remoteEntry("a", geo.Location{LatitudeDeg: 5, LongitudeDeg: 0}, protocol.RelationColleague), false))

	got := s.GetClosestByDistance(center, 10000, 10, protocol.NeighboursIncluded)
	require.Len(t, got, 3)
	assert.Equal(t, "b", got[0].NodeID())
	assert.Equal(t, "c", got[1].NodeID())
	assert.Equal(t, "a", got[2].NodeID())
}

func TestGetClosestByDistanceRespectsRadiusAndMax(t *testing.T) {
	s, _ := newTestStore(t)
	center := geo.Location{LatitudeDeg: 0, LongitudeDeg: 0}
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("n%d", i)
		require.NoError(t, s.Store(remoteEntry(id, geo.Location{LatitudeDeg: float64(i), LongitudeDeg: 0}, protocol.RelationColleague), false))
	}

	got := s.GetClosestByDistance(center, 250, 2, protocol.NeighboursIncluded)
	assert.LessOrEqual(t, len(got), 2)
	for _, e := range got {
		assert.LessOrEqual(t, geo.DistanceKm(center, e.Info.Location), 250.0)
	}
}

func TestGetClosestByDistanceExcludesNeighbours(t *testing.T) {
	s, _ := newTestStore(t)
	center := geo.Location{}
	require.NoError(t, s.Store(remoteEntry("nb", center, protocol.RelationNeighbour), false))
	require.NoError(t, s.Store(remoteEntry("col", center, protocol.RelationColleague), false))

	got := s.GetClosestByDistance(center, 1, 10, protocol.NeighboursExcluded)
	require.Len(t, got, 1)
	assert.Equal(t, "col", got[0].NodeID())
}

func TestGetNeighboursByDistanceSortedFromSelf(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.StoreSelf(protocol.NodeInfo{
		Profile:  protocol.NodeProfile{NodeID: "self"},
		Location: geo.Location{LatitudeDeg: 0, LongitudeDeg: 0},
	}))
	require.NoError(t, s.Store(remoteEntry("far", geo.Location{LatitudeDeg: 10, LongitudeDeg: 0}, protocol.RelationNeighbour), false))
	require.NoError(t, s.Store(remoteEntry("near", geo.Location{LatitudeDeg: 1, LongitudeDeg: 0}, protocol.RelationNeighbour), false))
	require.NoError(t, s.Store(remoteEntry("colleague", geo.Location{LatitudeDeg: 0.5, LongitudeDeg: 0}, protocol.RelationColleague), false))

	got := s.GetNeighboursByDistance()
	require.Len(t, got, 2)
	assert.Equal(t, "near", got[0].NodeID())
	assert.Equal(t, "far", got[1].NodeID())
}

func TestExpireOldNodesRemovesPastEntries(t *testing.T) {
	s, mockClock := newTestStore(t)
	mockClock.Set(time.Unix(1000, 0))

	expiring := remoteEntry("expiring", geo.Location{}, protocol.RelationNeighbour)
	expiring.ExpiresAtUnix = 1000 // already in the past relative to the clock set below
	require.NoError(t, s.Store(expiring, true))

	stillAlive := remoteEntry("alive", geo.Location{}, protocol.RelationColleague)
	stillAlive.ExpiresAtUnix = 5000
	require.NoError(t, s.Store(stillAlive, true))

	mockClock.Set(time.Unix(2000, 0))

	removed := s.ExpireOldNodes()
	require.Len(t, removed, 1)
	assert.Equal(t, "expiring", removed[0].NodeID())

	_, ok := s.Load("expiring")
	assert.False(t, ok)
	_, ok = s.Load("alive")
	assert.True(t, ok)
}

func TestExpireOldNodesPublishesRemovedForNeighboursOnly(t *testing.T) {
	bus := changebus.New()
	dir := t.TempDir()
	mockClock := clock.NewMock()
	mockClock.Set(time.Unix(1000, 0))
	s, err := Open(filepath.Join(dir, "spatial.db"), bus, mockClock, randsrc.NewSeeded(1))
	require.NoError(t, err)
	defer s.Close()

	l := &capturingListener{}
	bus.Register("sess", l)

	nb := remoteEntry("nb", geo.Location{}, protocol.RelationNeighbour)
	nb.ExpiresAtUnix = 500
	require.NoError(t, s.Store(nb, true))

	col := remoteEntry("col", geo.Location{}, protocol.RelationColleague)
	col.ExpiresAtUnix = 500
	require.NoError(t, s.Store(col, true))

	s.ExpireOldNodes()

	require.Len(t, l.removed, 1)
	assert.Equal(t, "nb", l.removed[0].NodeID())
}

func TestStorePublishesAddedForNeighboursOnly(t *testing.T) {
	bus := changebus.New()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "spatial.db"), bus, clock.NewMock(), randsrc.NewSeeded(1))
	require.NoError(t, err)
	defer s.Close()

	l := &capturingListener{}
	bus.Register("sess", l)

	require.NoError(t, s.Store(remoteEntry("nb", geo.Location{}, protocol.RelationNeighbour), false))
	require.NoError(t, s.Store(remoteEntry("col", geo.Location{}, protocol.RelationColleague), false))

	require.Len(t, l.added, 1)
	assert.Equal(t, "nb", l.added[0].NodeID())
}

func TestUpdatePublishesUpdatedForNeighboursOnly(t *testing.T) {
	bus := changebus.New()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "spatial.db"), bus, clock.NewMock(), randsrc.NewSeeded(1))
	require.NoError(t, err)
	defer s.Close()

	nb := remoteEntry("nb", geo.Location{}, protocol.RelationNeighbour)
	col := remoteEntry("col", geo.Location{}, protocol.RelationColleague)
	require.NoError(t, s.Store(nb, false))
	require.NoError(t, s.Store(col, false))

	l := &capturingListener{}
	bus.Register("sess", l)

	nb.Role = protocol.RoleInitiator
	col.Role = protocol.RoleInitiator
	require.NoError(t, s.Update(nb, false))
	require.NoError(t, s.Update(col, false))

	require.Len(t, l.updated, 1)
	assert.Equal(t, "nb", l.updated[0].NodeID())
}

func TestGetRandomRespectsMax(t *testing.T) {
	s, _ := newTestStore(t)
	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("n%d", i)
		require.NoError(t, s.Store(remoteEntry(id, geo.Location{}, protocol.RelationColleague), false))
	}

	got := s.GetRandom(3, protocol.NeighboursIncluded)
	assert.Len(t, got, 3)
}

func TestGetNodeCountByRelation(t *testing.T) {
	s, _ := newTestStore(t)
	require.NoError(t, s.Store(remoteEntry("nb", geo.Location{}, protocol.RelationNeighbour), false))
	require.NoError(t, s.Store(remoteEntry("col", geo.Location{}, protocol.RelationColleague), false))

	neighbour := protocol.RelationNeighbour
	assert.Equal(t, 1, s.GetNodeCount(&neighbour))
	assert.Equal(t, 2, s.GetNodeCount(nil))
}

type capturingListener struct {
	added   []protocol.NodeDbEntry
	updated []protocol.NodeDbEntry
	removed []protocol.NodeDbEntry
}

func (c *capturingListener) OnRegistered()                     {}
func (c *capturingListener) AddedNode(e protocol.NodeDbEntry)   { c.added = append(c.added, e) }
func (c *capturingListener) UpdatedNode(e protocol.NodeDbEntry) { c.updated = append(c.updated, e) }
func (c *capturingListener) RemovedNode(e protocol.NodeDbEntry) { c.removed = append(c.removed, e) }
