package node

import (
	"path/filepath"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/deuszex/iop-location-based-network/internal/changebus"
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/randsrc"
	"github.com/deuszex/iop-location-based-network/internal/spatial"
)

func newTestNode(t *testing.T, selfID string, loc geo.Location, proxies ProxyFactory) (*Node, *spatial.Store, *clock.Mock) {
	t.Helper()
	mockClock := clock.NewMock()
	store, err := spatial.Open(filepath.Join(t.TempDir(), "spatial.db"), changebus.New(), mockClock, randsrc.NewSeeded(7))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	self := protocol.NodeInfo{
		Profile: protocol.NodeProfile{
			NodeID:  selfID,
			Contact: protocol.NodeContact{Address: "127.0.0.1", NodePort: 9000, ClientPort: 9001},
		},
		Location: loc,
	}

	n, err := New(Config{
		Store:                   store,
		Proxies:                 proxies,
		Clock:                   mockClock,
		Rand:                    randsrc.NewSeeded(7),
		Self:                    self,
		NeighbourhoodTargetSize: 3,
		BubbleMinRadiusKm:       1.0,
		MaxNodeHops:             3,
	})
	require.NoError(t, err)
	require.NoError(t, n.Start())
	return n, store, mockClock
}

// fakePeer is a scriptable RemotePeer for exercising Node's initiator-side
// and search logic without a real socket.
type fakePeer struct {
	info           protocol.NodeInfo
	infoErr        error
	randomNodes    []protocol.NodeInfo
	randomErr      error
	closestNodes   []protocol.NodeInfo
	closestErr     error
	acceptResult   protocol.NodeInfo
	acceptOK       bool
	acceptErr      error
	renewResult    protocol.NodeInfo
	renewOK        bool
	renewErr       error
	closed         bool
}

func (p *fakePeer) GetNodeInfo() (protocol.NodeInfo, error) { return p.info, p.infoErr }
func (p *fakePeer) GetNodeCount() (int, error)              { return 0, nil }
func (p *fakePeer) GetRandomNodes(max int, filter protocol.NeighbourFilter) ([]protocol.NodeInfo, error) {
	return p.randomNodes, p.randomErr
}
func (p *fakePeer) GetClosestNodesByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) ([]protocol.NodeInfo, error) {
	return p.closestNodes, p.closestErr
}
func (p *fakePeer) ExploreNetworkNodesByDistance(center geo.Location, targetCount, maxHops int) ([]protocol.NodeInfo, error) {
	return nil, nil
}
func (p *fakePeer) AcceptColleague(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.acceptResult, p.acceptOK, p.acceptErr
}
func (p *fakePeer) RenewColleague(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.renewResult, p.renewOK, p.renewErr
}
func (p *fakePeer) AcceptNeighbour(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.acceptResult, p.acceptOK, p.acceptErr
}
func (p *fakePeer) RenewNeighbour(self protocol.NodeInfo) (protocol.NodeInfo, bool, error) {
	return p.renewResult, p.renewOK, p.renewErr
}
func (p *fakePeer) Close() error { p.closed = true; return nil }

// mapFactory dials by returning whatever *fakePeer is registered for an
// address, or an error if none is.
type mapFactory struct {
	peers map[string]*fakePeer
}

func newMapFactory() *mapFactory { return &mapFactory{peers: make(map[string]*fakePeer)} }

func (f *mapFactory) Connect(addr string) (RemotePeer, error) {
	p, ok := f.peers[addr]
	if !ok {
		return nil, errNoPeer
	}
	return p, nil
}

var errNoPeer = &noPeerError{}

type noPeerError struct{}

func (*noPeerError) Error() string { return "no fake peer registered for address" }
