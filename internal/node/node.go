// Package node implements the overlay's Overlay Engine: the single value
// that realizes the local, client, and peer RPC surfaces, and owns
// acceptance policy, bootstrapping, renewal, and search.
//
// Grounded on the teacher's internal/node.Node shape — a Config struct of
// injected collaborators, a New/Start/Stop lifecycle, one goroutine per
// background concern — generalized from a broadcast-mixnet engine to a
// location-indexed overlay engine. Per spec.md's Design Notes §9, the God
// interface the teacher avoided by having only Send/RegisterName/Sessions is
// made explicit here as three narrow capability interfaces.
package node

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/randsrc"
	"github.com/deuszex/iop-location-based-network/internal/registry"
	"github.com/deuszex/iop-location-based-network/internal/spatial"
)

// LocalService is the RPC surface a local client (same host) may drive:
// service registration and neighbourhood observation. Grounded on
// ILocalServiceMethods in original_source/src/locnet.hpp.
type LocalService interface {
	RegisterService(info protocol.ServiceInfo) error
	DeregisterService(serviceType string) error
	GetNeighbourNodes() []protocol.NodeInfo
}

// PeerService is the RPC surface a remote overlay node may drive against
// this node. Grounded on INodeMethods in original_source/src/locnet.hpp.
type PeerService interface {
	GetNodeInfo() protocol.NodeInfo
	GetNodeCount(relation *protocol.RelationType) int
	GetRandomNodes(max int, filter protocol.NeighbourFilter) []protocol.NodeInfo
	GetClosestNodesByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) []protocol.NodeInfo
	AcceptColleague(candidate protocol.NodeInfo) (protocol.NodeInfo, bool)
	RenewColleague(candidate protocol.NodeInfo) (protocol.NodeInfo, bool)
	AcceptNeighbour(candidate protocol.NodeInfo) (protocol.NodeInfo, bool)
	RenewNeighbour(candidate protocol.NodeInfo) (protocol.NodeInfo, bool)
}

// ClientService is the RPC surface exposed to a local client that wants to
// search the network, including the multi-hop ExploreNetworkNodesByDistance
// that PeerService's GetClosestNodesByDistance deliberately does not offer.
// Grounded on IClientMethods in original_source/src/locnet.hpp.
type ClientService interface {
	GetNodeInfo() protocol.NodeInfo
	GetNodeCount(relation *protocol.RelationType) int
	GetRandomNodes(max int, filter protocol.NeighbourFilter) []protocol.NodeInfo
	GetClosestNodesByDistance(center geo.Location, radiusKm float64, max int, filter protocol.NeighbourFilter) []protocol.NodeInfo
	ExploreNetworkNodesByDistance(center geo.Location, targetCount, maxHops int) []protocol.NodeInfo
}

// Config configures a Node.
type Config struct {
	Store    *spatial.Store
	Registry *registry.Registry
	Proxies  ProxyFactory
	Rand     randsrc.Source
	Clock    clock.Clock
	Logger   zerolog.Logger

	// Self is this node's own identity and location, installed into Store
	// on Start.
	Self protocol.NodeInfo

	// NeighbourhoodTargetSize is N: the desired number of Neighbours.
	NeighbourhoodTargetSize int
	// BubbleMinRadiusKm is the minimum bubbleRadius when fewer than N
	// Neighbours exist yet.
	BubbleMinRadiusKm float64
	// RandomSampleMax bounds the node count requested from a peer by
	// bootstrap's GetRandomNodes and area discovery's
	// GetClosestNodesByDistance calls.
	RandomSampleMax int
	// MaxNodeHops bounds InitializeNeighbourhood's closest-node hopping.
	// ExploreNetworkNodesByDistance takes its own maxHops argument instead.
	MaxNodeHops int
	// MinNodeCountThreshold triggers EnsureMapFilled's re-bootstrap when the
	// total known node count falls below it.
	MinNodeCountThreshold int
	// Seeds are bootstrap endpoints ("host:port" NodeToNode addresses),
	// tried in order by InitializeWorld.
	Seeds []string
	// RelationTTL is how far into the future a Colleague/Neighbour entry's
	// ExpiresAtUnix is set on (re)acceptance.
	RelationTTL time.Duration
}

func (c *Config) setDefaults() {
	if c.NeighbourhoodTargetSize <= 0 {
		c.NeighbourhoodTargetSize = 8
	}
	if c.BubbleMinRadiusKm <= 0 {
		c.BubbleMinRadiusKm = 1.0
	}
	if c.RandomSampleMax <= 0 {
		c.RandomSampleMax = 10
	}
	if c.MaxNodeHops <= 0 {
		c.MaxNodeHops = 5
	}
	if c.MinNodeCountThreshold <= 0 {
		c.MinNodeCountThreshold = c.NeighbourhoodTargetSize
	}
	if c.Rand == nil {
		c.Rand = randsrc.New()
	}
	if c.Clock == nil {
		c.Clock = clock.New()
	}
	if c.RelationTTL <= 0 {
		c.RelationTTL = time.Hour
	}
}

// Node is the overlay engine for one local node.
type Node struct {
	cfg      Config
	store    *spatial.Store
	registry *registry.Registry
	proxies  ProxyFactory
	rand     randsrc.Source
	clock    clock.Clock
	log      zerolog.Logger
}

// New constructs a Node. The returned Node does not yet own a Self entry in
// Store; call Start to install it.
func New(cfg Config) (*Node, error) {
	if cfg.Store == nil {
		return nil, locneterrors.New(locneterrors.InvalidState, "node: Config.Store must not be nil")
	}
	if cfg.Proxies == nil {
		return nil, locneterrors.New(locneterrors.InvalidState, "node: Config.Proxies must not be nil")
	}
	if cfg.Self.Profile.NodeID == "" {
		return nil, locneterrors.New(locneterrors.InvalidState, "node: Config.Self must have a NodeId")
	}
	cfg.setDefaults()
	if cfg.Registry == nil {
		cfg.Registry = registry.New()
	}

	return &Node{
		cfg:      cfg,
		store:    cfg.Store,
		registry: cfg.Registry,
		proxies:  cfg.Proxies,
		rand:     cfg.Rand,
		clock:    cfg.Clock,
		log:      cfg.Logger,
	}, nil
}

// Start installs Self into the Spatial Store. Bootstrapping against seeds is
// a separate, explicit call (InitializeWorld/InitializeNeighbourhood) so
// callers can sequence it after Start returns.
func (n *Node) Start() error {
	return n.store.StoreSelf(n.cfg.Self)
}

// Self returns this node's own NodeInfo.
func (n *Node) Self() protocol.NodeInfo {
	return n.cfg.Self
}

var _ LocalService = (*Node)(nil)
var _ PeerService = (*Node)(nil)
var _ ClientService = (*Node)(nil)
