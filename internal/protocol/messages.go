package protocol

import "github.com/deuszex/iop-location-based-network/internal/geo"

// Role records which side of an acceptance handshake originated the
// relationship.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleAcceptor  Role = "acceptor"
)

// RelationType classifies a stored entry.
type RelationType string

const (
	RelationColleague RelationType = "colleague"
	RelationNeighbour RelationType = "neighbour"
	RelationSelf      RelationType = "self"
)

// NeighbourFilter restricts node-selection queries by relation type.
type NeighbourFilter string

const (
	NeighboursIncluded NeighbourFilter = "included"
	NeighboursExcluded NeighbourFilter = "excluded"
)

// NodeContact is the network-reachable half of a node's identity: one IP
// address plus the two TCP ports the overlay listens on.
type NodeContact struct {
	Address    string `json:"address"`
	NodePort   int    `json:"nodePort"`   // node-to-node protocol port
	ClientPort int    `json:"clientPort"` // local client protocol port
}

// NodeProfile is a node's immutable identity tuple.
type NodeProfile struct {
	NodeID  string      `json:"nodeId"`
	Contact NodeContact `json:"contact"`
}

// NodeInfo is a node's identity plus its fixed geographic position.
type NodeInfo struct {
	Profile  NodeProfile  `json:"profile"`
	Location geo.Location `json:"location"`
}

// NodeDbEntry is everything the spatial store keeps about a known node.
type NodeDbEntry struct {
	Info         NodeInfo     `json:"info"`
	Role         Role         `json:"role"`
	RelationType RelationType `json:"relationType"`
	// ExpiresAtUnix is the wall-clock expiry instant, Unix seconds. Zero
	// means the entry never expires (always the case for RelationSelf, and
	// for any entry stored or updated with expires=false).
	ExpiresAtUnix int64 `json:"expiresAt,omitempty"`
}

func (e NodeDbEntry) NodeID() string { return e.Info.Profile.NodeID }

// ServiceInfo describes one locally-hosted service.
type ServiceInfo struct {
	ServiceType string `json:"serviceType"`
	Address     string `json:"address"`
	Port        int    `json:"port"`
	Payload     string `json:"payload,omitempty"`
}

// StatusCode is the wire-level outcome of a request.
type StatusCode string

const (
	StatusOK                    StatusCode = "STATUS_OK"
	StatusErrorBadRequest       StatusCode = "ERROR_BAD_REQUEST"
	StatusErrorBadResponse      StatusCode = "ERROR_BAD_RESPONSE"
	StatusErrorConnection       StatusCode = "ERROR_CONNECTION"
	StatusErrorProtocolViolation StatusCode = "ERROR_PROTOCOL_VIOLATION"
	StatusErrorInvalidState     StatusCode = "ERROR_INVALID_STATE"
	StatusErrorInternal         StatusCode = "ERROR_INTERNAL"
	StatusErrorUnsupported      StatusCode = "ERROR_UNSUPPORTED"
)

// NeighbourhoodChange is one entry of a NeighbourhoodChanged notification.
// Exactly one of Added, Updated, RemovedID is set — spec.md's Design Notes
// §9 requires the wire protocol to distinguish update from add, so unlike
// the original implementation (which wrote both to the same field) these
// are kept as separate fields.
type NeighbourhoodChange struct {
	Added     *NodeInfo `json:"added,omitempty"`
	Updated   *NodeInfo `json:"updated,omitempty"`
	RemovedID string    `json:"removedId,omitempty"`
}

// PayloadKind identifies which request/notification variant a message body
// carries.
type PayloadKind string

const (
	// LocalService payload kinds (§6).
	KindRegisterService     PayloadKind = "RegisterService"
	KindDeregisterService   PayloadKind = "DeregisterService"
	KindGetNeighbourNodes   PayloadKind = "GetNeighbourNodes"
	KindNeighbourhoodChanged PayloadKind = "NeighbourhoodChanged"

	// NodeToNode payload kinds (§6), also reused under Client.
	KindGetNodeInfo               PayloadKind = "GetNodeInfo"
	KindGetNodeCount              PayloadKind = "GetNodeCount"
	KindGetRandomNodes            PayloadKind = "GetRandomNodes"
	KindGetClosestNodesByDistance PayloadKind = "GetClosestNodesByDistance"
	KindAcceptColleague           PayloadKind = "AcceptColleague"
	KindRenewColleague            PayloadKind = "RenewColleague"
	KindAcceptNeighbour           PayloadKind = "AcceptNeighbour"
	KindRenewNeighbour            PayloadKind = "RenewNeighbour"

	// Client-only payload kind (§6).
	KindExploreNetworkNodesByDistance PayloadKind = "ExploreNetworkNodesByDistance"
)

// RequestPayload is the tagged union of every request/notification body the
// overlay exchanges. Kind selects the variant; only the fields that variant
// uses are populated.
type RequestPayload struct {
	Kind PayloadKind `json:"kind"`

	// LocalService
	RegisterService   *ServiceInfo `json:"registerService,omitempty"`
	DeregisterService string       `json:"deregisterService,omitempty"`
	KeepAlive         bool         `json:"keepAlive,omitempty"`
	Changes           []NeighbourhoodChange `json:"changes,omitempty"`

	// NodeToNode / Client
	MaxNodeCount int             `json:"maxNodeCount,omitempty"`
	Relation     *RelationType   `json:"relation,omitempty"`
	Filter       NeighbourFilter `json:"filter,omitempty"`
	Center       *geo.Location   `json:"center,omitempty"`
	RadiusKm     float64         `json:"radiusKm,omitempty"`
	Node         *NodeInfo       `json:"node,omitempty"`

	// Client-only
	TargetNodeCount int `json:"targetNodeCount,omitempty"`
	MaxNodeHops     int `json:"maxNodeHops,omitempty"`
}

// Request is the envelope carried inside a frame body for a request.
type Request struct {
	CorrelationID uint32         `json:"correlationId"`
	Version       [3]byte        `json:"version"`
	Payload       RequestPayload `json:"payload"`
}

// ResponsePayload is the tagged union of every successful response body.
type ResponsePayload struct {
	NodeInfo  *NodeInfo  `json:"nodeInfo,omitempty"`
	NodeCount *int       `json:"nodeCount,omitempty"`
	Nodes     []NodeInfo `json:"nodes,omitempty"`
}

// Response is the envelope carried inside a frame body for a response.
type Response struct {
	CorrelationID uint32          `json:"correlationId"`
	Status        StatusCode      `json:"status"`
	Details       string          `json:"details,omitempty"`
	Payload       ResponsePayload `json:"payload"`
}
