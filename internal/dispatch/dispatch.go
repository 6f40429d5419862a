// Package dispatch implements the overlay's Dispatcher: per-session request
// routing to the Overlay Engine, and the keepalive transition into a
// notification-only session.
//
// Grounded on the teacher's internal/node.Node.handlePacket /
// internal/node.SessionManager.Handle switch-on-type dispatch, and on
// original_source/src/network.cpp's ProtoBufDispatchingTcpServer dispatch
// loop — its endMessageLoop flag is the direct ancestor of the keepalive
// transition here.
package dispatch

import (
	"github.com/rs/zerolog"

	"github.com/deuszex/iop-location-based-network/internal/changebus"
	"github.com/deuszex/iop-location-based-network/internal/geo"
	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/node"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/session"
)

// Engine is the single value a Dispatcher routes requests to. A *node.Node
// satisfies all three embedded capability interfaces (spec.md's Design
// Notes §9 "multiple-interface class").
type Engine interface {
	node.LocalService
	node.PeerService
	node.ClientService
}

// Dispatcher routes requests received on a Session to Engine and manages
// this session's change-notification listener, if any.
//
// Grounded on original_source/src/network.cpp's
// IncomingRequestDispatcher/ChangeListenerFactory split: the dispatcher
// holds a factory that lazily builds a change listener bound to a given
// session, rather than a listener value directly, so the keepalive
// transition is the only place a listener comes into existence.
type Dispatcher struct {
	engine          Engine
	bus             *changebus.Bus
	log             zerolog.Logger
	listenerFactory func(sess *session.Session) changebus.Listener
}

// New constructs a Dispatcher over engine, registering keepalive listeners
// on bus via the default notifyListener factory.
func New(engine Engine, bus *changebus.Bus, log zerolog.Logger) *Dispatcher {
	d := &Dispatcher{engine: engine, bus: bus, log: log}
	d.listenerFactory = func(sess *session.Session) changebus.Listener {
		return newNotifyListener(sess, bus, log)
	}
	return d
}

// Serve runs sess's request loop: receive, route, respond, repeat — until a
// read/write failure ends the session, or the keepalive transition (spec.md
// §4.4 rule 4) stops it from reading further requests.
func (d *Dispatcher) Serve(sess *session.Session) {
	for {
		req, err := sess.ReceiveRequest()
		if err != nil {
			d.log.Debug().Err(err).Str("session", sess.ID()).Msg("session ended")
			d.bus.Deregister(sess.ID())
			return
		}

		resp := d.handle(sess, req)
		if err := sess.SendResponse(resp); err != nil {
			d.log.Debug().Err(err).Str("session", sess.ID()).Msg("failed to send response")
			d.bus.Deregister(sess.ID())
			return
		}

		if sess.IsKeepalive() {
			// The session is now notification-only: no further requests are
			// read, and the listener registered above outlives this loop,
			// deregistering itself if a later notification fails to send.
			return
		}
	}
}

func (d *Dispatcher) handle(sess *session.Session, req protocol.Request) protocol.Response {
	resp, err := d.route(sess, req)
	if err != nil {
		return errorResponse(req.CorrelationID, err)
	}
	resp.CorrelationID = req.CorrelationID
	resp.Status = protocol.StatusOK
	return resp
}

func (d *Dispatcher) route(sess *session.Session, req protocol.Request) (protocol.Response, error) {
	switch req.Payload.Kind {
	case protocol.KindRegisterService:
		if req.Payload.RegisterService == nil {
			return protocol.Response{}, locneterrors.New(locneterrors.BadRequest, "registerService requires a service descriptor")
		}
		if err := d.engine.RegisterService(*req.Payload.RegisterService); err != nil {
			return protocol.Response{}, err
		}
		return protocol.Response{}, nil

	case protocol.KindDeregisterService:
		if err := d.engine.DeregisterService(req.Payload.DeregisterService); err != nil {
			return protocol.Response{}, err
		}
		return protocol.Response{}, nil

	case protocol.KindGetNeighbourNodes:
		nodes := d.engine.GetNeighbourNodes()
		resp := protocol.Response{Payload: protocol.ResponsePayload{Nodes: nodes}}
		if req.Payload.KeepAlive {
			d.bus.Register(sess.ID(), d.listenerFactory(sess))
			sess.EnterKeepalive()
		}
		return resp, nil

	case protocol.KindGetNodeInfo:
		info := d.engine.GetNodeInfo()
		return protocol.Response{Payload: protocol.ResponsePayload{NodeInfo: &info}}, nil

	case protocol.KindGetNodeCount:
		count := d.engine.GetNodeCount(req.Payload.Relation)
		return protocol.Response{Payload: protocol.ResponsePayload{NodeCount: &count}}, nil

	case protocol.KindGetRandomNodes:
		nodes := d.engine.GetRandomNodes(req.Payload.MaxNodeCount, req.Payload.Filter)
		return protocol.Response{Payload: protocol.ResponsePayload{Nodes: nodes}}, nil

	case protocol.KindGetClosestNodesByDistance:
		center, err := requireCenter(req.Payload)
		if err != nil {
			return protocol.Response{}, err
		}
		nodes := d.engine.GetClosestNodesByDistance(center, req.Payload.RadiusKm, req.Payload.MaxNodeCount, req.Payload.Filter)
		return protocol.Response{Payload: protocol.ResponsePayload{Nodes: nodes}}, nil

	case protocol.KindExploreNetworkNodesByDistance:
		center, err := requireCenter(req.Payload)
		if err != nil {
			return protocol.Response{}, err
		}
		nodes := d.engine.ExploreNetworkNodesByDistance(center, req.Payload.TargetNodeCount, req.Payload.MaxNodeHops)
		return protocol.Response{Payload: protocol.ResponsePayload{Nodes: nodes}}, nil

	case protocol.KindAcceptColleague:
		return acceptResponse(req.Payload, d.engine.AcceptColleague)
	case protocol.KindRenewColleague:
		return acceptResponse(req.Payload, d.engine.RenewColleague)
	case protocol.KindAcceptNeighbour:
		return acceptResponse(req.Payload, d.engine.AcceptNeighbour)
	case protocol.KindRenewNeighbour:
		return acceptResponse(req.Payload, d.engine.RenewNeighbour)

	default:
		return protocol.Response{}, locneterrors.Newf(locneterrors.BadRequest, "unsupported payload kind %q", req.Payload.Kind)
	}
}

func requireCenter(p protocol.RequestPayload) (geo.Location, error) {
	if p.Center == nil {
		return geo.Location{}, locneterrors.New(locneterrors.BadRequest, "request requires a center location")
	}
	return *p.Center, nil
}

// acceptResponse drives one of the four acceptance-handshake RPCs: the
// candidate NodeInfo must be present in the request; the handshake's own
// optional-NodeInfo result becomes an absent Payload.NodeInfo on refusal,
// never an error status (spec.md §4.5 decision matrix — refusal is not a
// failure).
func acceptResponse(p protocol.RequestPayload, rpc func(protocol.NodeInfo) (protocol.NodeInfo, bool)) (protocol.Response, error) {
	if p.Node == nil {
		return protocol.Response{}, locneterrors.New(locneterrors.BadRequest, "handshake requires a candidate node")
	}
	counterpart, ok := rpc(*p.Node)
	if !ok {
		return protocol.Response{}, nil
	}
	return protocol.Response{Payload: protocol.ResponsePayload{NodeInfo: &counterpart}}, nil
}

func errorResponse(correlationID uint32, err error) protocol.Response {
	return protocol.Response{
		CorrelationID: correlationID,
		Status:        protocol.StatusFromCode(locneterrors.CodeOf(err)),
		Details:       err.Error(),
	}
}
