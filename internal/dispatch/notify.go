package dispatch

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/deuszex/iop-location-based-network/internal/changebus"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
	"github.com/deuszex/iop-location-based-network/internal/session"
)

// notifyListener is a changebus.Listener that pushes neighbourhood-change
// events down a keepalive session as NeighbourhoodChanged requests
// (spec.md §8 scenario 3). Writes are serialized: the Change Bus may invoke
// listener callbacks from whichever goroutine is mutating the Spatial Store,
// concurrently with other sessions' mutations. Once the underlying session
// is dead, the listener deregisters itself (spec.md §9: the session keeps
// the listener alive, not the other way around — a failed send is the
// listener's own signal to unsubscribe).
type notifyListener struct {
	mu   sync.Mutex
	sess *session.Session
	bus  *changebus.Bus
	log  zerolog.Logger
}

func newNotifyListener(sess *session.Session, bus *changebus.Bus, log zerolog.Logger) *notifyListener {
	return &notifyListener{sess: sess, bus: bus, log: log}
}

func (l *notifyListener) OnRegistered() {}

func (l *notifyListener) AddedNode(entry protocol.NodeDbEntry) {
	info := entry.Info
	l.send(protocol.NeighbourhoodChange{Added: &info})
}

func (l *notifyListener) UpdatedNode(entry protocol.NodeDbEntry) {
	info := entry.Info
	l.send(protocol.NeighbourhoodChange{Updated: &info})
}

func (l *notifyListener) RemovedNode(entry protocol.NodeDbEntry) {
	l.send(protocol.NeighbourhoodChange{RemovedID: entry.NodeID()})
}

func (l *notifyListener) send(change protocol.NeighbourhoodChange) {
	l.mu.Lock()
	defer l.mu.Unlock()

	req := protocol.Request{
		Payload: protocol.RequestPayload{
			Kind:    protocol.KindNeighbourhoodChanged,
			Changes: []protocol.NeighbourhoodChange{change},
		},
	}
	if err := l.sess.SendRequest(req); err != nil {
		l.log.Debug().Err(err).Str("session", l.sess.ID()).Msg("failed to deliver neighbourhood change notification")
		l.bus.Deregister(l.sess.ID())
	}
}
