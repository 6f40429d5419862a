// Package session implements the overlay's Session Layer: a framed,
// bidirectional byte-stream connection between two nodes, or between a node
// and a local client.
//
// Grounded on the teacher's internal/transport.TCPTransport dial/accept
// plumbing, narrowed from a fire-and-forget broadcast transport to one
// connection per Session with blocking send/receive and a stable ID, and
// on internal/protocol's frame/codec pair for the wire contract itself.
package session

import (
	"encoding/json"
	"net"
	"time"

	"github.com/deuszex/iop-location-based-network/internal/locneterrors"
	"github.com/deuszex/iop-location-based-network/internal/protocol"
)

// DefaultIOTimeout is the per-operation deadline for a normal (non-keepalive)
// session, per spec.md §5 "Cancellation and timeouts".
const DefaultIOTimeout = 10 * time.Second

// Session is a single framed connection. It is safe for one reader and one
// writer goroutine to use concurrently, but not for concurrent writers (the
// Dispatcher and any notification sink sharing a Session must serialize
// their own writes).
type Session struct {
	conn      net.Conn
	id        string
	keepalive bool
	timeout   time.Duration
}

// Dial opens a new outbound Session to addr.
func Dial(network, addr string) (*Session, error) {
	conn, err := net.Dial(network, addr)
	if err != nil {
		return nil, locneterrors.New(locneterrors.Connection, err.Error())
	}
	return newSession(conn), nil
}

// Accept wraps an inbound connection (from net.Listener.Accept) as a Session.
func Accept(conn net.Conn) *Session {
	return newSession(conn)
}

func newSession(conn net.Conn) *Session {
	return &Session{
		conn:    conn,
		id:      conn.RemoteAddr().String(),
		timeout: DefaultIOTimeout,
	}
}

// ID returns the stable "host:port" identifier of the remote endpoint.
func (s *Session) ID() string { return s.id }

// EnterKeepalive switches the session into the notification-only state
// (spec.md §4.4): any deadline already set is cleared and no further
// deadline is applied, since a keepalive session may sit idle indefinitely
// between change notifications.
func (s *Session) EnterKeepalive() {
	s.keepalive = true
	s.conn.SetDeadline(time.Time{}) //nolint:errcheck
}

// IsKeepalive reports whether the session has transitioned to
// notification-only.
func (s *Session) IsKeepalive() bool { return s.keepalive }

// SendMessage frames and writes an arbitrary JSON-serializable payload.
func (s *Session) SendMessage(v interface{}) error {
	body, err := json.Marshal(v)
	if err != nil {
		return locneterrors.New(locneterrors.Internal, err.Error())
	}
	if !s.keepalive {
		s.conn.SetWriteDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
	}
	return protocol.WriteFrame(s.conn, body)
}

// ReceiveMessage reads one frame and returns its raw body for the caller to
// decode with the appropriate codec function (DecodeRequest/DecodeResponse).
func (s *Session) ReceiveMessage() ([]byte, error) {
	if !s.keepalive {
		s.conn.SetReadDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
	}
	return protocol.ReadFrame(s.conn)
}

// SendRequest frames and writes req.
func (s *Session) SendRequest(req protocol.Request) error {
	body, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	if !s.keepalive {
		s.conn.SetWriteDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
	}
	return protocol.WriteFrame(s.conn, body)
}

// ReceiveRequest reads and decodes one request frame.
func (s *Session) ReceiveRequest() (protocol.Request, error) {
	body, err := s.ReceiveMessage()
	if err != nil {
		return protocol.Request{}, err
	}
	return protocol.DecodeRequest(body)
}

// SendResponse frames and writes resp.
func (s *Session) SendResponse(resp protocol.Response) error {
	body, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	if !s.keepalive {
		s.conn.SetWriteDeadline(time.Now().Add(s.timeout)) //nolint:errcheck
	}
	return protocol.WriteFrame(s.conn, body)
}

// ReceiveResponse reads and decodes one response frame.
func (s *Session) ReceiveResponse() (protocol.Response, error) {
	body, err := s.ReceiveMessage()
	if err != nil {
		return protocol.Response{}, err
	}
	return protocol.DecodeResponse(body)
}

// Close tears down the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
