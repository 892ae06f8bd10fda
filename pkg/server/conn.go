package server

import (
	"errors"
	"io"
	"net"
	"sync"

	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/secure"
)

// errNothingPending is returned by Poll when the member has no message
// waiting this tick.
var errNothingPending = errors.New("no message pending")

type inboxItem struct {
	payload protocol.Payload
	err     error
}

// SecureConn wraps a member's net.Conn with the session-key envelope and
// automatic write synchronization, so request handlers and broadcast senders
// cannot interleave envelope bytes on the wire.
//
// A dedicated reader goroutine drains the connection into a buffered inbox;
// the control loop polls the inbox once per member per tick and never blocks
// on a socket.
type SecureConn struct {
	conn net.Conn
	key  []byte
	mu   sync.Mutex // Protects writes to conn

	inbox     chan inboxItem
	done      chan struct{}
	closeOnce sync.Once

	// authFails counts consecutive authentication failures. Owned by the
	// control loop.
	authFails int
}

// NewSecureConn wraps an already-admitted connection and starts its reader.
func NewSecureConn(conn net.Conn, key []byte) *SecureConn {
	sc := &SecureConn{
		conn:  conn,
		key:   key,
		inbox: make(chan inboxItem, 64),
		done:  make(chan struct{}),
	}
	go sc.readLoop()
	return sc
}

// readLoop drains envelopes off the connection into the inbox. Recoverable
// per-message failures (authentication, unknown payload type) are forwarded
// as items so the control loop can count them; anything else ends the
// session and closes the inbox. Inbox sends race against Close so a member
// removed with a full inbox cannot strand the reader.
func (sc *SecureConn) readLoop() {
	defer close(sc.inbox)
	for {
		payload, err := secure.Unwrap(sc.key, sc.conn)
		if err != nil {
			if errors.Is(err, secure.ErrAuthFailed) ||
				errors.Is(err, protocol.ErrUnknownType) ||
				errors.Is(err, protocol.ErrShortPayload) {
				if !sc.deliver(inboxItem{err: err}) {
					return
				}
				continue
			}
			return
		}
		if !sc.deliver(inboxItem{payload: payload}) {
			return
		}
	}
}

// deliver queues one item, giving up once the connection is closed.
func (sc *SecureConn) deliver(item inboxItem) bool {
	select {
	case sc.inbox <- item:
		return true
	case <-sc.done:
		return false
	}
}

// Poll returns the next received payload without blocking. It returns
// errNothingPending when the inbox is empty, io.EOF once the connection is
// gone, and the per-message error (e.g. secure.ErrAuthFailed) for messages
// that could not be decoded.
func (sc *SecureConn) Poll() (protocol.Payload, error) {
	select {
	case item, ok := <-sc.inbox:
		if !ok {
			return nil, io.EOF
		}
		return item.payload, item.err
	default:
		return nil, errNothingPending
	}
}

// Send seals the payload under the session key and writes the envelope with
// automatic write synchronization. This is the ONLY way to write to an
// admitted member - the raw conn is private.
func (sc *SecureConn) Send(p protocol.Payload) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return secure.WrapTo(sc.conn, sc.key, p)
}

// Close releases the reader and closes the underlying connection
func (sc *SecureConn) Close() error {
	sc.closeOnce.Do(func() { close(sc.done) })
	return sc.conn.Close()
}

// RemoteAddr returns the remote network address
func (sc *SecureConn) RemoteAddr() net.Addr {
	return sc.conn.RemoteAddr()
}
