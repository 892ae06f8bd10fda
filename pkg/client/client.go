// Package client implements the chat client session: the plaintext admission
// handshake, the encrypted message stream, and the slash-command parser.
package client

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/secure"
)

// RejectionError reports that the server refused admission, carrying the
// server's refusal message.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return e.Reason
}

// Session is an admitted, encrypted connection to the chat server.
// Send and Receive may be used from different goroutines; concurrent Sends
// are serialized.
type Session struct {
	conn net.Conn
	key  []byte
	mu   sync.Mutex // Protects writes to conn

	name string
}

// Dial connects to the server, runs the admission handshake under the given
// name and identity, and unwraps the session key. A refusal by the server is
// returned as *RejectionError.
func Dial(addr, name string, identity *rsa.PrivateKey) (*Session, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	sess, err := handshake(conn, name, identity)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sess, nil
}

// NewSession runs the admission handshake over an already-established
// connection (e.g. a websocket bridge).
func NewSession(conn net.Conn, name string, identity *rsa.PrivateKey) (*Session, error) {
	sess, err := handshake(conn, name, identity)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return sess, nil
}

func handshake(conn net.Conn, name string, identity *rsa.PrivateKey) (*Session, error) {
	pemBytes, err := secure.MarshalPublicKey(&identity.PublicKey)
	if err != nil {
		return nil, err
	}

	// Name and public key travel in the clear; everything after the key
	// exchange is enveloped.
	if err := protocol.EncodePayload(conn, &protocol.TextMessage{Text: name}); err != nil {
		return nil, fmt.Errorf("failed to send name: %w", err)
	}
	if err := protocol.EncodePayload(conn, &protocol.TextMessage{Text: string(pemBytes)}); err != nil {
		return nil, fmt.Errorf("failed to send public key: %w", err)
	}

	reply, err := protocol.DecodePayload(conn)
	if err != nil {
		return nil, fmt.Errorf("handshake failed: %w", err)
	}

	switch p := reply.(type) {
	case *protocol.ServerMessage:
		return nil, &RejectionError{Reason: p.Msg}
	case *protocol.RawBytes:
		key, err := secure.UnwrapSessionKey(identity, p.Data)
		if err != nil {
			return nil, fmt.Errorf("failed to unwrap session key: %w", err)
		}
		return &Session{conn: conn, key: key, name: name}, nil
	default:
		return nil, fmt.Errorf("unexpected handshake reply 0x%02X", reply.TypeTag())
	}
}

// Name returns the name the session was admitted under.
func (s *Session) Name() string {
	return s.name
}

// Send seals the payload under the session key and writes it.
func (s *Session) Send(p protocol.Payload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return secure.WrapTo(s.conn, s.key, p)
}

// SendText sends a plain chat message.
func (s *Session) SendText(text string) error {
	return s.Send(&protocol.TextMessage{Text: text})
}

// Receive blocks until the next payload arrives. Messages that fail
// authentication or carry an unknown type are skipped; io.EOF marks the end
// of the session.
func (s *Session) Receive() (protocol.Payload, error) {
	for {
		payload, err := secure.Unwrap(s.key, s.conn)
		if err != nil {
			if errors.Is(err, secure.ErrAuthFailed) ||
				errors.Is(err, protocol.ErrUnknownType) ||
				errors.Is(err, protocol.ErrShortPayload) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, io.EOF
			}
			return nil, err
		}
		return payload, nil
	}
}

// Quit announces departure to the server. The connection stays open so the
// caller can drain remaining messages before Close.
func (s *Session) Quit() error {
	return s.Send(&protocol.Command{Kind: protocol.CmdQuit})
}

// Close closes the underlying connection.
func (s *Session) Close() error {
	return s.conn.Close()
}
