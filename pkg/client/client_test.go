package client

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/secure"
)

// scriptServer runs f against the server end of an in-memory connection and
// returns the client end.
func scriptServer(t *testing.T, f func(conn net.Conn)) net.Conn {
	t.Helper()
	clientEnd, serverEnd := net.Pipe()
	go func() {
		defer serverEnd.Close()
		f(serverEnd)
	}()
	return clientEnd
}

func TestHandshakeSendsNameAndKey(t *testing.T) {
	identity, err := secure.GenerateIdentity()
	require.NoError(t, err)

	sessionKey, err := secure.NewSessionKey()
	require.NoError(t, err)

	done := make(chan struct{})
	conn := scriptServer(t, func(conn net.Conn) {
		defer close(done)

		p, err := protocol.DecodePayload(conn)
		require.NoError(t, err)
		name := p.(*protocol.TextMessage)
		assert.Equal(t, "alice", name.Text)

		p, err = protocol.DecodePayload(conn)
		require.NoError(t, err)
		pub, err := secure.ParsePublicKey([]byte(p.(*protocol.TextMessage).Text))
		require.NoError(t, err)
		assert.True(t, identity.PublicKey.Equal(pub))

		wrapped, err := secure.WrapSessionKey(pub, sessionKey)
		require.NoError(t, err)
		require.NoError(t, protocol.EncodePayload(conn, &protocol.RawBytes{Data: wrapped}))

		// One encrypted message each way proves the shared key works.
		require.NoError(t, secure.WrapTo(conn, sessionKey, protocol.NewServerMessage("welcome")))

		p, err = secure.Unwrap(sessionKey, conn)
		require.NoError(t, err)
		assert.Equal(t, "hello", p.(*protocol.TextMessage).Text)
	})

	sess, err := NewSession(conn, "alice", identity)
	require.NoError(t, err)
	defer sess.Close()
	assert.Equal(t, "alice", sess.Name())

	payload, err := sess.Receive()
	require.NoError(t, err)
	assert.Equal(t, "welcome", payload.(*protocol.ServerMessage).Msg)

	require.NoError(t, sess.SendText("hello"))
	<-done
}

func TestHandshakeRejection(t *testing.T) {
	identity, err := secure.GenerateIdentity()
	require.NoError(t, err)

	conn := scriptServer(t, func(conn net.Conn) {
		protocol.DecodePayload(conn)
		protocol.DecodePayload(conn)
		protocol.EncodePayload(conn, protocol.NewServerMessage("Connection Refused: Name is already taken."))
	})

	_, err = NewSession(conn, "alice", identity)
	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "Connection Refused: Name is already taken.", rejection.Reason)
}

func TestReceiveSkipsUnauthenticatedMessages(t *testing.T) {
	identity, err := secure.GenerateIdentity()
	require.NoError(t, err)

	sessionKey, err := secure.NewSessionKey()
	require.NoError(t, err)
	wrongKey, err := secure.NewSessionKey()
	require.NoError(t, err)

	conn := scriptServer(t, func(conn net.Conn) {
		protocol.DecodePayload(conn)
		p, err := protocol.DecodePayload(conn)
		require.NoError(t, err)
		pub, err := secure.ParsePublicKey([]byte(p.(*protocol.TextMessage).Text))
		require.NoError(t, err)

		wrapped, err := secure.WrapSessionKey(pub, sessionKey)
		require.NoError(t, err)
		require.NoError(t, protocol.EncodePayload(conn, &protocol.RawBytes{Data: wrapped}))

		// A message under the wrong key is dropped silently...
		require.NoError(t, secure.WrapTo(conn, wrongKey, protocol.NewServerMessage("garbled")))
		// ...and the next authentic one comes through.
		require.NoError(t, secure.WrapTo(conn, sessionKey, protocol.NewServerMessage("readable")))
	})

	sess, err := NewSession(conn, "alice", identity)
	require.NoError(t, err)
	defer sess.Close()

	payload, err := sess.Receive()
	require.NoError(t, err)
	assert.Equal(t, "readable", payload.(*protocol.ServerMessage).Msg)
}
