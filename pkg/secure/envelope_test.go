package secure

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/ReemKish/chat-program/pkg/protocol"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := NewSessionKey()
	require.NoError(t, err)
	require.Len(t, key, KeySize)
	return key
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	key := testKey(t)

	payloads := []protocol.Payload{
		&protocol.TextMessage{Text: "hello"},
		&protocol.TextMessage{Text: ""},
		&protocol.ServerMessage{Timestamp: 42.5, Name: "alice", Msg: "joined the chat."},
		&protocol.Command{Kind: protocol.CmdTell, Name: "bob", Msg: "secret"},
		&protocol.Command{Kind: protocol.CmdQuit},
		&protocol.RawBytes{Data: []byte{0xDE, 0xAD, 0xBE, 0xEF}},
	}

	for _, p := range payloads {
		env, err := Wrap(key, p)
		require.NoError(t, err)

		decoded, err := Unwrap(key, bytes.NewReader(env))
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
	}
}

func TestEnvelopeLayout(t *testing.T) {
	key := testKey(t)

	env, err := Wrap(key, &protocol.TextMessage{Text: "x"})
	require.NoError(t, err)

	// [total u32][nonce 16][tag 16][ciphertext]
	total, err := protocol.ReadUint32(bytes.NewReader(env[:4]))
	require.NoError(t, err)
	assert.Equal(t, int(total), len(env)-4)
	assert.GreaterOrEqual(t, int(total), NonceSize+TagSize)
}

func TestNonceFreshness(t *testing.T) {
	key := testKey(t)

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		env, err := Wrap(key, &protocol.TextMessage{Text: "same plaintext"})
		require.NoError(t, err)
		nonce := string(env[4 : 4+NonceSize])
		assert.False(t, seen[nonce], "nonce reused")
		seen[nonce] = true
	}
}

// TestTamperRejection flips a single bit anywhere in the nonce, tag or
// ciphertext and requires Unwrap to fail authentication rather than return a
// wrong payload.
func TestTamperRejection(t *testing.T) {
	key := testKey(t)

	rapid.Check(t, func(t *rapid.T) {
		text := rapid.StringN(1, 200, -1).Draw(t, "text")
		env, err := Wrap(key, &protocol.TextMessage{Text: text})
		if err != nil {
			t.Fatalf("wrap failed: %v", err)
		}

		// Never flip the length prefix; that is framing, not authenticity.
		pos := rapid.IntRange(4, len(env)-1).Draw(t, "pos")
		bit := rapid.IntRange(0, 7).Draw(t, "bit")
		env[pos] ^= 1 << bit

		_, err = Unwrap(key, bytes.NewReader(env))
		if err != ErrAuthFailed {
			t.Fatalf("tampered envelope yielded %v, want ErrAuthFailed", err)
		}
	})
}

func TestUnwrapWrongKey(t *testing.T) {
	keyA := testKey(t)
	keyB := testKey(t)

	env, err := Wrap(keyA, &protocol.TextMessage{Text: "for A only"})
	require.NoError(t, err)

	_, err = Unwrap(keyB, bytes.NewReader(env))
	assert.Equal(t, ErrAuthFailed, err)
}

func TestUnwrapStreamEnd(t *testing.T) {
	key := testKey(t)

	t.Run("clean close", func(t *testing.T) {
		_, err := Unwrap(key, bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("close mid-envelope", func(t *testing.T) {
		env, err := Wrap(key, &protocol.TextMessage{Text: "truncated"})
		require.NoError(t, err)

		_, err = Unwrap(key, bytes.NewReader(env[:len(env)-3]))
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("undersized length", func(t *testing.T) {
		buf := new(bytes.Buffer)
		protocol.WriteUint32(buf, NonceSize+TagSize-1)
		_, err := Unwrap(key, buf)
		assert.Equal(t, ErrShortEnvelope, err)
	})
}

func TestUnwrapLeavesStreamAligned(t *testing.T) {
	key := testKey(t)

	good, err := Wrap(key, &protocol.TextMessage{Text: "second"})
	require.NoError(t, err)
	bad, err := Wrap(key, &protocol.TextMessage{Text: "first"})
	require.NoError(t, err)
	bad[len(bad)-1] ^= 0x01

	stream := bytes.NewReader(append(bad, good...))

	_, err = Unwrap(key, stream)
	assert.Equal(t, ErrAuthFailed, err)

	decoded, err := Unwrap(key, stream)
	require.NoError(t, err)
	assert.Equal(t, &protocol.TextMessage{Text: "second"}, decoded)
}

func TestWrapInvalidKey(t *testing.T) {
	_, err := Wrap([]byte("short"), &protocol.TextMessage{Text: "x"})
	assert.Equal(t, ErrInvalidKeySize, err)
}
