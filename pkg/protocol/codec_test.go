package protocol

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodePayload(t *testing.T) {
	tests := []struct {
		name    string
		payload Payload
	}{
		{
			name:    "plain text",
			payload: &TextMessage{Text: "hello world"},
		},
		{
			name:    "empty text",
			payload: &TextMessage{Text: ""},
		},
		{
			name:    "server message",
			payload: &ServerMessage{Timestamp: 1234567.5, Name: "alice", Msg: "joined the chat."},
		},
		{
			name:    "system server message (empty name)",
			payload: &ServerMessage{Timestamp: 99.25, Name: "", Msg: "Error - Permission denied."},
		},
		{
			name:    "raw bytes",
			payload: &RawBytes{Data: []byte{0x00, 0xFF, 0x42, 0x01}},
		},
		{
			name:    "tell command",
			payload: &Command{Kind: CmdTell, Name: "bob", Msg: "psst"},
		},
		{
			name:    "kick command",
			payload: &Command{Kind: CmdKick, Name: "mallory"},
		},
		{
			name:    "help command",
			payload: &Command{Kind: CmdHelp},
		},
		{
			name:    "file attach send",
			payload: &FileAttachSend{Filename: "notes.txt"},
		},
		{
			name: "file attach recv",
			payload: &FileAttachRecv{
				SenderName: "alice",
				ID:         [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
				Filename:   "notes.txt",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := new(bytes.Buffer)
			require.NoError(t, EncodePayload(buf, tt.payload))

			decoded, err := DecodePayload(buf)
			require.NoError(t, err)
			assert.Equal(t, tt.payload, decoded)
			assert.Zero(t, buf.Len(), "decode must consume the whole frame")
		})
	}
}

func TestEncodeNilPayloadIsQuit(t *testing.T) {
	buf := new(bytes.Buffer)
	require.NoError(t, EncodePayload(buf, nil))

	decoded, err := DecodePayload(buf)
	require.NoError(t, err)
	cmd, ok := decoded.(*Command)
	require.True(t, ok)
	assert.Equal(t, byte(CmdQuit), cmd.Kind)
	assert.Empty(t, cmd.Name)
	assert.Empty(t, cmd.Msg)
}

func TestDecodePayloadStreamEnd(t *testing.T) {
	t.Run("clean close before header", func(t *testing.T) {
		_, err := DecodePayload(bytes.NewReader(nil))
		assert.Equal(t, io.EOF, err)
	})

	t.Run("close mid-header", func(t *testing.T) {
		_, err := DecodePayload(bytes.NewReader([]byte{TypeMsg, 0x00, 0x00}))
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("close mid-payload", func(t *testing.T) {
		buf := new(bytes.Buffer)
		WriteUint8(buf, TypeMsg)
		WriteUint32(buf, 10)
		buf.WriteString("short")

		_, err := DecodePayload(buf)
		assert.Equal(t, io.ErrUnexpectedEOF, err)
	})

	t.Run("oversized frame", func(t *testing.T) {
		buf := new(bytes.Buffer)
		WriteUint8(buf, TypeMsg)
		WriteUint32(buf, MaxFrameSize+1)

		_, err := DecodePayload(buf)
		assert.Equal(t, ErrFrameTooLarge, err)
	})
}

func TestDecodeUnknownTypeConsumesFrame(t *testing.T) {
	buf := new(bytes.Buffer)
	// Reserved FILE_PART tag with a body, then a valid frame behind it.
	WriteUint8(buf, TypeFilePart)
	WriteUint32(buf, 4)
	buf.Write([]byte{1, 2, 3, 4})
	require.NoError(t, EncodePayload(buf, &TextMessage{Text: "after"}))

	_, err := DecodePayload(buf)
	assert.Equal(t, ErrUnknownType, err)

	// The stream must still be aligned on the next frame.
	decoded, err := DecodePayload(buf)
	require.NoError(t, err)
	assert.Equal(t, &TextMessage{Text: "after"}, decoded)
}

func TestEncodeToBytesRoundTrip(t *testing.T) {
	data, err := EncodeToBytes(&TextMessage{Text: "ping"})
	require.NoError(t, err)

	decoded, err := DecodeFromBytes(data)
	require.NoError(t, err)
	assert.Equal(t, &TextMessage{Text: "ping"}, decoded)
}
