package protocol

import (
	"bytes"
	"testing"

	"pgregory.net/rapid"
)

// TestTextRoundTrip checks that any text payload survives encode/decode.
func TestTextRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		text := rapid.String().Draw(t, "text")

		var buf bytes.Buffer
		if err := EncodePayload(&buf, &TextMessage{Text: text}); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := DecodePayload(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		msg, ok := decoded.(*TextMessage)
		if !ok {
			t.Fatalf("wrong variant: %T", decoded)
		}
		if msg.Text != text {
			t.Fatalf("text mismatch: got %q, want %q", msg.Text, text)
		}
	})
}

// TestServerMessageRoundTrip checks field-for-field round-trip of server
// messages, including empty names (system messages).
func TestServerMessageRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		original := &ServerMessage{
			Timestamp: rapid.Float32().Draw(t, "timestamp"),
			Name:      rapid.StringN(-1, 100, -1).Draw(t, "name"),
			Msg:       rapid.String().Draw(t, "msg"),
		}

		var buf bytes.Buffer
		if err := EncodePayload(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := DecodePayload(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		msg, ok := decoded.(*ServerMessage)
		if !ok {
			t.Fatalf("wrong variant: %T", decoded)
		}
		if msg.Timestamp != original.Timestamp || msg.Name != original.Name || msg.Msg != original.Msg {
			t.Fatalf("mismatch: got %+v, want %+v", msg, original)
		}
	})
}

// TestCommandRoundTrip checks round-trip across every command kind with
// arbitrary arguments, including the empty-string edge cases.
func TestCommandRoundTrip(t *testing.T) {
	kinds := []byte{
		CmdTell,
		CmdKick, CmdPromote, CmdDemote, CmdMute, CmdUnmute,
		CmdHelp, CmdQuit, CmdViewManagers, CmdList,
	}

	rapid.Check(t, func(t *rapid.T) {
		kind := rapid.SampledFrom(kinds).Draw(t, "kind")
		original := &Command{Kind: kind}
		if kind == CmdTell {
			original.Name = rapid.StringN(-1, 200, -1).Draw(t, "name")
			original.Msg = rapid.String().Draw(t, "msg")
		} else if IsOneArgCommand(kind) {
			original.Name = rapid.String().Draw(t, "name")
		}

		var buf bytes.Buffer
		if err := EncodePayload(&buf, original); err != nil {
			t.Fatalf("encode failed: %v", err)
		}

		decoded, err := DecodePayload(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		cmd, ok := decoded.(*Command)
		if !ok {
			t.Fatalf("wrong variant: %T", decoded)
		}
		if cmd.Kind != original.Kind || cmd.Name != original.Name || cmd.Msg != original.Msg {
			t.Fatalf("mismatch: got %+v, want %+v", cmd, original)
		}
	})
}

// TestAttachmentRoundTrip checks both attachment variants.
func TestAttachmentRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		send := &FileAttachSend{Filename: rapid.String().Draw(t, "filename")}

		var buf bytes.Buffer
		if err := EncodePayload(&buf, send); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		decoded, err := DecodePayload(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if got := decoded.(*FileAttachSend); got.Filename != send.Filename {
			t.Fatalf("filename mismatch: got %q, want %q", got.Filename, send.Filename)
		}

		recv := &FileAttachRecv{
			SenderName: rapid.StringN(-1, 100, -1).Draw(t, "sender"),
			Filename:   rapid.String().Draw(t, "recvFilename"),
		}
		idBytes := rapid.SliceOfN(rapid.Byte(), AttachmentIDSize, AttachmentIDSize).Draw(t, "id")
		copy(recv.ID[:], idBytes)

		buf.Reset()
		if err := EncodePayload(&buf, recv); err != nil {
			t.Fatalf("encode failed: %v", err)
		}
		decoded, err = DecodePayload(&buf)
		if err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		got := decoded.(*FileAttachRecv)
		if got.SenderName != recv.SenderName || got.ID != recv.ID || got.Filename != recv.Filename {
			t.Fatalf("mismatch: got %+v, want %+v", got, recv)
		}
	})
}
