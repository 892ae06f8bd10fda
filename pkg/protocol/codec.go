package protocol

import (
	"bytes"
	"io"
)

// EncodePayload writes a complete frame (type + length + payload body) to w.
// A nil payload encodes as a zero-argument QUIT command: a vanished peer is
// treated as an implicit quit.
func EncodePayload(w io.Writer, p Payload) error {
	if p == nil {
		p = &Command{Kind: CmdQuit}
	}

	body, err := p.Encode()
	if err != nil {
		return err
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	if err := WriteUint8(w, p.TypeTag()); err != nil {
		return err
	}
	if err := WriteUint32(w, uint32(len(body))); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}

	// Flush if the writer supports it (e.g., *bufio.Writer)
	type flusher interface {
		Flush() error
	}
	if fl, ok := w.(flusher); ok {
		return fl.Flush()
	}

	return nil
}

// DecodePayload reads one complete frame from r and returns the decoded
// payload variant.
//
// A stream that closes cleanly before the 5-byte header completes yields
// io.EOF ("peer disconnected"); a stream that closes mid-frame yields
// io.ErrUnexpectedEOF. The payload read blocks until Length bytes arrive.
// An unrecognized type tag consumes the frame and returns ErrUnknownType so
// callers can skip it and keep reading the stream.
func DecodePayload(r io.Reader) (Payload, error) {
	tag, err := ReadUint8(r)
	if err != nil {
		return nil, err
	}

	length, err := ReadUint32(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	p := payloadForTag(tag)
	if p == nil {
		return nil, ErrUnknownType
	}
	if err := p.Decode(body); err != nil {
		return nil, err
	}
	return p, nil
}

// payloadForTag returns an empty payload variant for the tag, or nil if the
// tag is unrecognized. The TELL equality test runs before the one-argument
// mask: TELL's bit pattern must never fall through to a broader class.
func payloadForTag(tag byte) Payload {
	switch tag {
	case TypeMsg:
		return &TextMessage{}
	case TypeServerMsg:
		return &ServerMessage{}
	case TypeBytes:
		return &RawBytes{}
	case TypeFileAttachSend:
		return &FileAttachSend{}
	case TypeFileAttachRecv:
		return &FileAttachRecv{}
	}

	switch {
	case tag == CmdTell:
		return &Command{Kind: tag}
	case IsNoArgCommand(tag):
		return &Command{Kind: tag}
	case IsOneArgCommand(tag):
		return &Command{Kind: tag}
	}

	return nil
}

// EncodeToBytes is a helper that encodes a full frame to a byte slice.
func EncodeToBytes(p Payload) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := EncodePayload(buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeFromBytes is a helper that decodes a full frame from a byte slice.
func DecodeFromBytes(data []byte) (Payload, error) {
	return DecodePayload(bytes.NewReader(data))
}
