package protocol

import (
	"bytes"
	"io"
	"time"
)

// TextMessage (0x00) - plain chat text
type TextMessage struct {
	Text string
}

func (m *TextMessage) TypeTag() byte { return TypeMsg }

func (m *TextMessage) EncodeTo(w io.Writer) error {
	_, err := io.WriteString(w, m.Text)
	return err
}

func (m *TextMessage) Encode() ([]byte, error) {
	return []byte(m.Text), nil
}

func (m *TextMessage) Decode(payload []byte) error {
	m.Text = string(payload)
	return nil
}

// ServerMessage (0x01) - a named, timestamped message relayed by the server.
// An empty Name marks a system-originated message not attributable to any
// member; clients use that to pick a rendering category.
type ServerMessage struct {
	Timestamp float32 // seconds since the Unix epoch
	Name      string
	Msg       string
}

// NewServerMessage returns a system-originated message stamped with the
// current time.
func NewServerMessage(msg string) *ServerMessage {
	return &ServerMessage{
		Timestamp: float32(time.Now().UnixNano()) / float32(time.Second),
		Msg:       msg,
	}
}

// NewMemberMessage returns a message attributed to the named member, stamped
// with the current time.
func NewMemberMessage(name, msg string) *ServerMessage {
	m := NewServerMessage(msg)
	m.Name = name
	return m
}

func (m *ServerMessage) TypeTag() byte { return TypeServerMsg }

func (m *ServerMessage) EncodeTo(w io.Writer) error {
	if err := WriteFloat32(w, m.Timestamp); err != nil {
		return err
	}
	if err := WriteString(w, m.Name); err != nil {
		return err
	}
	_, err := io.WriteString(w, m.Msg)
	return err
}

func (m *ServerMessage) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *ServerMessage) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	ts, err := ReadFloat32(buf)
	if err != nil {
		return ErrShortPayload
	}
	name, err := ReadString(buf)
	if err != nil {
		return ErrShortPayload
	}
	rest := make([]byte, buf.Len())
	if _, err := io.ReadFull(buf, rest); err != nil && err != io.EOF {
		return err
	}

	m.Timestamp = ts
	m.Name = name
	m.Msg = string(rest)
	return nil
}

// Time converts the wire timestamp to a time.Time.
func (m *ServerMessage) Time() time.Time {
	return time.Unix(0, int64(float64(m.Timestamp)*float64(time.Second)))
}

// RawBytes (0x02) - opaque blob, used for file transfer and for the wrapped
// session key during admission.
type RawBytes struct {
	Data []byte
}

func (m *RawBytes) TypeTag() byte { return TypeBytes }

func (m *RawBytes) EncodeTo(w io.Writer) error {
	_, err := w.Write(m.Data)
	return err
}

func (m *RawBytes) Encode() ([]byte, error) {
	return m.Data, nil
}

func (m *RawBytes) Decode(payload []byte) error {
	m.Data = append([]byte(nil), payload...)
	return nil
}

// Command (0x80-0xFF) - a chat command. The encoding depends on Kind:
// TELL packs Name with a uint16 length prefix and Msg as the remainder,
// one-argument commands pack Name as the entire payload, and zero-argument
// commands have an empty payload.
type Command struct {
	Kind byte
	Name string
	Msg  string
}

func (m *Command) TypeTag() byte { return m.Kind }

func (m *Command) EncodeTo(w io.Writer) error {
	switch {
	case m.Kind == CmdTell:
		if err := WriteString(w, m.Name); err != nil {
			return err
		}
		_, err := io.WriteString(w, m.Msg)
		return err
	case IsNoArgCommand(m.Kind):
		return nil
	case IsOneArgCommand(m.Kind):
		_, err := io.WriteString(w, m.Name)
		return err
	default:
		return ErrUnknownType
	}
}

func (m *Command) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Command) Decode(payload []byte) error {
	m.Name = ""
	m.Msg = ""
	switch {
	case m.Kind == CmdTell:
		buf := bytes.NewReader(payload)
		name, err := ReadString(buf)
		if err != nil {
			return ErrShortPayload
		}
		rest := make([]byte, buf.Len())
		if _, err := io.ReadFull(buf, rest); err != nil && err != io.EOF {
			return err
		}
		m.Name = name
		m.Msg = string(rest)
		return nil
	case IsNoArgCommand(m.Kind):
		return nil
	case IsOneArgCommand(m.Kind):
		m.Name = string(payload)
		return nil
	default:
		return ErrUnknownType
	}
}

// FileAttachSend (0x04) - client announces an attachment upload; the payload
// is the filename verbatim. The attachment bytes follow as a RawBytes frame.
type FileAttachSend struct {
	Filename string
}

func (m *FileAttachSend) TypeTag() byte { return TypeFileAttachSend }

func (m *FileAttachSend) EncodeTo(w io.Writer) error {
	_, err := io.WriteString(w, m.Filename)
	return err
}

func (m *FileAttachSend) Encode() ([]byte, error) {
	return []byte(m.Filename), nil
}

func (m *FileAttachSend) Decode(payload []byte) error {
	m.Filename = string(payload)
	return nil
}

// AttachmentIDSize is the size of the opaque identifier the server mints per
// stored attachment.
const AttachmentIDSize = 16

// FileAttachRecv (0x05) - server notifies members of a new attachment.
// ID is a random 128-bit value naming the stored blob for later retrieval.
type FileAttachRecv struct {
	SenderName string
	ID         [AttachmentIDSize]byte
	Filename   string
}

func (m *FileAttachRecv) TypeTag() byte { return TypeFileAttachRecv }

func (m *FileAttachRecv) EncodeTo(w io.Writer) error {
	if err := WriteString(w, m.SenderName); err != nil {
		return err
	}
	if _, err := w.Write(m.ID[:]); err != nil {
		return err
	}
	_, err := io.WriteString(w, m.Filename)
	return err
}

func (m *FileAttachRecv) Encode() ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.EncodeTo(buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *FileAttachRecv) Decode(payload []byte) error {
	buf := bytes.NewReader(payload)
	sender, err := ReadString(buf)
	if err != nil {
		return ErrShortPayload
	}
	if _, err := io.ReadFull(buf, m.ID[:]); err != nil {
		return ErrShortPayload
	}
	rest := make([]byte, buf.Len())
	if _, err := io.ReadFull(buf, rest); err != nil && err != io.EOF {
		return err
	}

	m.SenderName = sender
	m.Filename = string(rest)
	return nil
}
