// Package protocol implements CPP (Chat Program Protocol): a length-prefixed
// binary framing over a byte stream, plus the typed payload variants carried
// inside each frame.
//
// Wire format: [Type (1 byte)][Length (4 bytes, big-endian)][Payload (N bytes)]
package protocol

import (
	"errors"
	"io"
)

// MaxFrameSize is the maximum allowed payload size (1 MB)
const MaxFrameSize = 1024 * 1024

// Data type tags. Values above 0x7F are commands; see the mask constants.
const (
	TypeMsg            = 0x00 // plain UTF-8 text
	TypeServerMsg      = 0x01 // named + timestamped server message
	TypeBytes          = 0x02 // opaque blob (file transfer)
	TypeFilePart       = 0x03 // reserved
	TypeFileAttachSend = 0x04 // client announces an attachment upload
	TypeFileAttachRecv = 0x05 // server broadcasts a new attachment
)

// Command tags. Bit 7 marks a command; 0xA0 marks one-argument commands and
// 0xC0 marks zero-argument commands. TELL (0x80) is the sole two-argument
// command and must be matched by exact equality before the broader masks.
const (
	MaskCmd       = 0x80
	MaskCmdOneArg = 0xA0
	MaskCmdNoArgs = 0xC0

	CmdTell = 0x80

	CmdKick    = 0xA0
	CmdPromote = 0xA1
	CmdDemote  = 0xA2
	CmdMute    = 0xA3
	CmdUnmute  = 0xA4

	CmdHelp         = 0xC0
	CmdQuit         = 0xC1
	CmdViewManagers = 0xC2
	CmdList         = 0xC3
)

var (
	ErrFrameTooLarge = errors.New("frame exceeds maximum size (1 MB)")
	ErrUnknownType   = errors.New("unknown payload type")
	ErrShortPayload  = errors.New("payload too short for declared fields")
)

// Payload is the tagged union of everything a CPP frame can carry.
// Each variant reports its own type tag and knows how to serialize the
// [Payload] part of a frame.
type Payload interface {
	// TypeTag returns the 1-byte type written into the frame header.
	TypeTag() byte
	// EncodeTo serializes the payload body directly to a writer.
	EncodeTo(w io.Writer) error
	// Encode serializes the payload body to bytes (convenience wrapper).
	Encode() ([]byte, error)
	// Decode deserializes the payload body from bytes.
	Decode(payload []byte) error
}

// IsCommand reports whether the type tag denotes a command payload.
func IsCommand(tag byte) bool {
	return tag&MaskCmd == MaskCmd
}

// IsOneArgCommand reports whether the tag denotes a one-argument command.
// Callers must test CmdTell by equality first: TELL's bit pattern does not
// satisfy this mask, but the priority order is part of the protocol contract.
func IsOneArgCommand(tag byte) bool {
	return tag&MaskCmdOneArg == MaskCmdOneArg && tag&MaskCmdNoArgs != MaskCmdNoArgs
}

// IsNoArgCommand reports whether the tag denotes a zero-argument command.
func IsNoArgCommand(tag byte) bool {
	return tag&MaskCmdNoArgs == MaskCmdNoArgs
}
