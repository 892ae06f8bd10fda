package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ReemKish/chat-program/pkg/protocol"
)

var (
	// ErrMissingArgument is returned when a command lacks its argument(s).
	ErrMissingArgument = errors.New("missing argument")
)

// UnknownCommandError reports a slash command the client does not know.
type UnknownCommandError struct {
	Command string
}

func (e *UnknownCommandError) Error() string {
	return fmt.Sprintf("unknown command %q, try /help", e.Command)
}

// oneArgCommands maps slash names to their one-argument command tags.
var oneArgCommands = map[string]byte{
	"/kick":    protocol.CmdKick,
	"/promote": protocol.CmdPromote,
	"/demote":  protocol.CmdDemote,
	"/mute":    protocol.CmdMute,
	"/unmute":  protocol.CmdUnmute,
}

// noArgCommands maps slash names to their zero-argument command tags.
var noArgCommands = map[string]byte{
	"/help":          protocol.CmdHelp,
	"/quit":          protocol.CmdQuit,
	"/view-managers": protocol.CmdViewManagers,
	"/list":          protocol.CmdList,
}

// ParseInput turns one line of user input into the payload to send. Lines
// starting with "/" are commands; everything else is chat text.
func ParseInput(line string) (protocol.Payload, error) {
	line = strings.TrimSpace(line)

	if !strings.HasPrefix(line, "/") {
		return &protocol.TextMessage{Text: line}, nil
	}

	fields := strings.Fields(line)
	name := fields[0]

	if kind, ok := noArgCommands[name]; ok {
		return &protocol.Command{Kind: kind}, nil
	}

	if kind, ok := oneArgCommands[name]; ok {
		if len(fields) < 2 {
			return nil, ErrMissingArgument
		}
		return &protocol.Command{Kind: kind, Name: fields[1]}, nil
	}

	if name == "/tell" {
		if len(fields) < 3 {
			return nil, ErrMissingArgument
		}
		target := fields[1]
		rest := strings.TrimSpace(line[len("/tell"):])
		msg := strings.TrimSpace(rest[len(target):])
		return &protocol.Command{Kind: protocol.CmdTell, Name: target, Msg: msg}, nil
	}

	return nil, &UnknownCommandError{Command: name}
}
