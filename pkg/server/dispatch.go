package server

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/roster"
	"github.com/ReemKish/chat-program/pkg/store"
)

const helpText = `Available commands:
/help - display this help text
/quit - leave the chat
/view-managers - list the current managers
/list - list the online members
/tell <name> <message> - send a private message
/kick <name> - remove a member from the group (managers only)
/promote <name> - grant manager permissions (managers only)
/demote <name> - revoke manager permissions (managers only)
/mute <name> - prevent a member from sending messages (managers only)
/unmute <name> - let a muted member send messages again (managers only)`

// Prefixes of the text-borne file conventions.
const (
	downloadPrefix   = "DOWNLOAD:"
	inlineFilePrefix = "FILE:"
)

// dispatch routes one received payload for one member.
func (s *Server) dispatch(m *roster.Member, payload protocol.Payload) {
	switch p := payload.(type) {
	case *protocol.Command:
		s.handleCommand(m, p)
	case *protocol.TextMessage:
		s.handleText(m, p.Text)
	case *protocol.FileAttachSend:
		s.handleAttachment(m, p)
	case *protocol.RawBytes:
		s.handleUpload(m, p.Data)
	default:
		s.unicast(m, protocol.NewServerMessage("Error - Invalid input, try /help."))
	}
}

// handleCommand executes a chat command. One-argument commands are
// manager-only and the permission check runs before anything else; target
// existence is checked before any state change.
func (s *Server) handleCommand(m *roster.Member, cmd *protocol.Command) {
	if protocol.IsOneArgCommand(cmd.Kind) && !m.IsManager {
		s.unicast(m, protocol.NewServerMessage("Error - Permission denied."))
		return
	}

	switch cmd.Kind {
	case protocol.CmdHelp:
		s.unicast(m, protocol.NewServerMessage(helpText))

	case protocol.CmdQuit:
		s.broadcast(protocol.NewServerMessage(m.Name+" left the chat."), m)
		s.remove(m)

	case protocol.CmdViewManagers:
		var names []string
		for _, mgr := range s.group.Managers() {
			names = append(names, mgr.Name)
		}
		s.unicast(m, protocol.NewServerMessage("Managers: "+strings.Join(names, ", ")))

	case protocol.CmdList:
		var names []string
		for _, member := range s.group.Members() {
			names = append(names, member.Name)
		}
		s.unicast(m, protocol.NewServerMessage("Members: "+strings.Join(names, ", ")))

	case protocol.CmdTell, protocol.CmdKick, protocol.CmdPromote,
		protocol.CmdDemote, protocol.CmdMute, protocol.CmdUnmute:
		target, err := s.group.Lookup(cmd.Name)
		if err != nil {
			s.unicast(m, protocol.NewServerMessage(fmt.Sprintf("Error - '%s' is not in the group.", cmd.Name)))
			return
		}
		s.handleTargeted(m, target, cmd)

	default:
		s.unicast(m, protocol.NewServerMessage("Error - Invalid input, try /help."))
	}
}

// handleTargeted executes the commands that name another member, after the
// target has been resolved.
func (s *Server) handleTargeted(m, target *roster.Member, cmd *protocol.Command) {
	switch cmd.Kind {
	case protocol.CmdTell:
		if m.IsMuted {
			s.unicast(m, protocol.NewServerMessage("Error - You are muted, message was not sent."))
			return
		}
		whisper := protocol.NewMemberMessage(m.Name, fmt.Sprintf("%s -> %s: %s", m.Name, target.Name, cmd.Msg))
		s.unicast(target, whisper)
		if target != m {
			s.unicast(m, whisper)
		}

	case protocol.CmdKick:
		s.broadcast(protocol.NewServerMessage(target.Name+" has been kicked from the group."), target)
		s.unicast(target, protocol.NewServerMessage("You have been kicked from the group."))
		s.remove(target)

	case protocol.CmdPromote:
		if !target.IsManager {
			target.IsManager = true
			s.unicast(target, protocol.NewServerMessage("You are now a manager."))
		}

	case protocol.CmdDemote:
		if target.IsManager {
			target.IsManager = false
			s.unicast(target, protocol.NewServerMessage("You are no longer a manager."))
		}

	case protocol.CmdMute:
		if !target.IsMuted {
			target.IsMuted = true
			s.unicast(target, protocol.NewServerMessage("You have been muted by a manager."))
		}

	case protocol.CmdUnmute:
		if target.IsMuted {
			target.IsMuted = false
			s.unicast(target, protocol.NewServerMessage("You are no longer muted."))
		}
	}
}

// handleText routes a plain text frame: attachment download requests and
// legacy inline file references are text-borne conventions; everything else
// is chat.
func (s *Server) handleText(m *roster.Member, text string) {
	switch {
	case strings.HasPrefix(text, downloadPrefix):
		s.handleDownload(m, strings.TrimPrefix(text, downloadPrefix))

	case strings.HasPrefix(text, inlineFilePrefix):
		s.handleInlineFile(m, strings.TrimPrefix(text, inlineFilePrefix))

	default:
		if m.IsMuted {
			s.unicast(m, protocol.NewServerMessage("Error - You are muted, message was not sent."))
			return
		}
		// The sender receives the same broadcast; clients recognize their
		// own name as the self marker.
		s.broadcast(protocol.NewMemberMessage(m.Name, text))
	}
}

// handleDownload serves a stored attachment back as a BYTES frame.
func (s *Server) handleDownload(m *roster.Member, arg string) {
	descriptor, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil {
		s.unicast(m, protocol.NewServerMessage("Error - Invalid input, try /help."))
		return
	}

	data, err := s.store.Get(descriptor)
	switch err {
	case nil:
		s.unicast(m, &protocol.RawBytes{Data: data})
	case store.ErrBlobNotFound, store.ErrEmptyBlob:
		s.unicast(m, protocol.NewServerMessage("Error - File not found."))
	default:
		errorLog.Printf("Attachment %d read failed: %v", descriptor, err)
		s.unicast(m, protocol.NewServerMessage("Error - File not found."))
	}
}

// handleInlineFile handles the legacy FILE:<path> convention: the reference
// is re-broadcast with a server-assigned descriptor substituted in, and the
// file bytes are expected as the member's next BYTES frame.
func (s *Server) handleInlineFile(m *roster.Member, path string) {
	if m.IsMuted {
		s.unicast(m, protocol.NewServerMessage("Error - You are muted, message was not sent."))
		return
	}

	filename := filepath.Base(path)
	descriptor, _, err := s.store.Reserve(filename, m.Name)
	if err != nil {
		errorLog.Printf("Failed to reserve descriptor for %s: %v", m.Name, err)
		return
	}
	s.uploads[m] = descriptor

	s.broadcast(protocol.NewMemberMessage(m.Name, fmt.Sprintf("FILE:%d:%s", descriptor, filename)))
}

// handleAttachment handles the typed attachment announcement: a descriptor
// is reserved, the group is notified with the minted identifier, and the
// bytes are expected as the member's next BYTES frame.
func (s *Server) handleAttachment(m *roster.Member, attach *protocol.FileAttachSend) {
	if m.IsMuted {
		s.unicast(m, protocol.NewServerMessage("Error - You are muted, message was not sent."))
		return
	}

	descriptor, token, err := s.store.Reserve(attach.Filename, m.Name)
	if err != nil {
		errorLog.Printf("Failed to reserve descriptor for %s: %v", m.Name, err)
		return
	}
	s.uploads[m] = descriptor

	s.broadcast(&protocol.FileAttachRecv{
		SenderName: m.Name,
		ID:         token,
		Filename:   attach.Filename,
	})
}

// handleUpload stores the bytes following an attachment announcement.
func (s *Server) handleUpload(m *roster.Member, data []byte) {
	descriptor, ok := s.uploads[m]
	if !ok {
		s.unicast(m, protocol.NewServerMessage("Error - Invalid input, try /help."))
		return
	}
	delete(s.uploads, m)

	if err := s.store.Fill(descriptor, data); err != nil {
		errorLog.Printf("Failed to store attachment %d from %s: %v", descriptor, m.Name, err)
		return
	}
	s.metrics.RecordAttachmentStored()
	debugLog.Printf("Stored attachment %d (%d bytes) from %s", descriptor, len(data), m.Name)
}
