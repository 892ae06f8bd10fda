// Package botlib is a small framework for scripted chat members: load
// generators and automated responders built on the client session API.
package botlib

import (
	"crypto/rsa"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/ReemKish/chat-program/pkg/client"
	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/secure"
)

// Handler reacts to one received server message. Returning a non-empty
// string sends it back as chat text.
type Handler func(bot *Bot, msg *protocol.ServerMessage) string

// Bot is a scripted chat member.
type Bot struct {
	Name string

	addr     string
	identity *rsa.PrivateKey
	session  *client.Session
	handlers []Handler

	mu      sync.Mutex
	started bool
}

// New creates a bot with a fresh identity.
func New(addr, name string) (*Bot, error) {
	identity, err := secure.GenerateIdentity()
	if err != nil {
		return nil, fmt.Errorf("failed to generate identity: %w", err)
	}
	return &Bot{Name: name, addr: addr, identity: identity}, nil
}

// OnMessage registers a handler. Handlers run in registration order for
// every attributed message not sent by the bot itself.
func (b *Bot) OnMessage(h Handler) {
	b.handlers = append(b.handlers, h)
}

// Connect joins the chat.
func (b *Bot) Connect() error {
	session, err := client.Dial(b.addr, b.Name, b.identity)
	if err != nil {
		return err
	}
	b.session = session
	return nil
}

// Say sends chat text.
func (b *Bot) Say(text string) error {
	return b.session.SendText(text)
}

// Tell sends a private message.
func (b *Bot) Tell(target, msg string) error {
	return b.session.Send(&protocol.Command{Kind: protocol.CmdTell, Name: target, Msg: msg})
}

// Run processes incoming messages until the connection ends.
func (b *Bot) Run() error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return fmt.Errorf("bot %s already running", b.Name)
	}
	b.started = true
	b.mu.Unlock()

	for {
		payload, err := b.session.Receive()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		msg, ok := payload.(*protocol.ServerMessage)
		if !ok || msg.Name == b.Name {
			continue
		}
		// Skip own private messages echoed back.
		if strings.HasPrefix(msg.Msg, b.Name+" -> ") {
			continue
		}

		for _, h := range b.handlers {
			if reply := h(b, msg); reply != "" {
				if err := b.Say(reply); err != nil {
					log.Printf("bot %s failed to reply: %v", b.Name, err)
				}
			}
		}
	}
}

// Quit leaves the chat and closes the connection.
func (b *Bot) Quit() {
	if b.session == nil {
		return
	}
	b.session.Quit()
	b.session.Close()
}
