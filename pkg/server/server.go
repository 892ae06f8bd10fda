// Package server implements the chat server: a single control loop that owns
// the member roster, admits pending connections, polls each member for at
// most one message per tick, and dispatches chat traffic and commands.
package server

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ReemKish/chat-program/pkg/protocol"
	"github.com/ReemKish/chat-program/pkg/roster"
	"github.com/ReemKish/chat-program/pkg/secure"
	"github.com/ReemKish/chat-program/pkg/store"
)

var (
	errorLog = log.New(os.Stderr, "ERROR: ", log.LstdFlags)
	debugLog = log.New(io.Discard, "DEBUG: ", log.LstdFlags)
)

// EnableDebugLogging sends debug output to stderr.
func EnableDebugLogging() {
	debugLog = log.New(os.Stderr, "DEBUG: ", log.LstdFlags)
}

// admission carries a connection that has completed the plaintext handshake
// and waits for the control loop to accept or reject it.
type admission struct {
	conn      net.Conn
	name      string
	publicKey *rsa.PublicKey
}

// Server represents the chat server
type Server struct {
	group      *roster.Group
	store      *store.BlobStore
	config     Config
	sessionKey []byte
	metrics    *Metrics

	listener   net.Listener
	httpServer *http.Server
	admitted   chan admission
	shutdown   chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
	startTime  time.Time

	// Control-loop state. Touched only from the control loop goroutine.
	everAdmitted bool
	uploads      map[*roster.Member]int64
}

// NewServer creates a new server instance
func NewServer(config Config) (*Server, error) {
	dataPath, err := ExpandPath(config.DataPath)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dataPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	blobs, err := store.Open(dataPath)
	if err != nil {
		return nil, err
	}

	// One session key per server process; every admitted member shares it.
	sessionKey, err := secure.NewSessionKey()
	if err != nil {
		blobs.Close()
		return nil, fmt.Errorf("failed to derive session key: %w", err)
	}

	return &Server{
		group:      roster.NewGroup(),
		store:      blobs,
		config:     config,
		sessionKey: sessionKey,
		metrics:    NewMetrics(),
		admitted:   make(chan admission, 16),
		shutdown:   make(chan struct{}),
		startTime:  time.Now(),
		uploads:    make(map[*roster.Member]int64),
	}, nil
}

// Start binds the TCP listener, the HTTP server and the control loop.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%d", s.config.TCPPort)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	s.listener = listener
	log.Printf("Chat server listening on %s", listener.Addr())

	if s.config.HTTPPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
		mux.HandleFunc("/health", s.HealthHandler)
		mux.HandleFunc("/ws", s.HandleWebSocket)
		s.httpServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", s.config.HTTPPort),
			Handler: mux,
		}
		go func() {
			log.Printf("HTTP server listening on %s (/metrics, /health, /ws)", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("HTTP server error: %v", err)
			}
		}()
	}

	s.wg.Add(2)
	go s.acceptLoop()
	go s.controlLoop()

	return nil
}

// Addr returns the address the TCP listener is bound to.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stop shuts the server down and waits for its goroutines to finish.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			s.listener.Close()
		}
		if s.httpServer != nil {
			s.httpServer.Close()
		}
		s.wg.Wait()

		// The control loop is stopped; the roster can be drained directly.
		for _, m := range s.group.Members() {
			s.group.RemoveMember(m)
		}
		s.store.Close()
	})
}

// acceptLoop accepts TCP connections and hands each to a handshake goroutine.
func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			errorLog.Printf("Accept error: %v", err)
			continue
		}
		s.wg.Add(1)
		go s.handshake(conn)
	}
}

// handshake reads the plaintext admission frames (name, then PEM public key)
// off a fresh connection under a deadline, then queues the connection for
// the control loop. Roster-dependent validation happens on the control loop.
func (s *Server) handshake(conn net.Conn) {
	defer s.wg.Done()

	conn.SetDeadline(time.Now().Add(s.config.HandshakeTimeout))

	name, err := s.readTextFrame(conn)
	if err != nil {
		debugLog.Printf("Handshake failed for %s: %v", conn.RemoteAddr(), err)
		s.metrics.RecordRejection()
		conn.Close()
		return
	}
	if name == "" || len(name) > s.config.MaxNameLength {
		s.reject(conn, "Connection Refused: Invalid name.")
		return
	}

	pemBytes, err := s.readTextFrame(conn)
	if err != nil {
		debugLog.Printf("Handshake failed for %s: %v", conn.RemoteAddr(), err)
		s.metrics.RecordRejection()
		conn.Close()
		return
	}
	publicKey, err := secure.ParsePublicKey([]byte(pemBytes))
	if err != nil {
		debugLog.Printf("Bad public key from %s: %v", conn.RemoteAddr(), err)
		s.metrics.RecordRejection()
		conn.Close()
		return
	}

	conn.SetDeadline(time.Time{})

	select {
	case s.admitted <- admission{conn: conn, name: name, publicKey: publicKey}:
	case <-s.shutdown:
		conn.Close()
	}
}

// readTextFrame reads one plaintext frame and requires it to be a MSG.
func (s *Server) readTextFrame(conn net.Conn) (string, error) {
	payload, err := protocol.DecodePayload(conn)
	if err != nil {
		return "", err
	}
	msg, ok := payload.(*protocol.TextMessage)
	if !ok {
		return "", fmt.Errorf("expected MSG frame, got 0x%02X", payload.TypeTag())
	}
	return msg.Text, nil
}

// reject sends a plaintext refusal and closes the connection.
func (s *Server) reject(conn net.Conn, reason string) {
	protocol.EncodePayload(conn, protocol.NewServerMessage(reason))
	conn.Close()
	s.metrics.RecordRejection()
}

// controlLoop is the single goroutine that owns the roster. Each tick it
// admits pending connections, then polls every member for at most one
// message.
func (s *Server) controlLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.shutdown:
			return
		case <-ticker.C:
			s.admitPending()
			s.pollMembers()
		}
	}
}

// admitPending drains the admission queue.
func (s *Server) admitPending() {
	for {
		select {
		case a := <-s.admitted:
			s.admit(a)
		default:
			return
		}
	}
}

// admit validates a handshaken connection against the roster and, if
// accepted, distributes the wrapped session key and joins the member.
func (s *Server) admit(a admission) {
	if s.group.Contains(a.name) {
		s.reject(a.conn, "Connection Refused: Name is already taken.")
		return
	}

	wrapped, err := secure.WrapSessionKey(a.publicKey, s.sessionKey)
	if err != nil {
		errorLog.Printf("Failed to wrap session key for %q: %v", a.name, err)
		a.conn.Close()
		s.metrics.RecordRejection()
		return
	}
	if err := protocol.EncodePayload(a.conn, &protocol.RawBytes{Data: wrapped}); err != nil {
		debugLog.Printf("Failed to deliver session key to %q: %v", a.name, err)
		a.conn.Close()
		s.metrics.RecordRejection()
		return
	}

	member := &roster.Member{
		Name:      a.name,
		Color:     s.config.Colors[rand.Intn(len(s.config.Colors))],
		PublicKey: a.publicKey,
		Conn:      NewSecureConn(a.conn, s.sessionKey),
	}

	// The very first member to ever join manages the group; configured
	// names are promoted on every admission.
	if !s.everAdmitted {
		member.IsManager = true
	}
	for _, name := range s.config.ManagerNames {
		if name == a.name {
			member.IsManager = true
		}
	}
	s.everAdmitted = true

	s.group.Add(member)
	s.broadcast(protocol.NewServerMessage(a.name + " joined the chat."))

	s.unicast(member, protocol.NewServerMessage("Tip: Type /help to display available commands."))
	if member.IsManager {
		s.unicast(member, protocol.NewServerMessage("You are now a manager."))
	}

	s.metrics.RecordAdmission()
	s.metrics.RecordActiveMembers(s.group.Len())
	log.Printf("%s joined from %s", a.name, a.conn.RemoteAddr())
}

// pollMembers gives every member one receive opportunity this tick.
func (s *Server) pollMembers() {
	for _, m := range s.group.Members() {
		if current, err := s.group.Lookup(m.Name); err != nil || current != m {
			continue // removed earlier this tick
		}

		sc := s.conn(m)
		payload, err := sc.Poll()
		switch {
		case err == errNothingPending:
			continue
		case err == io.EOF:
			// Vanished without a QUIT; reap without a goodbye broadcast.
			debugLog.Printf("%s disconnected abruptly", m.Name)
			s.remove(m)
		case errors.Is(err, secure.ErrAuthFailed):
			s.metrics.RecordDecryptFailure()
			sc.authFails++
			errorLog.Printf("Dropped unauthenticated message from %s (%d consecutive)", m.Name, sc.authFails)
			if sc.authFails >= s.config.DecryptFailureLimit {
				errorLog.Printf("Closing %s after %d consecutive authentication failures", m.Name, sc.authFails)
				s.remove(m)
			}
		case err != nil:
			debugLog.Printf("Skipping undecodable message from %s: %v", m.Name, err)
		default:
			sc.authFails = 0
			s.metrics.RecordMessageReceived(messageTypeToString(payload.TypeTag()))
			s.dispatch(m, payload)
		}
	}
}

// conn returns the member's SecureConn handle.
func (s *Server) conn(m *roster.Member) *SecureConn {
	return m.Conn.(*SecureConn)
}

// unicast sends one payload to one member. A transport error reaps the
// member without a goodbye broadcast.
func (s *Server) unicast(m *roster.Member, p protocol.Payload) {
	if err := s.conn(m).Send(p); err != nil {
		debugLog.Printf("Send to %s failed: %v", m.Name, err)
		s.remove(m)
		return
	}
	s.metrics.RecordMessageSent(messageTypeToString(p.TypeTag()))
}

// broadcast sends a payload to every member except the excluded ones. The
// roster snapshot keeps the traversal valid even when a send failure removes
// a member mid-broadcast.
func (s *Server) broadcast(p protocol.Payload, exclude ...*roster.Member) {
	s.metrics.RecordBroadcast()
	for _, m := range s.group.Members() {
		skip := false
		for _, ex := range exclude {
			if m == ex {
				skip = true
				break
			}
		}
		if skip {
			continue
		}
		if current, err := s.group.Lookup(m.Name); err != nil || current != m {
			continue
		}
		s.unicast(m, p)
	}
}

// remove drops a member from the group, closing its connection.
func (s *Server) remove(m *roster.Member) {
	delete(s.uploads, m)
	if err := s.group.RemoveMember(m); err == nil {
		s.metrics.RecordActiveMembers(s.group.Len())
		log.Printf("%s left", m.Name)
	}
}

// HealthHandler reports basic liveness.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"ok","uptime_seconds":%d}`, int(time.Since(s.startTime).Seconds()))
}
