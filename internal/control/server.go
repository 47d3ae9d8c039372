// ABOUTME: Remote host bridge over websocket
// ABOUTME: Runs engine commands from clients and pushes observer events to them
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/discovery"
	"github.com/soundsystem-go/soundsystem/internal/logging"
	"github.com/soundsystem-go/soundsystem/internal/version"
	"github.com/soundsystem-go/soundsystem/pkg/soundsystem"
)

const (
	sendQueueSize = 32
	writeDeadline = 10 * time.Second
	pingInterval  = 30 * time.Second
)

var errMissingPath = errors.New("missing path")

// Host is the engine surface the server drives
type Host interface {
	ID() string
	Init(sampleRate, framesPerBuffer int) error
	LoadFile(path string) error
	ExtractAndPlay(path string) error
	Play(play bool) error
	Stop() error
	Status() soundsystem.Status
	Release() error
	AddPlayingObserver(o soundsystem.PlayingObserver) bool
	RemovePlayingObserver(o soundsystem.PlayingObserver) bool
	AddExtractionObserver(o soundsystem.ExtractionObserver) bool
	RemoveExtractionObserver(o soundsystem.ExtractionObserver) bool
}

// Config holds server configuration
type Config struct {
	Addr      string // listen address, ":0" picks a port
	Name      string // advertised service name
	Advertise bool   // publish the endpoint over mDNS
	Logger    *zerolog.Logger
}

// Server is the websocket control endpoint for one engine
type Server struct {
	config   Config
	host     Host
	logger   zerolog.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	events   *observer

	httpServer *http.Server
	listenAddr net.Addr
	addrMu     sync.Mutex
	ready      chan struct{}

	sessions   map[string]*session
	sessionsMu sync.RWMutex

	mdnsManager *discovery.Manager

	stopChan   chan struct{}
	stopOnce   sync.Once
	shutdownMu sync.RWMutex
	isShutdown bool
	wg         sync.WaitGroup
}

type session struct {
	id       string
	conn     *websocket.Conn
	sendChan chan Message
}

// New creates a server for host and subscribes it to the host's
// observers
func New(config Config, host Host) *Server {
	if config.Name == "" {
		config.Name = version.Product
	}
	logger := logging.Component("control")
	if config.Logger != nil {
		logger = config.Logger.With().Str("component", "control").Logger()
	}

	s := &Server{
		config: config,
		host:   host,
		logger: logger,
		upgrader: websocket.Upgrader{
			// control clients are local tools, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux:      http.NewServeMux(),
		ready:    make(chan struct{}),
		sessions: make(map[string]*session),
		stopChan: make(chan struct{}),
	}
	s.events = &observer{s: s}
	s.mux.HandleFunc(discovery.DefaultPath, s.handleWebSocket)

	host.AddPlayingObserver(s.events)
	host.AddExtractionObserver(s.events)
	return s
}

// Handler returns the HTTP handler serving the control endpoint
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Addr returns the bound address once Start is listening
func (s *Server) Addr() net.Addr {
	s.addrMu.Lock()
	defer s.addrMu.Unlock()
	return s.listenAddr
}

// Ready is closed once Start is accepting connections
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// Start serves until Stop is called or the listener fails
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Addr, err)
	}

	s.addrMu.Lock()
	s.listenAddr = ln.Addr()
	s.addrMu.Unlock()

	if s.config.Advertise {
		port := 0
		if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
			port = tcp.Port
		}
		s.mdnsManager = discovery.NewManager(discovery.Config{
			ServiceName: s.config.Name,
			Port:        port,
			EngineID:    s.host.ID(),
		})
		if err := s.mdnsManager.Advertise(); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to start mDNS advertisement")
		}
	}

	s.httpServer = &http.Server{Handler: s.mux}
	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Control server listening")
	close(s.ready)

	var serverErr error
	select {
	case <-s.stopChan:
		s.logger.Info().Msg("Control server shutting down")
	case err := <-errChan:
		s.logger.Error().Err(err).Msg("HTTP server error")
		serverErr = err
	}

	s.shutdown()

	if serverErr != nil {
		return fmt.Errorf("HTTP server failed: %w", serverErr)
	}
	return nil
}

func (s *Server) shutdown() {
	s.shutdownMu.Lock()
	s.isShutdown = true
	s.shutdownMu.Unlock()

	s.host.RemovePlayingObserver(s.events)
	s.host.RemoveExtractionObserver(s.events)

	if s.mdnsManager != nil {
		s.mdnsManager.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("HTTP server shutdown error")
	}

	// hijacked websocket connections are not closed by Shutdown
	s.sessionsMu.RLock()
	for _, sess := range s.sessions {
		sess.conn.Close()
	}
	s.sessionsMu.RUnlock()

	s.wg.Wait()
	s.logger.Info().Msg("Control server stopped")
}

// Stop ends Start
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.wg.Add(1)
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	s.logger.Debug().Str("remote", r.RemoteAddr).Msg("New control connection")

	s.handleConnection(conn)
}

func (s *Server) handleConnection(conn *websocket.Conn) {
	defer conn.Close()

	s.shutdownMu.RLock()
	if s.isShutdown {
		s.shutdownMu.RUnlock()
		s.logger.Debug().Msg("Rejecting connection during shutdown")
		return
	}
	s.shutdownMu.RUnlock()

	sess := &session{
		id:       uuid.New().String(),
		conn:     conn,
		sendChan: make(chan Message, sendQueueSize),
	}
	logger := s.logger.With().Str("session", sess.id).Logger()

	writerDone := make(chan struct{})
	defer func() {
		s.sessionsMu.Lock()
		delete(s.sessions, sess.id)
		s.sessionsMu.Unlock()
		close(sess.sendChan)
		<-writerDone
		logger.Info().Msg("Control session closed")
	}()

	go func() {
		defer close(writerDone)
		s.sessionWriter(sess, logger)
	}()

	hello := Hello{
		SessionID: sess.id,
		Name:      s.config.Name,
		EngineID:  s.host.ID(),
		Version:   ProtocolVersion,
		Product:   version.Product,
	}
	if err := s.send(sess, TypeHello, hello); err != nil {
		logger.Warn().Err(err).Msg("Failed to send hello")
		return
	}

	// registered after hello so events never precede it
	s.sessionsMu.Lock()
	s.sessions[sess.id] = sess
	s.sessionsMu.Unlock()
	logger.Info().Msg("Control session opened")

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("WebSocket error")
			}
			return
		}
		s.handleMessage(sess, logger, data)
	}
}

// sessionWriter owns all writes to the connection
func (s *Server) sessionWriter(sess *session, logger zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-sess.sendChan:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to marshal message")
				continue
			}
			sess.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := sess.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.Debug().Err(err).Msg("Write failed")
				sess.conn.Close()
				return
			}

		case <-ticker.C:
			if err := sess.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeDeadline)); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleMessage(sess *session, logger zerolog.Logger, data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		logger.Debug().Err(err).Msg("Malformed message")
		s.sendError(sess, "", fmt.Errorf("malformed message: %w", err))
		return
	}

	logger.Debug().Str("type", msg.Type).Msg("Command")

	var err error
	switch msg.Type {
	case TypeInit:
		var cmd InitCommand
		if err = msg.Decode(&cmd); err == nil {
			err = s.host.Init(cmd.SampleRate, cmd.FramesPerBuffer)
		}
	case TypeLoad, TypeExtractAndPlay:
		var cmd LoadCommand
		if err = msg.Decode(&cmd); err == nil {
			switch {
			case cmd.Path == "":
				err = errMissingPath
			case msg.Type == TypeLoad:
				err = s.host.LoadFile(cmd.Path)
			default:
				err = s.host.ExtractAndPlay(cmd.Path)
			}
		}
	case TypePlay:
		cmd := PlayCommand{Play: true}
		if err = msg.Decode(&cmd); err == nil {
			err = s.host.Play(cmd.Play)
		}
	case TypeStop:
		err = s.host.Stop()
	case TypeStatus:
	case TypeRelease:
		err = s.host.Release()
	default:
		s.sendError(sess, msg.Type, fmt.Errorf("unknown command %q", msg.Type))
		return
	}

	if err != nil {
		logger.Info().Err(err).Str("type", msg.Type).Msg("Command failed")
		s.sendError(sess, msg.Type, err)
		return
	}
	if err := s.send(sess, TypeStatus, s.host.Status()); err != nil {
		logger.Warn().Err(err).Msg("Failed to send status")
	}
}

func (s *Server) sendError(sess *session, command string, cause error) {
	if err := s.send(sess, TypeError, ErrorReply{Command: command, Error: cause.Error()}); err != nil {
		s.logger.Warn().Err(err).Str("session", sess.id).Msg("Failed to send error")
	}
}

// send queues a message for one session. Only the session's own reader
// goroutine calls it, so the channel is still open.
func (s *Server) send(sess *session, msgType string, payload interface{}) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	select {
	case sess.sendChan <- msg:
		return nil
	default:
		return fmt.Errorf("session send buffer full")
	}
}

// broadcast queues an event for every session, dropping it for
// sessions that are not keeping up
func (s *Server) broadcast(ev Event) {
	msg, err := NewMessage(TypeEvent, ev)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode event")
		return
	}

	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	for _, sess := range s.sessions {
		select {
		case sess.sendChan <- msg:
		default:
			s.logger.Warn().Str("session", sess.id).Str("event", ev.Name).Msg("Dropping event for slow session")
		}
	}
}

// SessionCount returns the number of open sessions
func (s *Server) SessionCount() int {
	s.sessionsMu.RLock()
	defer s.sessionsMu.RUnlock()
	return len(s.sessions)
}

// observer forwards engine notifications to the sessions
type observer struct{ s *Server }

func (o *observer) OnPlayingStatusChanged(playing bool) {
	o.s.broadcast(Event{Name: EventPlayingChanged, Playing: &playing})
}

func (o *observer) OnEndOfTrack()          { o.s.broadcast(Event{Name: EventEndOfTrack}) }
func (o *observer) OnStopTrack()           { o.s.broadcast(Event{Name: EventTrackStopped}) }
func (o *observer) OnExtractionStarted()   { o.s.broadcast(Event{Name: EventExtractionStarted}) }
func (o *observer) OnExtractionCompleted() { o.s.broadcast(Event{Name: EventExtractionCompleted}) }
