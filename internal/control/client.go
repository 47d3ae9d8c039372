// ABOUTME: Websocket client for the control channel
// ABOUTME: Sends engine commands and routes replies and events to channels
package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/soundsystem-go/soundsystem/internal/discovery"
	"github.com/soundsystem-go/soundsystem/internal/logging"
)

const helloTimeout = 5 * time.Second

// Client is a connection to a control server
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
	logger  zerolog.Logger

	// Hello is the server greeting received on Dial
	Hello Hello

	Statuses chan Status
	Events   chan Event
	Errors   chan ErrorReply

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Dial connects to the control server at addr (host:port) and waits for
// its hello
func Dial(ctx context.Context, addr string) (*Client, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: discovery.DefaultPath}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.String(), err)
	}

	cctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		conn:     conn,
		logger:   logging.Component("control-client"),
		Statuses: make(chan Status, 16),
		Events:   make(chan Event, 64),
		Errors:   make(chan ErrorReply, 16),
		ctx:      cctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}

	if err := c.readHello(); err != nil {
		cancel()
		conn.Close()
		return nil, err
	}

	go c.readMessages()
	return c, nil
}

func (c *Client) readHello() error {
	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	var msg Message
	if err := c.conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("read hello: %w", err)
	}
	if msg.Type != TypeHello {
		return fmt.Errorf("expected %s, got %s", TypeHello, msg.Type)
	}
	return msg.Decode(&c.Hello)
}

// Send writes one command
func (c *Client) Send(msgType string, payload interface{}) error {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Init sends an init command
func (c *Client) Init(sampleRate, framesPerBuffer int) error {
	return c.Send(TypeInit, InitCommand{SampleRate: sampleRate, FramesPerBuffer: framesPerBuffer})
}

// Load sends a load command
func (c *Client) Load(path string) error { return c.Send(TypeLoad, LoadCommand{Path: path}) }

// Play sends a play command
func (c *Client) Play(play bool) error { return c.Send(TypePlay, PlayCommand{Play: play}) }

// Stop sends a stop command
func (c *Client) Stop() error { return c.Send(TypeStop, nil) }

// RequestStatus asks for a status reply
func (c *Client) RequestStatus() error { return c.Send(TypeStatus, nil) }

// Release sends a release command
func (c *Client) Release() error { return c.Send(TypeRelease, nil) }

func (c *Client) readMessages() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Debug().Err(err).Msg("Read failed")
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Malformed message")
			continue
		}

		switch msg.Type {
		case TypeStatus:
			var st Status
			if err := msg.Decode(&st); err == nil {
				deliver(c.ctx, c.Statuses, st)
			}
		case TypeEvent:
			var ev Event
			if err := msg.Decode(&ev); err == nil {
				deliver(c.ctx, c.Events, ev)
			}
		case TypeError:
			var reply ErrorReply
			if err := msg.Decode(&reply); err == nil {
				deliver(c.ctx, c.Errors, reply)
			}
		default:
			c.logger.Debug().Str("type", msg.Type).Msg("Ignoring message")
		}
	}
}

func deliver[T any](ctx context.Context, ch chan<- T, v T) {
	select {
	case ch <- v:
	case <-ctx.Done():
	}
}

// Close closes the connection and waits for the reader to exit
func (c *Client) Close() error {
	c.cancel()
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	err := c.conn.Close()
	<-c.done
	return err
}
