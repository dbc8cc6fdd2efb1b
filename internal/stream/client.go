package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"wa-sync-service/internal/models"
	"wa-sync-service/internal/observability"
)

// Connection lifecycle states.
const (
	StateDisconnected = "disconnected"
	StateConnecting   = "connecting"
	StateConnected    = "connected"
	StateShutdown     = "shutdown"
)

// subscribedEvents is the fixed set of push events requested on connect.
var subscribedEvents = []string{
	models.EventMessagesUpsert,
	models.EventMessagesUpdate,
	models.EventContactsUpsert,
	models.EventChatsUpsert,
	models.EventConnectionUpdate,
	models.EventPresenceUpdate,
}

// Dispatcher receives every decoded push event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev models.CanonicalEvent)
}

// Config holds per-client connection tunables.
type Config struct {
	BaseURL        string
	APIKey         string
	Instance       string
	ReconnectDelay time.Duration
	MaxAttempts    int

	// OnFatal fires once when reconnect attempts are exhausted. The
	// client will not retry on its own after that.
	OnFatal func(instance string, err error)
}

type subscribeFrame struct {
	Action   string   `json:"action"`
	Instance string   `json:"instance"`
	Events   []string `json:"events"`
}

type pushFrame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type sendFrame struct {
	Action  string            `json:"action"`
	To      string            `json:"to"`
	Body    string            `json:"body"`
	Options map[string]string `json:"options,omitempty"`
}

// Client keeps one persistent push-stream connection to the platform open
// for a single instance and feeds every decoded event into the dispatcher.
// Lost connections are retried with a counted, capped backoff.
type Client struct {
	cfg        Config
	dispatcher Dispatcher

	mu    sync.Mutex
	state string
	conn  *websocket.Conn

	done chan struct{}
	wg   sync.WaitGroup
}

// NewClient validates the config and builds a client. Start must be called
// to open the connection.
func NewClient(cfg Config, dispatcher Dispatcher) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("stream: base url is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("stream: api key is required")
	}
	if cfg.Instance == "" {
		return nil, fmt.Errorf("stream: instance name is required")
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 2 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	return &Client{
		cfg:        cfg,
		dispatcher: dispatcher,
		state:      StateDisconnected,
		done:       make(chan struct{}),
	}, nil
}

// Start opens the connection and launches the supervised read loop. It
// returns after the first successful connect, or with the connect error if
// the initial attempt fails outright (reconnects still continue).
func (c *Client) Start() error {
	err := c.connect()
	c.wg.Add(1)
	go c.run()
	return err
}

// IsConnected reports whether the live link is currently usable.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateConnected
}

// State returns the current lifecycle state.
func (c *Client) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SendMessage pushes an outbound message over the live connection. Fire and
// forget: the platform reports delivery asynchronously via its own events.
func (c *Client) SendMessage(to, body string, options map[string]string) error {
	c.mu.Lock()
	conn := c.conn
	state := c.state
	c.mu.Unlock()

	if state != StateConnected || conn == nil {
		return fmt.Errorf("stream: instance %s is not connected", c.cfg.Instance)
	}
	frame := sendFrame{Action: "sendMessage", To: to, Body: body, Options: options}
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("stream: send message: %w", err)
	}
	return nil
}

// Shutdown closes the connection and stops all reconnect scheduling. Safe to
// call more than once.
func (c *Client) Shutdown() {
	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return
	}
	c.state = StateShutdown
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	c.wg.Wait()
}

// run supervises the connection: it blocks in the read loop while connected
// and walks the counted reconnect loop after every drop.
func (c *Client) run() {
	defer c.wg.Done()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		if c.IsConnected() {
			err := c.readLoop()
			if c.isShutdown() {
				return
			}
			log.Printf("stream read loop ended instance=%s: %v", c.cfg.Instance, err)
			c.setDisconnected()
		}

		if err := c.reconnect(); err != nil {
			if c.isShutdown() {
				return
			}
			log.Printf("ERROR stream link down permanently instance=%s: %v", c.cfg.Instance, err)
			if c.cfg.OnFatal != nil {
				c.cfg.OnFatal(c.cfg.Instance, err)
			}
			return
		}
	}
}

// reconnect retries the dial with a doubling delay until it succeeds, the
// attempt budget is spent, or the client shuts down.
func (c *Client) reconnect() error {
	delay := c.cfg.ReconnectDelay
	var lastErr error

	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		if c.isShutdown() {
			return fmt.Errorf("stream: client is shut down")
		}
		if err := c.connect(); err != nil {
			lastErr = err
			observability.IncStreamReconnect(c.cfg.Instance)
			log.Printf("stream connect failed instance=%s attempt=%d/%d retry_in=%s: %v",
				c.cfg.Instance, attempt, c.cfg.MaxAttempts, delay, err)

			select {
			case <-c.done:
				return fmt.Errorf("stream: client is shut down")
			case <-time.After(delay):
			}
			if delay < 30*time.Second {
				delay *= 2
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("stream: gave up after %d attempts: %w", c.cfg.MaxAttempts, lastErr)
}

// connect dials the push endpoint, authenticates, and sends the subscribe
// frame. On success the reconnect budget is reset.
func (c *Client) connect() error {
	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		return fmt.Errorf("stream: client is shut down")
	}
	c.state = StateConnecting
	c.mu.Unlock()

	endpoint, err := c.streamURL()
	if err != nil {
		return err
	}

	header := http.Header{}
	header.Set("apikey", c.cfg.APIKey)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.Dial(endpoint, header)
	if err != nil {
		c.setDisconnected()
		return fmt.Errorf("stream: dial %s: %w", endpoint, err)
	}

	sub := subscribeFrame{Action: "subscribe", Instance: c.cfg.Instance, Events: subscribedEvents}
	if err := conn.WriteJSON(sub); err != nil {
		_ = conn.Close()
		c.setDisconnected()
		return fmt.Errorf("stream: subscribe: %w", err)
	}

	c.mu.Lock()
	if c.state == StateShutdown {
		c.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("stream: client is shut down")
	}
	c.conn = conn
	c.state = StateConnected
	c.mu.Unlock()

	log.Printf("stream connected instance=%s endpoint=%s", c.cfg.Instance, endpoint)
	return nil
}

// readLoop decodes push frames until the connection drops.
func (c *Client) readLoop() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("stream: no active connection")
	}

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame pushFrame
		if err := json.Unmarshal(payload, &frame); err != nil {
			log.Printf("stream frame decode failed instance=%s: %v", c.cfg.Instance, err)
			continue
		}
		if frame.Event == "" {
			continue
		}

		c.dispatcher.Dispatch(context.Background(), models.CanonicalEvent{
			Instance:   c.cfg.Instance,
			Event:      frame.Event,
			Payload:    frame.Data,
			ReceivedAt: time.Now().UTC(),
		})
	}
}

func (c *Client) streamURL() (string, error) {
	u, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", fmt.Errorf("stream: parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("stream: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/events/" + c.cfg.Instance
	return u.String(), nil
}

func (c *Client) setDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateShutdown {
		c.state = StateDisconnected
		c.conn = nil
	}
}

func (c *Client) isShutdown() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateShutdown
}
