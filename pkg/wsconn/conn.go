package wsconn

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed         = errors.New("connection closed")
	ErrBufferExceeded = errors.New("connection buffer exceeded")
)

type Config struct {
	SendBuffer int
	WriteWait  time.Duration
	PingPeriod time.Duration
	// PongWait bounds the silence tolerated from the peer; it must exceed PingPeriod.
	PongWait time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendBuffer: 128,
		WriteWait:  10 * time.Second,
		PingPeriod: 30 * time.Second,
		PongWait:   60 * time.Second,
	}
}

// Conn wraps a websocket and serializes outbound writes through a buffered channel.
// Send is safe for concurrent use; reads stay with the caller.
type Conn struct {
	id   string
	ws   *websocket.Conn
	cfg  Config
	send chan []byte
	done chan struct{}
	once sync.Once
}

func New(ws *websocket.Conn, cfg Config) *Conn {
	def := DefaultConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = def.PingPeriod
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 2 * cfg.PingPeriod
	}

	return &Conn{
		id:   uuid.NewString(),
		ws:   ws,
		cfg:  cfg,
		send: make(chan []byte, cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) Id() string {
	return c.id
}

func (c *Conn) WS() *websocket.Conn {
	return c.ws
}

// Start launches the write loop. It must be called exactly once.
func (c *Conn) Start() {
	go c.writeLoop()
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Send marshals v and enqueues it. A slow client whose buffer is full gets disconnected.
func (c *Conn) Send(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case <-c.done:
		return ErrClosed
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return ErrBufferExceeded
	}
}

func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.cfg.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		return err
	}

	return c.ws.WriteMessage(messageType, payload)
}
