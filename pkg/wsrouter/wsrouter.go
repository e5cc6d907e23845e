package wsrouter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/anitogether/relay/pkg/validator"
	"github.com/anitogether/relay/pkg/wsconn"
	"github.com/gorilla/websocket"
)

var (
	ErrUnknownType    = errors.New("unknown message type")
	ErrInvalidFrame   = errors.New("invalid frame")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrHandlerPanic   = errors.New("handler panicked")
)

type ValidationFailedError struct {
	Errors []validator.ValidationError
}

func (e *ValidationFailedError) Error() string {
	return fmt.Sprintf("validation failed: %d error(s)", len(e.Errors))
}

type HandlerFunc[T any] func(ctx context.Context, conn *wsconn.Conn, payload T) error

type Middleware func(next HandlerFunc[any]) HandlerFunc[any]

// ErrorHandler is called for every message that could not be handled. The read loop keeps going.
type ErrorHandler func(ctx context.Context, conn *wsconn.Conn, err error)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type route func(ctx context.Context, conn *wsconn.Conn, raw json.RawMessage) error

type WSRouter struct {
	routes      map[string]route
	middlewares []Middleware
	validate    *validator.Validator
	onError     ErrorHandler
	readLimit   int64
	pongWait    time.Duration
}

type Option func(*WSRouter)

func WithErrorHandler(h ErrorHandler) Option {
	return func(r *WSRouter) { r.onError = h }
}

func WithValidator(v *validator.Validator) Option {
	return func(r *WSRouter) { r.validate = v }
}

func WithReadLimit(n int64) Option {
	return func(r *WSRouter) { r.readLimit = n }
}

// WithPongWait makes the read loop fail when neither a message nor a pong arrives within d.
func WithPongWait(d time.Duration) Option {
	return func(r *WSRouter) { r.pongWait = d }
}

func New(opts ...Option) *WSRouter {
	r := &WSRouter{
		routes:    make(map[string]route),
		validate:  validator.NewValidator(),
		onError:   func(context.Context, *wsconn.Conn, error) {},
		readLimit: 64 * 1024,
	}
	for _, opt := range opts {
		opt(r)
	}

	return r
}

func (r *WSRouter) Use(mws ...Middleware) {
	r.middlewares = append(r.middlewares, mws...)
}

// Handle registers handler for messageType. The payload is decoded into T and validated
// before the middleware chain runs.
func Handle[T any](r *WSRouter, messageType string, handler HandlerFunc[T]) {
	final := func(ctx context.Context, conn *wsconn.Conn, payload any) error {
		return handler(ctx, conn, payload.(T))
	}

	r.routes[messageType] = func(ctx context.Context, conn *wsconn.Conn, raw json.RawMessage) error {
		var payload T
		if len(raw) > 0 && string(raw) != "null" {
			if err := json.Unmarshal(raw, &payload); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
			}
		}

		if errs, ok := r.validate.Validate(payload); !ok {
			return &ValidationFailedError{Errors: errs}
		}

		h := HandlerFunc[any](final)
		for i := len(r.middlewares) - 1; i >= 0; i-- {
			h = r.middlewares[i](h)
		}

		return h(ctx, conn, payload)
	}
}

func (r *WSRouter) ServeConn(ctx context.Context, conn *wsconn.Conn) error {
	ws := conn.WS()
	ws.SetReadLimit(r.readLimit)
	if r.pongWait > 0 {
		ws.SetReadDeadline(time.Now().Add(r.pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(r.pongWait))
		})
	}

	stop := context.AfterFunc(ctx, func() {
		conn.Close(websocket.CloseGoingAway, "server shutting down")
	})
	defer stop()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}

		if r.pongWait > 0 {
			ws.SetReadDeadline(time.Now().Add(r.pongWait))
		}

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			r.onError(ctx, conn, fmt.Errorf("%w: %w", ErrInvalidFrame, err))
			continue
		}

		r.dispatch(ctx, conn, &msg)
	}
}

func (r *WSRouter) dispatch(ctx context.Context, conn *wsconn.Conn, msg *message) {
	ctx = context.WithValue(ctx, messageTypeKey, msg.Type)

	defer func() {
		if rec := recover(); rec != nil {
			r.onError(ctx, conn, fmt.Errorf("%w: %v", ErrHandlerPanic, rec))
		}
	}()

	handler, ok := r.routes[msg.Type]
	if !ok {
		r.onError(ctx, conn, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type))
		return
	}

	if err := handler(ctx, conn, msg.Payload); err != nil {
		r.onError(ctx, conn, err)
	}
}
