package watchclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

const kodikAPIKey = "kodik_player_api"

// Inbound Kodik iframe events.
const (
	kodikEventPlay       = "kodik_player_play"
	kodikEventPause      = "kodik_player_pause"
	kodikEventTimeUpdate = "kodik_player_time_update"
	kodikEventSeek       = "kodik_player_seek"
	kodikEventDuration   = "kodik_player_duration_update"
)

var ErrUnknownKodikEvent = errors.New("unknown kodik event")

type kodikCommand struct {
	Key   string            `json:"key"`
	Value kodikCommandValue `json:"value"`
}

type kodikCommandValue struct {
	Method     string `json:"method"`
	Parameters any    `json:"parameters,omitempty"`
}

type kodikEvent struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// KodikPlayer drives an embedded Kodik player through its postMessage protocol.
// post delivers one encoded command to the iframe.
type KodikPlayer struct {
	post func(data []byte) error

	mu     sync.Mutex
	ready  bool
	events PlayerEvents
}

func NewKodikPlayer(post func(data []byte) error) *KodikPlayer {
	return &KodikPlayer{post: post}
}

// Attach routes decoded player events to events, typically a SyncAgent.
func (p *KodikPlayer) Attach(events PlayerEvents) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = events
}

func (p *KodikPlayer) SeekTo(seconds float64) error {
	return p.command("seek", seconds)
}

func (p *KodikPlayer) Play() error {
	return p.command("play", nil)
}

func (p *KodikPlayer) Pause() error {
	return p.command("pause", nil)
}

// MarkReady declares the iframe loaded and replays any deferred command.
func (p *KodikPlayer) MarkReady() error {
	p.mu.Lock()
	if p.ready {
		p.mu.Unlock()
		return nil
	}
	p.ready = true
	events := p.events
	p.mu.Unlock()

	if events == nil {
		return nil
	}

	return events.PlayerReady()
}

func (p *KodikPlayer) command(method string, parameters any) error {
	p.mu.Lock()
	ready := p.ready
	p.mu.Unlock()

	if !ready {
		return ErrPlayerNotReady
	}

	data, err := json.Marshal(kodikCommand{
		Key: kodikAPIKey,
		Value: kodikCommandValue{
			Method:     method,
			Parameters: parameters,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", method, err)
	}

	return p.post(data)
}

// HandleMessage decodes one message posted by the iframe. The first event marks the player ready.
func (p *KodikPlayer) HandleMessage(ctx context.Context, raw []byte) error {
	var event kodikEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return fmt.Errorf("failed to decode kodik event: %w", err)
	}

	switch event.Key {
	case kodikEventPlay, kodikEventPause, kodikEventTimeUpdate, kodikEventSeek, kodikEventDuration:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKodikEvent, event.Key)
	}

	if err := p.MarkReady(); err != nil {
		return err
	}

	p.mu.Lock()
	events := p.events
	p.mu.Unlock()
	if events == nil {
		return nil
	}

	switch event.Key {
	case kodikEventPlay:
		return events.HandlePlay(ctx)
	case kodikEventPause:
		return events.HandlePause(ctx)
	case kodikEventTimeUpdate:
		var seconds float64
		if err := json.Unmarshal(event.Value, &seconds); err != nil {
			return fmt.Errorf("failed to decode time update: %w", err)
		}
		events.HandleTimeUpdate(seconds)
		return nil
	case kodikEventSeek:
		var value struct {
			Time float64 `json:"time"`
		}
		if err := json.Unmarshal(event.Value, &value); err != nil {
			return fmt.Errorf("failed to decode seek: %w", err)
		}
		return events.HandleSeek(ctx, value.Time)
	}

	return nil
}
