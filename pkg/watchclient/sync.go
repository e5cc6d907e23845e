package watchclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/anitogether/relay/pkg/protocol"
	"github.com/benbjohnson/clock"
)

type syncSender interface {
	SyncWatch(ctx context.Context, event protocol.SyncEvent) error
}

// SyncAgent bridges a local player and the relay. After a remote command is applied, the
// player's own reaction to it is not re-broadcast until the settle window has passed.
type SyncAgent struct {
	roomKey string
	player  Player
	sender  syncSender
	clock   clock.Clock
	settle  time.Duration
	logger  *slog.Logger

	mu             sync.Mutex
	lastKnownTime  float64
	applyingRemote bool
	settleTimer    *clock.Timer
	settleGen      uint64
	pending        *protocol.SyncEvent
	closed         bool
}

func NewSyncAgent(roomKey string, player Player, sender syncSender, opts ...Option) *SyncAgent {
	o := newOptions(opts)

	return &SyncAgent{
		roomKey: roomKey,
		player:  player,
		sender:  sender,
		clock:   o.clock,
		settle:  o.settleWindow,
		logger:  o.logger.With("room_key", roomKey),
	}
}

func (a *SyncAgent) HandlePlay(ctx context.Context) error {
	return a.emit(ctx, protocol.ActionPlay, nil)
}

func (a *SyncAgent) HandlePause(ctx context.Context) error {
	return a.emit(ctx, protocol.ActionPause, nil)
}

func (a *SyncAgent) HandleSeek(ctx context.Context, seconds float64) error {
	return a.emit(ctx, protocol.ActionSeek, &seconds)
}

// HandleTimeUpdate records the playback position. It keeps tracking while a remote command settles.
func (a *SyncAgent) HandleTimeUpdate(seconds float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return
	}
	a.lastKnownTime = seconds
}

func (a *SyncAgent) LastKnownTime() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.lastKnownTime
}

func (a *SyncAgent) IsApplyingRemote() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.applyingRemote
}

func (a *SyncAgent) emit(ctx context.Context, action protocol.Action, seekTo *float64) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	if seekTo != nil {
		a.lastKnownTime = *seekTo
	}
	if a.applyingRemote {
		a.mu.Unlock()
		return nil
	}

	event := protocol.SyncEvent{
		RoomKey: a.roomKey,
		Action:  action,
	}
	if action != protocol.ActionPause {
		t := a.lastKnownTime
		event.Time = &t
	}
	a.mu.Unlock()

	if err := a.sender.SyncWatch(ctx, event); err != nil {
		return fmt.Errorf("failed to send %s: %w", action, err)
	}

	return nil
}

// ApplyRemote commands the player to follow a sync event from another member. Events for
// other rooms and seeks without a position are ignored. A player that is not ready keeps the
// most recent event until PlayerReady.
func (a *SyncAgent) ApplyRemote(event protocol.SyncEvent) error {
	if event.Action == protocol.ActionSeek && event.Time == nil {
		a.logger.Warn("seek without time dropped", "originator_id", event.OriginatorId)
		return nil
	}

	a.mu.Lock()
	if a.closed || event.RoomKey != a.roomKey {
		a.mu.Unlock()
		return nil
	}
	a.startSettleLocked()
	a.mu.Unlock()

	return a.apply(event)
}

// PlayerReady replays the command that arrived before the player could take it.
func (a *SyncAgent) PlayerReady() error {
	a.mu.Lock()
	event := a.pending
	a.pending = nil
	if a.closed || event == nil {
		a.mu.Unlock()
		return nil
	}
	a.startSettleLocked()
	a.mu.Unlock()

	return a.apply(*event)
}

func (a *SyncAgent) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.closed = true
	a.pending = nil
	a.applyingRemote = false
	if a.settleTimer != nil {
		a.settleTimer.Stop()
		a.settleTimer = nil
	}
}

func (a *SyncAgent) apply(event protocol.SyncEvent) error {
	var err error
	switch event.Action {
	case protocol.ActionPlay:
		if event.Time != nil {
			err = a.player.SeekTo(*event.Time)
		}
		if err == nil {
			err = a.player.Play()
		}
	case protocol.ActionPause:
		err = a.player.Pause()
	case protocol.ActionSeek:
		err = a.player.SeekTo(*event.Time)
	default:
		return fmt.Errorf("%w: %q", protocol.ErrInvalidAction, event.Action)
	}

	if errors.Is(err, ErrPlayerNotReady) {
		a.mu.Lock()
		if !a.closed {
			a.pending = &event
		}
		a.mu.Unlock()
		a.logger.Debug("player not ready, command deferred", "action", event.Action)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to apply %s: %w", event.Action, err)
	}

	a.mu.Lock()
	a.pending = nil
	a.mu.Unlock()

	return nil
}

// startSettleLocked opens the settle window or restarts it if already open.
func (a *SyncAgent) startSettleLocked() {
	a.applyingRemote = true
	if a.settleTimer != nil {
		a.settleTimer.Stop()
	}

	a.settleGen++
	gen := a.settleGen
	a.settleTimer = a.clock.AfterFunc(a.settle, func() {
		a.mu.Lock()
		defer a.mu.Unlock()

		if a.settleGen == gen && !a.closed {
			a.applyingRemote = false
			a.settleTimer = nil
		}
	})
}
