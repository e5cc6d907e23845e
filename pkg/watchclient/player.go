package watchclient

import (
	"context"
	"errors"
)

// ErrPlayerNotReady is returned by a Player that cannot take commands yet.
var ErrPlayerNotReady = errors.New("player not ready")

// Player is the control surface of the embedded video player.
type Player interface {
	SeekTo(seconds float64) error
	Play() error
	Pause() error
}

// PlayerEvents receives what the player reports. SyncAgent implements it.
type PlayerEvents interface {
	HandlePlay(ctx context.Context) error
	HandlePause(ctx context.Context) error
	HandleSeek(ctx context.Context, seconds float64) error
	HandleTimeUpdate(seconds float64)
	PlayerReady() error
}
