// Package protocol holds the frames exchanged between the relay and its clients.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Client -> server message types.
const (
	TypeJoinRoom          = "join-room"
	TypeLeaveRoom         = "leave-room"
	TypeWatchSync         = "watch-sync"
	TypeRoomMessage       = "room-message"
	TypeSendGlobalMessage = "send-global-message"
	TypeAlive             = "alive"
)

// Server -> client message types. Sync and room chat reuse the inbound names.
const (
	TypeJoinedRoom    = "joined-room"
	TypeMemberJoined  = "member-joined"
	TypeMemberLeft    = "member-left"
	TypeGlobalMessage = "global-message"
	TypeError         = "error"
)

var (
	ErrInvalidAction = errors.New("invalid sync action")
	ErrMissingTime   = errors.New("sync action requires a time")
)

type Action string

const (
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
)

func (a Action) Valid() bool {
	switch a {
	case ActionPlay, ActionPause, ActionSeek:
		return true
	}

	return false
}

type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Identity is supplied by the auth collaborator and forwarded as metadata only.
type Identity struct {
	Id     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

type Member struct {
	ConnectionId string    `json:"connection_id"`
	UserId       string    `json:"user_id"`
	Name         string    `json:"name"`
	Avatar       string    `json:"avatar"`
	JoinedAt     time.Time `json:"joined_at"`
}

type SyncEvent struct {
	RoomKey      string   `json:"room_key" validate:"required,max=128"`
	Action       Action   `json:"action" validate:"required,oneof=play pause seek"`
	Time         *float64 `json:"time,omitempty" validate:"omitempty,gte=0"`
	OriginatorId string   `json:"originator_id"`
}

// Check rejects events a player could not follow: an unknown action, or a play or seek
// without a position.
func (e SyncEvent) Check() error {
	if !e.Action.Valid() {
		return ErrInvalidAction
	}
	if e.Action != ActionPause && e.Time == nil {
		return fmt.Errorf("%w: %s", ErrMissingTime, e.Action)
	}

	return nil
}

// TimeOr returns the playback offset, or def when the event carries none.
func (e SyncEvent) TimeOr(def float64) float64 {
	if e.Time == nil {
		return def
	}

	return *e.Time
}

type ChatMessage struct {
	Id           string `json:"id"`
	RoomKey      string `json:"room_key,omitempty"`
	SenderId     string `json:"sender_id"`
	SenderName   string `json:"sender_name" validate:"max=64"`
	SenderAvatar string `json:"sender_avatar"`
	Text         string `json:"text" validate:"required,max=2000"`
	Timestamp    int64  `json:"timestamp"`
}

type JoinRoomInput struct {
	RoomKey string `json:"room_key" validate:"required,max=128"`
}

// UnmarshalJSON accepts both {"room_key": "..."} and a bare JSON string.
func (in *JoinRoomInput) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &in.RoomKey)
	}

	type plain JoinRoomInput
	return json.Unmarshal(data, (*plain)(in))
}

type LeaveRoomInput struct {
	RoomKey string `json:"room_key" validate:"max=128"`
}

type RoomChatInput struct {
	ChatMessage
	RoomKey string `json:"room_key" validate:"required,max=128"`
}

type JoinedRoomPayload struct {
	RoomKey string   `json:"room_key"`
	Members []Member `json:"members"`
}

type MembersPayload struct {
	RoomKey string   `json:"room_key"`
	Member  Member   `json:"member"`
	Members []Member `json:"members"`
}

type ErrorPayload struct {
	Message string `json:"message"`
	Errors  any    `json:"errors,omitempty"`
}
