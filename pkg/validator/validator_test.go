package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncInput struct {
	RoomKey string   `json:"room_key" validate:"required,max=8"`
	Action  string   `json:"action" validate:"required,oneof=play pause seek"`
	Time    *float64 `json:"time" validate:"omitempty,gte=0"`
}

func TestValidate(t *testing.T) {
	v := NewValidator()

	errs, ok := v.Validate(syncInput{RoomKey: "watch_42", Action: "play"})
	assert.True(t, ok)
	assert.Empty(t, errs)

	negative := -1.0
	errs, ok = v.Validate(&syncInput{RoomKey: "watch_42_too_long", Action: "rewind", Time: &negative})
	require.False(t, ok)
	require.Len(t, errs, 3)

	byField := make(map[string]ValidationError, len(errs))
	for _, e := range errs {
		byField[e.Field] = e
	}
	assert.Equal(t, "MAX", byField["room_key"].Code)
	assert.Equal(t, "ONEOF", byField["action"].Code)
	assert.Equal(t, "GTE", byField["time"].Code)
	assert.Equal(t, "action must be one of [play pause seek]", byField["action"].Message)
}

func TestValidateNonStruct(t *testing.T) {
	v := NewValidator()

	_, ok := v.Validate("watch_42")
	assert.True(t, ok)

	_, ok = v.Validate(nil)
	assert.True(t, ok)
}
