package controller

import (
	"context"

	"github.com/anitogether/relay/pkg/protocol"
)

type contextKey int

const (
	identityCtxKey contextKey = iota
)

func (c controller) getIdentityFromCtx(ctx context.Context) protocol.Identity {
	identity, ok := ctx.Value(identityCtxKey).(protocol.Identity)
	if !ok {
		return protocol.Identity{}
	}

	return identity
}
