package ctxlogger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContextHandlerAddsAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ContextHandler{Handler: slog.NewJSONHandler(&buf, nil)})

	ctx := AppendCtx(context.Background(), slog.String("request_id", "req-1"))
	ctx = AppendCtx(ctx, slog.String("room_key", "watch_42"))
	logger.InfoContext(ctx, "hello")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "req-1", record["request_id"])
	assert.Equal(t, "watch_42", record["room_key"])
}

func TestAppendCtxDoesNotLeakIntoParent(t *testing.T) {
	parent := AppendCtx(context.Background(), slog.String("a", "1"))
	child1 := AppendCtx(parent, slog.String("b", "2"))
	child2 := AppendCtx(parent, slog.String("c", "3"))

	assert.Len(t, AttrsFromCtx(parent), 1)
	assert.Len(t, AttrsFromCtx(child1), 2)
	assert.Equal(t, "c", AttrsFromCtx(child2)[1].Key)
}
