package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/anitogether/relay/internal/controller"
	connMemory "github.com/anitogether/relay/internal/repository/connection/inmemory"
	presenceMemory "github.com/anitogether/relay/internal/repository/presence/inmemory"
	presenceRedis "github.com/anitogether/relay/internal/repository/presence/redis"
	roomMemory "github.com/anitogether/relay/internal/repository/room/inmemory"
	"github.com/anitogether/relay/internal/service/presence"
	"github.com/anitogether/relay/internal/service/room"
	"github.com/anitogether/relay/pkg/ctxlogger"
	"github.com/anitogether/relay/pkg/protocol"
	"github.com/anitogether/relay/pkg/redisclient"
	"github.com/anitogether/relay/pkg/wsconn"
)

type AppConfig struct {
	Host          string        `json:"host"`
	Port          int           `json:"port"`
	LogLevel      string        `json:"log_level"`
	RedisHost     string        `json:"redis_host"`
	RedisPort     int           `json:"redis_port"`
	RedisPassword string        `json:"-"`
	PresenceTTL   time.Duration `json:"presence_ttl"`
	SendBuffer    int           `json:"send_buffer"`
	WriteWait     time.Duration `json:"write_wait"`
	PingPeriod    time.Duration `json:"ping_period"`
	PongWait      time.Duration `json:"pong_wait"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be in range 1-65535, got %d", cfg.Port)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.LogLevel))); err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}
	if cfg.RedisHost != "" && (cfg.RedisPort < 1 || cfg.RedisPort > 65535) {
		return fmt.Errorf("redis port must be in range 1-65535, got %d", cfg.RedisPort)
	}
	if cfg.PresenceTTL <= 0 {
		return errors.New("presence ttl must be greater than 0")
	}
	if cfg.SendBuffer < 1 {
		return errors.New("send buffer must be greater than 0")
	}
	if cfg.WriteWait <= 0 {
		return errors.New("write wait must be greater than 0")
	}
	if cfg.PingPeriod <= 0 {
		return errors.New("ping period must be greater than 0")
	}
	if cfg.PongWait <= cfg.PingPeriod {
		return fmt.Errorf("pong wait must be greater than ping period %s, got %s", cfg.PingPeriod, cfg.PongWait)
	}

	return nil
}

func newLogger(level string) *slog.Logger {
	logLevel := slog.LevelInfo
	_ = logLevel.UnmarshalText([]byte(strings.ToUpper(level)))

	h := ctxlogger.ContextHandler{
		Handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level:     logLevel,
			AddSource: true,
		}),
	}

	return slog.New(&h)
}

type iPresenceRepo interface {
	AddMember(ctx context.Context, roomKey string, member protocol.Member) error
	RemoveMember(ctx context.Context, roomKey, connId string) error
	RefreshMember(ctx context.Context, roomKey, connId string) error
	GetMembers(ctx context.Context, roomKey string) ([]protocol.Member, error)
}

// newPresenceRepo picks the Redis store when a host is configured. The returned func releases it.
func newPresenceRepo(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (iPresenceRepo, func(), error) {
	if cfg.RedisHost == "" {
		logger.InfoContext(ctx, "using in-memory presence store")
		return presenceMemory.NewRepo(logger), func() {}, nil
	}

	rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	logger.InfoContext(ctx, "using redis presence store", "address", fmt.Sprintf("%s:%d", cfg.RedisHost, cfg.RedisPort))
	return presenceRedis.NewRepo(rc, cfg.PresenceTTL, logger), func() { rc.Close() }, nil
}

// NewHandler assembles the relay and returns its HTTP handler.
func NewHandler(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (http.Handler, func(), error) {
	presenceRepo, closePresence, err := newPresenceRepo(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	registry := roomMemory.NewRegistry(logger)
	tracker := presence.NewTracker(presenceRepo, nil, logger)
	registry.Subscribe(tracker)

	// presence of members that stay connected must outlive the store ttl
	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	go tracker.Run(heartbeatCtx, cfg.PresenceTTL/3)

	roomService := room.NewService(registry, connMemory.NewRepo(logger), tracker, nil, logger)
	controller := controller.NewController(roomService, wsconn.Config{
		SendBuffer: cfg.SendBuffer,
		WriteWait:  cfg.WriteWait,
		PingPeriod: cfg.PingPeriod,
		PongWait:   cfg.PongWait,
	}, logger)

	return controller.GetMux(), func() {
		stopHeartbeat()
		closePresence()
	}, nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := newLogger(cfg.LogLevel)

	// graceful shutdown
	serverCtx, serverStopCtx := signal.NotifyContext(ctx, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer serverStopCtx()

	handler, closeHandler, err := NewHandler(serverCtx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeHandler()

	server := &http.Server{
		Addr:    net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
		Handler: handler,
		// websocket handlers outlive Shutdown; canceling the base context closes them.
		BaseContext: func(net.Listener) context.Context {
			return serverCtx
		},
	}

	errCh := make(chan error, 1)
	go func() {
		logger.InfoContext(serverCtx, "starting server", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-serverCtx.Done():
	}

	logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	return nil
}
