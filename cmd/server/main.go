package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/anitogether/relay/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	host = configVar[string]{
		envKey:       "RELAY_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	port = configVar[int]{
		envKey:       "RELAY_PORT",
		flagKey:      "port",
		defaultValue: 4000,
		usage:        "Server port",
	}
	logLevel = configVar[string]{
		envKey:       "RELAY_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "",
		usage:        "Redis host for the presence store, in-memory store when empty",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
	presenceTTL = configVar[time.Duration]{
		envKey:       "RELAY_PRESENCE_TTL",
		flagKey:      "presence-ttl",
		defaultValue: 6 * time.Hour,
		usage:        "Expiration of presence records in Redis",
	}
	sendBuffer = configVar[int]{
		envKey:       "RELAY_SEND_BUFFER",
		flagKey:      "send-buffer",
		defaultValue: 128,
		usage:        "Outbound messages buffered per connection before it is dropped",
	}
	writeWait = configVar[time.Duration]{
		envKey:       "RELAY_WRITE_WAIT",
		flagKey:      "write-wait",
		defaultValue: 10 * time.Second,
		usage:        "Websocket write deadline",
	}
	pingPeriod = configVar[time.Duration]{
		envKey:       "RELAY_PING_PERIOD",
		flagKey:      "ping-period",
		defaultValue: 30 * time.Second,
		usage:        "Websocket ping interval",
	}
	pongWait = configVar[time.Duration]{
		envKey:       "RELAY_PONG_WAIT",
		flagKey:      "pong-wait",
		defaultValue: 60 * time.Second,
		usage:        "How long a silent websocket peer is kept, must exceed ping-period",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("failed to load .env: %v", err)
	}

	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.Duration(presenceTTL.flagKey, presenceTTL.defaultValue, presenceTTL.usage)
	pflag.Int(sendBuffer.flagKey, sendBuffer.defaultValue, sendBuffer.usage)
	pflag.Duration(writeWait.flagKey, writeWait.defaultValue, writeWait.usage)
	pflag.Duration(pingPeriod.flagKey, pingPeriod.defaultValue, pingPeriod.usage)
	pflag.Duration(pongWait.flagKey, pongWait.defaultValue, pongWait.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(host)
	bind(port)
	bind(logLevel)
	bind(redisHost)
	bind(redisPort)
	bind(redisPassword)
	bind(presenceTTL)
	bind(sendBuffer)
	bind(writeWait)
	bind(pingPeriod)
	bind(pongWait)

	return &app.AppConfig{
		Host:          viper.GetString(host.flagKey),
		Port:          viper.GetInt(port.flagKey),
		LogLevel:      viper.GetString(logLevel.flagKey),
		RedisHost:     viper.GetString(redisHost.flagKey),
		RedisPort:     viper.GetInt(redisPort.flagKey),
		RedisPassword: viper.GetString(redisPassword.flagKey),
		PresenceTTL:   viper.GetDuration(presenceTTL.flagKey),
		SendBuffer:    viper.GetInt(sendBuffer.flagKey),
		WriteWait:     viper.GetDuration(writeWait.flagKey),
		PingPeriod:    viper.GetDuration(pingPeriod.flagKey),
		PongWait:      viper.GetDuration(pongWait.flagKey),
	}
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	if err := app.Run(ctx, appConfig); err != nil {
		log.Fatal(err)
	}
}
