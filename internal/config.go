package internal

import (
	"chat-relay/errors"
	"fmt"
	"time"
)

const (
	StoreBadger   = "badger"
	StorePostgres = "postgres"
	BusLocal      = "local"
	BusNats       = "nats"
)

type Config struct {
	Host     string `env:"HOST,default=0.0.0.0"`
	Port     int    `env:"PORT,default=8080"`
	LogLevel string `env:"LOG_LEVEL,default=INFO"`

	StoreDriver    string `env:"STORE_DRIVER,default=badger"`
	BadgerFilepath string `env:"BADGER_FILEPATH"`
	DatabaseURL    string `env:"DATABASE_URL"`

	BusDriver         string `env:"BUS_DRIVER,default=local"`
	NatsURL           string `env:"NATS_URL"`
	NatsSubjectPrefix string `env:"NATS_SUBJECT_PREFIX,default=chat"`

	JWTSecret     string `env:"JWT_SECRET,required=true"`
	JWTIssuer     string `env:"JWT_ISSUER,default=chat-relay"`
	InternalToken string `env:"INTERNAL_TOKEN,required=true"`

	AuthTimeout          time.Duration `env:"AUTH_TIMEOUT,default=10s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	WriteTimeout         time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	PongWait             time.Duration `env:"PONG_WAIT,default=60s"`
	PingInterval         time.Duration `env:"PING_INTERVAL,default=50s"`
	MaxFrameBytes        int           `env:"MAX_FRAME_BYTES,default=65536"`
	StoreTimeout         time.Duration `env:"STORE_TIMEOUT,default=5s"`

	RegistryShards    int           `env:"REGISTRY_SHARDS,default=32"`
	RestartInterval   time.Duration `env:"RESTART_INTERVAL,default=2s"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=15s"`
	HealthPort        int           `env:"HEALTH_PORT,default=8081"`
	DebugPort         int           `env:"DEBUG_PORT,default=8082"`
}

// Validate checks what the tags cannot express: driver names and the
// settings each driver depends on.
func (c Config) Validate() error {
	switch c.StoreDriver {
	case StoreBadger:
		if c.BadgerFilepath == "" {
			return fmt.Errorf("BADGER_FILEPATH is required with STORE_DRIVER=%s", StoreBadger)
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required with STORE_DRIVER=%s", StorePostgres)
		}
	default:
		return fmt.Errorf("%w: STORE_DRIVER=%q", errors.ErrUnknownDriver, c.StoreDriver)
	}

	switch c.BusDriver {
	case BusLocal:
	case BusNats:
		if c.NatsURL == "" {
			return fmt.Errorf("NATS_URL is required with BUS_DRIVER=%s", BusNats)
		}
	default:
		return fmt.Errorf("%w: BUS_DRIVER=%q", errors.ErrUnknownDriver, c.BusDriver)
	}

	if c.PingInterval >= c.PongWait {
		return fmt.Errorf("PING_INTERVAL (%s) must be shorter than PONG_WAIT (%s)", c.PingInterval, c.PongWait)
	}
	if c.ConnectionBufferSize < 1 {
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	}
	if c.RegistryShards < 1 {
		return fmt.Errorf("REGISTRY_SHARDS must be positive, got %d", c.RegistryShards)
	}
	return nil
}
