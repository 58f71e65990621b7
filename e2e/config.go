package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR is host:port of a running relay, the suites are skipped without it
	RelayAddr  string `envconfig:"RELAY_ADDR"`
	HealthAddr string `envconfig:"HEALTH_ADDR"`

	JWTSecret     string `envconfig:"JWT_SECRET"`
	JWTIssuer     string `envconfig:"JWT_ISSUER" default:"chat-relay"`
	InternalToken string `envconfig:"INTERNAL_TOKEN"`

	// Seeded fixtures, see cmd/inspect -seed
	AliceID        int64 `envconfig:"E2E_ALICE_ID" default:"1"`
	BobID          int64 `envconfig:"E2E_BOB_ID" default:"2"`
	ConversationID int64 `envconfig:"E2E_CONVERSATION_ID" default:"7"`

	// E2E_DEBUG_JSON dumps every frame received
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
