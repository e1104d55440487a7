package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_HTTP_URL is the base url of a running relay, e2e scenarios skip without it
	HTTPURL  string `envconfig:"RELAY_HTTP_URL"`
	GrpcAddr string `envconfig:"RELAY_GRPC_ADDR" default:"localhost:9090"`
	// JWT_SECRET must match the relay to mint the test tokens
	JwtSecret string `envconfig:"JWT_SECRET"`
	// RoomID must exist with CustomerID and CompanyID as participants, see chatctl room create
	RoomID     string `envconfig:"E2E_ROOM_ID" default:"e2e-room"`
	CustomerID string `envconfig:"E2E_CUSTOMER_ID" default:"e2e-customer"`
	CompanyID  string `envconfig:"E2E_COMPANY_ID" default:"e2e-company"`
	// E2E_DEBUG_JSON dumps every frame exchanged
	DebugJSON bool `envconfig:"E2E_DEBUG_JSON" default:"false"`
	// E2E_COLOURS enables colorized output for better log readability
	Colours bool `envconfig:"E2E_COLOURS" default:"true"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
