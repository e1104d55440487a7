package internal

import (
	"chat-relay/domain"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	LogLevel       string `env:"LOG_LEVEL,default=INFO"`
	Host           string `env:"HOST,default=0.0.0.0"`
	Port           int    `env:"PORT,default=8080"`
	GrpcPort       int    `env:"GRPC_PORT,default=9090"`
	DebugPort      int    `env:"DEBUG_PORT,default=8081"`
	BadgerFilepath string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath  string `env:"BLUGE_FILEPATH,required=true"`

	JwtSecret         string        `env:"JWT_SECRET,required=true"`
	AuthTokenDuration time.Duration `env:"AUTH_TOKEN_DURATION,default=24h"`
	AdminUserIDs      string        `env:"ADMIN_USER_IDS"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS"`

	MaxContentLength     int           `env:"MAX_CONTENT_LENGTH,default=2000"`
	LimitMessages        int           `env:"LIMIT_MESSAGES,default=100"`
	ReplayLimit          int           `env:"REPLAY_LIMIT,default=500"`
	SearchLimit          int           `env:"SEARCH_LIMIT,default=50"`
	TypingExpiry         time.Duration `env:"TYPING_EXPIRY,default=3s"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=256"`
	BufferSize           int           `env:"BUFFER_SIZE,default=1024"`
	FramesPerSecond      float64       `env:"FRAMES_PER_SECOND,default=20"`
	FrameBurst           int           `env:"FRAME_BURST,default=40"`
	RequestTimeout       time.Duration `env:"REQUEST_TIMEOUT,default=10s"`
	ShutdownTimeout      time.Duration `env:"SHUTDOWN_TIMEOUT,default=10s"`

	RestartInterval        time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MetricInterval         time.Duration `env:"METRIC_INTERVAL,default=5s"`
	BreakerFailures        int           `env:"BREAKER_FAILURES,default=5"`
	BreakerOpenTimeout     time.Duration `env:"BREAKER_OPEN_TIMEOUT,default=10s"`
	BreakerHalfOpenRequest int           `env:"BREAKER_HALF_OPEN_REQUESTS,default=1"`
}

// Validate checks what go-env cannot express.
func (c Config) Validate() error {
	switch {
	case c.MaxContentLength <= 0:
		return fmt.Errorf("MAX_CONTENT_LENGTH must be positive, got %d", c.MaxContentLength)
	case c.LimitMessages <= 0:
		return fmt.Errorf("LIMIT_MESSAGES must be positive, got %d", c.LimitMessages)
	case c.TypingExpiry <= 0:
		return fmt.Errorf("TYPING_EXPIRY must be positive, got %s", c.TypingExpiry)
	case c.ConnectionBufferSize <= 0:
		return fmt.Errorf("CONNECTION_BUFFER_SIZE must be positive, got %d", c.ConnectionBufferSize)
	case c.FramesPerSecond <= 0 || c.FrameBurst <= 0:
		return fmt.Errorf("FRAMES_PER_SECOND and FRAME_BURST must be positive")
	case len(c.JwtSecret) < 32:
		return fmt.Errorf("JWT_SECRET must hold at least 32 characters")
	}
	return nil
}

func (c Config) Admins() []domain.UserID {
	return lo.Map(splitList(c.AdminUserIDs), func(id string, _ int) domain.UserID { return domain.UserID(id) })
}

func (c Config) Origins() []string {
	return splitList(c.AllowedOrigins)
}

func splitList(raw string) []string {
	return lo.Compact(lo.Map(strings.Split(raw, ","), func(s string, _ int) string { return strings.TrimSpace(s) }))
}
