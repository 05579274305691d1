package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultModel         = "models/gemini-2.5-flash-native-audio-preview-12-2025"
	DefaultSubAgentModel = "gemini-2.0-flash"
	DefaultVoice         = "Kore"
)

// Config holds all server configuration
type Config struct {
	Port            int
	RedisURL        string
	RedisPassword   string
	SessionTimeout  time.Duration
	GeminiAPIKey    string
	AllowedOrigins  []string
	KeepAlivePeriod time.Duration

	Model         string
	SubAgentModel string
	VoiceName     string

	VideoMode           string // "camera", "screen" or "none"
	OutboundQueueSize   int
	ConfirmationTimeout time.Duration
	RequireConfirmation bool
	InputDevice         int // -1 selects the system default
	OutputDevice        int

	MemoryDir        string
	CADWorkDir       string
	PythonBin        string
	AuthToken        string
	ExtensionTimeout time.Duration
}

// LoadConfig loads configuration from environment variables with defaults
func LoadConfig() (*Config, error) {
	// Load .env file if it exists (doesn't error if missing)
	_ = godotenv.Load()

	config := &Config{
		Port:                8000,
		RedisURL:            "localhost:6379",
		SessionTimeout:      30 * time.Minute,
		AllowedOrigins:      []string{"*"},
		KeepAlivePeriod:     30 * time.Second,
		Model:               DefaultModel,
		SubAgentModel:       DefaultSubAgentModel,
		VoiceName:           DefaultVoice,
		VideoMode:           "none",
		OutboundQueueSize:   10,
		ConfirmationTimeout: 15 * time.Second,
		RequireConfirmation: true,
		InputDevice:         -1,
		OutputDevice:        -1,
		MemoryDir:           "long_term_memory",
		CADWorkDir:          "cad_output",
		PythonBin:           "python3",
		ExtensionTimeout:    15 * time.Second,
	}

	// Required: GEMINI_API_KEY
	config.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	if config.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	if err := intVar("PORT", &config.Port); err != nil {
		return nil, err
	}
	stringVar("REDIS_URL", &config.RedisURL)
	stringVar("REDIS_PASSWORD", &config.RedisPassword)

	// SESSION_TIMEOUT is in minutes
	if err := durationVar("SESSION_TIMEOUT", time.Minute, &config.SessionTimeout); err != nil {
		return nil, err
	}

	// ALLOWED_ORIGINS is comma-separated
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		config.AllowedOrigins = strings.Split(origins, ",")
	}

	// KEEPALIVE_PERIOD is in seconds
	if err := durationVar("KEEPALIVE_PERIOD", time.Second, &config.KeepAlivePeriod); err != nil {
		return nil, err
	}

	stringVar("MODEL", &config.Model)
	stringVar("SUBAGENT_MODEL", &config.SubAgentModel)
	stringVar("VOICE_NAME", &config.VoiceName)

	if mode := os.Getenv("VIDEO_MODE"); mode != "" {
		switch mode {
		case "camera", "screen", "none":
			config.VideoMode = mode
		default:
			return nil, fmt.Errorf("invalid VIDEO_MODE: must be 'camera', 'screen', or 'none'")
		}
	}

	if err := intVar("OUTBOUND_QUEUE_SIZE", &config.OutboundQueueSize); err != nil {
		return nil, err
	}
	if config.OutboundQueueSize < 1 {
		return nil, fmt.Errorf("invalid OUTBOUND_QUEUE_SIZE: must be at least 1")
	}

	// CONFIRMATION_TIMEOUT is in seconds
	if err := durationVar("CONFIRMATION_TIMEOUT", time.Second, &config.ConfirmationTimeout); err != nil {
		return nil, err
	}

	if v := os.Getenv("REQUIRE_CONFIRMATION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRE_CONFIRMATION: %w", err)
		}
		config.RequireConfirmation = b
	}

	if err := intVar("INPUT_DEVICE", &config.InputDevice); err != nil {
		return nil, err
	}
	if err := intVar("OUTPUT_DEVICE", &config.OutputDevice); err != nil {
		return nil, err
	}

	stringVar("MEMORY_DIR", &config.MemoryDir)
	stringVar("CAD_WORKDIR", &config.CADWorkDir)
	stringVar("PYTHON_BIN", &config.PythonBin)
	stringVar("AUTH_TOKEN", &config.AuthToken)

	// EXTENSION_TIMEOUT is in seconds
	if err := durationVar("EXTENSION_TIMEOUT", time.Second, &config.ExtensionTimeout); err != nil {
		return nil, err
	}

	return config, nil
}

func stringVar(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func intVar(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func durationVar(key string, unit time.Duration, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = time.Duration(n) * unit
	return nil
}
