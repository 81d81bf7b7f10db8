package config

import (
	_ "embed"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/vision-assist/internal/constants"
)

//go:embed prices.yaml
var pricesYAML []byte

type Config struct {
	OpenAI      OpenAIConfig
	Gemini      GeminiConfig
	Ollama      OllamaConfig
	Detector    DetectorConfig
	Embedding   EmbeddingConfig
	Recognition RecognitionConfig
	Camera      CameraConfig
	Database    DatabaseConfig
	Web         WebConfig
	Log         LogConfig
	Prices      PricesConfig
}

type OpenAIConfig struct {
	Token string
	Model string // defaults to gpt-4.1-mini
}

type GeminiConfig struct {
	APIKey string
	Model  string // defaults to gemini-2.5-flash
}

type OllamaConfig struct {
	URL   string // defaults to http://localhost:11434
	Model string // defaults to llama3.2
}

type DetectorConfig struct {
	URL      string  // defaults to http://localhost:8000
	MinScore float64 // detections below this score are dropped
}

type EmbeddingConfig struct {
	URL       string // TensorFlow Serving base URL, defaults to http://localhost:8501
	Model     string // served model name, defaults to mobile_face_net
	Dim       int    // defaults to 192
	InputSize int    // defaults to 112
}

type RecognitionConfig struct {
	Threshold float64 // strict upper bound on Euclidean distance for a match
	Index     string  // "linear" (exact) or "hnsw" (approximate)
}

// UseHNSW reports whether the approximate gallery index is enabled.
func (c *RecognitionConfig) UseHNSW() bool {
	return strings.EqualFold(c.Index, "hnsw")
}

type CameraConfig struct {
	URL           string        // polled remote image endpoint
	Device        string        // local V4L2 device, e.g. /dev/video0
	PollDelay     time.Duration // delay between processed frames
	SkipUnchanged bool          // skip frames whose dHash matches the previous frame
	Announce      bool          // initial state of the announcement toggle
}

// Configured reports whether any frame source is configured.
func (c *CameraConfig) Configured() bool {
	return c.URL != "" || c.Device != ""
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL, empty means in-memory store
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type WebConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string // CORS origins besides localhost
	APIToken       string   // bearer token required by the API when set
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

type PricesConfig struct {
	Models map[string]ModelPricing `yaml:"models"`
}

type ModelPricing struct {
	Standard RequestPricing `yaml:"standard"`
	Batch    RequestPricing `yaml:"batch"`
}

type RequestPricing struct {
	Input  float64 `yaml:"input"`
	Output float64 `yaml:"output"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a positive float.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// envDuration accepts Go duration strings ("750ms") or plain milliseconds ("750").
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(s); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

// envList reads a comma-separated environment variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func Load() *Config {
	var prices PricesConfig
	if err := yaml.Unmarshal(pricesYAML, &prices); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded prices.yaml: " + err.Error())
	}

	return &Config{
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
			Model: envString("OPENAI_MODEL", "gpt-4.1-mini"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  envString("GEMINI_MODEL", "gemini-2.5-flash"),
		},
		Ollama: OllamaConfig{
			URL:   envString("OLLAMA_URL", "http://localhost:11434"),
			Model: envString("OLLAMA_MODEL", "llama3.2"),
		},
		Detector: DetectorConfig{
			URL:      envString("DETECTOR_URL", "http://localhost:8000"),
			MinScore: envFloat("DETECTOR_MIN_SCORE", constants.DefaultMinDetectionScore),
		},
		Embedding: EmbeddingConfig{
			URL:       envString("EMBEDDING_URL", "http://localhost:8501"),
			Model:     envString("EMBEDDING_MODEL", "mobile_face_net"),
			Dim:       envInt("EMBEDDING_DIM", constants.EmbeddingDim),
			InputSize: envInt("EMBEDDING_INPUT_SIZE", constants.EmbeddingInputSize),
		},
		Recognition: RecognitionConfig{
			Threshold: envFloat("MATCH_THRESHOLD", constants.DefaultMatchThreshold),
			Index:     envString("MATCH_INDEX", "linear"),
		},
		Camera: CameraConfig{
			URL:           os.Getenv("CAMERA_URL"),
			Device:        os.Getenv("CAMERA_DEVICE"),
			PollDelay:     envDuration("CAMERA_POLL_DELAY", constants.DefaultPollDelay),
			SkipUnchanged: envBool("CAMERA_SKIP_UNCHANGED", false),
			Announce:      envBool("ANNOUNCEMENTS_ENABLED", false),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
			APIToken:       os.Getenv("WEB_API_TOKEN"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "text"),
		},
		Prices: prices,
	}
}

// GetModelPricing returns pricing for a specific model, with fallback defaults
func (c *Config) GetModelPricing(modelName string) ModelPricing {
	if pricing, ok := c.Prices.Models[modelName]; ok {
		return pricing
	}
	// Return zero pricing if model not found
	return ModelPricing{}
}
