package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/hilthontt/codenexus/internal/infrastructure/env"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Channel     ChannelConfig     `koanf:"channel"`
	Storage     StorageConfig     `koanf:"storage"`
	HTTP        HTTPConfig        `koanf:"http"`
	Editor      EditorConfig      `koanf:"editor"`
	Import      ImportConfig      `koanf:"import"`
	Logger      LoggerConfig      `koanf:"logger"`
	Tracing     TracingConfig     `koanf:"tracing"`
	RateLimiter RateLimiterConfig `koanf:"rateLimiter"`
}

type ChannelConfig struct {
	URL                  string        `koanf:"url"`
	ReconnectionAttempts int           `koanf:"reconnection_attempts"`
	ReconnectionDelay    time.Duration `koanf:"reconnection_delay"`
	ReconnectionDelayMax time.Duration `koanf:"reconnection_delay_max"`
	Timeout              time.Duration `koanf:"timeout"`
	PingInterval         time.Duration `koanf:"ping_interval"`
	PongWait             time.Duration `koanf:"pong_wait"`
	AutoConnect          bool          `koanf:"auto_connect"`
}

type StorageConfig struct {
	Driver        string `koanf:"driver"`
	Dir           string `koanf:"dir"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPrefix   string `koanf:"redis_prefix"`
}

type HTTPConfig struct {
	Enabled      bool          `koanf:"enabled"`
	Host         string        `koanf:"host"`
	Port         uint16        `koanf:"port"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// Browser origins the control API answers. Requests carrying any other
	// Origin are refused.
	AllowedOrigins []string `koanf:"allowed_origins"`
}

type EditorConfig struct {
	TypingPause time.Duration `koanf:"typing_pause"`
}

type ImportConfig struct {
	MaxFileSize int64    `koanf:"max_file_size"`
	Exclude     []string `koanf:"exclude"`
	Workers     int      `koanf:"workers"`

	// Root confines directory imports requested over HTTP; empty disables them.
	Root string `koanf:"root"`
}

type LoggerConfig struct {
	FilePath string `koanf:"file_path"`
	Encoding string `koanf:"encoding"`
	Level    string `koanf:"level"`
	Logger   string `koanf:"logger"`
}

type TracingConfig struct {
	Enabled     bool   `koanf:"enabled"`
	Endpoint    string `koanf:"endpoint"`
	Environment string `koanf:"environment"`
}

type RateLimiterConfig struct {
	Strategy             string        `koanf:"strategy"`
	RequestsPerTimeFrame int           `koanf:"requests_per_time_frame"`
	TimeFrame            time.Duration `koanf:"time_frame"`
	MaxRatePerSecond     float64       `koanf:"maxRatePerSecond"`
	MaxBurst             int           `koanf:"maxBurst"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	applyDefaults(k)
	applyEnvOverrides(k)

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	// Channel defaults mirror the reconnection policy of the browser client.
	setDefault(k, "channel.url", "ws://localhost:3000/ws")
	setDefault(k, "channel.reconnection_attempts", 5)
	setDefault(k, "channel.reconnection_delay", time.Second)
	setDefault(k, "channel.reconnection_delay_max", 5*time.Second)
	setDefault(k, "channel.timeout", 20*time.Second)
	setDefault(k, "channel.ping_interval", 25*time.Second)
	setDefault(k, "channel.pong_wait", 60*time.Second)
	setDefault(k, "channel.auto_connect", true)

	setDefault(k, "storage.driver", "file")
	setDefault(k, "storage.dir", "")
	setDefault(k, "storage.redis_addr", "localhost:6379")
	setDefault(k, "storage.redis_db", 0)
	setDefault(k, "storage.redis_prefix", "codenexus:")

	setDefault(k, "http.enabled", true)
	setDefault(k, "http.host", "127.0.0.1")
	setDefault(k, "http.port", 7777)
	setDefault(k, "http.read_timeout", 10*time.Second)
	setDefault(k, "http.write_timeout", 30*time.Second)
	setDefault(k, "http.allowed_origins", []string{})

	setDefault(k, "editor.typing_pause", time.Second)

	setDefault(k, "import.max_file_size", 1024*1024)
	setDefault(k, "import.exclude", []string{"node_modules", ".git", ".vscode", ".next"})
	setDefault(k, "import.workers", 8)
	setDefault(k, "import.root", "")

	setDefault(k, "logger.file_path", "./logs/")
	setDefault(k, "logger.encoding", "console")
	setDefault(k, "logger.level", "info")
	setDefault(k, "logger.logger", "zap")

	setDefault(k, "tracing.enabled", false)
	setDefault(k, "tracing.endpoint", "http://localhost:4318/v1/traces")
	setDefault(k, "tracing.environment", "development")

	setDefault(k, "rateLimiter.strategy", "fixed-window")
	setDefault(k, "rateLimiter.requests_per_time_frame", 120)
	setDefault(k, "rateLimiter.time_frame", time.Minute)
	setDefault(k, "rateLimiter.maxRatePerSecond", 10.0)
	setDefault(k, "rateLimiter.maxBurst", 20)
}

func applyEnvOverrides(k *koanf.Koanf) {
	if url := env.GetString("CODENEXUS_CHANNEL_URL", ""); url != "" {
		k.Set("channel.url", url)
	}
	if attempts := env.GetInt("CODENEXUS_RECONNECTION_ATTEMPTS", 0); attempts > 0 {
		k.Set("channel.reconnection_attempts", attempts)
	}
	if timeout := env.GetInt("CODENEXUS_CHANNEL_TIMEOUT_SECONDS", 0); timeout > 0 {
		k.Set("channel.timeout", time.Duration(timeout)*time.Second)
	}

	if driver := env.GetString("CODENEXUS_STORAGE_DRIVER", ""); driver != "" {
		k.Set("storage.driver", driver)
	}
	if dir := env.GetString("CODENEXUS_STORAGE_DIR", ""); dir != "" {
		k.Set("storage.dir", dir)
	}
	if addr := env.GetString("REDIS_ADDR", ""); addr != "" {
		k.Set("storage.redis_addr", addr)
	}
	if password := env.GetString("REDIS_PASSWORD", ""); password != "" {
		k.Set("storage.redis_password", password)
	}

	if host := env.GetString("HTTP_HOST", ""); host != "" {
		k.Set("http.host", host)
	}
	if port := env.GetInt("HTTP_PORT", 0); port > 0 {
		k.Set("http.port", port)
	}
	if origins := env.GetString("HTTP_ALLOWED_ORIGINS", ""); origins != "" {
		k.Set("http.allowed_origins", splitList(origins))
	}

	if root := env.GetString("CODENEXUS_IMPORT_ROOT", ""); root != "" {
		k.Set("import.root", root)
	}

	if level := env.GetString("LOGGER_LEVEL", ""); level != "" {
		k.Set("logger.level", level)
	}
	if logger := env.GetString("LOGGER_LOGGER", ""); logger != "" {
		k.Set("logger.logger", logger)
	}
	if encoding := env.GetString("LOGGER_ENCODING", ""); encoding != "" {
		k.Set("logger.encoding", encoding)
	}
	if path := env.GetString("LOGGER_FILE_PATH", ""); path != "" {
		k.Set("logger.file_path", path)
	}

	if endpoint := env.GetString("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT", ""); endpoint != "" {
		k.Set("tracing.endpoint", endpoint)
		k.Set("tracing.enabled", true)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// setDefault only sets the value if the key doesn't already exist
func setDefault(k *koanf.Koanf, key string, value any) {
	if !k.Exists(key) {
		k.Set(key, value)
	}
}
