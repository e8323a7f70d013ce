package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all backend configuration.
type Config struct {
	Port        int      `yaml:"port"`
	DataPath    string   `yaml:"data_path"`
	DBPath      string   `yaml:"db_path"`
	CORSOrigins []string `yaml:"cors_origins"`

	JWTSecret     string `yaml:"jwt_secret"`
	AdminUsername string `yaml:"admin_username"`
	AdminPassword string `yaml:"admin_password"`

	Memory     MemoryConfig     `yaml:"memory"`
	Correction CorrectionConfig `yaml:"correction"`
	Engine     EngineConfig     `yaml:"engine"`
}

// MemoryConfig holds the memory monitor thresholds, as fractions of total
// system memory. Immutable after startup.
type MemoryConfig struct {
	WarningThreshold  float64 `yaml:"warning_threshold"`
	CriticalThreshold float64 `yaml:"critical_threshold"`
}

// CorrectionConfig holds chunking and batch processing settings.
type CorrectionConfig struct {
	MaxChunkChars    int `yaml:"max_chunk_chars"`
	OverlapSentences int `yaml:"overlap_sentences"`
	// MaxParallel is the batch worker bound. Keep at 1 unless the loaded
	// correction backend is stateless and re-entrant.
	MaxParallel     int `yaml:"max_parallel"`
	ChunkTimeoutSec int `yaml:"chunk_timeout_sec"`
	RetryAttempts   int `yaml:"retry_attempts"`
	// RatePerSec throttles inference calls. 0 disables throttling.
	RatePerSec float64 `yaml:"rate_per_sec"`
}

// EngineConfig holds the external engine endpoints and launch command.
type EngineConfig struct {
	// SpeechServerCmd is the command line used to spawn the speech engine
	// process, e.g. "whisper-server --port 8178 -m /models/ggml-base.bin".
	SpeechServerCmd string `yaml:"speech_server_cmd"`
	SpeechServerURL string `yaml:"speech_server_url"`
	// CorrectionURL is a llama-server style completion endpoint.
	CorrectionURL   string `yaml:"correction_url"`
	InferTimeoutSec int    `yaml:"infer_timeout_sec"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Port:          8090,
		DataPath:      "/data",
		CORSOrigins:   []string{"*"},
		AdminUsername: "admin",
		AdminPassword: "admin",
		Memory: MemoryConfig{
			WarningThreshold:  0.75,
			CriticalThreshold: 0.90,
		},
		Correction: CorrectionConfig{
			MaxChunkChars:    1200,
			OverlapSentences: 1,
			MaxParallel:      1,
			ChunkTimeoutSec:  120,
			RetryAttempts:    2,
		},
		Engine: EngineConfig{
			SpeechServerURL: "http://127.0.0.1:8178",
			CorrectionURL:   "http://127.0.0.1:8081",
			InferTimeoutSec: 300,
		},
	}
}

// Load builds the configuration: defaults, then an optional YAML file at
// path (skipped when path is empty or missing), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.DBPath == "" {
		cfg.DBPath = cfg.DataPath + "/voicescribe.db"
	}

	// JWT secret: require explicit setting or generate random
	if cfg.JWTSecret == "" {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generating random JWT secret: %w", err)
		}
		cfg.JWTSecret = hex.EncodeToString(b)
		log.Println("WARNING: JWT_SECRET not set, using random secret. Sessions will not survive restarts.")
	}

	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DATA_PATH"); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		c.JWTSecret = v
	}
	if v := os.Getenv("ADMIN_USERNAME"); v != "" {
		c.AdminUsername = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		c.AdminPassword = v
	}
	if v := os.Getenv("SPEECH_SERVER_CMD"); v != "" {
		c.Engine.SpeechServerCmd = v
	}
	if v := os.Getenv("SPEECH_SERVER_URL"); v != "" {
		c.Engine.SpeechServerURL = v
	}
	if v := os.Getenv("CORRECTION_URL"); v != "" {
		c.Engine.CorrectionURL = v
	}
	if v := os.Getenv("MEMORY_WARNING_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Memory.WarningThreshold = f
		}
	}
	if v := os.Getenv("MEMORY_CRITICAL_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Memory.CriticalThreshold = f
		}
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		c.CORSOrigins = c.CORSOrigins[:0]
		for _, o := range origins {
			o = strings.TrimSpace(o)
			if o != "" {
				c.CORSOrigins = append(c.CORSOrigins, o)
			}
		}
	}
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in 1..65535, got %d", c.Port)
	}
	if c.Memory.WarningThreshold <= 0 || c.Memory.WarningThreshold >= 1 {
		return fmt.Errorf("memory.warning_threshold must be in (0, 1), got %v", c.Memory.WarningThreshold)
	}
	if c.Memory.CriticalThreshold <= 0 || c.Memory.CriticalThreshold > 1 {
		return fmt.Errorf("memory.critical_threshold must be in (0, 1], got %v", c.Memory.CriticalThreshold)
	}
	if c.Memory.WarningThreshold >= c.Memory.CriticalThreshold {
		return fmt.Errorf("memory.warning_threshold (%v) must be below critical_threshold (%v)",
			c.Memory.WarningThreshold, c.Memory.CriticalThreshold)
	}
	if c.Correction.MaxChunkChars <= 0 {
		return fmt.Errorf("correction.max_chunk_chars must be > 0")
	}
	if c.Correction.OverlapSentences < 0 {
		return fmt.Errorf("correction.overlap_sentences must be >= 0")
	}
	if c.Correction.MaxParallel <= 0 {
		return fmt.Errorf("correction.max_parallel must be > 0")
	}
	return nil
}
