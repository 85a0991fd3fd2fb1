package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Server      ServerConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Recognition RecognitionConfig
}

type ServerConfig struct {
	Host string // defaults to all interfaces
	Port int    // defaults to 8080
}

type StorageConfig struct {
	// ImageRoot is the directory holding the objetos/ and equipos/
	// training-image trees.
	ImageRoot string
}

type DatabaseConfig struct {
	DSN          string // MariaDB DSN (e.g., lab:lab@tcp(mariadb:3306)/laboratorio)
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type RecognitionConfig struct {
	MaxFeatures         int     `yaml:"max_features"`
	MaxPerKey           int     `yaml:"max_per_key"`
	MinGoodMatches      int     `yaml:"min_good_matches"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
}

type defaults struct {
	Recognition RecognitionConfig `yaml:"recognition"`
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

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
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

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// Embedded file, cannot fail at runtime.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Host: os.Getenv("SERVER_HOST"),
			Port: envInt("SERVER_PORT", 8080),
		},
		Storage: StorageConfig{
			ImageRoot: envString("IMG_ROOT", "imagenes"),
		},
		Database: DatabaseConfig{
			DSN:          os.Getenv("DATABASE_DSN"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Recognition: RecognitionConfig{
			MaxFeatures:         envInt("RECOGNITION_MAX_FEATURES", def.Recognition.MaxFeatures),
			MaxPerKey:           envInt("RECOGNITION_MAX_PER_KEY", def.Recognition.MaxPerKey),
			MinGoodMatches:      envInt("RECOGNITION_MIN_GOOD_MATCHES", def.Recognition.MinGoodMatches),
			ConfidenceThreshold: envFloat("RECOGNITION_CONFIDENCE_THRESHOLD", def.Recognition.ConfidenceThreshold),
		},
	}
}
