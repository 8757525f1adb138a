package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed thresholds.yaml
var thresholdsYAML []byte

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Extractor  ExtractorConfig
	OpenAI     OpenAIConfig
	Storage    StorageConfig
	Thresholds ThresholdsConfig
}

type ServerConfig struct {
	Port int // defaults to 8080
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type ExtractorConfig struct {
	URL      string // embedding extractor sidecar, defaults to http://localhost:8000
	Sessions int    // size of the inference session pool (default 4)
	Model    string // whole-media embedding model tag (default clip)
}

type OpenAIConfig struct {
	Token string // optional; text search skips query translation without it
}

type StorageConfig struct {
	BlobRoot string // root directory for originals and thumbnails (default ./data)
}

type ThresholdsConfig struct {
	Similarity struct {
		DuplicateMaxDistance float64 `yaml:"duplicate_max_distance"`
		FaceMinSimilarity    float64 `yaml:"face_min_similarity"`
		DefaultSearchPercent float64 `yaml:"default_search_percent"`
	} `yaml:"similarity"`
	Pipeline struct {
		DrainBatch   int `yaml:"drain_batch"`
		ReindexBatch int `yaml:"reindex_batch"`
		ThumbSize    int `yaml:"thumb_size"`
	} `yaml:"pipeline"`
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

func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var thresholds ThresholdsConfig
	if err := yaml.Unmarshal(thresholdsYAML, &thresholds); err != nil {
		// embedded file, only a build defect can make this fail
		panic("failed to unmarshal embedded thresholds.yaml: " + err.Error())
	}

	return &Config{
		Server: ServerConfig{
			Port: envInt("PORT", 8080),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Extractor: ExtractorConfig{
			URL:      envString("EXTRACTOR_URL", "http://localhost:8000"),
			Sessions: envInt("EXTRACTOR_SESSIONS", 4),
			Model:    envString("EXTRACTOR_MODEL", "clip"),
		},
		OpenAI: OpenAIConfig{
			Token: os.Getenv("OPENAI_TOKEN"),
		},
		Storage: StorageConfig{
			BlobRoot: envString("BLOB_ROOT", "./data"),
		},
		Thresholds: thresholds,
	}
}
