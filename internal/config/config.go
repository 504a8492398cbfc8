package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Data     DataConfig
	Audio    AudioConfig
	Chunking ChunkingConfig
	Log      LogConfig
	Workers  WorkersConfig
}

type ServerConfig struct {
	Addr string
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

// DataConfig - куда писать результат и где лежат исходные датасеты
type DataConfig struct {
	Dst     string
	Sources map[string]string
}

type AudioConfig struct {
	FFmpegBin   string
	FFprobeBin  string
	SoxBin      string
	Sph2PipeBin string
	SampleRate  int
}

type ChunkingConfig struct {
	MaxDurationMs float64
	FlushTrailing bool
	TestEvery     int
	TestOnce      bool
	ShuffleSeed   uint64
}

type LogConfig struct {
	Level  string
	Format string
	File   string
}

type WorkersConfig struct {
	Prepare int
}

// dataset name -> env key with its source root
var sourceKeys = map[string]string{
	"librispeech": "LIBRI_DIR",
	"commonvoice": "COMMONVOICE_DIR",
	"ami-ihm":     "AMI_IHM_DIR",
	"ami-sdm":     "AMI_SDM_DIR",
	"ted":         "TED_DIR",
	"fisher":      "FISHER_DIR",
	"callhome":    "CALLHOME_DIR",
	"swbd":        "SWBD_DIR",
}

func Load(envFile string) (*Config, error) {
	godotenv.Load(envFile)

	cfg := &Config{
		Server: ServerConfig{
			Addr: getEnv("STATUS_ADDR", ""),
		},
		Database: DatabaseConfig{
			Enabled:  getEnvBool("DB_ENABLED", false),
			Host:     getEnv("DB_HOST", "127.0.0.1"),
			Port:     getEnvInt("DB_PORT", 3306),
			User:     getEnv("DB_USER", "root"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "corpus"),
		},
		Data: DataConfig{
			Dst:     getEnv("DST_DIR", "./data_dir"),
			Sources: map[string]string{},
		},
		Audio: AudioConfig{
			FFmpegBin:   getEnv("FFMPEG_BIN", "ffmpeg"),
			FFprobeBin:  getEnv("FFPROBE_BIN", "ffprobe"),
			SoxBin:      getEnv("SOX_BIN", "sox"),
			Sph2PipeBin: getEnv("SPH2PIPE_BIN", ""),
			SampleRate:  getEnvInt("SAMPLE_RATE", 16000),
		},
		Chunking: ChunkingConfig{
			MaxDurationMs: float64(getEnvInt("MAX_DURATION_MS", 10000)),
			FlushTrailing: getEnvBool("FLUSH_TRAILING", false),
			TestEvery:     getEnvInt("TEST_EVERY", 5),
			TestOnce:      getEnvBool("TEST_ONCE", false),
			ShuffleSeed:   uint64(getEnvInt("SHUFFLE_SEED", 1)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
			File:   getEnv("LOG_FILE", ""),
		},
		Workers: WorkersConfig{
			Prepare: getEnvInt("WORKERS", 8),
		},
	}

	if path := getEnv("SOURCES_FILE", ""); path != "" {
		sources, err := LoadSources(path)
		if err != nil {
			return nil, err
		}
		for name, dir := range sources {
			cfg.Data.Sources[name] = dir
		}
	}
	// переменные окружения важнее YAML
	for name, key := range sourceKeys {
		if v := getEnv(key, ""); v != "" {
			cfg.Data.Sources[name] = v
		}
	}

	return cfg, nil
}

// SourcesFile is the YAML layout of SOURCES_FILE:
//
//	sources:
//	  fisher: /corpora/fisher
//	  ted: /corpora/TEDLIUM_release2
type SourcesFile struct {
	Sources map[string]string `yaml:"sources"`
}

func LoadSources(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sources file: %w", err)
	}
	var f SourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources file %s: %w", path, err)
	}
	for name := range f.Sources {
		if _, ok := sourceKeys[name]; !ok {
			return nil, fmt.Errorf("sources file %s: unknown dataset %q", path, name)
		}
	}
	return f.Sources, nil
}

// Source returns the configured root for dataset.
func (c *Config) Source(dataset string) (string, bool) {
	dir, ok := c.Data.Sources[dataset]
	return dir, ok && dir != ""
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultVal
}
