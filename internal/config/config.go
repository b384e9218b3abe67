package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Logger    LoggerConfig
	Paths     PathsConfig
	Runner    RunnerConfig
	RunPod    RunPodConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Inference InferenceConfig
	Worker    WorkerConfig

	inspectedEnvFiles []string
}

type ServerConfig struct {
	Host string
	Port int
}

type LoggerConfig struct {
	Level  string
	Format string
}

type PathsConfig struct {
	BaseDir    string
	ModelsDir  string
	UploadDir  string
	ResultsDir string
}

type RunnerConfig struct {
	URL            string
	Command        string
	StartupTimeout time.Duration
	RequestTimeout time.Duration
}

type RunPodConfig struct {
	APIKey       string
	EndpointID   string
	BaseURL      string
	PollTimeout  time.Duration
	PollInterval time.Duration
}

type StorageConfig struct {
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSRegion          string
	SpacesAccessKey    string
	SpacesSecretKey    string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

type InferenceConfig struct {
	MaxConcurrent int
	QueueTimeout  time.Duration
}

type WorkerConfig struct {
	Concurrency int
	Bucket      string
	Region      string
}

// envFileCandidates lists every .env location the loader tries, in order.
// Values already present in the real environment always win; across files,
// the first file to define a key wins.
func envFileCandidates() []string {
	var candidates []string
	if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, ".env"))
		candidates = append(candidates, filepath.Join(filepath.Dir(wd), ".env"))
	}
	if exe, err := os.Executable(); err == nil {
		candidates = append(candidates, filepath.Join(filepath.Dir(exe), ".env"))
	}
	return candidates
}

func Load() (*Config, error) {
	inspected := envFileCandidates()
	for _, path := range inspected {
		if _, err := os.Stat(path); err == nil {
			// godotenv never overrides variables that are already set.
			_ = godotenv.Load(path)
		}
	}

	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "text")
	v.SetDefault("BASE_DIR", "")
	v.SetDefault("MODELS_DIR", "")
	v.SetDefault("UPLOAD_DIR", "")
	v.SetDefault("RESULTS_DIR", "")
	v.SetDefault("RUNNER_URL", "http://127.0.0.1:9090")
	v.SetDefault("RUNNER_COMMAND", "")
	v.SetDefault("RUNNER_STARTUP_TIMEOUT", "60s")
	v.SetDefault("RUNNER_REQUEST_TIMEOUT", "300s")
	v.SetDefault("RUNPOD_API_KEY", "")
	v.SetDefault("RUNPOD_ENDPOINT_ID", "")
	v.SetDefault("RUNPOD_BASE_URL", "https://api.runpod.ai/v2")
	v.SetDefault("REMOTE_POLL_TIMEOUT", "120s")
	v.SetDefault("REMOTE_POLL_INTERVAL", "2s")
	v.SetDefault("AWS_ACCESS_KEY_ID", "")
	v.SetDefault("AWS_SECRET_ACCESS_KEY", "")
	v.SetDefault("AWS_REGION", "us-east-1")
	v.SetDefault("DO_SPACES_ACCESS_KEY", "")
	v.SetDefault("DO_SPACES_SECRET_KEY", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_TTL", "1h")
	v.SetDefault("INFERENCE_MAX_CONCURRENT", 2)
	v.SetDefault("INFERENCE_QUEUE_TIMEOUT", "30s")
	v.SetDefault("WORKER_CONCURRENCY", 1)
	v.SetDefault("WORKER_BUCKET", "")
	v.SetDefault("WORKER_REGION", "")

	// Env
	v.AutomaticEnv()

	baseDir := v.GetString("BASE_DIR")
	if baseDir == "" {
		if wd, err := os.Getwd(); err == nil {
			baseDir = wd
		} else {
			baseDir = "."
		}
	}
	modelsDir := v.GetString("MODELS_DIR")
	if modelsDir == "" {
		modelsDir = filepath.Join(baseDir, "models")
	}
	uploadDir := v.GetString("UPLOAD_DIR")
	if uploadDir == "" {
		uploadDir = filepath.Join(baseDir, "uploads")
	}
	resultsDir := v.GetString("RESULTS_DIR")
	if resultsDir == "" {
		resultsDir = filepath.Join(baseDir, "results")
	}

	durations := map[string]time.Duration{}
	for _, key := range []string{
		"RUNNER_STARTUP_TIMEOUT",
		"RUNNER_REQUEST_TIMEOUT",
		"REMOTE_POLL_TIMEOUT",
		"REMOTE_POLL_INTERVAL",
		"CACHE_TTL",
		"INFERENCE_QUEUE_TIMEOUT",
	} {
		d, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = d
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
		Paths: PathsConfig{
			BaseDir:    baseDir,
			ModelsDir:  modelsDir,
			UploadDir:  uploadDir,
			ResultsDir: resultsDir,
		},
		Runner: RunnerConfig{
			URL:            v.GetString("RUNNER_URL"),
			Command:        v.GetString("RUNNER_COMMAND"),
			StartupTimeout: durations["RUNNER_STARTUP_TIMEOUT"],
			RequestTimeout: durations["RUNNER_REQUEST_TIMEOUT"],
		},
		RunPod: RunPodConfig{
			APIKey:       v.GetString("RUNPOD_API_KEY"),
			EndpointID:   v.GetString("RUNPOD_ENDPOINT_ID"),
			BaseURL:      v.GetString("RUNPOD_BASE_URL"),
			PollTimeout:  durations["REMOTE_POLL_TIMEOUT"],
			PollInterval: durations["REMOTE_POLL_INTERVAL"],
		},
		Storage: StorageConfig{
			AWSAccessKeyID:     v.GetString("AWS_ACCESS_KEY_ID"),
			AWSSecretAccessKey: v.GetString("AWS_SECRET_ACCESS_KEY"),
			AWSRegion:          v.GetString("AWS_REGION"),
			SpacesAccessKey:    v.GetString("DO_SPACES_ACCESS_KEY"),
			SpacesSecretKey:    v.GetString("DO_SPACES_SECRET_KEY"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("REDIS_ADDR"),
			Password: v.GetString("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
			TTL:      durations["CACHE_TTL"],
		},
		Inference: InferenceConfig{
			MaxConcurrent: v.GetInt("INFERENCE_MAX_CONCURRENT"),
			QueueTimeout:  durations["INFERENCE_QUEUE_TIMEOUT"],
		},
		Worker: WorkerConfig{
			Concurrency: v.GetInt("WORKER_CONCURRENCY"),
			Bucket:      v.GetString("WORKER_BUCKET"),
			Region:      v.GetString("WORKER_REGION"),
		},
		inspectedEnvFiles: inspected,
	}

	return cfg, nil
}

// InspectedEnvFiles returns every .env path the loader considered, in order,
// whether or not the file existed. Credential errors quote this list.
func (c *Config) InspectedEnvFiles() []string {
	return c.inspectedEnvFiles
}
