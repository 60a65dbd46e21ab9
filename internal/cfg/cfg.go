package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"academic-risk/internal/common"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Port              int
	MetricsPath       string
	DataPath          string
	LogLevel          string
	LogFormat         string
	Workers           int
	QueueSize         int
	Strategy          string
	AutoTrain         bool
	TrainingSamples   int
	Seed              int64
	ForestTrees       int
	ForestMaxDepth    int
	BoostingStages    int
	BoostingMaxDepth  int
	LearningRate      float64
	RetrainSchedule   string
	CacheTTL          time.Duration
	RequestTimeout    time.Duration
	RateLimit         float64
	RateBurst         int
	RangeCheck        bool
	HistoryQueue      int
	DashboardEnabled  bool
	DashboardInterval time.Duration
}

type ConfigFile struct {
	Server struct {
		Port           int     `yaml:"port"`
		MetricsPath    string  `yaml:"metricsPath"`
		RequestTimeout string  `yaml:"requestTimeout"`
		RateLimit      float64 `yaml:"rateLimit"`
		RateBurst      int     `yaml:"rateBurst"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Engine struct {
		Strategy   string `yaml:"strategy"`
		Workers    int    `yaml:"workers"`
		QueueSize  int    `yaml:"queueSize"`
		RangeCheck *bool  `yaml:"rangeCheck"`
		CacheTTL   string `yaml:"cacheTTL"`
	} `yaml:"engine"`

	Training struct {
		AutoTrain        *bool   `yaml:"autoTrain"`
		Samples          int     `yaml:"samples"`
		Seed             int64   `yaml:"seed"`
		ForestTrees      int     `yaml:"forestTrees"`
		ForestMaxDepth   int     `yaml:"forestMaxDepth"`
		BoostingStages   int     `yaml:"boostingStages"`
		BoostingMaxDepth int     `yaml:"boostingMaxDepth"`
		LearningRate     float64 `yaml:"learningRate"`
		RetrainSchedule  string  `yaml:"retrainSchedule"`
	} `yaml:"training"`

	Storage struct {
		DataPath     string `yaml:"dataPath"`
		HistoryQueue int    `yaml:"historyQueue"`
	} `yaml:"storage"`

	Dashboard struct {
		Enabled  *bool  `yaml:"enabled"`
		Interval string `yaml:"interval"`
	} `yaml:"dashboard"`
}

// Load reads settings from CONFIG_FILE when set, otherwise from the
// environment. A .env file, if present, is loaded into the environment first
// without overriding variables that are already set.
func Load() (Settings, error) {
	if err := loadDotEnv(getEnvOrDefault(common.EnvEnvFile, common.DefaultEnvFile)); err != nil {
		return Settings{}, err
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load env file %s: %w", path, err)
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return build(config)
}

func loadFromEnv() (Settings, error) {
	return build(ConfigFile{})
}

// build resolves every setting as environment, then config file, then default.
func build(config ConfigFile) (Settings, error) {
	cacheTTL, err := parseDurationOrDefault(config.Engine.CacheTTL, 5*time.Minute)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid cacheTTL: %w", err)
	}
	requestTimeout, err := parseDurationOrDefault(config.Server.RequestTimeout, 10*time.Second)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid requestTimeout: %w", err)
	}
	dashboardInterval, err := parseDurationOrDefault(config.Dashboard.Interval, 5*time.Second)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid dashboard interval: %w", err)
	}

	settings := Settings{
		Port:              getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		MetricsPath:       getStringFromEnvOrConfig(common.EnvMetricsPath, config.Server.MetricsPath, common.DefaultMetricsPath),
		DataPath:          getStringFromEnvOrConfig(common.EnvDataPath, config.Storage.DataPath, ""),
		LogLevel:          strings.ToLower(getStringFromEnvOrConfig(common.EnvLogLevel, config.Logging.Level, common.DefaultLogLevel)),
		LogFormat:         strings.ToLower(getStringFromEnvOrConfig(common.EnvLogFormat, config.Logging.Format, common.DefaultLogFormat)),
		Workers:           getIntFromEnvOrConfig(common.EnvWorkers, config.Engine.Workers, common.DefaultWorkers),
		QueueSize:         getIntFromEnvOrConfig(common.EnvQueueSize, config.Engine.QueueSize, common.DefaultQueueSize),
		Strategy:          strings.ToLower(getStringFromEnvOrConfig(common.EnvStrategy, config.Engine.Strategy, common.DefaultStrategy)),
		AutoTrain:         getBoolFromEnvOrConfig(common.EnvAutoTrain, config.Training.AutoTrain, common.DefaultAutoTrain),
		TrainingSamples:   getIntFromEnvOrConfig(common.EnvTrainingSamples, config.Training.Samples, common.DefaultTrainingSamples),
		Seed:              int64(getIntFromEnvOrConfig(common.EnvSeed, int(config.Training.Seed), common.DefaultSeed)),
		ForestTrees:       getIntFromEnvOrConfig(common.EnvForestTrees, config.Training.ForestTrees, common.DefaultForestTrees),
		ForestMaxDepth:    getIntFromEnvOrConfig(common.EnvForestMaxDepth, config.Training.ForestMaxDepth, common.DefaultForestMaxDepth),
		BoostingStages:    getIntFromEnvOrConfig(common.EnvBoostingStages, config.Training.BoostingStages, common.DefaultBoostingStages),
		BoostingMaxDepth:  getIntFromEnvOrConfig(common.EnvBoostingMaxDepth, config.Training.BoostingMaxDepth, common.DefaultBoostingMaxDepth),
		LearningRate:      getFloatFromEnvOrConfig(common.EnvLearningRate, config.Training.LearningRate, common.DefaultLearningRate),
		RetrainSchedule:   getStringFromEnvOrConfig(common.EnvRetrainSchedule, config.Training.RetrainSchedule, ""),
		CacheTTL:          getDurationOrDefault(common.EnvCacheTTL, cacheTTL),
		RequestTimeout:    getDurationOrDefault(common.EnvRequestTimeout, requestTimeout),
		RateLimit:         getFloatFromEnvOrConfig(common.EnvRateLimit, config.Server.RateLimit, common.DefaultRateLimit),
		RateBurst:         getIntFromEnvOrConfig(common.EnvRateBurst, config.Server.RateBurst, common.DefaultRateBurst),
		RangeCheck:        getBoolFromEnvOrConfig(common.EnvRangeCheck, config.Engine.RangeCheck, false),
		HistoryQueue:      getIntFromEnvOrConfig(common.EnvHistoryQueue, config.Storage.HistoryQueue, common.DefaultHistoryQueue),
		DashboardEnabled:  getBoolFromEnvOrConfig(common.EnvDashboardEnabled, config.Dashboard.Enabled, true),
		DashboardInterval: getDurationOrDefault(common.EnvDashboardInterval, dashboardInterval),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func parseDurationOrDefault(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringFromEnvOrConfig(key, configValue, defaultValue string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.Atoi(env); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getFloatFromEnvOrConfig(key string, configValue, defaultValue float64) float64 {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseFloat(env, 64); err == nil {
			return val
		}
	}
	if configValue != 0 {
		return configValue
	}
	return defaultValue
}

func getBoolFromEnvOrConfig(key string, configValue *bool, defaultValue bool) bool {
	if env := os.Getenv(key); env != "" {
		if val, err := strconv.ParseBool(env); err == nil {
			return val
		}
	}
	if configValue != nil {
		return *configValue
	}
	return defaultValue
}

// validateSettings performs comprehensive validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if !strings.HasPrefix(settings.MetricsPath, "/") {
		return fmt.Errorf("metrics path must start with '/', got %q", settings.MetricsPath)
	}

	switch settings.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("unknown log level %q", settings.LogLevel)
	}
	if settings.LogFormat != "json" && settings.LogFormat != "console" {
		return fmt.Errorf("log format must be json or console, got %q", settings.LogFormat)
	}

	switch settings.Strategy {
	case "auto", "model", "rules":
	default:
		return fmt.Errorf("prediction strategy must be auto, model or rules, got %q", settings.Strategy)
	}

	if settings.Workers < common.MinWorkers || settings.Workers > common.MaxWorkers {
		return fmt.Errorf("workers must be between %d and %d, got %d", common.MinWorkers, common.MaxWorkers, settings.Workers)
	}
	if settings.QueueSize < 0 || settings.QueueSize > 100000 {
		return fmt.Errorf("queue size must be between 0 and 100000, got %d", settings.QueueSize)
	}
	if settings.HistoryQueue < 1 || settings.HistoryQueue > 1000000 {
		return fmt.Errorf("history queue must be between 1 and 1000000, got %d", settings.HistoryQueue)
	}

	if settings.TrainingSamples < common.MinTrainingSamples || settings.TrainingSamples > common.MaxTrainingSamples {
		return fmt.Errorf("training samples must be between %d and %d, got %d",
			common.MinTrainingSamples, common.MaxTrainingSamples, settings.TrainingSamples)
	}
	if settings.ForestTrees < 1 || settings.ForestTrees > common.MaxForestTrees {
		return fmt.Errorf("forest trees must be between 1 and %d, got %d", common.MaxForestTrees, settings.ForestTrees)
	}
	if settings.ForestMaxDepth < 0 || settings.ForestMaxDepth > common.MaxTreeDepth {
		return fmt.Errorf("forest max depth must be between 0 (unlimited) and %d, got %d", common.MaxTreeDepth, settings.ForestMaxDepth)
	}
	if settings.BoostingStages < 1 || settings.BoostingStages > common.MaxBoostingStages {
		return fmt.Errorf("boosting stages must be between 1 and %d, got %d", common.MaxBoostingStages, settings.BoostingStages)
	}
	if settings.BoostingMaxDepth < 1 || settings.BoostingMaxDepth > common.MaxTreeDepth {
		return fmt.Errorf("boosting max depth must be between 1 and %d, got %d", common.MaxTreeDepth, settings.BoostingMaxDepth)
	}
	if settings.LearningRate <= 0 || settings.LearningRate > 1 {
		return fmt.Errorf("learning rate must be in (0, 1], got %f", settings.LearningRate)
	}
	if settings.RetrainSchedule != "" {
		if _, err := cron.ParseStandard(settings.RetrainSchedule); err != nil {
			return fmt.Errorf("invalid retrain schedule %q: %w", settings.RetrainSchedule, err)
		}
	}

	if settings.CacheTTL < 0 || settings.CacheTTL > 24*time.Hour {
		return fmt.Errorf("cache TTL must be between 0 and 24h, got %v", settings.CacheTTL)
	}
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 5m, got %v", settings.RequestTimeout)
	}
	if settings.RateLimit <= 0 || settings.RateLimit > 100000 {
		return fmt.Errorf("rate limit must be between 0 and 100000 requests/s, got %f", settings.RateLimit)
	}
	if settings.RateBurst < 1 {
		return fmt.Errorf("rate burst must be at least 1, got %d", settings.RateBurst)
	}
	if settings.DashboardInterval < 100*time.Millisecond || settings.DashboardInterval > time.Hour {
		return fmt.Errorf("dashboard interval must be between 100ms and 1h, got %v", settings.DashboardInterval)
	}

	return nil
}
