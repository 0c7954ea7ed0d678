package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// configDir 由外部通过 SetConfigDir 指定，优先级最高
var configDir string

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
}

// SetConfigDir 设置配置文件目录（用于 --config 命令行参数）
func SetConfigDir(dir string) {
	configDir = dir
}

func effectiveConfigPaths(env Environment) []string {
	if configDir != "" {
		return []string{configDir}
	}
	if env == EnvProduction {
		return append([]string{"/etc/kb-auditor"}, configPaths...)
	}
	return configPaths
}

// Load 加载配置
// 1. 加载 .env（敏感信息 + APP_ENV）
// 2. 默认值 → common.yaml → {env}.yaml
// 3. 环境变量覆盖
func Load() (*Config, error) {
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	env := parseEnv(getEnv("APP_ENV", "dev"))

	yamlCfg, err := loadYAMLConfig(env)
	if err != nil {
		return nil, err
	}
	return build(env, yamlCfg)
}

func build(env Environment, y *YAMLConfig) (*Config, error) {
	y.Redis.Password = os.Getenv("REDIS_PASSWORD")
	y.MinIO.AccessKey = firstEnv("MINIO_ACCESS_KEY", "MINIO_ROOT_USER")
	y.MinIO.SecretKey = firstEnv("MINIO_SECRET_KEY", "MINIO_ROOT_PASSWORD")
	y.LLM.APIKey = firstEnv("LLM_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY")
	if v := os.Getenv("LLM_ENDPOINT"); v != "" {
		y.LLM.Endpoint = v
	}
	if v := os.Getenv("AUDITOR_MODEL_NAME"); v != "" {
		y.LLM.Model = v
	}
	if v := os.Getenv("IA_AUDITOR_FREQUENCY_HOURS"); v != "" {
		hours, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid IA_AUDITOR_FREQUENCY_HOURS %q: %w", v, err)
		}
		y.Auditor.Frequency = time.Duration(hours * float64(time.Hour))
	}
	if v := os.Getenv("IA_AUDITOR_STARTUP_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid IA_AUDITOR_STARTUP_ENABLED %q: %w", v, err)
		}
		y.Auditor.RunOnStartup = enabled
	}

	dbURL := os.Getenv("DATABASE_URL")
	driver := detectDatabaseDriver(y.Database.Driver, dbURL)
	if dbURL == "" {
		y.Database.Driver = driver
		dbURL = buildDatabaseURL(y.Database, getEnv("DB_PASSWORD", ""))
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = buildRedisURL(y.Redis)
	}

	cfg := &Config{
		Env:            env,
		DatabaseDriver: driver,
		DatabaseURL:    dbURL,
		DatabaseName:   y.Database.Name,
		RedisURL:       redisURL,
		EtcdEndpoints:  y.Etcd.Endpoints,
		EtcdPrefix:     y.Etcd.Prefix,
		APIPort:        getEnv("API_PORT", y.APIServer.Port),
		MinIO:          y.MinIO,
		LLM:            y.LLM,
		Auditor:        y.Auditor,
		Lock:           y.Lock,
		Queue:          y.Queue,
		Log:            y.Log,
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultModels 未配置 llm.model 时按 provider 选择
var defaultModels = map[string]string{
	"openai":    "gpt-4o-mini",
	"anthropic": "claude-3-5-haiku-latest",
}

func defaultYAMLConfig() *YAMLConfig {
	return &YAMLConfig{
		APIServer: APIServerConfig{Port: "8090"},
		Database:  DatabaseConfig{Host: "localhost", Port: 5432, User: "kb", Name: "knowledge", SSLMode: "disable"},
		Redis:     RedisConfig{Host: "localhost", Port: 6379, DB: 0},
		Etcd:      EtcdConfig{Endpoints: []string{"localhost:2379"}, Prefix: "/kb-auditor/locks"},
		MinIO:     MinIOConfig{Endpoint: "localhost:9000", Bucket: "audit-archive"},
		LLM: LLMConfig{
			Provider:    "openai",
			MaxTokens:   500,
			Temperature: 0.1,
			Timeout:     30 * time.Second,
		},
		Auditor: AuditorConfig{
			FetchLimit:      100,
			DeleteThreshold: 0.85,
			FlagThreshold:   0.6,
			HighRating:      3,
			MaxParallel:     10,
			Frequency:       6 * time.Hour,
			CacheSize:       10000,
		},
		Lock:  LockConfig{Backend: "redis", Timeout: 30 * time.Second, JanitorMaxAge: 60 * time.Second},
		Queue: QueueConfig{Prefix: "resync", RetentionDays: 30},
		Log:   LogConfig{Level: "info", Format: "text"},
	}
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) (*YAMLConfig, error) {
	cfg := defaultYAMLConfig()

	for _, name := range []string{"common.yaml", fmt.Sprintf("%s.yaml", env)} {
		for _, base := range effectiveConfigPaths(env) {
			path := filepath.Join(base, name)
			data, err := os.ReadFile(path)
			if err != nil {
				continue
			}
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
			break
		}
	}
	return cfg, nil
}

// validate 校验阈值并填充缺省值
func (c *Config) validate() error {
	a := &c.Auditor
	if a.DeleteThreshold < 0 || a.DeleteThreshold > 1 {
		return fmt.Errorf("auditor.delete_threshold must be within [0,1], got %v", a.DeleteThreshold)
	}
	if a.FlagThreshold < 0 || a.FlagThreshold > 1 {
		return fmt.Errorf("auditor.flag_threshold must be within [0,1], got %v", a.FlagThreshold)
	}
	if a.FlagThreshold >= a.DeleteThreshold {
		return fmt.Errorf("auditor.flag_threshold (%v) must be below delete_threshold (%v)", a.FlagThreshold, a.DeleteThreshold)
	}
	if a.FetchLimit <= 0 {
		a.FetchLimit = 100
	}
	if a.MaxParallel <= 0 {
		a.MaxParallel = 10
	}
	if a.Frequency <= 0 {
		a.Frequency = 6 * time.Hour
	}

	c.Lock.Backend = strings.ToLower(c.Lock.Backend)
	switch c.Lock.Backend {
	case "":
		c.Lock.Backend = "redis"
	case "redis", "etcd", "memory":
	default:
		return fmt.Errorf("unknown lock backend %q", c.Lock.Backend)
	}
	if c.Lock.Timeout <= 0 {
		c.Lock.Timeout = 30 * time.Second
	}
	if c.Lock.JanitorMaxAge <= 0 {
		c.Lock.JanitorMaxAge = 60 * time.Second
	}
	// 清理阈值低于锁 TTL 时，别的实例的清理会删掉仍然有效的锁
	c.Lock.JanitorMaxAge = max(c.Lock.JanitorMaxAge, c.Lock.Timeout)

	if c.Queue.RetentionDays <= 0 {
		c.Queue.RetentionDays = 30
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = 500
	}
	if c.LLM.Timeout <= 0 {
		c.LLM.Timeout = 30 * time.Second
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	model, ok := defaultModels[c.LLM.Provider]
	if !ok {
		return fmt.Errorf("unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		c.LLM.Model = model
	}
	return nil
}
