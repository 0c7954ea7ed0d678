// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息（密码、API Key）和 APP_ENV
//  2. 内置默认值 → configs/common.yaml → configs/{env}.yaml
//  3. 环境变量覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import "time"

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	APIServer APIServerConfig `yaml:"api_server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Etcd      EtcdConfig      `yaml:"etcd"`
	MinIO     MinIOConfig     `yaml:"minio"`
	LLM       LLMConfig       `yaml:"llm"`
	Auditor   AuditorConfig   `yaml:"auditor"`
	Lock      LockConfig      `yaml:"lock"`
	Queue     QueueConfig     `yaml:"queue"`
	Log       LogConfig       `yaml:"log"`
}

// APIServerConfig 审核 API 服务配置
type APIServerConfig struct {
	Port string `yaml:"port"`
}

// DatabaseConfig 知识库存储配置
type DatabaseConfig struct {
	Driver  string `yaml:"driver"` // postgres, sqlite, mongodb
	URI     string `yaml:"uri"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
	User    string `yaml:"user"`
	Name    string `yaml:"name"`
	SSLMode string `yaml:"sslmode"`
	Path    string `yaml:"path"` // sqlite 文件路径
}

type RedisConfig struct {
	URL      string `yaml:"url"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	DB       int    `yaml:"db"`
	Password string `yaml:"-"`
}

type EtcdConfig struct {
	Endpoints []string `yaml:"endpoints"`
	Prefix    string   `yaml:"prefix"`
}

// MinIOConfig 审核记录归档配置
type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	AccessKey string `yaml:"-"`
	SecretKey string `yaml:"-"`
}

// LLMConfig 审核模型配置
type LLMConfig struct {
	Provider    string        `yaml:"provider"` // openai, anthropic
	Endpoint    string        `yaml:"endpoint"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	APIKey      string        `yaml:"-"`
}

// AuditorConfig 审核批次配置
type AuditorConfig struct {
	FetchLimit      int           `yaml:"fetch_limit"`
	DeleteThreshold float64       `yaml:"delete_threshold"`
	FlagThreshold   float64       `yaml:"flag_threshold"`
	HighRating      float64       `yaml:"high_rating"`
	MaxParallel     int           `yaml:"max_parallel"`
	Frequency       time.Duration `yaml:"frequency"`
	RunOnStartup    bool          `yaml:"run_on_startup"`
	CacheSize       int64         `yaml:"cache_size"` // 已处理 ID 缓存容量，0 关闭
}

// LockConfig 分布式锁配置
type LockConfig struct {
	Backend       string        `yaml:"backend"` // redis, etcd, memory
	Timeout       time.Duration `yaml:"timeout"`
	JanitorMaxAge time.Duration `yaml:"janitor_max_age"`
}

// QueueConfig 审核队列配置
type QueueConfig struct {
	Prefix        string `yaml:"prefix"`
	RetentionDays int    `yaml:"retention_days"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env            Environment
	DatabaseDriver string
	DatabaseURL    string
	DatabaseName   string
	RedisURL       string
	EtcdEndpoints  []string
	EtcdPrefix     string
	APIPort        string
	MinIO          MinIOConfig
	LLM            LLMConfig
	Auditor        AuditorConfig
	Lock           LockConfig
	Queue          QueueConfig
	Log            LogConfig
}
