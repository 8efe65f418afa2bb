// Package config 提供配置管理
//
// 加载顺序：内置默认值 → YAML 配置文件 → .env 文件 → MEDSCHED_ 前缀的环境变量，后者覆盖前者。
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/paiban/medsched/pkg/logger"
)

// EnvPrefix 环境变量前缀
const EnvPrefix = "MEDSCHED_"

// Config 应用配置
type Config struct {
	App      AppConfig      `yaml:"app" envPrefix:"APP_"`
	Server   ServerConfig   `yaml:"server" envPrefix:"SERVER_"`
	Auth     AuthConfig     `yaml:"auth" envPrefix:"AUTH_"`
	Database DatabaseConfig `yaml:"database" envPrefix:"DB_"`
	Redis    RedisConfig    `yaml:"redis" envPrefix:"REDIS_"`
	AMQP     AMQPConfig     `yaml:"amqp" envPrefix:"AMQP_"`
	Solver   SolverConfig   `yaml:"solver" envPrefix:"SOLVER_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Log      logger.Config  `yaml:"log" envPrefix:"LOG_"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name string `yaml:"name" env:"NAME" validate:"required"`
	Env  string `yaml:"env" env:"ENV" validate:"oneof=development test production"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT" validate:"gte=1,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	BodyLimit       int64         `yaml:"body_limit" env:"BODY_LIMIT" validate:"gte=0"`
	RateLimit       int           `yaml:"rate_limit" env:"RATE_LIMIT" validate:"gte=0"` // 每分钟每客户端，0 表示不限
	CORSOrigins     []string      `yaml:"cors_origins" env:"CORS_ORIGINS"`
}

// Addr 返回监听地址
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	Enabled  bool          `yaml:"enabled" env:"ENABLED"`
	Secret   string        `yaml:"secret" env:"SECRET" validate:"required_if=Enabled true"`
	Issuer   string        `yaml:"issuer" env:"ISSUER"`
	TokenTTL time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	Name            string        `yaml:"name" env:"NAME"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
	Migrate         bool          `yaml:"migrate" env:"MIGRATE"`
}

// DSN 返回数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled" env:"ENABLED"`
	Host      string        `yaml:"host" env:"HOST"`
	Port      int           `yaml:"port" env:"PORT"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	PoolSize  int           `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// Addr 返回Redis地址
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// AMQPConfig 消息队列配置，用于发布求解完成事件
type AMQPConfig struct {
	Enabled        bool          `yaml:"enabled" env:"ENABLED"`
	URL            string        `yaml:"url" env:"URL" validate:"required_if=Enabled true"`
	Queue          string        `yaml:"queue" env:"QUEUE"`
	PublishTimeout time.Duration `yaml:"publish_timeout" env:"PUBLISH_TIMEOUT"`
}

// SolverConfig 求解服务配置
type SolverConfig struct {
	Engine            string        `yaml:"engine" env:"ENGINE" validate:"oneof=cpsat greedy"`
	DisableFallback   bool          `yaml:"disable_fallback" env:"DISABLE_FALLBACK"`
	MaxConcurrentRuns int           `yaml:"max_concurrent_runs" env:"MAX_CONCURRENT_RUNS" validate:"gte=1"`
	MinPhaseTime      time.Duration `yaml:"min_phase_time" env:"MIN_PHASE_TIME"`
	Workers           int           `yaml:"workers" env:"WORKERS" validate:"gte=0"`
	RunRetention      time.Duration `yaml:"run_retention" env:"RUN_RETENTION"`
	Lang              string        `yaml:"lang" env:"LANG" validate:"oneof=zh en"`
}

// MetricsConfig 监控配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Default 内置默认配置
func Default() *Config {
	return &Config{
		App: AppConfig{
			Name: "medsched",
			Env:  "development",
		},
		Server: ServerConfig{
			Port:            7012,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			BodyLimit:       10 << 20,
			RateLimit:       120,
			CORSOrigins:     []string{"*"},
		},
		Auth: AuthConfig{
			Issuer:   "medsched",
			TokenTTL: 24 * time.Hour,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			Name:            "medsched",
			User:            "medsched",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			Migrate:         true,
		},
		Redis: RedisConfig{
			Host:      "localhost",
			Port:      6379,
			PoolSize:  10,
			KeyPrefix: "medsched:run:",
			TTL:       24 * time.Hour,
		},
		AMQP: AMQPConfig{
			Queue:          "medsched.runs",
			PublishTimeout: 5 * time.Second,
		},
		Solver: SolverConfig{
			Engine:            "cpsat",
			MaxConcurrentRuns: 2,
			RunRetention:      24 * time.Hour,
			Lang:              "zh",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Log: logger.DefaultConfig(),
	}
}

// Load 加载配置；path 为空时跳过 YAML 文件，.env 不存在时忽略
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		aggErr := env.AggregateError{}
		if ok := errors.As(err, &aggErr); ok && len(aggErr.Errors) > 0 {
			// 只返回第一个错误使得日志更清晰
			return nil, fmt.Errorf("解析环境变量失败: %w", aggErr.Errors[0])
		}
		return nil, fmt.Errorf("解析环境变量失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("配置无效: %w", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("配置无效: log.format 须为 console 或 json，实际为 %q", c.Log.Format)
	}
	return nil
}

// IsDevelopment 检查是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction 检查是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
