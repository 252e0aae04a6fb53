package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 应用配置
type Config struct {
	HTTP     HTTPConfig
	Redis    RedisConfig
	Postgres PostgresConfig
	DBPool   DBPoolConfig
	Upload   UploadConfig
	Task     TaskConfig
	WS       WSConfig
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr string
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	DSN string
}

// DBPoolConfig 数据库连接池配置
type DBPoolConfig struct {
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// UploadConfig 文件上传配置
type UploadConfig struct {
	Dir               string
	MaxFileSize       int64
	AllowedExtensions []string
}

// TaskConfig 任务处理配置
type TaskConfig struct {
	// MaxConcurrent 同时处于 processing 的任务上限
	MaxConcurrent int
	// Timeout 单个任务的处理超时（由处理器强制，不在调度层）
	Timeout time.Duration
}

// WSConfig WebSocket 配置
type WSConfig struct {
	// ReconnectDelay 客户端断线重连的固定退避
	ReconnectDelay time.Duration
	// AdmissionDelay pending -> processing 的固定准入延迟
	AdmissionDelay time.Duration
}

// Load 加载配置
func Load() (*Config, error) {
	v := viper.New()

	// 设置配置文件名和路径
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("..")
	v.AddConfigPath("../..")

	// 允许从环境变量读取（优先级最高）
	v.AutomaticEnv()

	// 读取配置文件（如果存在）
	_ = v.ReadInConfig() // 忽略错误，因为可能只使用环境变量

	cfg := &Config{}

	// HTTP 配置
	cfg.HTTP.Addr = v.GetString("HTTP_ADDR")
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":28080"
	}

	// Redis 配置
	cfg.Redis.Addr = v.GetString("REDIS_ADDR")
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")

	// PostgreSQL 配置
	cfg.Postgres.DSN = v.GetString("POSTGRES_DSN")
	if cfg.Postgres.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	// 数据库连接池配置
	cfg.DBPool.MaxConns = v.GetInt("DB_MAX_CONNS")
	if cfg.DBPool.MaxConns == 0 {
		cfg.DBPool.MaxConns = 20
	}

	cfg.DBPool.MinConns = v.GetInt("DB_MIN_CONNS")
	if cfg.DBPool.MinConns == 0 {
		cfg.DBPool.MinConns = 5
	}

	cfg.DBPool.MaxConnLifetime = v.GetDuration("DB_MAX_CONN_LIFETIME")
	if cfg.DBPool.MaxConnLifetime == 0 {
		cfg.DBPool.MaxConnLifetime = 30 * time.Minute
	}

	cfg.DBPool.MaxConnIdleTime = v.GetDuration("DB_MAX_CONN_IDLE_TIME")
	if cfg.DBPool.MaxConnIdleTime == 0 {
		cfg.DBPool.MaxConnIdleTime = 5 * time.Minute
	}

	// 文件上传配置
	cfg.Upload.Dir = v.GetString("UPLOAD_DIR")
	if cfg.Upload.Dir == "" {
		cfg.Upload.Dir = "./uploads"
	}

	cfg.Upload.MaxFileSize = v.GetInt64("MAX_FILE_SIZE")
	if cfg.Upload.MaxFileSize == 0 {
		cfg.Upload.MaxFileSize = 10 * 1024 * 1024 // 10MB
	}

	exts := v.GetString("ALLOWED_EXTENSIONS")
	if exts == "" {
		exts = ".txt,.md"
	}
	for _, e := range strings.Split(exts, ",") {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		cfg.Upload.AllowedExtensions = append(cfg.Upload.AllowedExtensions, strings.ToLower(e))
	}

	// 任务处理配置
	cfg.Task.MaxConcurrent = v.GetInt("MAX_CONCURRENT_TASKS")
	if cfg.Task.MaxConcurrent == 0 {
		cfg.Task.MaxConcurrent = 3
	}

	cfg.Task.Timeout = v.GetDuration("TASK_TIMEOUT")
	if cfg.Task.Timeout == 0 {
		cfg.Task.Timeout = 300 * time.Second
	}

	// WebSocket 配置
	cfg.WS.ReconnectDelay = v.GetDuration("WS_RECONNECT_DELAY")
	if cfg.WS.ReconnectDelay == 0 {
		cfg.WS.ReconnectDelay = 3 * time.Second
	}

	cfg.WS.AdmissionDelay = v.GetDuration("ADMISSION_DELAY")
	if cfg.WS.AdmissionDelay == 0 {
		cfg.WS.AdmissionDelay = 100 * time.Millisecond
	}

	return cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("PostgreSQL DSN is required")
	}
	if c.Redis.Addr == "" {
		return fmt.Errorf("Redis address is required")
	}
	if c.Task.MaxConcurrent <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_TASKS must be positive")
	}
	return nil
}
