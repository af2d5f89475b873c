package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	NNI      NNIConfig      `yaml:"nni"`
	Watcher  WatcherConfig  `yaml:"watcher"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type DatabaseConfig struct {
	// 驱动：mysql/postgres/sqlite
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Charset  string `yaml:"charset"`
	SSLMode  string `yaml:"sslmode"`
	// sqlite 文件路径（":memory:" 为内存库）
	Path string `yaml:"path"`
}

// RedisConfig Host 为空时 watcher 状态只保存在进程内存中
type RedisConfig struct {
	Host      string        `yaml:"host"`
	Port      int           `yaml:"port"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	// 已结束 watcher 状态的保留时间，内存存储同样适用
	StatusTTL time.Duration `yaml:"status_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text/json
	Output string `yaml:"output"` // stdout/stderr/文件路径
}

type NNIConfig struct {
	Binary string `yaml:"binary"`
	// 出现在状态行中即视为实验结束的标记
	TerminalMarkers []string      `yaml:"terminal_markers"`
	CommandTimeout  time.Duration `yaml:"command_timeout"`
}

// WatcherConfig 启动 watcher 时未指定参数的默认值
type WatcherConfig struct {
	PollInterval       time.Duration `yaml:"poll_interval"`
	StopOnComplete     bool          `yaml:"stop_on_complete"`
	TopCnt             int           `yaml:"top_cnt"`
	EvaluationCriteria string        `yaml:"evaluation_criteria"`
	Retry              RetryConfig   `yaml:"retry"`
}

// RetryConfig 存储读写失败时的有限重试
type RetryConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// Default 代码内默认值，YAML 与环境变量在此基础上覆盖
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8000},
		Database: DatabaseConfig{
			Driver:  "mysql",
			Host:    "localhost",
			Port:    3306,
			User:    "root",
			DBName:  "nni",
			Charset: "utf8mb4",
			SSLMode: "disable",
			Path:    "nni-keeper.db",
		},
		Redis: RedisConfig{
			Port:      6379,
			KeyPrefix: "nni-keeper",
			StatusTTL: 24 * time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "text", Output: "stdout"},
		NNI: NNIConfig{
			Binary:          "nnictl",
			TerminalMarkers: []string{"DONE"},
			CommandTimeout:  30 * time.Second,
		},
		Watcher: WatcherConfig{
			PollInterval:       20 * time.Second,
			StopOnComplete:     true,
			TopCnt:             3,
			EvaluationCriteria: "val_mae",
			Retry:              RetryConfig{MaxAttempts: 3, Backoff: 2 * time.Second},
		},
	}
}

// LoadConfig 加载 .env 与 YAML 配置文件；path 为空时只使用默认值和环境变量
func LoadConfig(path string) (*Config, error) {
	// .env 不存在不算错误
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置文件失败: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// 敏感信息只从环境变量读取
func applyEnv(cfg *Config) {
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("NNICTL_BIN"); v != "" {
		cfg.NNI.Binary = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("不支持的数据库驱动: %q", c.Database.Driver)
	}
	if c.Watcher.PollInterval <= 0 {
		return fmt.Errorf("watcher.poll_interval 必须大于 0")
	}
	if c.Watcher.TopCnt < 1 {
		return fmt.Errorf("watcher.top_cnt 必须大于等于 1")
	}
	if c.Watcher.Retry.MaxAttempts < 1 {
		c.Watcher.Retry.MaxAttempts = 1
	}
	if len(c.NNI.TerminalMarkers) == 0 {
		c.NNI.TerminalMarkers = []string{"DONE"}
	}
	return nil
}
