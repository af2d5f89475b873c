package db

import (
	"fmt"
	"net/url"
	"time"

	"nni-keeper/internal/config"
	"nni-keeper/internal/logging"
	"nni-keeper/internal/model"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// InitDB 连接数据库并自动迁移，结果保存在 DB 中
func InitDB(cfg *config.Config) error {
	conn, err := OpenWithLogger(cfg.Database, logging.New(cfg.Log, "gorm"))
	if err != nil {
		return err
	}
	if err := Migrate(conn); err != nil {
		return err
	}
	DB = conn
	return nil
}

// Open 按驱动建立连接，SQL 日志输出到标准输出
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	return OpenWithLogger(cfg, logging.New(config.LogConfig{Level: "warn"}, "gorm"))
}

// NewGormLogger gorm 日志转发到结构化日志；未查到记录是正常分支，不记日志
func NewGormLogger(w logger.Writer) logger.Interface {
	return logger.New(w, logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

// OpenWithLogger 按驱动建立连接
func OpenWithLogger(cfg config.DatabaseConfig, w logger.Writer) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql", "":
		dialector = mysql.Open(MySQLDSN(cfg))
	case "postgres":
		dialector = postgres.Open(PostgresDSN(cfg))
	case "sqlite":
		dialector = sqlite.Open(SQLiteDSN(cfg))
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %q", cfg.Driver)
	}

	conn, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         NewGormLogger(w),
	})
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if cfg.Driver == "sqlite" {
		// sqlite 只允许单写连接，内存库多连接时各自是独立的库
		sqlDB, err := conn.DB()
		if err != nil {
			return nil, fmt.Errorf("获取底层连接失败: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return conn, nil
}

// Migrate 自动迁移所有表
func Migrate(conn *gorm.DB) error {
	if err := conn.AutoMigrate(
		&model.TrialModel{},
		&model.TempModel{},
		&model.ModelCore{},
		&model.ModelMetadata{},
	); err != nil {
		return fmt.Errorf("数据库迁移失败: %w", err)
	}
	return nil
}

func MySQLDSN(cfg config.DatabaseConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.Charset,
	)
}

func PostgresDSN(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   cfg.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", cfg.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

func SQLiteDSN(cfg config.DatabaseConfig) string {
	if cfg.Path == "" || cfg.Path == ":memory:" {
		return "file::memory:"
	}
	return cfg.Path
}
