package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"yqhp/mpi-simulator/pkg/logger"
	"yqhp/mpi-simulator/pkg/types"
)

// CollatzRecord is the persisted form of a result row.
type CollatzRecord struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	RunID     string    `gorm:"column:run_id;size:36;index"`
	Seq       int       `gorm:"column:seq"`
	Number    uint64    `gorm:"column:number"`
	Length    int       `gorm:"column:length"`
	Rank      int       `gorm:"column:rank"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName 默认表名
func (CollatzRecord) TableName() string {
	return "collatz_results"
}

// DatabaseConfig 数据库输出配置
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql, postgres
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Charset  string `yaml:"charset"`

	Table        string `yaml:"table"`
	BatchSize    int    `yaml:"batch_size"`
	SkipMigrate  bool   `yaml:"skip_migrate"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	LogLevel     string `yaml:"log_level"` // silent, error, warn, info
}

// DefaultDatabaseConfig 返回默认数据库输出配置
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		Driver:       "mysql",
		Host:         "127.0.0.1",
		Port:         3306,
		Charset:      "utf8mb4",
		Table:        CollatzRecord{}.TableName(),
		BatchSize:    100,
		MaxIdleConns: 2,
		MaxOpenConns: 4,
		LogLevel:     "warn",
	}
}

// BuildDSN 构建连接字符串，显式配置的 DSN 优先
func (c *DatabaseConfig) BuildDSN() (string, error) {
	if c.DSN != "" {
		return c.DSN, nil
	}
	switch c.Driver {
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=%s&parseTime=True&loc=Local",
			c.Username,
			c.Password,
			c.Host,
			c.Port,
			c.Database,
			c.Charset,
		), nil
	case "postgres":
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host,
			c.Port,
			c.Username,
			c.Password,
			c.Database,
		), nil
	default:
		return "", fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

// Dialector 根据驱动返回 gorm 方言
func (c *DatabaseConfig) Dialector() (gorm.Dialector, error) {
	dsn, err := c.BuildDSN()
	if err != nil {
		return nil, err
	}
	switch c.Driver {
	case "mysql":
		return mysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Driver)
	}
}

func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "silent":
		return gormlogger.Silent
	case "error":
		return gormlogger.Error
	case "info":
		return gormlogger.Info
	default:
		return gormlogger.Warn
	}
}

// DatabaseSink 将结果批量写入 MySQL 或 PostgreSQL
type DatabaseSink struct {
	config *DatabaseConfig
	db     *gorm.DB
	owned  bool
	runID  string
	mu     sync.Mutex
}

// NewDatabaseSink 创建数据库输出器，连接在 Init 时建立
func NewDatabaseSink(config *DatabaseConfig) *DatabaseSink {
	if config == nil {
		config = DefaultDatabaseConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.Table == "" {
		config.Table = CollatzRecord{}.TableName()
	}
	return &DatabaseSink{config: config}
}

// NewDatabaseSinkWithDB 使用已有连接创建输出器，Close 不会关闭该连接
func NewDatabaseSinkWithDB(db *gorm.DB, config *DatabaseConfig) *DatabaseSink {
	s := NewDatabaseSink(config)
	s.db = db
	return s
}

// NewDatabaseFactory returns a factory function for creating database sinks.
func NewDatabaseFactory() Factory {
	return func(config map[string]any) (Sink, error) {
		cfg := DefaultDatabaseConfig()
		cfg.Driver = stringOption(config, "driver", cfg.Driver)
		cfg.DSN = stringOption(config, "dsn", cfg.DSN)
		cfg.Host = stringOption(config, "host", cfg.Host)
		cfg.Port = intOption(config, "port", cfg.Port)
		cfg.Username = stringOption(config, "username", cfg.Username)
		cfg.Password = stringOption(config, "password", cfg.Password)
		cfg.Database = stringOption(config, "database", cfg.Database)
		cfg.Charset = stringOption(config, "charset", cfg.Charset)
		cfg.Table = stringOption(config, "table", cfg.Table)
		cfg.BatchSize = intOption(config, "batch_size", cfg.BatchSize)
		cfg.SkipMigrate = boolOption(config, "skip_migrate", cfg.SkipMigrate)
		cfg.MaxIdleConns = intOption(config, "max_idle_conns", cfg.MaxIdleConns)
		cfg.MaxOpenConns = intOption(config, "max_open_conns", cfg.MaxOpenConns)
		cfg.LogLevel = stringOption(config, "log_level", cfg.LogLevel)

		if _, err := cfg.Dialector(); err != nil {
			return nil, err
		}
		return NewDatabaseSink(cfg), nil
	}
}

// Name returns the sink name.
func (s *DatabaseSink) Name() string {
	return string(TypeDatabase)
}

// Init 建立连接并迁移结果表
func (s *DatabaseSink) Init(ctx context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		dialector, err := s.config.Dialector()
		if err != nil {
			return err
		}
		db, err := gorm.Open(dialector, &gorm.Config{
			Logger: logger.NewGormLogger(logger.Named("gorm")).LogMode(gormLogLevel(s.config.LogLevel)),
		})
		if err != nil {
			return fmt.Errorf("连接数据库失败: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		sqlDB.SetMaxIdleConns(s.config.MaxIdleConns)
		sqlDB.SetMaxOpenConns(s.config.MaxOpenConns)

		s.db = db
		s.owned = true
	}

	if !s.config.SkipMigrate {
		if err := s.db.WithContext(ctx).Table(s.config.Table).AutoMigrate(&CollatzRecord{}); err != nil {
			return fmt.Errorf("迁移结果表失败: %w", err)
		}
	}

	s.runID = run.RunID
	return nil
}

// Write 按批次插入结果
func (s *DatabaseSink) Write(ctx context.Context, rows []types.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("输出器未初始化")
	}
	if len(rows) == 0 {
		return nil
	}

	records := slice.Map(rows, func(_ int, row types.Row) CollatzRecord {
		return CollatzRecord{
			RunID:  s.runID,
			Seq:    row.Seq,
			Number: row.Number,
			Length: row.Length,
			Rank:   int(row.Rank),
		}
	})

	for _, batch := range slice.Chunk(records, s.config.BatchSize) {
		if err := s.db.WithContext(ctx).Table(s.config.Table).Create(&batch).Error; err != nil {
			return fmt.Errorf("写入结果失败: %w", err)
		}
	}
	return nil
}

// Close 关闭自行建立的连接
func (s *DatabaseSink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil || !s.owned {
		return nil
	}
	sqlDB, err := s.db.DB()
	s.db = nil
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
