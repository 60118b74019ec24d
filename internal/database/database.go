package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uptime/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	// 最大连接数，0 使用默认值
	MaxOpenConns int
}

var DB *gorm.DB

// InitDB 打开数据库并迁移表结构，结果保存在全局 DB
func InitDB(config Config) error {
	db, err := Open(config)
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}
	DB = db
	return nil
}

// Open 根据驱动打开连接并配置连接池
func Open(config Config) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch config.Driver {
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
			config.User, config.Password, config.Host, config.Port, config.DBName)
		dialector = mysql.Open(dsn)
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			config.Host, config.Port, config.User, config.Password, config.DBName, config.SSLMode)
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(config.DBName)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	maxOpen := config.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 50
	}
	// sqlite 只允许单写，内存库每个连接都是独立的库
	if config.Driver == "sqlite" {
		maxOpen = 1
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}

// Migrate 自动迁移所有表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Monitor{},
		&models.StatusHistory{},
		&models.DailyStat{},
		&models.NotificationChannel{},
		&models.NotificationTemplate{},
		&models.NotificationSettings{},
		&models.NotificationHistory{},
		&models.Agent{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func GetDB() *gorm.DB {
	return DB
}

// Store 基于 gorm 实现各业务包需要的持久化接口
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接池
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// first 查询单条记录，不存在时返回 nil, nil
func first[T any](db *gorm.DB, conds ...interface{}) (*T, error) {
	var out T
	err := db.First(&out, conds...).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &out, nil
}
