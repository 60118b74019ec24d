package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Config 应用配置
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Monitor       MonitorConfig       `yaml:"monitor"`
	Agent         AgentConfig         `yaml:"agent"`
	Logger        LoggerConfig        `yaml:"logger"`
	Elasticsearch ElasticsearchConfig `yaml:"elasticsearch"`
	Alert         AlertConfig         `yaml:"alert"`
	RateLimit     RateLimitConfig     `yaml:"rate_limit"`
}

type ServerConfig struct {
	HTTPPort int    `yaml:"http_port"`
	GRPCPort int    `yaml:"grpc_port"`
	Host     string `yaml:"host"`
}

type DatabaseConfig struct {
	Driver       string `yaml:"driver"`
	Host         string `yaml:"host"`
	Port         int    `yaml:"port"`
	User         string `yaml:"user"`
	Password     string `yaml:"password"`
	DBName       string `yaml:"dbname"`
	SSLMode      string `yaml:"sslmode"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

type MonitorConfig struct {
	TickSpec       string `yaml:"tick_spec"`       // cron 表达式，如 "@every 60s"
	Workers        int    `yaml:"workers"`         // 并发检查数
	QueueSize      int    `yaml:"queue_size"`      // 检查队列长度
	DefaultTimeout int    `yaml:"default_timeout"` // seconds，监控未设置超时时使用
	Timezone       string `yaml:"timezone"`        // 每日统计的时区
}

type AgentConfig struct {
	OfflineAfter int    `yaml:"offline_after"` // seconds，超过该时间未上报视为离线
	SweepSpec    string `yaml:"sweep_spec"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Output string `yaml:"output"` // stdout, stderr, or file path
}

type ElasticsearchConfig struct {
	Enabled     bool     `yaml:"enabled"`      // 是否启用 Elasticsearch 归档
	Addresses   []string `yaml:"addresses"`    // ES 节点地址，如 ["http://localhost:9200"]
	Username    string   `yaml:"username"`     // ES 用户名
	Password    string   `yaml:"password"`     // ES 密码
	IndexPrefix string   `yaml:"index_prefix"` // 索引前缀，如 "uptime-checks"
}

type AlertConfig struct {
	Enabled         bool    `yaml:"enabled"`          // 是否启用通知
	DispatchTimeout int     `yaml:"dispatch_timeout"` // seconds，单个渠道发送超时
	RatePerSecond   float64 `yaml:"rate_per_second"`  // 全局发送速率，0 表示不限制
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`   // 每个 IP 每秒请求数
	Burst   int     `yaml:"burst"` // 突发请求数
}

// LoadFromFile 从文件加载配置
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 设置默认值
	setDefaults(&config)

	return &config, nil
}

// SaveToFile 保存配置到文件
func SaveToFile(path string, config *Config) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Load 从环境变量加载配置
func Load() *Config {
	config := &Config{
		Server: ServerConfig{
			HTTPPort: getEnvInt("HTTP_PORT", 8080),
			GRPCPort: getEnvInt("GRPC_PORT", 9090),
			Host:     getEnv("HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "sqlite"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvInt("DB_PORT", 3306),
			User:         getEnv("DB_USER", "root"),
			Password:     getEnv("DB_PASSWORD", ""),
			DBName:       getEnv("DB_NAME", "uptime.db"),
			SSLMode:      getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 50),
		},
		Monitor: MonitorConfig{
			TickSpec:       getEnv("MONITOR_TICK_SPEC", "@every 60s"),
			Workers:        getEnvInt("MONITOR_WORKERS", 10),
			QueueSize:      getEnvInt("MONITOR_QUEUE_SIZE", 1000),
			DefaultTimeout: getEnvInt("MONITOR_DEFAULT_TIMEOUT", 30),
			Timezone:       getEnv("MONITOR_TIMEZONE", "UTC"),
		},
		Agent: AgentConfig{
			OfflineAfter: getEnvInt("AGENT_OFFLINE_AFTER", 180),
			SweepSpec:    getEnv("AGENT_SWEEP_SPEC", "@every 30s"),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
		Elasticsearch: ElasticsearchConfig{
			Enabled:     getEnvBool("ES_ENABLED", false),
			Addresses:   getEnvSlice("ES_ADDRESSES", []string{"http://localhost:9200"}),
			Username:    getEnv("ES_USERNAME", ""),
			Password:    getEnv("ES_PASSWORD", ""),
			IndexPrefix: getEnv("ES_INDEX_PREFIX", "uptime-checks"),
		},
		Alert: AlertConfig{
			Enabled:         getEnvBool("ALERT_ENABLED", true),
			DispatchTimeout: getEnvInt("ALERT_DISPATCH_TIMEOUT", 10),
			RatePerSecond:   getEnvFloat("ALERT_RATE_PER_SECOND", 0),
		},
		RateLimit: RateLimitConfig{
			Enabled: getEnvBool("RATE_LIMIT_ENABLED", true),
			RPS:     getEnvFloat("RATE_LIMIT_RPS", 10),
			Burst:   getEnvInt("RATE_LIMIT_BURST", 20),
		},
	}
	setDefaults(config)
	return config
}

// setDefaults 设置默认值
func setDefaults(config *Config) {
	if config.Server.HTTPPort == 0 {
		config.Server.HTTPPort = 8080
	}
	if config.Server.GRPCPort == 0 {
		config.Server.GRPCPort = 9090
	}
	if config.Server.Host == "" {
		config.Server.Host = "0.0.0.0"
	}
	if config.Database.Driver == "" {
		config.Database.Driver = "sqlite"
	}
	if config.Database.DBName == "" {
		config.Database.DBName = "uptime.db"
	}
	if config.Database.SSLMode == "" {
		config.Database.SSLMode = "disable"
	}
	if config.Monitor.TickSpec == "" {
		config.Monitor.TickSpec = "@every 60s"
	}
	if config.Monitor.Workers == 0 {
		config.Monitor.Workers = 10
	}
	if config.Monitor.QueueSize == 0 {
		config.Monitor.QueueSize = 1000
	}
	if config.Monitor.DefaultTimeout == 0 {
		config.Monitor.DefaultTimeout = 30
	}
	if config.Monitor.Timezone == "" {
		config.Monitor.Timezone = "UTC"
	}
	if config.Agent.OfflineAfter == 0 {
		config.Agent.OfflineAfter = 180
	}
	if config.Agent.SweepSpec == "" {
		config.Agent.SweepSpec = "@every 30s"
	}
	if config.Logger.Level == "" {
		config.Logger.Level = "info"
	}
	if config.Logger.Output == "" {
		config.Logger.Output = "stdout"
	}
	if config.Elasticsearch.IndexPrefix == "" {
		config.Elasticsearch.IndexPrefix = "uptime-checks"
	}
	if config.Alert.DispatchTimeout == 0 {
		config.Alert.DispatchTimeout = 10
	}
	if config.RateLimit.RPS == 0 {
		config.RateLimit.RPS = 10
	}
	if config.RateLimit.Burst == 0 {
		config.RateLimit.Burst = 20
	}
}

// Location 每日统计使用的时区
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Monitor.Timezone)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		var intVal int
		if _, err := fmt.Sscanf(val, "%d", &intVal); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		var f float64
		if _, err := fmt.Sscanf(val, "%g", &f); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1" || val == "yes"
	}
	return defaultVal
}

func getEnvSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		// 支持逗号分隔的字符串
		if result := splitAndTrim(val, ","); len(result) > 0 {
			return result
		}
	}
	return defaultVal
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	var result []string
	for _, part := range strings.Split(s, sep) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	// 验证服务器配置
	if c.Server.HTTPPort < 1 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Server.GRPCPort < 1 || c.Server.GRPCPort > 65535 {
		return fmt.Errorf("invalid gRPC port: %d", c.Server.GRPCPort)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}

	// 验证数据库配置
	validDrivers := map[string]bool{
		"sqlite":   true,
		"mysql":    true,
		"postgres": true,
	}
	if !validDrivers[c.Database.Driver] {
		return fmt.Errorf("invalid database driver: %s", c.Database.Driver)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("database name cannot be empty")
	}
	if c.Database.Driver != "sqlite" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host cannot be empty for %s", c.Database.Driver)
		}
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Database.Port)
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user cannot be empty for %s", c.Database.Driver)
		}
	}

	// 验证监控配置
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(c.Monitor.TickSpec); err != nil {
		return fmt.Errorf("invalid monitor tick spec %q: %w", c.Monitor.TickSpec, err)
	}
	if c.Monitor.Workers < 1 {
		return fmt.Errorf("monitor workers must be at least 1")
	}
	if c.Monitor.QueueSize < 1 {
		return fmt.Errorf("monitor queue size must be at least 1")
	}
	if c.Monitor.DefaultTimeout < 1 {
		return fmt.Errorf("monitor default timeout must be at least 1 second")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid monitor timezone %q: %w", c.Monitor.Timezone, err)
	}

	// 验证客户端配置
	if c.Agent.OfflineAfter < 1 {
		return fmt.Errorf("agent offline_after must be at least 1 second")
	}
	if _, err := parser.Parse(c.Agent.SweepSpec); err != nil {
		return fmt.Errorf("invalid agent sweep spec %q: %w", c.Agent.SweepSpec, err)
	}

	// 验证日志配置
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logger.Level)
	}

	// 验证Elasticsearch配置
	if c.Elasticsearch.Enabled && len(c.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("elasticsearch addresses cannot be empty when enabled")
	}

	// 验证通知配置
	if c.Alert.DispatchTimeout < 1 {
		return fmt.Errorf("alert dispatch timeout must be at least 1 second")
	}
	if c.Alert.RatePerSecond < 0 {
		return fmt.Errorf("alert rate cannot be negative")
	}

	// 验证限流配置
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst < 1) {
		return fmt.Errorf("rate limit requires positive rps and burst")
	}

	return nil
}
