package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// 连接端点类型
const (
	EndpointMySQL = "mysql"
	EndpointRedis = "redis"
	EndpointLinux = "linux"
)

// Config 全局配置（连接配置文件）
type Config struct {
	App          AppConfig        `mapstructure:"app"`
	Server       ServerConfig     `mapstructure:"server"`
	Backoffice   BackofficeConfig `mapstructure:"backoffice"`
	Endpoints    []EndpointConfig `mapstructure:"endpoints"`
	Tables       TablesConfig     `mapstructure:"tables"`
	Notify       NotifyConfig     `mapstructure:"notify"`
	DefaultsFile string           `mapstructure:"defaults_file"`
}

// AppConfig 应用配置
type AppConfig struct {
	Name     string `mapstructure:"name"`
	Env      string `mapstructure:"env"`
	LogLevel string `mapstructure:"log_level"`
}

// ServerConfig 本地界面服务配置
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// BackofficeConfig 后台接口配置
type BackofficeConfig struct {
	BaseURL string         `mapstructure:"base_url"`
	Timeout time.Duration  `mapstructure:"timeout"`
	Cookies []CookieConfig `mapstructure:"cookies"` // 带外下发的会话 cookie
}

// CookieConfig 单个 cookie（名称大小写敏感，因此放在值里而不是键里）
type CookieConfig struct {
	Name  string `mapstructure:"name"`
	Value string `mapstructure:"value"`
}

// EndpointConfig 连接端点
type EndpointConfig struct {
	Name     string `mapstructure:"name"`
	Type     string `mapstructure:"type"` // mysql / redis / linux
	Address  string `mapstructure:"address"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
}

// TablesConfig 数据库表名
type TablesConfig struct {
	Order       string `mapstructure:"order"`
	CardUser    string `mapstructure:"card_user"`
	DeviceStock string `mapstructure:"device_stock"`
}

// NotifyConfig 申请结果通知配置
type NotifyConfig struct {
	RedisChannel  string       `mapstructure:"redis_channel"`
	CallbackQueue string       `mapstructure:"callback_queue"`
	Lmstfy        LmstfyConfig `mapstructure:"lmstfy"`
}

// LmstfyConfig Lmstfy 配置
type LmstfyConfig struct {
	Host      string `mapstructure:"host"`
	Port      int    `mapstructure:"port"`
	Namespace string `mapstructure:"namespace"`
	Token     string `mapstructure:"token"`
}

// Load 加载连接配置文件（JSON）
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.SetDefault("app.name", "etcapply")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("server.addr", "127.0.0.1:8686")
	v.SetDefault("backoffice.timeout", "30s")
	v.SetDefault("tables.order", "etc_apply_order")
	v.SetDefault("tables.card_user", "etc_card_user")
	v.SetDefault("tables.device_stock", "etc_device_stock")
	v.SetDefault("defaults_file", "config/defaults.json")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config failed: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config failed: %w", err)
	}

	return &cfg, nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app.name is required")
	}
	if c.Backoffice.BaseURL == "" {
		return fmt.Errorf("backoffice.base_url is required")
	}
	if len(c.Backoffice.Cookies) == 0 {
		return fmt.Errorf("backoffice.cookies is required")
	}
	for i, ck := range c.Backoffice.Cookies {
		if ck.Name == "" {
			return fmt.Errorf("backoffice.cookies[%d].name is required", i)
		}
	}
	for i, ep := range c.Endpoints {
		switch ep.Type {
		case EndpointMySQL, EndpointRedis, EndpointLinux:
		default:
			return fmt.Errorf("endpoints[%d].type %q is not one of mysql/redis/linux", i, ep.Type)
		}
		if ep.Address == "" {
			return fmt.Errorf("endpoints[%d].address is required", i)
		}
	}
	if _, ok := c.Endpoint(EndpointMySQL); !ok {
		return fmt.Errorf("a mysql endpoint is required")
	}
	return nil
}

// Endpoint 返回第一个指定类型的端点
func (c *Config) Endpoint(typ string) (EndpointConfig, bool) {
	for _, ep := range c.Endpoints {
		if ep.Type == typ {
			return ep, true
		}
	}
	return EndpointConfig{}, false
}

// CookieMap cookie 名称 → 值
func (c *Config) CookieMap() map[string]string {
	out := make(map[string]string, len(c.Backoffice.Cookies))
	for _, ck := range c.Backoffice.Cookies {
		out[ck.Name] = ck.Value
	}
	return out
}

// MySQLDSN 根据 mysql 端点拼接 DSN
// clientFoundRows 让 RowsAffected 按匹配行计数，值未变的 UPDATE 不会报 0 行
func (c *Config) MySQLDSN() (string, error) {
	ep, ok := c.Endpoint(EndpointMySQL)
	if !ok {
		return "", fmt.Errorf("mysql endpoint not configured")
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=Local&clientFoundRows=true",
		ep.Username, ep.Password, ep.Address, ep.Database), nil
}

// RedisDB 解析 redis 端点的库编号，database 为空时为 0
func (ep EndpointConfig) RedisDB() (int, error) {
	if ep.Database == "" {
		return 0, nil
	}
	db, err := strconv.Atoi(ep.Database)
	if err != nil {
		return 0, fmt.Errorf("redis database %q is not a number: %w", ep.Database, err)
	}
	return db, nil
}

// MaskedPassword 打印用的密码
func (ep EndpointConfig) MaskedPassword() string {
	if ep.Password == "" {
		return ""
	}
	return "******"
}

// LoadDefaults 加载默认参数文件
// 键是后台接口的字段名，大小写敏感，所以不走 viper（viper 会把键转成小写）
func LoadDefaults(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read defaults failed: %w", err)
	}

	var defaults map[string]string
	if err := json.Unmarshal(data, &defaults); err != nil {
		return nil, fmt.Errorf("unmarshal defaults failed: %w", err)
	}
	return defaults, nil
}
