package config

import (
	"fmt"
	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"strings"
	"time"

	"github.com/spf13/viper"
)

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server" comment:"HTTP服务配置"`
	Router  RouterConfig  `yaml:"router" mapstructure:"router" comment:"路由器连接配置"`
	Refresh RefreshConfig `yaml:"refresh" mapstructure:"refresh" comment:"采集刷新配置"`
	Log     ZapLogConfig  `yaml:"log" mapstructure:"log" comment:"日志配置"`
}

// ServerConfig HTTP服务配置（超时统一为time.Duration，支持"30s"解析）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" env:"HTTP_ADDR" validate:"required,hostname_port" comment:"HTTP监听地址（格式：ip:port）"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" env:"HTTP_READ_TIMEOUT" validate:"required,gt=0" comment:"读取超时时间（如30s）"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" env:"HTTP_WRITE_TIMEOUT" validate:"required,gt=0" comment:"写入超时时间（如30s）"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" validate:"required,gt=0" comment:"空闲连接超时时间（如60s）"`
}

// RouterConfig 路由器连接配置（设备地址、认证、单次请求超时）
type RouterConfig struct {
	Address        string        `yaml:"address" mapstructure:"address" env:"ASUS_ROUTER_HOST" validate:"required" comment:"路由器地址（如 192.168.1.1 或 http://192.168.1.1）"`
	Username       string        `yaml:"username" mapstructure:"username" env:"ASUS_ROUTER_USERNAME" validate:"required" comment:"路由器登录用户名"`
	Password       string        `yaml:"password" mapstructure:"password" env:"ASUS_ROUTER_PASSWORD" validate:"required" comment:"路由器登录密码"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout" env:"ASUS_ROUTER_REQUEST_TIMEOUT" validate:"required,gt=0" comment:"单次设备请求超时（如10s）" default:"10s"`
}

// RefreshConfig 采集刷新配置（间隔、退避、陈旧度上限）
type RefreshConfig struct {
	Interval         time.Duration `yaml:"interval" mapstructure:"interval" env:"REFRESH_INTERVAL" validate:"required,gt=0" comment:"刷新间隔（如30s）" default:"30s"`
	BackoffBase      time.Duration `yaml:"backoff_base" mapstructure:"backoff_base" env:"REFRESH_BACKOFF_BASE" validate:"required,gt=0" comment:"失败退避基础间隔" default:"5s"`
	BackoffCeiling   time.Duration `yaml:"backoff_ceiling" mapstructure:"backoff_ceiling" env:"REFRESH_BACKOFF_CEILING" validate:"required,gt=0" comment:"失败退避最大间隔" default:"5m"`
	StalenessCeiling time.Duration `yaml:"staleness_ceiling" mapstructure:"staleness_ceiling" env:"REFRESH_STALENESS_CEILING" validate:"required,gt=0" comment:"快照最大可接受陈旧度" default:"5m"`
	FailureThreshold int           `yaml:"failure_threshold" mapstructure:"failure_threshold" env:"REFRESH_FAILURE_THRESHOLD" validate:"required,gt=0" comment:"连续失败多少次后进入严重状态" default:"5"`
}

// ZapLogConfig 日志配置
type ZapLogConfig struct {
	Level     string `yaml:"level" mapstructure:"level" env:"LOG_LEVEL" validate:"required,oneof=debug info warn error dpanic panic fatal" comment:"日志级别" default:"info"`
	Format    string `yaml:"format" mapstructure:"format" env:"LOG_FORMAT" validate:"required,oneof=json console" comment:"日志格式（json/console）" default:"json"`
	Path      string `yaml:"path" mapstructure:"path" env:"LOG_PATH" validate:"required" comment:"日志存储路径" default:"./logs"`
	MaxSize   int    `yaml:"max_size" mapstructure:"max_size" env:"LOG_MAX_SIZE" validate:"required,gt=0" comment:"单个日志文件最大大小（MB）" default:"100"`
	MaxBackup int    `yaml:"max_backup" mapstructure:"max_backup" env:"LOG_MAX_BACKUP" validate:"required,gte=0" comment:"日志文件最大备份数" default:"30"`
	MaxAge    int    `yaml:"max_age" mapstructure:"max_age" env:"LOG_MAX_AGE" validate:"required,gte=0" comment:"日志文件最大保存天数" default:"7"`
	Compress  bool   `yaml:"compress" mapstructure:"compress" env:"LOG_COMPRESS" comment:"是否压缩过期日志" default:"true"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "0.0.0.0:9102",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Router: RouterConfig{
			Address:        "",
			Username:       "",
			Password:       "",
			RequestTimeout: 10 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval:         30 * time.Second,
			BackoffBase:      5 * time.Second,
			BackoffCeiling:   5 * time.Minute,
			StalenessCeiling: 5 * time.Minute,
			FailureThreshold: 5,
		},
		Log: ZapLogConfig{
			Level:     "info",
			Format:    "json",
			Path:      "./logs",
			MaxSize:   100,
			MaxBackup: 30,
			MaxAge:    7,
			Compress:  true,
		},
	}
}

// LoadConfigWithCli 支持 time.Duration，(Flags + YAML + ENV)
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
	cfg := NewDefaultConfig()
	v := viper.New()

	// 1. 绑定 Cobra Flags → Viper
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	// 2. 解析配置文件 (--config)
	configFile, _ := cmd.Flags().GetString("config")
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", configFile, err)
		}
	}

	// 3. 绑定环境变量 ENV -> Viper （HTTP_ADDR -> http.addr）
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("_", "."))

	// 4. 解码反序列化到结构体（支持 time.Duration）
	decoderConfig := &mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	}

	decoder, err := mapstructure.NewDecoder(decoderConfig)
	if err != nil {
		return nil, fmt.Errorf("new decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// 5. 校验配置
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	err := valid.Struct(c)
	if err != nil {
		return err
	}
	// 	1,校验Server服务配置
	if err := c.Server.Validate(); err != nil {
		return err
	}
	// 	2，校验路由器连接配置
	if err := c.Router.Validate(); err != nil {
		return err
	}
	// 	3，校验刷新配置
	if err := c.Refresh.Validate(); err != nil {
		return err
	}
	// 	4，校验日志配置
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}
