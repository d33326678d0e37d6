package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀（STATUS_AGENT_LOG_LEVEL -> log.level）
const EnvPrefix = "STATUS_AGENT"

var valid = validator.New()

// Config 全局配置结构体（聚合所有核心模块）
type Config struct {
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
	Collectors CollectorsConfig `yaml:"collectors" mapstructure:"collectors"`
	Handlers   HandlersConfig   `yaml:"handlers" mapstructure:"handlers"`
	Log        ZapLogConfig     `yaml:"log" mapstructure:"log"`
}

// ServerConfig HTTP服务配置（/metrics, /health）
type ServerConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout" validate:"required,gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout" validate:"required,gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"required,gt=0"`
}

// AgentConfig 调度配置
type AgentConfig struct {
	// Interval 采集器未单独配置 interval 时使用的默认周期
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"required,gt=0"`
}

// CollectorsConfig 按名称区分的采集器配置，键名即注册名
type CollectorsConfig struct {
	OpenVPN OpenVPNCollectorConfig `yaml:"openvpn" mapstructure:"openvpn"`
	CPU     CPUCollectorConfig     `yaml:"cpu" mapstructure:"cpu"`
}

// OpenVPNCollectorConfig 状态报告采集器配置
type OpenVPNCollectorConfig struct {
	Enable bool `yaml:"enable" mapstructure:"enable"`
	// Interval 采集间隔（秒），0 表示使用 agent.interval
	Interval int `yaml:"interval" mapstructure:"interval" validate:"gte=0,lte=3600"`
	// Method 多实例读取方式：sequential（默认）| concurrent
	Method string `yaml:"method,omitempty" mapstructure:"method" validate:"omitempty,oneof=sequential concurrent"`
	// Instances 数据源：文件路径、file:// 或 tcp://host:port（管理接口）
	Instances []string      `yaml:"instances" mapstructure:"instances" validate:"required_if=Enable true,dive,required"`
	Timeout   time.Duration `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"`
}

// CPUCollectorConfig CPU/负载采集器配置
type CPUCollectorConfig struct {
	Enable   bool `yaml:"enable" mapstructure:"enable"`
	Interval int  `yaml:"interval" mapstructure:"interval" validate:"gte=0,lte=3600"`
	PerCore  bool `yaml:"per_core" mapstructure:"per_core"`
}

// HandlersConfig 按名称区分的处理器配置
type HandlersConfig struct {
	Archive ArchiveHandlerConfig `yaml:"archive" mapstructure:"archive"`
}

// ArchiveHandlerConfig 本地归档处理器配置
type ArchiveHandlerConfig struct {
	Enable  bool   `yaml:"enable" mapstructure:"enable"`
	LogFile string `yaml:"log_file" mapstructure:"log_file" validate:"required_if=Enable true"`
	// Days 保留的已轮转文件个数（不含当前文件）
	Days int `yaml:"days" mapstructure:"days" validate:"gte=0"`
}

// ZapLogConfig 运行日志配置
type ZapLogConfig struct {
	Level  string `yaml:"level" mapstructure:"level" validate:"required,oneof=debug info warn error dpanic panic fatal"`
	Format string `yaml:"format" mapstructure:"format" validate:"required,oneof=json console"`
	Path   string `yaml:"path" mapstructure:"path" validate:"required"`
	MaxAge int    `yaml:"max_age" mapstructure:"max_age" validate:"gte=0"`
}

// NewDefaultConfig 创建默认配置（所有字段兜底，避免空指针/非法值）
func NewDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         "127.0.0.1:9108",
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  15 * time.Second,
		},
		Agent: AgentConfig{
			Interval: 10 * time.Second,
		},
		Collectors: CollectorsConfig{
			OpenVPN: OpenVPNCollectorConfig{
				Enable:    false,
				Interval:  0,
				Method:    "sequential",
				Instances: []string{},
				Timeout:   5 * time.Second,
			},
			CPU: CPUCollectorConfig{
				Enable:  false,
				PerCore: false,
			},
		},
		Handlers: HandlersConfig{
			Archive: ArchiveHandlerConfig{
				Enable:  false,
				LogFile: "./archive/archive.log",
				Days:    7,
			},
		},
		Log: ZapLogConfig{
			Level:  "info",
			Format: "json",
			Path:   "./logs",
			MaxAge: 7,
		},
	}
}

// LoadConfigWithCli 合并 Flags + YAML + ENV 并解码到结构体（支持 time.Duration）
func LoadConfigWithCli(cmd *cobra.Command) (*Config, error) {
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

	return decode(v)
}

// Load 仅从文件加载（测试与 collect 子命令之外的调用方使用）
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()

	// 环境变量 STATUS_AGENT_LOG_LEVEL -> log.level
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	decoderConfig := &mapstructure.DecoderConfig{
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

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate 配置校验
func (c *Config) Validate() error {
	if err := valid.Struct(c); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return err
	}
	if err := c.Collectors.Validate(); err != nil {
		return err
	}
	if err := c.Handlers.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return nil
}

// IntervalOf 将采集器的秒级 interval 换算为周期，0 时回落到 agent.interval
func (c *Config) IntervalOf(seconds int) time.Duration {
	if seconds <= 0 {
		return c.Agent.Interval
	}
	return time.Duration(seconds) * time.Second
}
