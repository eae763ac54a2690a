// =============================================================================
// 📦 voicebridge 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("VOICEBRIDGE").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量 → 通用凭证变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/BaSui01/voicebridge/provider/circuitbreaker"
	"github.com/BaSui01/voicebridge/provider/router"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 voicebridge 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Redis 用量计数器存储
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 失败记录存储
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`

	// Breaker 熔断器配置，所有 provider 共用
	Breaker circuitbreaker.Config `yaml:"breaker" env:"BREAKER"`

	// Router 重试与超时配置
	Router router.Config `yaml:"router" env:"ROUTER"`

	// Session 实时会话配置
	Session SessionConfig `yaml:"session" env:"SESSION"`

	// Speech 一次性 TTS/STT 路由配置
	Speech SpeechConfig `yaml:"speech" env:"SPEECH"`

	// Providers 各 provider 的凭证与端点
	Providers ProvidersConfig `yaml:"providers" env:"PROVIDERS"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时。websocket 连接在升级后不受此限制
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每 IP 请求速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 每 IP 突发量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// CORS 允许的来源，空表示不限制
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
	// 允许的 API Key，空表示不鉴权
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// 最大请求体（一次性转写上传）
	MaxBodyBytes int64 `yaml:"max_body_bytes" env:"MAX_BODY_BYTES"`
	// TLS 证书与私钥，均为空时使用明文 HTTP
	TLSCertFile string `yaml:"tls_cert_file" env:"TLS_CERT_FILE"`
	TLSKeyFile  string `yaml:"tls_key_file" env:"TLS_KEY_FILE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// Environment 写入 deployment.environment 资源属性
	Environment string `yaml:"environment" env:"ENVIRONMENT"`
	// Insecure 以明文 gRPC 连接 collector，关闭时使用系统根证书
	Insecure bool `yaml:"insecure" env:"INSECURE"`
	// ExportInterval 指标推送间隔
	ExportInterval time.Duration `yaml:"export_interval" env:"EXPORT_INTERVAL"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 是否启用 Redis 用量计数
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 键前缀
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用失败记录持久化
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// SessionConfig 实时会话配置
type SessionConfig struct {
	// 主 provider
	Provider string `yaml:"provider" env:"PROVIDER"`
	// 连接阶段的备选 provider
	Fallbacks []string `yaml:"fallbacks" env:"FALLBACKS"`
	// 最大并发会话数，0 表示不限制
	MaxSessions int `yaml:"max_sessions" env:"MAX_SESSIONS"`
	// 上游连接超时（单次尝试）
	ConnectTimeout time.Duration `yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
	// 主 provider 建连重试次数
	ConnectRetries int `yaml:"connect_retries" env:"CONNECT_RETRIES"`
	// 写客户端消息超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 输出音频缓冲上限（base64 字节）
	MaxBufferBytes int `yaml:"max_buffer_bytes" env:"MAX_BUFFER_BYTES"`
	// 每秒允许的 audio_input 帧数，0 表示不限制
	AudioFramesPerSecond float64 `yaml:"audio_frames_per_second" env:"AUDIO_FRAMES_PER_SECOND"`
	// 帧突发量
	AudioFrameBurst int `yaml:"audio_frame_burst" env:"AUDIO_FRAME_BURST"`
	// 单条客户端消息上限
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT"`
	// 模型
	Model string `yaml:"model" env:"MODEL"`
	// 默认音色
	Voice string `yaml:"voice" env:"VOICE"`
	// 默认系统指令
	Instructions string `yaml:"instructions" env:"INSTRUCTIONS"`
}

// SpeechConfig 一次性 TTS/STT 调用的 provider 顺序
type SpeechConfig struct {
	TTSProvider  string   `yaml:"tts_provider" env:"TTS_PROVIDER"`
	TTSFallbacks []string `yaml:"tts_fallbacks" env:"TTS_FALLBACKS"`
	STTProvider  string   `yaml:"stt_provider" env:"STT_PROVIDER"`
	STTFallbacks []string `yaml:"stt_fallbacks" env:"STT_FALLBACKS"`
}

// ProvidersConfig 各 provider 配置
type ProvidersConfig struct {
	OpenAI     OpenAIConfig     `yaml:"openai" env:"OPENAI"`
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs" env:"ELEVENLABS"`
	Deepgram   DeepgramConfig   `yaml:"deepgram" env:"DEEPGRAM"`
	Polly      PollyConfig      `yaml:"polly" env:"POLLY"`
	// Unsupported 仅登记、尚未实现适配器的 provider id，例如 azure、google
	Unsupported []string `yaml:"unsupported" env:"UNSUPPORTED"`
}

// OpenAIConfig 同时提供 realtime、tts、stt
type OpenAIConfig struct {
	Enabled       bool          `yaml:"enabled" env:"ENABLED"`
	APIKey        string        `yaml:"api_key" env:"API_KEY"`
	BaseURL       string        `yaml:"base_url" env:"BASE_URL"`
	RealtimeURL   string        `yaml:"realtime_url" env:"REALTIME_URL"`
	RealtimeModel string        `yaml:"realtime_model" env:"REALTIME_MODEL"`
	TTSModel      string        `yaml:"tts_model" env:"TTS_MODEL"`
	STTModel      string        `yaml:"stt_model" env:"STT_MODEL"`
	Voice         string        `yaml:"voice" env:"VOICE"`
	Timeout       time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ElevenLabsConfig ElevenLabs TTS
type ElevenLabsConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	VoiceID string        `yaml:"voice_id" env:"VOICE_ID"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// DeepgramConfig Deepgram STT
type DeepgramConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	APIKey  string        `yaml:"api_key" env:"API_KEY"`
	BaseURL string        `yaml:"base_url" env:"BASE_URL"`
	Model   string        `yaml:"model" env:"MODEL"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// PollyConfig Amazon Polly TTS，凭证走 AWS 默认凭证链
type PollyConfig struct {
	Enabled bool          `yaml:"enabled" env:"ENABLED"`
	Region  string        `yaml:"region" env:"REGION"`
	VoiceID string        `yaml:"voice_id" env:"VOICE_ID"`
	Engine  string        `yaml:"engine" env:"ENGINE"`
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "VOICEBRIDGE",
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}
	l.applyCredentialFallbacks(cfg)

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 用前缀变量覆盖文件与默认值
func (l *Loader) loadFromEnv(cfg *Config) error {
	overlay := envOverlay{prefix: l.envPrefix, lookup: l.lookupEnv}
	return overlay.apply(reflect.ValueOf(cfg).Elem())
}

// applyCredentialFallbacks 文件与前缀变量都未提供凭证时，读取各 SDK 约定的通用变量
func (l *Loader) applyCredentialFallbacks(cfg *Config) {
	fill := func(dst *string, key string) {
		if *dst != "" {
			return
		}
		if v, ok := l.lookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	fill(&cfg.Providers.OpenAI.APIKey, "OPENAI_API_KEY")
	fill(&cfg.Providers.ElevenLabs.APIKey, "ELEVENLABS_API_KEY")
	fill(&cfg.Providers.Deepgram.APIKey, "DEEPGRAM_API_KEY")
	fill(&cfg.Providers.Polly.Region, "AWS_REGION")
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}
