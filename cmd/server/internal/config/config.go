package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/houzhh15/whisper-gateway/cmd/server/internal/orchestrator/whisper"
)

// 服务配置档位，对应原先的几个独立服务
const (
	ProfileStub       = "stub"       // 仅健康检查路由
	ProfileLegacy     = "legacy"     // 旧版 /whisper 多文件接口
	ProfileTranscribe = "transcribe" // /transcribe、/transcribe-url、/models
	ProfileFull       = "full"       // 全部路由
)

// Config 统一配置结构
type Config struct {
	Server  ServerConfig
	Log     LogConfig
	Whisper WhisperConfig
	Limits  LimitsConfig
	Models  ModelCatalog
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env     string // dev, staging, production
	Port    string
	Profile string // stub, legacy, transcribe, full
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // console, json
	File   string // 为空时只输出到 stdout
}

// WhisperConfig 转写后端配置
type WhisperConfig struct {
	Backend             string // http, cli
	APIURL              string
	ProgramPath         string
	ModelPath           string
	Model               string
	Device              string
	FallbackBackend     string // 为空表示不启用降级
	HealthCheckInterval time.Duration
	HealthFailThreshold int
	ModelsConfigPath    string
}

// LimitsConfig 请求限制配置
type LimitsConfig struct {
	MaxContentLengthMB int64
	MaxConcurrent      int64
	UploadTmpDir       string
}

// ModelCatalog /models 接口返回的模型目录，可由 MODELS_CONFIG 指向的 YAML 文件覆盖
type ModelCatalog struct {
	AvailableModels []string `yaml:"available_models"`
	CurrentModel    string   `yaml:"current_model"`
	Device          string   `yaml:"device"`
}

// DefaultAvailableModels 未配置模型目录时的默认列表
var DefaultAvailableModels = []string{"tiny", "base", "small", "medium", "large"}

// GlobalConfig 全局配置实例
var GlobalConfig *Config

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	var errs []string

	cfg := &Config{
		Server: ServerConfig{
			Env:     getEnv("ENV", "dev"),
			Port:    getEnv("PORT", "8000"),
			Profile: strings.ToLower(getEnv("SERVICE_PROFILE", ProfileFull)),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
			File:   getEnv("LOG_FILE", ""),
		},
		Whisper: WhisperConfig{
			Backend:             strings.ToLower(getEnv("WHISPER_BACKEND", whisper.BackendHTTP)),
			APIURL:              getEnv("WHISPER_API_URL", "http://localhost:8082"),
			ProgramPath:         getEnv("WHISPER_PROGRAM_PATH", "/usr/local/bin/whisper"),
			ModelPath:           getEnv("WHISPER_MODEL_PATH", ""),
			Model:               getEnv("WHISPER_MODEL", "base"),
			Device:              getEnv("WHISPER_DEVICE", "cpu"),
			FallbackBackend:     strings.ToLower(getEnv("WHISPER_FALLBACK_BACKEND", "")),
			HealthCheckInterval: getEnvDuration("HEALTH_CHECK_INTERVAL", 30*time.Second, &errs),
			HealthFailThreshold: int(getEnvInt("HEALTH_FAIL_THRESHOLD", 3, &errs)),
			ModelsConfigPath:    getEnv("MODELS_CONFIG", ""),
		},
		Limits: LimitsConfig{
			MaxContentLengthMB: getEnvInt("MAX_CONTENT_LENGTH_MB", 100, &errs),
			MaxConcurrent:      getEnvInt("MAX_CONCURRENT_TRANSCRIPTIONS", 1, &errs),
			UploadTmpDir:       getEnv("UPLOAD_TMP_DIR", os.TempDir()),
		},
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("failed to parse environment:\n  - %s", strings.Join(errs, "\n  - "))
	}

	catalog, err := LoadModelCatalog(cfg.Whisper.ModelsConfigPath)
	if err != nil {
		return nil, err
	}
	if catalog.CurrentModel == "" {
		catalog.CurrentModel = cfg.Whisper.Model
	}
	if catalog.Device == "" {
		catalog.Device = cfg.Whisper.Device
	}
	cfg.Models = catalog

	GlobalConfig = cfg
	return cfg, nil
}

// LoadModelCatalog 读取模型目录 YAML 文件，path 为空时返回默认目录
func LoadModelCatalog(path string) (ModelCatalog, error) {
	catalog := ModelCatalog{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return catalog, fmt.Errorf("failed to read models config: %w", err)
		}
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return catalog, fmt.Errorf("failed to parse models config: %w", err)
		}
	}
	if len(catalog.AvailableModels) == 0 {
		catalog.AvailableModels = append([]string(nil), DefaultAvailableModels...)
	}
	return catalog, nil
}

// ValidateConfig 验证配置的有效性
func ValidateConfig(cfg *Config) error {
	var errors []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 档位验证
	validProfiles := map[string]bool{ProfileStub: true, ProfileLegacy: true, ProfileTranscribe: true, ProfileFull: true}
	if !validProfiles[cfg.Server.Profile] {
		errors = append(errors, fmt.Sprintf("invalid SERVICE_PROFILE: %s (must be: stub, legacy, transcribe, full)", cfg.Server.Profile))
	}

	// 3. 后端验证
	validBackends := map[string]bool{whisper.BackendHTTP: true, whisper.BackendCLI: true}
	if !validBackends[cfg.Whisper.Backend] {
		errors = append(errors, fmt.Sprintf("invalid WHISPER_BACKEND: %s (must be: http, cli)", cfg.Whisper.Backend))
	}
	if cfg.Whisper.FallbackBackend != "" {
		if !validBackends[cfg.Whisper.FallbackBackend] {
			errors = append(errors, fmt.Sprintf("invalid WHISPER_FALLBACK_BACKEND: %s (must be: http, cli)", cfg.Whisper.FallbackBackend))
		} else if cfg.Whisper.FallbackBackend == cfg.Whisper.Backend {
			errors = append(errors, "WHISPER_FALLBACK_BACKEND must differ from WHISPER_BACKEND")
		}
	}
	if cfg.Whisper.HealthCheckInterval <= 0 {
		errors = append(errors, "HEALTH_CHECK_INTERVAL must be positive")
	}
	if cfg.Whisper.HealthFailThreshold < 1 {
		errors = append(errors, "HEALTH_FAIL_THRESHOLD must be at least 1")
	}

	// 4. 限制验证
	if cfg.Limits.MaxContentLengthMB < 1 {
		errors = append(errors, "MAX_CONTENT_LENGTH_MB must be at least 1")
	}
	if cfg.Limits.MaxConcurrent < 1 {
		errors = append(errors, "MAX_CONCURRENT_TRANSCRIPTIONS must be at least 1")
	}

	// 5. 日志级别验证
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		errors = append(errors, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}

	// 6. 日志格式验证
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		errors = append(errors, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 7. 环境验证
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true}
	if !validEnvs[cfg.Server.Env] {
		errors = append(errors, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// MaxBodyBytes 返回请求体上限（字节）
func (c *Config) MaxBodyBytes() int64 {
	return c.Limits.MaxContentLengthMB << 20
}

// EnablesLegacy 是否注册 /whisper
func (c *Config) EnablesLegacy() bool {
	return c.Server.Profile == ProfileLegacy || c.Server.Profile == ProfileFull
}

// EnablesTranscribe 是否注册 /transcribe、/transcribe-url、/models
func (c *Config) EnablesTranscribe() bool {
	return c.Server.Profile == ProfileTranscribe || c.Server.Profile == ProfileFull
}

// NeedsModel stub 档位不加载模型
func (c *Config) NeedsModel() bool {
	return c.Server.Profile != ProfileStub
}

// BackendConfig 构造指定类型后端的加载参数
func (c *Config) BackendConfig(kind string) whisper.BackendConfig {
	return whisper.BackendConfig{
		Kind:        kind,
		APIURL:      c.Whisper.APIURL,
		ProgramPath: c.Whisper.ProgramPath,
		ModelPath:   c.Whisper.ModelPath,
		Model:       c.Whisper.Model,
	}
}

// PrintConfig 打印配置
func (c *Config) PrintConfig() string {
	fallback := c.Whisper.FallbackBackend
	if fallback == "" {
		fallback = "<disabled>"
	}
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Profile: %s
  Logging:
    - Level: %s
    - Format: %s
  Whisper:
    - Backend: %s
    - Fallback: %s
    - Model: %s (%s)
  Limits:
    - Max Content Length: %d MB
    - Max Concurrent: %d
    - Upload Dir: %s`,
		c.Server.Env,
		c.Server.Port,
		c.Server.Profile,
		c.Log.Level,
		c.Log.Format,
		c.Whisper.Backend,
		fallback,
		c.Whisper.Model,
		c.Whisper.Device,
		c.Limits.MaxContentLengthMB,
		c.Limits.MaxConcurrent,
		c.Limits.UploadTmpDir,
	)
}

// 辅助函数

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt 获取整数环境变量，解析失败时记录错误
func getEnvInt(key string, defaultValue int64, errs *[]string) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid %s: %s (must be an integer)", key, value))
		return defaultValue
	}
	return n
}

// getEnvDuration 获取时长环境变量，支持 "30s" 或纯数字秒
func getEnvDuration(key string, defaultValue time.Duration, errs *[]string) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("invalid %s: %s (e.g. 30s, 1m)", key, value))
		return defaultValue
	}
	return d
}
