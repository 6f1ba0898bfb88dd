package main

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const defaultServerURL = "http://localhost:8000"

// Config 保存 CLI 全局配置
type Config struct {
	ServerURL string        `yaml:"server_url"`
	Language  string        `yaml:"language"`
	Output    string        `yaml:"output"`
	Timeout   time.Duration `yaml:"-"`
}

// LoadConfig 从命令行标志、环境变量、配置文件加载配置（优先级从高到低）
func LoadConfig(cmd *cobra.Command) *Config {
	cfg := &Config{}

	// 尝试从配置文件读取基础值
	loadConfigFile(cfg)

	// 环境变量覆盖配置文件
	if v := os.Getenv("WHISPER_GATEWAY_URL"); v != "" {
		cfg.ServerURL = v
	}
	if v := os.Getenv("WHISPER_GATEWAY_LANGUAGE"); v != "" {
		cfg.Language = v
	}

	// 命令行标志覆盖环境变量
	if v, _ := cmd.Flags().GetString("server-url"); v != "" {
		cfg.ServerURL = v
	}
	if v, _ := cmd.Flags().GetString("output"); v != "" {
		cfg.Output = v
	}
	cfg.Timeout, _ = cmd.Flags().GetDuration("timeout")

	// 默认值
	if cfg.ServerURL == "" {
		cfg.ServerURL = defaultServerURL
	}
	if cfg.Language == "" {
		cfg.Language = "auto"
	}
	if cfg.Output == "" {
		cfg.Output = "json"
	}
	return cfg
}

// configFilePath 返回 ~/.whisper-gateway/config.yaml
func configFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".whisper-gateway", "config.yaml")
}

// loadConfigFile 读取配置文件，不存在或格式错误时忽略
func loadConfigFile(cfg *Config) {
	path := configFilePath()
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = yaml.Unmarshal(data, cfg)
}

// addGlobalFlags 为 root 命令添加全局标志
func addGlobalFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().String("server-url", "", "服务器地址 (env: WHISPER_GATEWAY_URL, 默认: "+defaultServerURL+")")
	cmd.PersistentFlags().StringP("output", "o", "", "输出格式: json / text (默认: json)")
	cmd.PersistentFlags().Duration("timeout", 0, "请求超时，0 表示不限制")
}
