package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	env "github.com/Netflix/go-env"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    Server    `yaml:"server" json:"server"`
	Database  Database  `yaml:"database" json:"database"`
	Storage   Storage   `yaml:"storage" json:"storage"`
	Auth      Auth      `yaml:"auth" json:"auth"`
	Chat      Chat      `yaml:"chat" json:"chat"`
	WebSocket WebSocket `yaml:"websocket" json:"websocket"`
	Log       Log       `yaml:"log" json:"log"`
}

type Server struct {
	Addr           string   `yaml:"addr" json:"addr" env:"ECHOCHAT_ADDR"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

func (s Server) AddrOrDefault() string {
	if a := strings.TrimSpace(s.Addr); a != "" {
		return a
	}
	return ":8080"
}

type Log struct {
	Level  string `yaml:"level" json:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" json:"pretty" env:"LOG_PRETTY"`
}

// LoadFromFile 读取指定路径的 YAML 配置文件
func LoadFromFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DefaultPath 返回配置文件路径，ECHOCHAT_CONFIG 优先，否则为 internal/config/config.yaml
func DefaultPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv("ECHOCHAT_CONFIG")); p != "" {
		return p, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, "internal", "config", "config.yaml"), nil
}

// LoadDefault 从默认路径加载配置
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(path)
}

// Load 先读 YAML（文件不存在时使用空配置），再用环境变量覆盖
func Load() (*Config, error) {
	cfg, err := LoadDefault()
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		cfg = &Config{}
	}
	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv 用带 env 标签的环境变量覆盖配置，未设置的变量保持原值
func ApplyEnv(cfg *Config) error {
	_, err := env.UnmarshalFromEnviron(cfg)
	return err
}
