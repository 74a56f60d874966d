package config

import "strings"

const (
	StorageDriverGorm   = "gorm"
	StorageDriverBadger = "badger"
)

// Storage 消息存储后端：gorm 复用数据库连接，badger 为嵌入式 KV
type Storage struct {
	Driver     string `yaml:"driver" json:"driver" env:"STORAGE_DRIVER"`
	BadgerPath string `yaml:"badger_path" json:"badger_path" env:"BADGER_PATH"`
}

func (s Storage) DriverOrDefault() string {
	d := strings.ToLower(strings.TrimSpace(s.Driver))
	if d == "" {
		return StorageDriverGorm
	}
	return d
}

func (s Storage) BadgerPathOrDefault() string {
	p := strings.TrimSpace(s.BadgerPath)
	if p == "" {
		return "data/messages"
	}
	return p
}
