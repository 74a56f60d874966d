package db

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"echochat/internal/config"
	"echochat/internal/models"
)

// DSN 构造适用于 GORM 的数据库连接串
func DSN(d config.Database) (string, error) {
	switch driverName(d) {
	case "mysql":
		v := url.Values{}
		// 默认参数
		if _, ok := d.Params["parseTime"]; !ok {
			v.Set("parseTime", "true")
		}
		if _, ok := d.Params["loc"]; !ok {
			v.Set("loc", "Local")
		}
		if _, ok := d.Params["charset"]; !ok {
			v.Set("charset", "utf8mb4")
		}
		for k, val := range d.Params {
			v.Set(k, val)
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s", d.User, d.Password, d.Host, d.Port, d.Name, v.Encode()), nil
	case "postgres":
		params := map[string]string{"sslmode": "disable"}
		for k, val := range d.Params {
			params[k] = val
		}
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := []string{
			fmt.Sprintf("host=%s", d.Host),
			fmt.Sprintf("port=%d", d.Port),
			fmt.Sprintf("user=%s", d.User),
			fmt.Sprintf("password=%s", d.Password),
			fmt.Sprintf("dbname=%s", d.Name),
		}
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%s", k, params[k]))
		}
		return strings.Join(parts, " "), nil
	case "sqlite":
		if strings.TrimSpace(d.File) == "" {
			return "echochat.db", nil
		}
		return d.File, nil
	default:
		return "", fmt.Errorf("unsupported driver: %s", d.Driver)
	}
}

// OpenGorm 使用 GORM 打开数据库连接
func OpenGorm(d config.Database) (*gorm.DB, error) {
	dsn, err := DSN(d)
	if err != nil {
		return nil, err
	}
	var dialector gorm.Dialector
	switch driverName(d) {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres":
		dialector = postgres.New(postgres.Config{DSN: dsn, PreferSimpleProtocol: true})
	case "sqlite":
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return db, nil
}

// Migrate 自动迁移用户表与消息表
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.ChatMessage{})
}

func driverName(d config.Database) string {
	s := strings.ToLower(strings.TrimSpace(d.Driver))
	switch s {
	case "", "mysql":
		return "mysql"
	case "postgresql", "pg":
		return "postgres"
	case "sqlite3":
		return "sqlite"
	}
	return s
}
