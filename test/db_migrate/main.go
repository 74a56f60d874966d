package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"

	"echochat/internal/config"
	database "echochat/internal/server/db"
)

// 本地开发用：确保 MySQL 库存在，然后按 models 自动迁移。
// -check 只做连通性检查不迁移。
func main() {
	checkOnly := flag.Bool("check", false, "只检查连接，不执行迁移")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("读取配置失败: %v", err)
	}
	d := cfg.Database
	if d.Driver != "" && d.Driver != "mysql" {
		log.Fatalf("当前工具仅支持 mysql，配置为: %s", d.Driver)
	}
	if d.User == "" {
		log.Fatalf("数据库用户未配置")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := ensureDatabase(ctx, d); err != nil {
		log.Fatalf("%v", err)
	}
	if *checkOnly {
		log.Println("连接检查完成")
		return
	}

	gormDB, err := database.OpenGorm(d)
	if err != nil {
		log.Fatalf("GORM 连接数据库失败: %v", err)
	}
	if err := database.Migrate(gormDB); err != nil {
		log.Fatalf("AutoMigrate 失败: %v", err)
	}
	log.Println("AutoMigrate 完成，数据库结构已根据 models 创建/更新")
}

// ensureDatabase 连接到服务器级（不选库），库不存在时创建
func ensureDatabase(ctx context.Context, d config.Database) error {
	mc := mysql.NewConfig()
	mc.User = d.User
	mc.Passwd = d.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	mc.ParseTime = true

	db, err := sql.Open("mysql", mc.FormatDSN())
	if err != nil {
		return fmt.Errorf("连接到 MySQL 服务器失败: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("MySQL 服务器不可用: %w", err)
	}
	log.Println("已连接到 MySQL 服务器")

	var exists int
	if err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM INFORMATION_SCHEMA.SCHEMATA WHERE SCHEMA_NAME = ?", d.Name,
	).Scan(&exists); err != nil {
		return fmt.Errorf("检查数据库存在性失败: %w", err)
	}
	if exists > 0 {
		log.Printf("数据库 %s 已存在", d.Name)
		return nil
	}
	stmt := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_general_ci", d.Name)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("创建数据库失败: %w", err)
	}
	log.Printf("数据库 %s 不存在，已创建成功", d.Name)
	return nil
}
