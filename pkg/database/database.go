// Package database 负责目录库与 Redis 的连接管理。
package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"mcp-knowledge-go/internal/config"
	"mcp-knowledge-go/internal/model"
	"mcp-knowledge-go/pkg/log"
)

var DB *gorm.DB

// Open 根据 driver 打开数据库连接并完成表结构迁移。
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		// 唯一索引冲突统一翻译成 gorm.ErrDuplicatedKey
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	}

	var dialector gorm.Dialector
	switch cfg.Driver {
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	case "sqlite", "":
		if dir := filepath.Dir(cfg.DSN); dir != "." && dir != "" {
			_ = os.MkdirAll(dir, os.ModePerm)
		}
		dialector = sqlite.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取 sql.DB 失败: %w", err)
	}
	if cfg.Driver == "mysql" {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		// sqlite 单写者
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&model.Document{}, &model.ProcessingLog{}); err != nil {
		return nil, fmt.Errorf("迁移表结构失败: %w", err)
	}
	return db, nil
}

// InitDB 初始化全局 DB，失败时直接退出。
func InitDB(cfg config.DatabaseConfig) {
	db, err := Open(cfg)
	if err != nil {
		log.Fatal("failed to connect database", err)
	}
	DB = db
	log.Infof("Catalog database connected successfully, driver: %s", cfg.Driver)
}
