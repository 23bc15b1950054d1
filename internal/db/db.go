package db

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例
var DB *gorm.DB

// ErrUnsupportedDatabaseURL 表示 DATABASE_URL 的协议无法识别。
var ErrUnsupportedDatabaseURL = errors.New("unsupported database url")

// Init 打开 databaseURL 指向的存储并执行自动迁移，结果保存在全局 DB 中。
// postgres:// 与 postgresql:// 使用 Postgres，sqlite://、file: 或普通路径使用 SQLite。
// password 非空且 URL 未携带密码时会被注入到 Postgres 连接串中。
func Init(databaseURL, password string) error {
	gdb, err := Open(databaseURL, password)
	if err != nil {
		return err
	}
	if err := Migrate(gdb); err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Open 根据 URL 选择驱动并建立 gorm 连接，不做迁移。
func Open(databaseURL, password string) (*gorm.DB, error) {
	dialector, err := dialectorFor(databaseURL, password)
	if err != nil {
		return nil, err
	}
	return gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
}

// Migrate 为核心模型建表。
func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(&BlogStat{})
}

func dialectorFor(databaseURL, password string) (gorm.Dialector, error) {
	raw := strings.TrimSpace(databaseURL)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrUnsupportedDatabaseURL)
	}

	lower := strings.ToLower(raw)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		dsn, err := withPassword(raw, password)
		if err != nil {
			return nil, err
		}
		return postgres.Open(dsn), nil
	case strings.HasPrefix(lower, "sqlite://"):
		path := raw[len("sqlite://"):]
		if err := ensureParentDir(path); err != nil {
			return nil, err
		}
		return sqlite.Open(path), nil
	case strings.HasPrefix(lower, "file:"), raw == ":memory:":
		return sqlite.Open(raw), nil
	case strings.Contains(raw, "://"):
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabaseURL, schemeOf(raw))
	default:
		if err := ensureParentDir(raw); err != nil {
			return nil, err
		}
		return sqlite.Open(raw), nil
	}
}

func withPassword(raw, password string) (string, error) {
	if password == "" {
		return raw, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse database url: %w", err)
	}
	if u.User == nil {
		return raw, nil
	}
	if _, set := u.User.Password(); set {
		return raw, nil
	}
	u.User = url.UserPassword(u.User.Username(), password)
	return u.String(), nil
}

func schemeOf(raw string) string {
	if i := strings.Index(raw, "://"); i > 0 {
		return raw[:i]
	}
	return raw
}

func ensureParentDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
