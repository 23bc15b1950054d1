package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New 根据运行环境构造 zerolog.Logger：development 使用彩色控制台输出和 debug 级别，其余为 JSON。
func New(appEnv string) zerolog.Logger {
	return NewWithWriter(appEnv, os.Stdout)
}

// NewWithWriter 与 New 相同，但允许指定输出目标。
func NewWithWriter(appEnv string, out io.Writer) zerolog.Logger {
	level := zerolog.InfoLevel
	if appEnv == "development" {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Logger()

	if appEnv == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}

	return logger
}
