// Package logging 负责初始化 zerolog：级别、输出格式（json / console）、调用位置。
//
//	logger := logging.New(logging.Config{Level: "info", Format: "json"})
//	svc := service.New(service.Options{Logger: logger})
//
// 各组件通过 logger.With().Str("component", ...) 派生自己的子 logger。
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config 是日志配置
type Config struct {
	Level  string `koanf:"level" yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error fatal panic disabled"`
	Format string `koanf:"format" yaml:"format" validate:"omitempty,oneof=json console"`
	Caller bool   `koanf:"caller" yaml:"caller"`

	Output io.Writer `koanf:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "json"}
}

// New 按配置构建 logger，并设置全局级别。
func New(cfg Config) zerolog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := cfg.Output
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: cfg.Output, TimeFormat: "15:04:05.000"}
	}
	ctx := zerolog.New(out).With().Timestamp().Str("service", "recserve")
	if cfg.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// ParseLevel 解析级别名，空串视为 info。
func ParseLevel(s string) (zerolog.Level, error) {
	switch strings.ToLower(s) {
	case "":
		return zerolog.InfoLevel, nil
	case "warning":
		return zerolog.WarnLevel, nil
	}
	level, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}
