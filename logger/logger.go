package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	mu      sync.RWMutex
	out     io.Writer = os.Stdout
	service           = "tradeidea"
	base              = build(os.Stdout, "tradeidea")
)

func build(w io.Writer, name string) zerolog.Logger {
	return zerolog.New(w).With().Timestamp().Str("service", name).Logger()
}

// Init 初始化全局日志器
// level: debug/info/warn/error，pretty 为 true 时输出人类可读格式（本地开发用）
func Init(level string, pretty bool) {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.TimeOnly}
	}
	SetOutput(w)
	zerolog.SetGlobalLevel(parseLevel(level))
}

// SetOutput 替换输出目标，测试用来捕获日志
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	base = build(w, service)
}

// SetServiceName 设置日志中的 service 字段，返回旧值
func SetServiceName(name string) string {
	mu.Lock()
	old := service
	service = name
	base = build(out, name)
	mu.Unlock()
	return old
}

// L 返回全局日志器，用于结构化字段
func L() *zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	l := base
	return &l
}

func Debugf(format string, args ...interface{}) { L().Debug().Msg(fmt.Sprintf(format, args...)) }
func Infof(format string, args ...interface{})  { L().Info().Msg(fmt.Sprintf(format, args...)) }
func Warnf(format string, args ...interface{})  { L().Warn().Msg(fmt.Sprintf(format, args...)) }
func Errorf(format string, args ...interface{}) { L().Error().Msg(fmt.Sprintf(format, args...)) }

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
