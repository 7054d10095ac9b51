package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// Logger 全局日志实例
	Logger *logrus.Logger

	currentLogFile string
	savedConfig    Config
	currentDay     string
	logMu          sync.Mutex

	// now 便于测试替换
	now = time.Now
)

// Config 日志配置
type Config struct {
	Level      string `yaml:"level"`       // debug, info, warn, error
	OutputFile string `yaml:"output_file"` // 为空则只输出到控制台
	MaxSize    int    `yaml:"max_size"`    // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // 天
	Compress   bool   `yaml:"compress"`
	DailyFile  bool   `yaml:"daily_file"` // 文件名追加 _YYYY-MM-DD，跨天自动切换
	NoColor    bool   `yaml:"no_color"`
}

// dailyFileName logs/bot.log -> logs/bot_2025-01-02.log
func dailyFileName(basePath string, day string) string {
	dir := filepath.Dir(basePath)
	base := filepath.Base(basePath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)
	file := fmt.Sprintf("%s_%s%s", name, day, ext)
	if dir == "." || dir == "" {
		return file
	}
	return filepath.Join(dir, file)
}

func formatter(cfg Config) logrus.Formatter {
	return &logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "06-01-02 15:04:05",
		ForceColors:     !cfg.NoColor,
		DisableColors:   cfg.NoColor,
	}
}

// build 按配置构造 logger，调用方持有 logMu
func build(cfg Config) (*logrus.Logger, error) {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)
	l.SetFormatter(formatter(cfg))

	writers := []io.Writer{os.Stdout}
	currentLogFile = ""

	if cfg.OutputFile != "" {
		path := cfg.OutputFile
		if cfg.DailyFile {
			currentDay = now().Format("2006-01-02")
			path = dailyFileName(cfg.OutputFile, currentDay)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
		writers = append(writers, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		})
		currentLogFile = path
	}

	out := io.MultiWriter(writers...)
	l.SetOutput(out)

	// 各组件通过 logrus.WithField 创建的 entry 也写到同一个文件
	logrus.SetOutput(out)
	logrus.SetLevel(level)
	logrus.SetFormatter(formatter(cfg))

	return l, nil
}

// Init 初始化日志系统
func Init(cfg Config) error {
	logMu.Lock()
	defer logMu.Unlock()

	l, err := build(cfg)
	if err != nil {
		return err
	}
	savedConfig = cfg
	Logger = l
	return nil
}

// InitDefault 使用默认配置初始化日志系统
func InitDefault() error {
	return Init(DefaultConfig())
}

// DefaultConfig 默认日志配置
func DefaultConfig() Config {
	return Config{
		Level:      "info",
		OutputFile: "logs/gopack.log",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     7,
		Compress:   true,
		DailyFile:  true,
	}
}

// RotateIfNewDay 跨天时切换到新的日志文件，返回是否发生了切换
func RotateIfNewDay() (bool, error) {
	logMu.Lock()
	defer logMu.Unlock()

	if !savedConfig.DailyFile || savedConfig.OutputFile == "" {
		return false, nil
	}
	if now().Format("2006-01-02") == currentDay {
		return false, nil
	}

	old := currentLogFile
	l, err := build(savedConfig)
	if err != nil {
		return false, err
	}
	Logger = l
	Logger.Infof("日志文件已切换: %s -> %s", old, currentLogFile)
	return true, nil
}

// StartRotationChecker 后台每分钟检查一次是否需要按天切换日志文件
func StartRotationChecker(ctx context.Context) {
	logMu.Lock()
	enabled := savedConfig.DailyFile && savedConfig.OutputFile != ""
	logMu.Unlock()
	if !enabled {
		return
	}

	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := RotateIfNewDay(); err != nil {
					Errorf("切换日志文件失败: %v", err)
				}
			}
		}
	}()
}

// Debug 记录 DEBUG 级别日志
func Debug(args ...interface{}) {
	if Logger != nil {
		Logger.Debug(args...)
	}
}

// Debugf 记录格式化的 DEBUG 级别日志
func Debugf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Debugf(format, args...)
	}
}

// Info 记录 INFO 级别日志
func Info(args ...interface{}) {
	if Logger != nil {
		Logger.Info(args...)
	}
}

// Infof 记录格式化的 INFO 级别日志
func Infof(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof(format, args...)
	}
}

// Success 成功类消息，INFO 级别加 ✅ 前缀
func Success(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Infof("✅ "+format, args...)
	}
}

// Warn 记录 WARN 级别日志
func Warn(args ...interface{}) {
	if Logger != nil {
		Logger.Warn(args...)
	}
}

// Warnf 记录格式化的 WARN 级别日志
func Warnf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Warnf(format, args...)
	}
}

// Error 记录 ERROR 级别日志
func Error(args ...interface{}) {
	if Logger != nil {
		Logger.Error(args...)
	}
}

// Errorf 记录格式化的 ERROR 级别日志
func Errorf(format string, args ...interface{}) {
	if Logger != nil {
		Logger.Errorf(format, args...)
	}
}

// WithField 添加字段到日志上下文
func WithField(key string, value interface{}) *logrus.Entry {
	if Logger != nil {
		return Logger.WithField(key, value)
	}
	return logrus.WithField(key, value)
}

// WithFields 添加多个字段到日志上下文
func WithFields(fields logrus.Fields) *logrus.Entry {
	if Logger != nil {
		return Logger.WithFields(fields)
	}
	return logrus.WithFields(fields)
}

// ForAccount 绑定账户字段，公钥只保留前 8 位
func ForAccount(component, account string) *logrus.Entry {
	short := account
	if len(short) > 8 {
		short = short[:8]
	}
	return WithFields(logrus.Fields{"component": component, "account": short})
}

// CurrentLogFile 当前日志文件路径
func CurrentLogFile() string {
	logMu.Lock()
	defer logMu.Unlock()
	return currentLogFile
}
