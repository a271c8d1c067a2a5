/*
Package logger chứa hệ thống logging của agent, xây dựng trên logrus.
Mỗi logger có tên riêng (app, job, scheduler, hoặc tên của từng job) và file log riêng,
được rotate bởi lumberjack.
*/
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFormat định nghĩa format của log
type LogFormat string

const (
	LogFormatJSON LogFormat = "json" // JSON format cho production
	LogFormatText LogFormat = "text" // Text format cho development
)

// Config chứa cấu hình cho logger.
// Các giá trị để dạng string giống như khi đọc từ environment variables.
type Config struct {
	// Level: debug, info, warn, error, fatal (mặc định: info)
	Level string

	// Format: json hoặc text (mặc định: text)
	Format string

	// LogDir: Thư mục lưu log files (mặc định: ./logs)
	LogDir string

	// EnableConsole: Bật/tắt log ra console (mặc định: true)
	EnableConsole string

	// EnableFile: Bật/tắt log ra file (mặc định: true)
	EnableFile string

	// MaxSize: Kích thước tối đa (MB) của log file trước khi rotate (mặc định: 100)
	MaxSize string

	// MaxBackups: Số lượng log files cũ được giữ lại (mặc định: 10)
	MaxBackups string

	// MaxAge: Số ngày giữ log files cũ (mặc định: 30)
	MaxAge string

	// Compress: Nén log files cũ (mặc định: true)
	Compress string

	// EnableCaller: Hiển thị thông tin caller (file:line) (mặc định: false)
	EnableCaller string
}

// NewConfig tạo config mới từ environment variables với default values
func NewConfig() *Config {
	return &Config{
		Level:         getEnv("LOG_LEVEL", "info"),
		Format:        getEnv("LOG_FORMAT", "text"),
		LogDir:        getEnv("LOG_DIR", "./logs"),
		EnableConsole: getEnv("LOG_ENABLE_CONSOLE", "true"),
		EnableFile:    getEnv("LOG_ENABLE_FILE", "true"),
		MaxSize:       getEnv("LOG_MAX_SIZE", "100"),
		MaxBackups:    getEnv("LOG_MAX_BACKUPS", "10"),
		MaxAge:        getEnv("LOG_MAX_AGE", "30"),
		Compress:      getEnv("LOG_COMPRESS", "true"),
		EnableCaller:  getEnv("LOG_ENABLE_CALLER", "false"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var (
	loggers   = make(map[string]*logrus.Logger)
	loggersMu sync.Mutex
	globalCfg *Config
)

// InitLogger khởi tạo logger với cấu hình.
// Các logger đã tạo trước đó được giữ nguyên, chỉ logger tạo sau mới dùng cấu hình mới.
func InitLogger(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("logger config is nil")
	}
	loggersMu.Lock()
	defer loggersMu.Unlock()
	globalCfg = cfg
	return nil
}

// currentConfig trả về cấu hình hiện tại.
// Khi chưa gọi InitLogger (ví dụ trong unit test) chỉ log ra console.
func currentConfig() *Config {
	if globalCfg != nil {
		return globalCfg
	}
	return &Config{Level: "info", Format: "text", EnableConsole: "true", EnableFile: "false"}
}

// parseLogLevel chuyển đổi string sang logrus.Level
func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	default:
		return logrus.InfoLevel
	}
}

func parseBool(s string, defaultValue bool) bool {
	if s == "" {
		return defaultValue
	}
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func parseInt(s string, defaultValue int) int {
	if s == "" {
		return defaultValue
	}
	result, err := strconv.Atoi(s)
	if err != nil {
		return defaultValue
	}
	return result
}

// CustomTextFormatter thêm prefix nổi bật cho log WARN, ERROR và FATAL
type CustomTextFormatter struct {
	logrus.TextFormatter
}

// Format định dạng log entry, giữ nguyên màu sắc của logrus
func (f *CustomTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	data, err := f.TextFormatter.Format(entry)
	if err != nil {
		return nil, err
	}

	switch entry.Level {
	case logrus.ErrorLevel:
		return append([]byte("🚨 [ERROR] "), data...), nil
	case logrus.FatalLevel:
		return append([]byte("💀 [FATAL] "), data...), nil
	case logrus.WarnLevel:
		return append([]byte("⚠️  [WARN] "), data...), nil
	}
	return data, nil
}

// createFormatter tạo formatter dựa trên config
func createFormatter(format string) logrus.Formatter {
	if LogFormat(strings.ToLower(format)) == LogFormatJSON {
		return &logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
				logrus.FieldKeyFunc:  "caller",
			},
		}
	}

	return &CustomTextFormatter{
		TextFormatter: logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
			CallerPrettyfier: func(f *runtime.Frame) (string, string) {
				s := strings.Split(f.Function, ".")
				return s[len(s)-1], fmt.Sprintf("%s:%d", filepath.Base(f.File), f.Line)
			},
		},
	}
}

// GetLogger trả về logger theo tên (app, job, scheduler, ...).
// Mỗi logger có file log riêng: {LogDir}/{name}.log
func GetLogger(name string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}

	cfg := currentConfig()
	l := logrus.New()
	l.SetLevel(parseLogLevel(cfg.Level))
	l.SetFormatter(createFormatter(cfg.Format))
	l.SetReportCaller(parseBool(cfg.EnableCaller, false))
	l.AddHook(NewLoggerNameHook(name))

	var writers []io.Writer
	if parseBool(cfg.EnableConsole, true) {
		writers = append(writers, os.Stdout)
	}

	if parseBool(cfg.EnableFile, true) {
		logDir := cfg.LogDir
		if logDir == "" {
			logDir = "./logs"
		}
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			// Không tạo được thư mục thì vẫn log ra console
			fmt.Fprintf(os.Stderr, "không thể tạo thư mục logs tại %s: %v\n", logDir, err)
		} else {
			writers = append(writers, &lumberjack.Logger{
				Filename:   filepath.Join(logDir, name+".log"),
				MaxSize:    parseInt(cfg.MaxSize, 100), // MB
				MaxBackups: parseInt(cfg.MaxBackups, 10),
				MaxAge:     parseInt(cfg.MaxAge, 30), // ngày
				Compress:   parseBool(cfg.Compress, true),
				LocalTime:  true,
			})
		}
	}

	switch len(writers) {
	case 0:
		l.SetOutput(io.Discard)
	case 1:
		l.SetOutput(writers[0])
	default:
		l.SetOutput(io.MultiWriter(writers...))
	}

	loggers[name] = l
	return l
}

// GetAppLogger trả về logger cho application
func GetAppLogger() *logrus.Logger {
	return GetLogger("app")
}

// GetJobLogger trả về logger chung cho jobs
func GetJobLogger() *logrus.Logger {
	return GetLogger("job")
}

// GetSchedulerLogger trả về logger cho scheduler
func GetSchedulerLogger() *logrus.Logger {
	return GetLogger("scheduler")
}

// WithJobID tạo logger entry với execution ID
func WithJobID(l logrus.FieldLogger, executionID string) *logrus.Entry {
	return l.WithField("execution_id", executionID)
}

// LogDuration log thời gian thực thi của một operation
func LogDuration(entry *logrus.Entry, operation string, startTime time.Time) {
	duration := time.Since(startTime)
	entry.WithFields(logrus.Fields{
		"operation":   operation,
		"duration":    duration.String(),
		"duration_ms": duration.Milliseconds(),
	}).Debug("Operation completed")
}
