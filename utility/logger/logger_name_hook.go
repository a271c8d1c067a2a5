package logger

import (
	"strings"

	"github.com/sirupsen/logrus"
)

// LoggerNameHook tự động thêm logger_name vào log entries
type LoggerNameHook struct {
	loggerName string
}

// NewLoggerNameHook tạo hook mới với logger name
func NewLoggerNameHook(loggerName string) *LoggerNameHook {
	return &LoggerNameHook{
		loggerName: loggerName,
	}
}

// Levels trả về các log levels mà hook này sẽ xử lý
func (h *LoggerNameHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire được gọi mỗi khi có log entry.
// Logger của job có tên dạng "*-job", khi đó job_name cũng được điền tự động.
func (h *LoggerNameHook) Fire(entry *logrus.Entry) error {
	if _, ok := entry.Data["logger_name"]; !ok {
		entry.Data["logger_name"] = h.loggerName
	}
	if strings.HasSuffix(h.loggerName, "-job") {
		if _, ok := entry.Data["job_name"]; !ok {
			entry.Data["job_name"] = h.loggerName
		}
	}
	return nil
}
