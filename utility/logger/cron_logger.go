package logger

import (
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CronLogger chuyển log nội bộ của robfig/cron sang logrus.
// Log Info của cron (schedule, wake, run) khá nhiều nên được hạ xuống Debug.
type CronLogger struct {
	entry *logrus.Entry
}

var _ cron.Logger = (*CronLogger)(nil)

// NewCronLogger tạo cron.Logger ghi vào logger đã cho
func NewCronLogger(l *logrus.Logger) *CronLogger {
	return &CronLogger{entry: l.WithField("source", "cron")}
}

// Info implement cron.Logger
func (c *CronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.entry.WithFields(toFields(keysAndValues)).Debug(msg)
}

// Error implement cron.Logger
func (c *CronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.entry.WithError(err).WithFields(toFields(keysAndValues)).Error(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields[key] = keysAndValues[i+1]
	}
	return fields
}
