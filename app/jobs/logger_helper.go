/*
Package jobs chứa các job cụ thể của ứng dụng: Stock Sync, Price Sync, Full Sync, Order Push và Retry.
Mỗi job nhúng *scheduler.BaseJob và gọi các service ERP qua interface trong contracts.go.
File này chứa các helper functions để sử dụng logger trong jobs.
*/
package jobs

import (
	"agent_erpsync/utility/logger"

	"github.com/sirupsen/logrus"
)

// GetJobLoggerByName trả về logger riêng của job (file log: logs/<name>.log)
func GetJobLoggerByName(jobName string) *logrus.Logger {
	return logger.GetLogger(jobName)
}

// LogJobInfo log thông tin chung của job
func LogJobInfo(jobName string, message string, fields map[string]interface{}) {
	GetJobLoggerByName(jobName).WithFields(fields).Info(message)
}

// LogJobDebug log debug của job
func LogJobDebug(jobName string, message string, fields map[string]interface{}) {
	GetJobLoggerByName(jobName).WithFields(fields).Debug(message)
}

// LogJobWarn log cảnh báo của job
func LogJobWarn(jobName string, message string, fields map[string]interface{}) {
	GetJobLoggerByName(jobName).WithFields(fields).Warn(message)
}

// LogJobErrorWithFields log lỗi với các fields bổ sung
func LogJobErrorWithFields(jobName string, err error, message string, fields map[string]interface{}) {
	GetJobLoggerByName(jobName).WithError(err).WithFields(fields).Error(message)
}
