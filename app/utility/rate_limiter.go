package utility

import (
	"context"
	"net/http"
	"sync"
	"time"

	"agent_erpsync/utility/logger"

	"github.com/sirupsen/logrus"
)

// AdaptiveRateLimiter quản lý thời gian nghỉ động giữa các request dựa trên phản ứng của server.
// Delay chỉ tăng khi gặp 429, và giảm dần sau nhiều lần thành công liên tiếp.
type AdaptiveRateLimiter struct {
	name               string
	mu                 sync.RWMutex
	currentDelay       time.Duration // Thời gian nghỉ hiện tại
	minDelay           time.Duration // Thời gian nghỉ tối thiểu
	maxDelay           time.Duration // Thời gian nghỉ tối đa
	successCount       int           // Số lần request thành công liên tiếp
	failureCount       int           // Số lần request thất bại liên tiếp
	backoffMultiplier  float64       // Hệ số tăng delay khi gặp 429
	recoveryMultiplier float64       // Hệ số giảm delay khi thành công
	successThreshold   int           // Số lần thành công cần để giảm delay
	lastAdjustmentTime time.Time     // Thời gian điều chỉnh lần cuối
	adjustmentCooldown time.Duration // Thời gian chờ giữa các lần giảm delay
	log                *logrus.Entry
}

// NewAdaptiveRateLimiter tạo một rate limiter mới.
// Tham số:
//   - name: Tên upstream dùng trong log (ví dụ: "erp")
//   - initialDelay: Thời gian nghỉ ban đầu
//   - minDelay: Thời gian nghỉ tối thiểu
//   - maxDelay: Thời gian nghỉ tối đa
func NewAdaptiveRateLimiter(name string, initialDelay, minDelay, maxDelay time.Duration) *AdaptiveRateLimiter {
	if initialDelay < minDelay {
		initialDelay = minDelay
	}
	if initialDelay > maxDelay {
		initialDelay = maxDelay
	}

	return &AdaptiveRateLimiter{
		name:               name,
		currentDelay:       initialDelay,
		minDelay:           minDelay,
		maxDelay:           maxDelay,
		backoffMultiplier:  1.5,              // Tăng 50% mỗi lần bị rate limit
		recoveryMultiplier: 0.9,              // Giảm 10% mỗi lần điều chỉnh
		successThreshold:   5,                // Cần 5 lần thành công để giảm delay
		adjustmentCooldown: 10 * time.Second, // Chỉ giảm mỗi 10 giây
		lastAdjustmentTime: time.Now(),
		log:                logger.GetAppLogger().WithField("rate_limiter", name),
	}
}

// Wait nghỉ với delay hiện tại; trả về ctx.Err() nếu ctx bị hủy trong lúc chờ
func (rl *AdaptiveRateLimiter) Wait(ctx context.Context) error {
	delay := rl.GetCurrentDelay()
	if delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// GetCurrentDelay trả về thời gian nghỉ hiện tại
func (rl *AdaptiveRateLimiter) GetCurrentDelay() time.Duration {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return rl.currentDelay
}

// RecordSuccess ghi nhận một request thành công và giảm delay nếu đủ điều kiện
func (rl *AdaptiveRateLimiter) RecordSuccess() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.successCount++
	rl.failureCount = 0

	now := time.Now()
	if now.Sub(rl.lastAdjustmentTime) < rl.adjustmentCooldown {
		return
	}

	if rl.successCount >= rl.successThreshold {
		newDelay := time.Duration(float64(rl.currentDelay) * rl.recoveryMultiplier)
		if newDelay < rl.minDelay {
			newDelay = rl.minDelay
		}
		if newDelay != rl.currentDelay {
			oldDelay := rl.currentDelay
			rl.currentDelay = newDelay
			rl.lastAdjustmentTime = now
			rl.successCount = 0
			rl.log.WithFields(logrus.Fields{
				"old_delay": oldDelay.String(),
				"new_delay": newDelay.String(),
			}).Debug("✅ Request ổn định → Giảm delay")
		}
	}
}

// RecordFailure ghi nhận một request thất bại; chỉ tăng delay khi statusCode là 429
func (rl *AdaptiveRateLimiter) RecordFailure(statusCode int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.failureCount++
	rl.successCount = 0

	if statusCode != http.StatusTooManyRequests {
		return
	}

	newDelay := time.Duration(float64(rl.currentDelay) * rl.backoffMultiplier)
	if newDelay <= rl.currentDelay {
		newDelay = rl.currentDelay + rl.minDelay
	}
	if newDelay > rl.maxDelay {
		newDelay = rl.maxDelay
	}
	if newDelay != rl.currentDelay {
		oldDelay := rl.currentDelay
		rl.currentDelay = newDelay
		rl.lastAdjustmentTime = time.Now()
		rl.failureCount = 0
		rl.log.WithFields(logrus.Fields{
			"old_delay":   oldDelay.String(),
			"new_delay":   newDelay.String(),
			"status_code": statusCode,
		}).Warn("⚠️ Bị rate limit (429) → Tăng delay")
	}
}

// RecordResponse ghi nhận kết quả của một request theo status code
func (rl *AdaptiveRateLimiter) RecordResponse(statusCode int) {
	if statusCode >= 200 && statusCode < 300 {
		rl.RecordSuccess()
	} else {
		rl.RecordFailure(statusCode)
	}
}

// Reset đặt lại rate limiter về delay tối thiểu
func (rl *AdaptiveRateLimiter) Reset() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.currentDelay = rl.minDelay
	rl.successCount = 0
	rl.failureCount = 0
	rl.lastAdjustmentTime = time.Now()
}

// GetStats trả về thống kê hiện tại của rate limiter
func (rl *AdaptiveRateLimiter) GetStats() map[string]interface{} {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	return map[string]interface{}{
		"name":                 rl.name,
		"current_delay":        rl.currentDelay.String(),
		"min_delay":            rl.minDelay.String(),
		"max_delay":            rl.maxDelay.String(),
		"success_count":        rl.successCount,
		"failure_count":        rl.failureCount,
		"last_adjustment_time": rl.lastAdjustmentTime.Format("2006-01-02 15:04:05"),
	}
}
