/*
Package retry là retry service dùng chung cho mọi entity type.
Một lần thất bại tạo entry với AttemptCount=1; mỗi lần retry thất bại tăng AttemptCount
và lên lịch lại theo Policy; vượt quá MaxAttempts thì entry bị chuyển sang dead-letter.
*/
package retry

import "time"

// Policy là lịch backoff của retry
type Policy struct {
	MaxAttempts int
	// Delays[i] là thời gian chờ sau lần thất bại thứ i+1
	Delays []time.Duration
}

// DefaultPolicy: 3 lần, chờ 1, 5, 15 phút
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		Delays:      []time.Duration{time.Minute, 5 * time.Minute, 15 * time.Minute},
	}
}

// Delay trả về thời gian chờ trước lần retry kế tiếp khi entry đang ở attempt
func (p Policy) Delay(attempt int) time.Duration {
	if len(p.Delays) == 0 {
		return time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(p.Delays) {
		return p.Delays[len(p.Delays)-1]
	}
	return p.Delays[attempt-1]
}

// ShouldDeadLetter trả về true khi attemptCount đã vượt MaxAttempts (lần thất bại thứ 4 với mặc định)
func (p Policy) ShouldDeadLetter(attemptCount int) bool {
	return attemptCount > p.MaxAttempts
}
