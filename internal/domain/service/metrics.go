// Package service defines the interfaces for domain services.
package service

import (
	"time"
)

// Metrics defines the interface for collecting business metrics.
// This abstraction allows the application layer to remain independent of the specific monitoring implementation (e.g., Prometheus).
// Metrics 定义了收集业务指标的接口。
type Metrics interface {
	// RecordTokenIssue records the outcome of a signing request.
	// RecordTokenIssue 记录令牌签发结果。
	RecordTokenIssue(success bool, duration time.Duration)

	// RecordTokenVerify records a verification outcome by result code ("ok", "expired", ...).
	// RecordTokenVerify 记录按结果码分类的验证结果。
	RecordTokenVerify(result string, duration time.Duration)

	// RecordTokenRevoke records an event when a token is revoked.
	// RecordTokenRevoke 记录令牌被吊销的事件。
	RecordTokenRevoke()

	// RecordKeySetLookup records where a verification key set came from ("hit", "miss", "error").
	// RecordKeySetLookup 记录验证密钥集的来源。
	RecordKeySetLookup(result string)

	// RecordKidFallback records a verification that had to try every trusted key.
	RecordKidFallback(reason string)

	// RecordKeyRotation records a rotation attempt by outcome ("rotated", "skipped", "lost_race", "error").
	// RecordKeyRotation 记录密钥轮换尝试的结果。
	RecordKeyRotation(outcome string)

	// RecordActiveKeyExpiry publishes the remaining validity of the active key.
	RecordActiveKeyExpiry(remaining time.Duration)

	// RecordKeysPurged records how many expired keys were deleted.
	RecordKeysPurged(count int64)
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordTokenIssue(bool, time.Duration)    {}
func (NoopMetrics) RecordTokenVerify(string, time.Duration) {}
func (NoopMetrics) RecordTokenRevoke()                      {}
func (NoopMetrics) RecordKeySetLookup(string)               {}
func (NoopMetrics) RecordKidFallback(string)                {}
func (NoopMetrics) RecordKeyRotation(string)                {}
func (NoopMetrics) RecordActiveKeyExpiry(time.Duration)     {}
func (NoopMetrics) RecordKeysPurged(int64)                  {}
