package usecase

import (
	"context"
	"time"
)

type nopMetrics struct{}

func (nopMetrics) WalletCreated() {}
func (nopMetrics) Incremented(int64) {}
func (nopMetrics) TransferCompleted(int64, time.Duration) {}
func (nopMetrics) TransferFailed(string) {}
func (nopMetrics) TransferCompensated() {}
func (nopMetrics) AuditWriteFailed() {}

// NopMetrics discards all measurements.
var NopMetrics Metrics = nopMetrics{}

type onceRetrier struct{}

func (onceRetrier) Retry(_ context.Context, operation func() error) error {
	return operation()
}

// NoRetry runs each operation exactly once.
var NoRetry Retrier = onceRetrier{}
