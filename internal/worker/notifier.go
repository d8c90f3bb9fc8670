package worker

import (
	"context"
	"errors"
	"time"

	"etcapply/internal/model"
	"etcapply/internal/workflow"
)

// Notifier 申请结束通知（redis 频道、lmstfy 回调队列）
type Notifier interface {
	Notify(ctx context.Context, notification *model.ApplyNotification) error
}

// MultiNotifier 依次通知，单个失败不影响其余
type MultiNotifier []Notifier

// Notify 实现 Notifier
func (m MultiNotifier) Notify(ctx context.Context, notification *model.ApplyNotification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// buildNotification 由快照构造通知
func buildNotification(s *Session, snap workflow.Snapshot, status string, now time.Time) *model.ApplyNotification {
	return &model.ApplyNotification{
		ApplyID:    s.ID,
		TraceID:    s.TraceID,
		CarNum:     snap.State.Request.CarNum(),
		OrderID:    snap.State.OrderID,
		Status:     status,
		FailedStep: snap.State.FailedStep,
		Percent:    snap.Percent,
		Message:    snap.Message,
		Timestamp:  now.Unix(),
	}
}
