package model

// ApplyNotification 申请结果通知（redis 频道 / lmstfy 回调队列共用）
type ApplyNotification struct {
	ApplyID    string `json:"apply_id"`              // 申请会话 ID
	TraceID    string `json:"trace_id,omitempty"`    // 链路追踪
	CarNum     string `json:"car_num"`               // 车牌
	OrderID    string `json:"order_id,omitempty"`    // 后台订单号（步骤 5 之后才有）
	Status     string `json:"status"`                // DONE / FAILED / CANCELLED
	FailedStep int    `json:"failed_step,omitempty"` // 失败步骤
	Percent    int    `json:"percent"`
	Message    string `json:"message"`
	Timestamp  int64  `json:"timestamp"`
}

// 通知状态常量
const (
	NotifyStatusDone      = "DONE"
	NotifyStatusFailed    = "FAILED"
	NotifyStatusCancelled = "CANCELLED"
)
