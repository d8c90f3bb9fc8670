package worker

import (
	"context"
	"sync"
	"time"

	"etcapply/internal/framework"
	"etcapply/internal/workflow"
)

// Session 一次申请：编排器 + 事件总线 + 界面侧状态
// logs / percent / label 只由总线分发协程写入
type Session struct {
	ID        string
	TraceID   string
	CreatedAt time.Time

	ctx  context.Context
	orch *workflow.Orchestrator
	bus  *framework.Bus

	mu        sync.Mutex
	logs      []string
	percent   int
	label     string
	runs      int
	submitted int
	lastError bool

	evictOnce sync.Once
}

// View 界面读取的会话视图
type View struct {
	ID        string          `json:"id"`
	TraceID   string          `json:"trace_id"`
	Status    workflow.Status `json:"status"`
	Percent   int             `json:"percent"`
	Label     string          `json:"label"`
	SMSPrimed bool            `json:"sms_primed"`
	Running   bool            `json:"running"` // 后台段待执行、执行中或 finished 未投递
	Logs      []string        `json:"logs"`    // 新的在前
	State     workflow.State  `json:"state"`
	CreatedAt time.Time       `json:"created_at"`
}

func newSession(ctx context.Context, id, traceID string, orch *workflow.Orchestrator, bus *framework.Bus, now time.Time) *Session {
	s := &Session{
		ID:        id,
		TraceID:   traceID,
		CreatedAt: now,
		ctx:       ctx,
		orch:      orch,
		bus:       bus,
	}
	bus.Subscribe(s.onEvent)
	return s
}

func (s *Session) onEvent(ev framework.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case framework.EventLog:
		s.logs = append(s.logs, ev.Message)
	case framework.EventProgress:
		s.percent = ev.Percent
		s.label = ev.Message
	case framework.EventFinished:
		s.runs++
		s.lastError = ev.Result == nil
	}
}

// View 会话视图，日志按新到旧排列
func (s *Session) View() View {
	snap := s.orch.Snapshot()

	s.mu.Lock()
	logs := make([]string, len(s.logs))
	for i, l := range s.logs {
		logs[len(s.logs)-1-i] = l
	}
	percent, label := s.percent, s.label
	pending := s.runs < s.submitted
	s.mu.Unlock()

	return View{
		ID:        s.ID,
		TraceID:   s.TraceID,
		Status:    snap.Status,
		Percent:   percent,
		Label:     label,
		SMSPrimed: s.orch.SMSPrimed(),
		Running:   pending || running(snap.Status),
		Logs:      logs,
		State:     snap.State,
		CreatedAt: s.CreatedAt,
	}
}

// Finished 已结束的后台任务数，以及最近一次是否失败
func (s *Session) Finished() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs, s.lastError
}

// Submitted 已提交的后台任务数
func (s *Session) Submitted() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitted
}

// settled 已提交的后台段都已投递 finished
func (s *Session) settled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runs >= s.submitted
}

func (s *Session) markSubmitted() {
	s.mu.Lock()
	s.submitted++
	s.mu.Unlock()
}

// Subscribe 订阅事件流，返回历史事件
func (s *Session) Subscribe(fn func(framework.Event)) ([]framework.Event, func()) {
	return s.bus.Subscribe(fn)
}

// Snapshot 编排器快照
func (s *Session) Snapshot() workflow.Snapshot {
	return s.orch.Snapshot()
}

func running(status workflow.Status) bool {
	switch status {
	case workflow.StatusIdle, workflow.StatusRunningA, workflow.StatusRunningC:
		return true
	}
	return false
}

func terminal(status workflow.Status) bool {
	return status == workflow.StatusDone || status == workflow.StatusFailed
}
