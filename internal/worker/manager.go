package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"etcapply/internal/fourelements"
	"etcapply/internal/framework"
	"etcapply/internal/model"
	"etcapply/internal/params"
	"etcapply/internal/synth"
	"etcapply/internal/workflow"
	"etcapply/pkg/errorutil"
	"etcapply/pkg/logger"
)

// ErrSessionNotFound 申请会话不存在
var ErrSessionNotFound = errors.New("apply session not found")

// ErrManagerClosed Manager 已关闭
var ErrManagerClosed = errors.New("manager is closed")

// GatewayFactory 每个申请会话一个后台接口客户端（各自的 cookie 会话）
type GatewayFactory func() (workflow.Gateway, error)

// Options Manager 依赖
type Options struct {
	Builder    *params.Builder
	NewGateway GatewayFactory
	Datastore  workflow.Datastore
	Devices    workflow.DeviceNumbers
	Notifier   Notifier // 可选
	Logger     logger.Logger
	Now        func() time.Time
	// SessionTTL 会话结束后保留多久供界面查看，到期关闭总线并移除；默认 30 分钟
	SessionTTL time.Duration
}

const defaultSessionTTL = 30 * time.Minute

// Manager 申请会话管理：每个会话一个编排器和一条事件总线，后台任务交给执行器
type Manager struct {
	ctx      context.Context
	opts     Options
	executor *framework.Executor
	sessions map[string]*Session
	mu       sync.RWMutex
	closing  *atomic.Bool
	logger   logger.Logger
	now      func() time.Time
}

// StockInResult 入库结果
type StockInResult struct {
	CarNum         string `json:"car_num"`
	ObuNo          string `json:"obu_no"`
	EtcSn          string `json:"etc_sn"`
	ActivationTime string `json:"activation_time"`
}

// NewManager 创建 Manager
func NewManager(opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if opts.Builder == nil {
		opts.Builder = params.NewBuilder(nil, nil)
	}
	if opts.Devices == nil {
		opts.Devices = synth.Default()
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = defaultSessionTTL
	}
	return &Manager{
		ctx:      context.Background(),
		opts:     opts,
		executor: framework.NewExecutor(log),
		sessions: make(map[string]*Session),
		closing:  atomic.NewBool(false),
		logger:   log,
		now:      now,
	}
}

// Defaults 默认申请参数
func (m *Manager) Defaults() params.Request {
	return m.opts.Builder.BuildDefaults()
}

// ParseFourElements 解析上传的四要素文件
func (m *Manager) ParseFourElements(name string, data []byte) (*fourelements.FourElements, error) {
	fe, err := fourelements.ParseBytes(name, data)
	if err != nil {
		m.logger.Warnf(m.ctx, "[Manager] Parse four elements %s failed: %v", name, err)
		return nil, err
	}
	return fe, nil
}

// Apply 合并默认值并校验，通过后创建会话并在后台执行步骤 1~7
func (m *Manager) Apply(ctx context.Context, user params.Request) (*Session, error) {
	if m.closing.Load() {
		return nil, ErrManagerClosed
	}

	// 1. 合并 + 校验，失败时不创建会话
	merged := params.Merge(user, m.opts.Builder.BuildDefaults())

	gw, err := m.opts.NewGateway()
	if err != nil {
		return nil, fmt.Errorf("create gateway failed: %w", err)
	}

	id := uuid.NewString()
	traceID := uuid.NewString()
	sctx := logger.WithApplyID(logger.WithTraceID(context.Background(), traceID), id)

	bus := framework.NewBus(sctx, m.logger)
	orch := workflow.NewOrchestrator(workflow.Deps{
		Gateway:   gw,
		Datastore: m.opts.Datastore,
		Events:    bus,
		Devices:   m.opts.Devices,
		Logger:    m.logger,
		Now:       m.now,
	})
	if err := orch.Begin(merged); err != nil {
		bus.Close()
		m.logger.Warnf(ctx, "[Manager] Apply rejected: %v", err)
		return nil, err
	}

	// 2. 注册会话，终态时发通知
	session := newSession(sctx, id, traceID, orch, bus, m.now())
	// 结果为 nil 表示该段失败；成功时结果是段结束时的快照
	// 已取消的会话由 Cancel 发通知，这里不再重复
	bus.OnFinished(func(result interface{}) {
		snap, ok := result.(workflow.Snapshot)
		switch {
		case session.orch.Snapshot().Cancelled:
		case !ok:
			m.notify(session, model.NotifyStatusFailed)
		case snap.Status == workflow.StatusDone:
			m.notify(session, model.NotifyStatusDone)
		}
		if session.settled() && terminal(session.orch.Snapshot().Status) {
			m.scheduleEvict(session)
		}
	})

	m.mu.Lock()
	m.sessions[id] = session
	m.mu.Unlock()

	m.logger.Infof(sctx, "[Manager] Session created, car_num: %s", merged.CarNum())

	// 3. 后台执行步骤 1~7
	session.markSubmitted()
	if _, err := m.executor.Submit(sctx, "segment_a", bus, func(ctx context.Context) (interface{}, error) {
		if err := orch.RunSegmentA(ctx); err != nil {
			return nil, err
		}
		return orch.Snapshot(), nil
	}); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		bus.Close()
		return nil, err
	}
	return session, nil
}

// Get 查找会话
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// SMSPrimed 短信是否已经下发（步骤 7 已完成）
func (m *Manager) SMSPrimed(id string) (bool, error) {
	s, err := m.Get(id)
	if err != nil {
		return false, err
	}
	return s.orch.SMSPrimed(), nil
}

// ConfirmOTP 提交短信验证码，后台执行步骤 8~14
func (m *Manager) ConfirmOTP(ctx context.Context, id, code string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	// 上一段的 finished 事件投递之前不接受验证码，保证同一时刻最多一个段在执行
	if !s.settled() {
		return errorutil.New(errorutil.KindProgrammer, "previous segment has not finished yet")
	}
	if err := s.orch.SubmitOTP(code); err != nil {
		return err
	}

	s.markSubmitted()
	_, err = m.executor.Submit(s.ctx, "segment_c", s.bus, func(ctx context.Context) (interface{}, error) {
		if err := s.orch.RunSegmentC(ctx); err != nil {
			return nil, err
		}
		return s.orch.Snapshot(), nil
	})
	if err != nil {
		m.logger.Errorf(ctx, "[Manager] Submit segment C failed: %v", err)
	}
	return err
}

// Cancel 取消申请（未开始或等待验证码时）
func (m *Manager) Cancel(ctx context.Context, id string) error {
	s, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := s.orch.Cancel(); err != nil {
		return err
	}
	m.logger.Infof(s.ctx, "[Manager] Session cancelled")
	m.notify(s, model.NotifyStatusCancelled)
	// 还有段未结束时由它的 finished 事件触发回收
	if s.settled() {
		m.scheduleEvict(s)
	}
	return nil
}

// scheduleEvict 会话进入终态后，保留 SessionTTL 再关闭总线并移除
func (m *Manager) scheduleEvict(s *Session) {
	s.evictOnce.Do(func() {
		time.AfterFunc(m.opts.SessionTTL, func() { m.evict(s) })
	})
}

func (m *Manager) evict(s *Session) {
	m.mu.Lock()
	if cur, ok := m.sessions[s.ID]; ok && cur == s {
		delete(m.sessions, s.ID)
	}
	m.mu.Unlock()

	s.bus.Close()
	m.logger.Infof(s.ctx, "[Manager] Session evicted")
}

// StockIn 单独的设备入库：未给设备号时随机生成
func (m *Manager) StockIn(ctx context.Context, carNum, obuNo, etcSn string) (*StockInResult, error) {
	if carNum == "" {
		return nil, &params.MissingFieldError{Key: params.KeyCarNum}
	}
	if m.opts.Datastore == nil {
		return nil, errorutil.New(errorutil.KindProgrammer, "datastore not configured")
	}
	if obuNo == "" {
		obuNo = m.opts.Devices.RandomOBNNumber()
	}
	if etcSn == "" {
		etcSn = m.opts.Devices.RandomETCNumber()
	}

	res := &StockInResult{
		CarNum:         carNum,
		ObuNo:          obuNo,
		EtcSn:          etcSn,
		ActivationTime: m.now().Format("2006-01-02 15:04:05"),
	}
	if err := m.opts.Datastore.StockIn(ctx, res.CarNum, res.ObuNo, res.EtcSn, res.ActivationTime); err != nil {
		m.logger.Errorf(ctx, "[Manager] Stock in %s failed: %v", carNum, err)
		return nil, err
	}
	m.logger.Infof(ctx, "[Manager] Stock in %s done, obu: %s, etc: %s", carNum, obuNo, etcSn)
	return res, nil
}

// Running 运行中的后台任务
func (m *Manager) Running() []framework.TaskInfo {
	return m.executor.Running()
}

// Shutdown 拒绝新申请，等待运行中的任务结束后关闭所有总线
func (m *Manager) Shutdown() {
	if !m.closing.CAS(false, true) {
		return
	}
	m.logger.Infof(m.ctx, "[Manager] Began to close")

	// 1. 等待后台任务
	m.executor.Shutdown()

	// 2. 投递完剩余事件
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()
	for _, s := range sessions {
		s.bus.Close()
	}

	m.logger.Infof(m.ctx, "[Manager] Shutdown complete, sessions: %d", len(sessions))
}

func (m *Manager) notify(s *Session, status string) {
	if m.opts.Notifier == nil {
		return
	}
	n := buildNotification(s, s.orch.Snapshot(), status, m.now())
	if err := m.opts.Notifier.Notify(s.ctx, n); err != nil {
		m.logger.Warnf(s.ctx, "[Manager] Notify %s failed: %v", n.Status, err)
		return
	}
	m.logger.Infof(s.ctx, "[Manager] Notified %s", n.Status)
}
