package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"etcapply/internal/gateway"
	"etcapply/internal/params"
	"etcapply/pkg/logger"
)

// StepRecord 步骤执行记录
type StepRecord struct {
	Index      int    `json:"index"`
	Name       string `json:"name"`
	Percent    int    `json:"percent"`
	OK         bool   `json:"ok"`
	SoftFailed bool   `json:"soft_failed,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// State 一次申请的状态，服务端下发的标识单独保存
type State struct {
	Request        params.Request `json:"request"`
	OrderID        string         `json:"order_id,omitempty"`
	SignOrderID    string         `json:"sign_order_id,omitempty"`
	VerifyCodeNo   string         `json:"verify_code_no,omitempty"`
	EtccardUserID  string         `json:"etccard_user_id,omitempty"`
	ObuNo          string         `json:"obu_no,omitempty"`
	EtcSn          string         `json:"etc_sn,omitempty"`
	ActivationTime string         `json:"activation_time,omitempty"`
	Completed      []int          `json:"completed_steps"`
	FailedStep     int            `json:"failed_step,omitempty"`
	Records        []StepRecord   `json:"records"`
}

func (s State) clone() State {
	out := s
	out.Request = s.Request.Clone()
	out.Completed = append([]int(nil), s.Completed...)
	out.Records = append([]StepRecord(nil), s.Records...)
	return out
}

// Snapshot 给界面读的快照
type Snapshot struct {
	Status    Status `json:"status"`
	Percent   int    `json:"percent"`
	Message   string `json:"message"`
	Cancelled bool   `json:"cancelled,omitempty"`
	State     State  `json:"state"`
}

// Deps 编排器依赖
type Deps struct {
	Gateway   Gateway
	Datastore Datastore
	Events    Events
	Devices   DeviceNumbers
	Logger    logger.Logger
	Now       func() time.Time
}

// Orchestrator 申请流程编排：Idle → RunningA → AwaitingOTP → RunningC → Done，任一步失败进入 Failed
// 状态只由当前段的执行协程修改，锁只用来给快照读取方
type Orchestrator struct {
	mu        sync.Mutex
	status    Status
	state     State
	begun     bool
	next      int
	percent   int
	message   string
	smsCode   string
	cancelled bool

	gw      Gateway
	db      Datastore
	events  Events
	devices DeviceNumbers
	logger  logger.Logger
	now     func() time.Time
}

// NewOrchestrator 创建编排器
func NewOrchestrator(deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = logger.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		status:  StatusIdle,
		next:    1,
		gw:      deps.Gateway,
		db:      deps.Datastore,
		events:  deps.Events,
		devices: deps.Devices,
		logger:  log,
		now:     now,
	}
}

// Begin 校验并冻结申请参数，校验失败时流程不会开始
func (o *Orchestrator) Begin(req params.Request) error {
	validated, err := params.ValidateAndComplete(req)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusIdle || o.begun {
		return programmerError("begin called in status %s", o.status)
	}
	o.state.Request = validated
	o.begun = true
	return nil
}

// RunSegmentA 执行步骤 1~7，成功后进入 AwaitingOTP（短信已下发）
func (o *Orchestrator) RunSegmentA(ctx context.Context) error {
	if err := o.transition(StatusIdle, StatusRunningA); err != nil {
		return err
	}

	for n := 1; n <= SegmentALast; n++ {
		if err := o.RunStep(ctx, n); err != nil {
			return err
		}
	}

	o.mu.Lock()
	o.status = StatusAwaitingOTP
	o.mu.Unlock()

	o.events.Log("sms code sent, waiting for confirmation")
	o.logger.Infof(ctx, "[Workflow] Segment A done, awaiting otp")
	return nil
}

// SubmitOTP 用户输入短信验证码，AwaitingOTP → RunningC
func (o *Orchestrator) SubmitOTP(code string) error {
	if code == "" {
		return &params.MissingFieldError{Key: "code"}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status != StatusAwaitingOTP {
		return programmerError("otp submitted in status %s", o.status)
	}
	o.smsCode = code
	o.status = StatusRunningC
	return nil
}

// RunSegmentC 执行步骤 8~14，全部完成后进入 Done
func (o *Orchestrator) RunSegmentC(ctx context.Context) error {
	o.mu.Lock()
	status := o.status
	o.mu.Unlock()
	if status != StatusRunningC {
		return programmerError("segment C started in status %s", status)
	}

	for n := SegmentCFirst; n <= LastStep; n++ {
		if err := o.RunStep(ctx, n); err != nil {
			return err
		}
	}

	o.mu.Lock()
	o.status = StatusDone
	o.percent = FinalPercent
	o.message = FinalMessage
	o.mu.Unlock()

	o.events.Progress(FinalPercent, FinalMessage)
	o.events.Log("apply finished")
	o.logger.Infof(ctx, "[Workflow] Apply finished")
	return nil
}

// Cancel 取消申请，只允许在未开始或等待验证码时调用，不做任何补偿
func (o *Orchestrator) Cancel() error {
	o.mu.Lock()
	if o.status != StatusIdle && o.status != StatusAwaitingOTP {
		status := o.status
		o.mu.Unlock()
		return programmerError("cancel not allowed in status %s", status)
	}
	o.status = StatusFailed
	o.state.FailedStep = 0
	o.message = "cancelled"
	o.cancelled = true
	o.mu.Unlock()

	o.events.Log("apply cancelled")
	return nil
}

// RunStep 执行第 n 步，n 必须是下一步且与当前段匹配
func (o *Orchestrator) RunStep(ctx context.Context, n int) error {
	step, ok := StepByIndex(n)
	if !ok {
		return programmerError("unknown step %d", n)
	}

	o.mu.Lock()
	if err := o.checkRunnable(step); err != nil {
		o.mu.Unlock()
		return err
	}
	startMsg := fmt.Sprintf("%d. %s", step.Index, step.Name)
	o.percent = step.Percent
	o.message = startMsg
	o.mu.Unlock()

	ctx = logger.WithStep(ctx, step.Index)
	o.events.Progress(step.Percent, startMsg)
	o.logger.Infof(ctx, "[Workflow] Step %s started", startMsg)

	err := o.execute(ctx, step)
	if err == nil {
		o.mu.Lock()
		o.state.Completed = append(o.state.Completed, step.Index)
		o.state.Records = append(o.state.Records, StepRecord{Index: step.Index, Name: step.Name, Percent: step.Percent, OK: true})
		o.next++
		o.mu.Unlock()
		return nil
	}

	failMsg := fmt.Sprintf("%d. %s failed: %v", step.Index, step.Name, err)

	// 软失败：记日志后继续
	if step.Soft {
		o.mu.Lock()
		o.state.Records = append(o.state.Records, StepRecord{Index: step.Index, Name: step.Name, Percent: step.Percent, SoftFailed: true, Detail: err.Error()})
		o.next++
		o.mu.Unlock()

		o.events.Log(failMsg + " (ignored)")
		o.logger.Warnf(ctx, "[Workflow] %s (ignored)", failMsg)
		return nil
	}

	// 硬失败：停在当前进度
	o.mu.Lock()
	o.state.Records = append(o.state.Records, StepRecord{Index: step.Index, Name: step.Name, Percent: step.Percent, Detail: err.Error()})
	o.state.FailedStep = step.Index
	o.status = StatusFailed
	o.message = failMsg
	percent := o.percent
	o.mu.Unlock()

	o.events.Log(failMsg)
	o.events.Progress(percent, failMsg)
	o.logger.Errorf(ctx, "[Workflow] %s", failMsg)
	return &StepError{Step: step.Index, Name: step.Name, Percent: percent, Err: err}
}

// checkRunnable 调用方持锁
func (o *Orchestrator) checkRunnable(step Step) error {
	if !o.begun {
		return programmerError("step %d before begin", step.Index)
	}
	if step.Index != o.next {
		return programmerError("step %d out of order, next step is %d", step.Index, o.next)
	}
	want := StatusRunningA
	if step.Index >= SegmentCFirst {
		want = StatusRunningC
	}
	if o.status != want {
		return programmerError("step %d requires status %s, current %s", step.Index, want, o.status)
	}
	return nil
}

// execute 执行单步的实际调用
func (o *Orchestrator) execute(ctx context.Context, step Step) error {
	req := o.state.Request

	switch step.Index {
	case 1:
		return o.gw.CheckCarNum(ctx, req)
	case 2:
		return o.gw.CheckIsNotCarNum(ctx, req)
	case 3:
		return o.gw.GetChannelUseAddress(ctx, req)
	case 4:
		return o.gw.OptionalServiceList(ctx, req)
	case 5:
		orderID, err := o.gw.SubmitCarNum(ctx, req)
		if err != nil {
			return err
		}
		o.update(func(s *State) { s.OrderID = orderID })
		o.events.Log("order id: " + orderID)
		return nil
	case 6:
		if o.state.OrderID == "" {
			return prerequisite("order_id")
		}
		return o.gw.ProtocolAdd(ctx, req, o.state.OrderID)
	case 7:
		if o.state.OrderID == "" {
			return prerequisite("order_id")
		}
		res, err := o.gw.SubmitIdentityWithBankSign(ctx, req, o.state.OrderID)
		if err != nil {
			return err
		}
		o.update(func(s *State) {
			s.SignOrderID = res.SignOrderID
			s.VerifyCodeNo = res.VerifyCodeNo
		})
		if res.EtccardUserID != "" {
			o.setEtccardUserID(res.EtccardUserID)
		}
		return nil
	case 8:
		if o.state.SignOrderID == "" || o.state.VerifyCodeNo == "" {
			return prerequisite("sign_order_id/verify_code_no")
		}
		return o.gw.SignCheck(ctx, req, gateway.SignCheckInput{
			SMSCode:      o.smsCode,
			VerifyCodeNo: o.state.VerifyCodeNo,
			SignOrderID:  o.state.SignOrderID,
		})
	case 9:
		if o.state.OrderID == "" {
			return prerequisite("order_id")
		}
		res, err := o.gw.SaveVehicleInfo(ctx, req, o.state.OrderID)
		if err != nil {
			return err
		}
		if res.EtccardUserID != "" {
			o.setEtccardUserID(res.EtccardUserID)
		}
		return nil
	case 10:
		if o.state.OrderID == "" {
			return prerequisite("order_id")
		}
		return o.gw.OptionalServiceUpdate(ctx, o.state.OrderID)
	case 11:
		if o.state.OrderID == "" {
			return prerequisite("order_id")
		}
		// verifyCode 用当天日期，不是短信验证码
		return o.gw.WithholdPay(ctx, req, gateway.WithholdPayInput{
			EtccardUserID: o.state.EtccardUserID,
			OrderID:       o.state.OrderID,
			DateCode:      o.now().Format(withholdDateCodeFmt),
		})
	case 12:
		if o.state.OrderID == "" {
			return prerequisite("order_id")
		}
		if err := o.db.UpdateOrderStatus(ctx, o.state.OrderID); err != nil {
			return err
		}
		cardUserMsg := fmt.Sprintf("%d. %s: card user", step.Index, step.Name)
		o.mu.Lock()
		o.percent = cardUserStatusPct
		o.message = cardUserMsg
		o.mu.Unlock()
		o.events.Progress(cardUserStatusPct, cardUserMsg)
		return o.db.UpdateCardUserStatus(ctx, req.CarNum())
	case 13:
		obuNo := o.devices.RandomOBNNumber()
		etcSn := o.devices.RandomETCNumber()
		activation := o.now().Format(activationLayout)
		if err := o.db.StockIn(ctx, req.CarNum(), obuNo, etcSn, activation); err != nil {
			return err
		}
		o.update(func(s *State) {
			s.ObuNo = obuNo
			s.EtcSn = etcSn
			s.ActivationTime = activation
		})
		o.events.Log(fmt.Sprintf("stock in: obu=%s etc=%s", obuNo, etcSn))
		return nil
	case 14:
		if o.state.ObuNo == "" || o.state.EtcSn == "" {
			return prerequisite("obu_no/etc_sn")
		}
		if req[params.KeyEtccardUserID] == "" {
			return prerequisite(params.KeyEtccardUserID)
		}
		return o.db.UpdateCardUserObuInfo(ctx, req.CarNum(), o.state.ObuNo, o.state.EtcSn, o.state.ActivationTime)
	}
	return programmerError("unknown step %d", step.Index)
}

func (o *Orchestrator) update(fn func(s *State)) {
	o.mu.Lock()
	fn(&o.state)
	o.mu.Unlock()
}

// setEtccardUserID 办卡用户 ID 同时写入状态和请求参数（后台按请求字段读取）
func (o *Orchestrator) setEtccardUserID(id string) {
	o.update(func(s *State) {
		s.EtccardUserID = id
		s.Request[params.KeyEtccardUserID] = id
	})
}

// Status 当前状态
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status
}

// SMSPrimed 短信是否已下发（步骤 7 已完成）
func (o *Orchestrator) SMSPrimed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, n := range o.state.Completed {
		if n == SegmentALast {
			return true
		}
	}
	return false
}

// Snapshot 状态快照
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Snapshot{
		Status:    o.status,
		Percent:   o.percent,
		Message:   o.message,
		Cancelled: o.cancelled,
		State:     o.state.clone(),
	}
}

func (o *Orchestrator) transition(from, to Status) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.begun {
		return programmerError("segment started before begin")
	}
	if o.status != from {
		return programmerError("cannot move from %s to %s", o.status, to)
	}
	o.status = to
	return nil
}
