package worker

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"etcapply/internal/framework"
	"etcapply/internal/gateway"
	"etcapply/internal/model"
	"etcapply/internal/params"
	"etcapply/internal/synth"
	"etcapply/internal/workflow"
	"etcapply/pkg/errorutil"
	"etcapply/pkg/logger"
)

type stubGateway struct {
	submitErr error
}

func (stubGateway) CheckCarNum(context.Context, params.Request) error          { return nil }
func (stubGateway) CheckIsNotCarNum(context.Context, params.Request) error     { return nil }
func (stubGateway) GetChannelUseAddress(context.Context, params.Request) error { return nil }
func (stubGateway) OptionalServiceList(context.Context, params.Request) error  { return nil }
func (g stubGateway) SubmitCarNum(context.Context, params.Request) (string, error) {
	if g.submitErr != nil {
		return "", g.submitErr
	}
	return "ORD-1", nil
}
func (stubGateway) ProtocolAdd(context.Context, params.Request, string) error { return nil }
func (stubGateway) SubmitIdentityWithBankSign(context.Context, params.Request, string) (*gateway.BankSignResult, error) {
	return &gateway.BankSignResult{SignOrderID: "SGN-1", VerifyCodeNo: "VCN-1", EtccardUserID: "ECU-1"}, nil
}
func (stubGateway) SignCheck(context.Context, params.Request, gateway.SignCheckInput) error {
	return nil
}
func (stubGateway) SaveVehicleInfo(context.Context, params.Request, string) (*gateway.VehicleInfoResult, error) {
	return &gateway.VehicleInfoResult{}, nil
}
func (stubGateway) OptionalServiceUpdate(context.Context, string) error { return nil }
func (stubGateway) WithholdPay(context.Context, params.Request, gateway.WithholdPayInput) error {
	return nil
}

type memDatastore struct {
	mu    sync.Mutex
	stock [][4]string
}

func (d *memDatastore) UpdateOrderStatus(context.Context, string) error    { return nil }
func (d *memDatastore) UpdateCardUserStatus(context.Context, string) error { return nil }
func (d *memDatastore) UpdateCardUserObuInfo(context.Context, string, string, string, string) error {
	return nil
}
func (d *memDatastore) StockIn(_ context.Context, carNum, obuNo, etcSn, act string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stock = append(d.stock, [4]string{carNum, obuNo, etcSn, act})
	return nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []model.ApplyNotification
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, notification *model.ApplyNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, *notification)
	return n.err
}

func (n *recordingNotifier) all() []model.ApplyNotification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]model.ApplyNotification(nil), n.sent...)
}

var testNow = time.Date(2024, 5, 6, 9, 30, 0, 0, time.Local)

func newTestManager(gw workflow.Gateway) (*Manager, *memDatastore, *recordingNotifier) {
	ds := &memDatastore{}
	notifier := &recordingNotifier{}
	m := NewManager(Options{
		Builder:    params.NewBuilder(map[string]string{"productId": "P1"}, synth.NewGenerator(7)),
		NewGateway: func() (workflow.Gateway, error) { return gw, nil },
		Datastore:  ds,
		Devices:    synth.NewGenerator(8),
		Notifier:   notifier,
		Now:        func() time.Time { return testNow },
	})
	return m, ds, notifier
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitRuns(t *testing.T, s *Session, n int) {
	t.Helper()
	waitFor(t, "finished events", func() bool {
		runs, _ := s.Finished()
		return runs >= n
	})
}

func TestManager_ApplyAndConfirm(t *testing.T) {
	t.Parallel()
	m, _, notifier := newTestManager(stubGateway{})
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Apply(ctx, params.Request{params.KeyPlateColor: "黄色"})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitRuns(t, s, 1)

	view := s.View()
	if view.Status != workflow.StatusAwaitingOTP || !view.SMSPrimed {
		t.Fatalf("want awaiting_otp with sms primed, got=%s/%v", view.Status, view.SMSPrimed)
	}
	if view.State.Request[params.KeyVehicleColor] != "1" {
		t.Fatalf("vehicleColor want=1 got=%s", view.State.Request[params.KeyVehicleColor])
	}
	if view.State.Request["productId"] != "P1" {
		t.Fatalf("fixed default lost: %v", view.State.Request)
	}
	if primed, err := m.SMSPrimed(s.ID); err != nil || !primed {
		t.Fatalf("SMSPrimed want=true got=%v err=%v", primed, err)
	}

	if err := m.ConfirmOTP(ctx, s.ID, "123456"); err != nil {
		t.Fatalf("ConfirmOTP: %v", err)
	}
	waitRuns(t, s, 2)
	waitFor(t, "notification", func() bool { return len(notifier.all()) == 1 })

	view = s.View()
	if view.Status != workflow.StatusDone || view.Percent != 100 || view.Label != workflow.FinalMessage {
		t.Fatalf("unexpected final view: %s %d %q", view.Status, view.Percent, view.Label)
	}
	if view.Logs[0] != "apply finished" {
		t.Fatalf("logs must be newest first, got=%v", view.Logs[:3])
	}

	got := notifier.all()[0]
	want := model.ApplyNotification{
		ApplyID:   s.ID,
		TraceID:   s.TraceID,
		CarNum:    view.State.Request.CarNum(),
		OrderID:   "ORD-1",
		Status:    model.NotifyStatusDone,
		Percent:   100,
		Message:   workflow.FinalMessage,
		Timestamp: testNow.Unix(),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("notification mismatch (-want +got):\n%s", diff)
	}
}

func TestManager_ApplyRejectsMissingField(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestManager(stubGateway{})
	defer m.Shutdown()

	_, err := m.Apply(context.Background(), params.Request{params.KeyIDCode: ""})
	var missing *params.MissingFieldError
	if !errors.As(err, &missing) || missing.Key != params.KeyIDCode {
		t.Fatalf("want MissingField(idCode) got=%v", err)
	}
	if len(m.Running()) != 0 {
		t.Fatalf("no task should be submitted")
	}
}

func TestManager_FailureNotifies(t *testing.T) {
	t.Parallel()
	gw := stubGateway{submitErr: &gateway.BusinessError{Path: gateway.PathSubmitCarNum, Code: 500, Message: "plate in use"}}
	m, _, notifier := newTestManager(gw)
	defer m.Shutdown()

	s, err := m.Apply(context.Background(), nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitRuns(t, s, 1)
	waitFor(t, "notification", func() bool { return len(notifier.all()) == 1 })

	if _, failed := s.Finished(); !failed {
		t.Fatalf("finished result should be nil on failure")
	}
	n := notifier.all()[0]
	if n.Status != model.NotifyStatusFailed || n.FailedStep != 5 || n.Percent != 30 {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if err := m.ConfirmOTP(context.Background(), s.ID, "123456"); !errorutil.Is(err, errorutil.KindProgrammer) {
		t.Fatalf("otp after failure want ProgrammerError got=%v", err)
	}
}

func TestManager_Cancel(t *testing.T) {
	t.Parallel()
	m, _, notifier := newTestManager(stubGateway{})
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Apply(ctx, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitRuns(t, s, 1)

	if err := m.Cancel(ctx, s.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	sent := notifier.all()
	if len(sent) != 1 || sent[0].Status != model.NotifyStatusCancelled {
		t.Fatalf("want one CANCELLED notification got=%+v", sent)
	}
	if s.View().Status != workflow.StatusFailed {
		t.Fatalf("cancelled session should be failed")
	}
}

func TestManager_UnknownSession(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestManager(stubGateway{})
	defer m.Shutdown()

	if _, err := m.Get("nope"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound got=%v", err)
	}
	if err := m.ConfirmOTP(context.Background(), "nope", "1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("want ErrSessionNotFound got=%v", err)
	}
}

func TestManager_StockIn(t *testing.T) {
	t.Parallel()
	m, ds, _ := newTestManager(stubGateway{})
	defer m.Shutdown()
	ctx := context.Background()

	res, err := m.StockIn(ctx, "苏A12345", "", "ETC-FIXED")
	if err != nil {
		t.Fatalf("StockIn: %v", err)
	}
	if len(res.ObuNo) != 20 || res.EtcSn != "ETC-FIXED" || res.ActivationTime != "2024-05-06 09:30:00" {
		t.Fatalf("unexpected result: %+v", res)
	}
	want := [][4]string{{"苏A12345", res.ObuNo, "ETC-FIXED", "2024-05-06 09:30:00"}}
	if diff := cmp.Diff(want, ds.stock); diff != "" {
		t.Fatalf("stock rows mismatch (-want +got):\n%s", diff)
	}

	if _, err := m.StockIn(ctx, "", "", ""); !errorutil.Is(err, errorutil.KindMissingField) {
		t.Fatalf("empty car num want MissingField got=%v", err)
	}
}

func TestManager_RejectsAfterShutdown(t *testing.T) {
	t.Parallel()
	m, _, _ := newTestManager(stubGateway{})
	m.Shutdown()
	m.Shutdown()

	if _, err := m.Apply(context.Background(), nil); !errors.Is(err, ErrManagerClosed) {
		t.Fatalf("want ErrManagerClosed got=%v", err)
	}
}

func TestMultiNotifier_JoinsErrors(t *testing.T) {
	t.Parallel()
	ok := &recordingNotifier{}
	bad := &recordingNotifier{err: errors.New("redis down")}

	err := MultiNotifier{bad, ok}.Notify(context.Background(), &model.ApplyNotification{ApplyID: "a"})
	if err == nil || err.Error() != "redis down" {
		t.Fatalf("want joined error got=%v", err)
	}
	if len(ok.all()) != 1 {
		t.Fatalf("second notifier must still be called")
	}
}

// gateLogger 在段 A 结束日志处停住，直到 release 关闭
type gateLogger struct {
	logger.Logger
	reached chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *gateLogger) Infof(ctx context.Context, format string, args ...interface{}) {
	if strings.HasPrefix(format, "[Workflow] Segment A done") {
		l.once.Do(func() { close(l.reached) })
		<-l.release
	}
	l.Logger.Infof(ctx, format, args...)
}

func TestManager_ConfirmWaitsForSegmentAFinished(t *testing.T) {
	t.Parallel()
	gate := &gateLogger{Logger: logger.NewNop(), reached: make(chan struct{}), release: make(chan struct{})}
	m := NewManager(Options{
		Builder:    params.NewBuilder(nil, synth.NewGenerator(9)),
		NewGateway: func() (workflow.Gateway, error) { return stubGateway{}, nil },
		Datastore:  &memDatastore{},
		Devices:    synth.NewGenerator(10),
		Logger:     gate,
		Now:        func() time.Time { return testNow },
	})
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Apply(ctx, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	select {
	case <-gate.reached:
	case <-time.After(3 * time.Second):
		t.Fatalf("segment A never reached awaiting otp")
	}
	if status := s.Snapshot().Status; status != workflow.StatusAwaitingOTP {
		t.Fatalf("status want=%s got=%s", workflow.StatusAwaitingOTP, status)
	}
	if !s.View().Running {
		t.Fatalf("view must report running until segment A delivers finished")
	}

	// 段 A 的协程还没投递 finished，验证码必须被拒绝且不能被消费
	if err := m.ConfirmOTP(ctx, s.ID, "123456"); !errorutil.Is(err, errorutil.KindProgrammer) {
		t.Fatalf("otp before segment A finished want ProgrammerError got=%v", err)
	}
	if status := s.Snapshot().Status; status != workflow.StatusAwaitingOTP {
		t.Fatalf("rejected otp must not change status, got=%s", status)
	}

	close(gate.release)
	waitRuns(t, s, 1)

	if err := m.ConfirmOTP(ctx, s.ID, "123456"); err != nil {
		t.Fatalf("ConfirmOTP: %v", err)
	}
	waitRuns(t, s, 2)

	// 段 A 的 finished 必须在段 C 的任何事件之前
	firstFinished, firstC := -1, -1
	for i, ev := range s.bus.History() {
		if ev.Type == framework.EventFinished && firstFinished < 0 {
			firstFinished = i
		}
		if ev.Type == framework.EventProgress && ev.Percent >= 60 && firstC < 0 {
			firstC = i
		}
	}
	if firstFinished < 0 || firstC < 0 || firstFinished > firstC {
		t.Fatalf("segment A finished at %d, segment C began at %d", firstFinished, firstC)
	}
}

func TestManager_EvictsTerminalSessions(t *testing.T) {
	t.Parallel()
	m := NewManager(Options{
		Builder:    params.NewBuilder(nil, synth.NewGenerator(13)),
		NewGateway: func() (workflow.Gateway, error) { return stubGateway{}, nil },
		Datastore:  &memDatastore{},
		Devices:    synth.NewGenerator(14),
		Now:        func() time.Time { return testNow },
		SessionTTL: 20 * time.Millisecond,
	})
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Apply(ctx, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitRuns(t, s, 1)

	// 等待验证码的会话不回收
	time.Sleep(60 * time.Millisecond)
	if _, err := m.Get(s.ID); err != nil {
		t.Fatalf("awaiting session must stay, got=%v", err)
	}

	if err := m.ConfirmOTP(ctx, s.ID, "123456"); err != nil {
		t.Fatalf("ConfirmOTP: %v", err)
	}
	waitFor(t, "eviction", func() bool {
		_, err := m.Get(s.ID)
		return errors.Is(err, ErrSessionNotFound)
	})
	select {
	case <-s.bus.Done():
	case <-time.After(time.Second):
		t.Fatalf("bus dispatcher should exit after eviction")
	}
	if s.View().Status != workflow.StatusDone {
		t.Fatalf("evicted session keeps its final view")
	}
}

func TestManager_CancelEvictsSession(t *testing.T) {
	t.Parallel()
	notifier := &recordingNotifier{}
	m := NewManager(Options{
		Builder:    params.NewBuilder(nil, synth.NewGenerator(15)),
		NewGateway: func() (workflow.Gateway, error) { return stubGateway{}, nil },
		Datastore:  &memDatastore{},
		Devices:    synth.NewGenerator(16),
		Notifier:   notifier,
		Now:        func() time.Time { return testNow },
		SessionTTL: 10 * time.Millisecond,
	})
	defer m.Shutdown()
	ctx := context.Background()

	s, err := m.Apply(ctx, nil)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitRuns(t, s, 1)

	if err := m.Cancel(ctx, s.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	waitFor(t, "eviction", func() bool {
		_, err := m.Get(s.ID)
		return errors.Is(err, ErrSessionNotFound)
	})
	sent := notifier.all()
	if len(sent) != 1 || sent[0].Status != model.NotifyStatusCancelled {
		t.Fatalf("want one CANCELLED notification got=%+v", sent)
	}
}
