package workflow

import (
	"context"

	"etcapply/internal/gateway"
	"etcapply/internal/params"
)

// Status 申请状态
type Status string

const (
	StatusIdle        Status = "idle"         // 参数已校验，尚未开始
	StatusRunningA    Status = "running_a"    // 步骤 1~7
	StatusAwaitingOTP Status = "awaiting_otp" // 等待短信验证码
	StatusRunningC    Status = "running_c"    // 步骤 8~14
	StatusDone        Status = "done"
	StatusFailed      Status = "failed"
)

// Terminal 是否为终态
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// Step 步骤定义
type Step struct {
	Index   int    `json:"index"`
	Name    string `json:"name"`
	Percent int    `json:"percent"`
	Soft    bool   `json:"soft"` // 失败只记日志，继续下一步
}

// Steps 14 个步骤，按执行顺序
var Steps = []Step{
	{Index: 1, Name: "check_car_num", Percent: 5},
	{Index: 2, Name: "check_is_not_car_num", Percent: 10},
	{Index: 3, Name: "get_channel_use_address", Percent: 15},
	{Index: 4, Name: "get_optional_service_list", Percent: 20},
	{Index: 5, Name: "submit_car_num", Percent: 30},
	{Index: 6, Name: "protocol_add", Percent: 40},
	{Index: 7, Name: "submit_identity_with_bank_sign", Percent: 50},
	{Index: 8, Name: "sign_check", Percent: 60},
	{Index: 9, Name: "save_vehicle_info", Percent: 70, Soft: true},
	{Index: 10, Name: "optional_service_update", Percent: 80},
	{Index: 11, Name: "withhold_pay", Percent: 85},
	{Index: 12, Name: "update_db_status", Percent: 90},
	{Index: 13, Name: "stock_in", Percent: 95},
	{Index: 14, Name: "update_obu_info", Percent: 98},
}

// 分段边界与收尾进度
const (
	SegmentALast        = 7
	SegmentCFirst       = 8
	LastStep            = 14
	cardUserStatusPct   = 92
	FinalPercent        = 100
	FinalMessage        = "15. apply finished"
	activationLayout    = "2006-01-02 15:04:05"
	withholdDateCodeFmt = "060102"
)

// StepByIndex 查找步骤
func StepByIndex(n int) (Step, bool) {
	if n < 1 || n > len(Steps) {
		return Step{}, false
	}
	return Steps[n-1], true
}

// Gateway 后台接口（由 gateway.Client 实现）
type Gateway interface {
	CheckCarNum(ctx context.Context, req params.Request) error
	CheckIsNotCarNum(ctx context.Context, req params.Request) error
	GetChannelUseAddress(ctx context.Context, req params.Request) error
	OptionalServiceList(ctx context.Context, req params.Request) error
	SubmitCarNum(ctx context.Context, req params.Request) (string, error)
	ProtocolAdd(ctx context.Context, req params.Request, orderID string) error
	SubmitIdentityWithBankSign(ctx context.Context, req params.Request, orderID string) (*gateway.BankSignResult, error)
	SignCheck(ctx context.Context, req params.Request, in gateway.SignCheckInput) error
	SaveVehicleInfo(ctx context.Context, req params.Request, orderID string) (*gateway.VehicleInfoResult, error)
	OptionalServiceUpdate(ctx context.Context, orderID string) error
	WithholdPay(ctx context.Context, req params.Request, in gateway.WithholdPayInput) error
}

// Datastore 厂商数据库写操作（由 mysql.EtcDAO 实现）
type Datastore interface {
	UpdateOrderStatus(ctx context.Context, orderID string) error
	UpdateCardUserStatus(ctx context.Context, carNum string) error
	StockIn(ctx context.Context, carNum, obuNo, etcSn, activationTime string) error
	UpdateCardUserObuInfo(ctx context.Context, carNum, obuNo, etcSn, activationTime string) error
}

// Events 日志与进度输出（由 framework.Bus 实现）
type Events interface {
	Log(msg string)
	Progress(percent int, msg string)
}

// DeviceNumbers 入库用的设备号（由 synth.Generator 实现）
type DeviceNumbers interface {
	RandomOBNNumber() string
	RandomETCNumber() string
}
