package params

import (
	"fmt"
	"strconv"
	"strings"

	"etcapply/pkg/errorutil"
)

// 申请参数规范键（后台接口字段名）
const (
	KeyCarNum        = "carNum"
	KeyPlateProvince = "plate_province"
	KeyPlateLetter   = "plate_letter"
	KeyPlateNumber   = "plate_number"
	KeyPlateColor    = "plate_color"
	KeyVehicleColor  = "vehicleColor"
	KeyCardHolder    = "cardHolder"
	KeyIDCode        = "idCode"
	KeyBindBankNo    = "bindBankNo"
	KeyBindBankPhone = "bindBankPhone"
	KeyUrgentContact = "urgentContact"
	KeyUrgentPhone   = "urgentPhone"
	KeyEtccardUserID = "etccardUserId"
	KeyVIN           = "vin"
	KeyEngineNo      = "engineNo"
	KeyProductID     = "productId"
)

// RequiredKeys 必填键，按检查顺序
var RequiredKeys = []string{KeyCarNum, KeyCardHolder, KeyIDCode, KeyBindBankNo, KeyBindBankPhone}

// Request 申请参数，键为后台字段名
type Request map[string]string

// Clone 复制一份
func (r Request) Clone() Request {
	out := make(Request, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CarNum 完整车牌
func (r Request) CarNum() string {
	return r[KeyCarNum]
}

// PlateParts 省份 + 字母 + 号码
func (r Request) PlateParts() string {
	return r[KeyPlateProvince] + r[KeyPlateLetter] + r[KeyPlateNumber]
}

// VehicleColor 车牌颜色编码，无法解析时为 0
func (r Request) VehicleColor() int {
	c, err := strconv.Atoi(r[KeyVehicleColor])
	if err != nil || c < 0 || c > 4 {
		return 0
	}
	return c
}

func (r Request) hasPlatePart() bool {
	return r[KeyPlateProvince] != "" || r[KeyPlateLetter] != "" || r[KeyPlateNumber] != ""
}

// MissingFieldError 必填字段为空
type MissingFieldError struct {
	Key string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Key)
}

// Kind 错误类别
func (e *MissingFieldError) Kind() errorutil.Kind { return errorutil.KindMissingField }

// 车牌颜色编码：蓝 0、黄 1、绿 2、白 3、黑 4
var colorCodes = map[string]int{
	"blue":   0,
	"yellow": 1,
	"green":  2,
	"white":  3,
	"black":  4,
	"蓝":      0,
	"黄":      1,
	"绿":      2,
	"白":      3,
	"黑":      4,
}

// NormalizeColor 颜色名或数字 → 0..4，无法识别时为 0
func NormalizeColor(s string) int {
	s = strings.ToLower(strings.TrimSpace(s))
	if code, ok := colorCodes[strings.TrimSuffix(s, "色")]; ok {
		return code
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 && n <= 4 {
		return n
	}
	return 0
}
