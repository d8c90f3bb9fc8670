package params

import (
	"strconv"
	"unicode/utf8"

	"etcapply/internal/fourelements"
	"etcapply/internal/synth"
)

// Builder 参数构建：固定默认值 + 随机测试数据
type Builder struct {
	fixed map[string]string
	gen   *synth.Generator
}

// NewBuilder 创建 Builder，fixed 来自默认值文件
func NewBuilder(fixed map[string]string, gen *synth.Generator) *Builder {
	if gen == nil {
		gen = synth.Default()
	}
	return &Builder{fixed: fixed, gen: gen}
}

// BuildDefaults 返回每个后台字段都有值的申请参数
// 环境类字段取固定值，个人/车辆标识随机生成（固定值文件里有的不覆盖）
func (b *Builder) BuildDefaults() Request {
	req := make(Request, len(b.fixed)+16)
	for k, v := range b.fixed {
		req[k] = v
	}

	plate := b.gen.RandomPlateNumber()
	contact, contactPhone := b.gen.RandomUrgentContact()
	synthetic := []struct {
		key   string
		value string
	}{
		{KeyPlateProvince, plate.Province},
		{KeyPlateLetter, plate.Letter},
		{KeyPlateNumber, plate.Number},
		{KeyPlateColor, plate.Color},
		{KeyCardHolder, b.gen.RandomName()},
		{KeyIDCode, b.gen.RandomIDNumber()},
		{KeyBindBankPhone, b.gen.RandomPhone()},
		{KeyBindBankNo, b.gen.RandomBankCard()},
		{KeyUrgentContact, contact},
		{KeyUrgentPhone, contactPhone},
		{KeyVIN, b.gen.RandomVIN()},
		{KeyEngineNo, b.gen.RandomEngineNo()},
	}
	for _, s := range synthetic {
		if req[s.key] == "" {
			req[s.key] = s.value
		}
	}

	req[KeyCarNum] = req.PlateParts()
	req[KeyVehicleColor] = strconv.Itoa(NormalizeColor(req[KeyPlateColor]))
	return req
}

// Merge 用户输入逐键覆盖默认值（空值也覆盖），用户给了车牌分段时重建 carNum
func Merge(user, defaults Request) Request {
	out := defaults.Clone()
	for k, v := range user {
		out[k] = v
	}

	if color, ok := user[KeyPlateColor]; ok && color != "" {
		out[KeyVehicleColor] = color
	}
	for _, k := range []string{KeyPlateProvince, KeyPlateLetter, KeyPlateNumber} {
		if _, ok := user[k]; ok {
			out[KeyCarNum] = out.PlateParts()
			break
		}
	}
	return out
}

// ValidateAndComplete 校验必填字段并补全
//  1. carNum 与车牌分段保持一致
//  2. 必填字段检查
//  3. vehicleColor 归一化为 0..4
func ValidateAndComplete(req Request) (Request, error) {
	out := req.Clone()

	// 1. 车牌
	if out.hasPlatePart() {
		out[KeyCarNum] = out.PlateParts()
	} else if carNum := out[KeyCarNum]; carNum != "" {
		splitCarNum(out, carNum)
	}

	// 2. 必填
	for _, key := range RequiredKeys {
		if out[key] == "" {
			return nil, &MissingFieldError{Key: key}
		}
	}

	// 3. 颜色
	color := out[KeyVehicleColor]
	if color == "" {
		color = out[KeyPlateColor]
	}
	out[KeyVehicleColor] = strconv.Itoa(NormalizeColor(color))

	return out, nil
}

// splitCarNum 从完整车牌拆出省份、字母和号码
func splitCarNum(req Request, carNum string) {
	province, size := utf8.DecodeRuneInString(carNum)
	rest := carNum[size:]
	req[KeyPlateProvince] = string(province)
	if rest == "" {
		return
	}
	letter, size := utf8.DecodeRuneInString(rest)
	req[KeyPlateLetter] = string(letter)
	req[KeyPlateNumber] = rest[size:]
}

// ApplyFourElements 把解析出的四要素写入申请参数，空字段不覆盖
func ApplyFourElements(req Request, fe *fourelements.FourElements) Request {
	out := req.Clone()
	if fe == nil {
		return out
	}
	mapping := map[string]string{
		KeyCardHolder:    fe.Name,
		KeyIDCode:        fe.IDCode,
		KeyBindBankPhone: fe.Phone,
		KeyBindBankNo:    fe.BankNo,
	}
	for k, v := range mapping {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
