package fourelements

import (
	"errors"
	"fmt"
	"strings"

	"etcapply/pkg/errorutil"
)

// 四要素规范键
const (
	KeyName   = "name"
	KeyIDCode = "id_code"
	KeyPhone  = "phone"
	KeyBankNo = "bank_no"
)

// Keys 规范键，按匹配优先级排列
var Keys = []string{KeyName, KeyIDCode, KeyPhone, KeyBankNo}

// FieldMap 规范键 → 源字段同义词（按顺序匹配，先到先得）
var FieldMap = map[string][]string{
	KeyName: {
		"name", "姓名", "名字", "户名", "持卡人", "持卡人姓名", "车主", "车主姓名",
		"cardHolder", "card_holder", "holder", "owner",
	},
	KeyIDCode: {
		"id_code", "idCode", "id_number", "idNumber", "id_card", "idCard", "idNo", "id_no",
		"身份证", "身份证号", "身份证号码", "证件号", "证件号码",
	},
	KeyPhone: {
		"phone", "mobile", "tel", "phone_number", "phoneNumber", "bindBankPhone",
		"手机", "手机号", "手机号码", "电话", "联系电话", "预留手机号",
	},
	KeyBankNo: {
		"bank_no", "bankNo", "bank_card", "bankCard", "card_no", "cardNo", "bindBankNo",
		"银行卡", "银行卡号", "卡号", "账号",
	},
}

// FourElements 四要素，解析不到的字段留空
type FourElements struct {
	Name   string `json:"name,omitempty"`
	IDCode string `json:"id_code,omitempty"`
	Phone  string `json:"phone,omitempty"`
	BankNo string `json:"bank_no,omitempty"`
}

// Get 按规范键取值
func (fe *FourElements) Get(key string) string {
	switch key {
	case KeyName:
		return fe.Name
	case KeyIDCode:
		return fe.IDCode
	case KeyPhone:
		return fe.Phone
	case KeyBankNo:
		return fe.BankNo
	}
	return ""
}

// setIfEmpty 先到先得
func (fe *FourElements) setIfEmpty(key, value string) {
	if value == "" || fe.Get(key) != "" {
		return
	}
	switch key {
	case KeyName:
		fe.Name = value
	case KeyIDCode:
		fe.IDCode = value
	case KeyPhone:
		fe.Phone = value
	case KeyBankNo:
		fe.BankNo = value
	}
}

// Complete 四个字段是否都有值
func (fe *FourElements) Complete() bool {
	return fe.Name != "" && fe.IDCode != "" && fe.Phone != "" && fe.BankNo != ""
}

// Map 转成规范键 map，空值不输出
func (fe *FourElements) Map() map[string]string {
	out := make(map[string]string, len(Keys))
	for _, k := range Keys {
		if v := fe.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}

// MatchField 把源字段名映射到规范键，先精确匹配再忽略大小写
func MatchField(field string) (string, bool) {
	field = strings.TrimSpace(field)
	if field == "" {
		return "", false
	}
	for _, key := range Keys {
		for _, syn := range FieldMap[key] {
			if field == syn {
				return key, true
			}
		}
	}
	for _, key := range Keys {
		for _, syn := range FieldMap[key] {
			if strings.EqualFold(field, syn) {
				return key, true
			}
		}
	}
	return "", false
}

// ErrUnsupportedFormat 不支持的文件类型
var ErrUnsupportedFormat = errors.New("unsupported format")

// UnsupportedFormatError 带扩展名的不支持类型错误
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q: %s", e.Ext, e.Path)
}

// Is 支持 errors.Is(err, ErrUnsupportedFormat)
func (e *UnsupportedFormatError) Is(target error) bool {
	return target == ErrUnsupportedFormat
}

// Kind 错误类别
func (e *UnsupportedFormatError) Kind() errorutil.Kind { return errorutil.KindUnsupportedFormat }

// ParseError 文件内容无法解析
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %s failed: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("parse %s failed: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Kind 错误类别
func (e *ParseError) Kind() errorutil.Kind { return errorutil.KindParse }
