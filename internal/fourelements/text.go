package fourelements

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// 行标签提示
type hint int

const (
	hintNone    hint = iota // 没有标签
	hintUnknown             // 有标签但不认识
	hintName
	hintIDCode
	hintPhone
	hintBankNo
	hintOther // 地址、开户行等非人名字段，跳过
)

var (
	digitTokenRe = regexp.MustCompile(`[0-9]+[Xx]?`)
	phoneRe      = regexp.MustCompile(`^1[3-9]\d{9}$`)
	hanRunRe     = regexp.MustCompile(`\p{Han}+`)
)

var hintKeywords = []struct {
	hint     hint
	keywords []string
}{
	{hintIDCode, []string{"身份证", "证件"}},
	{hintPhone, []string{"手机", "电话", "mobile", "phone"}},
	{hintBankNo, []string{"卡号", "银行卡", "账号", "bank", "card"}},
	{hintName, []string{"姓名", "名字", "户名", "持卡人", "车主", "开户人", "联系人", "申请人", "客户", "name"}},
	{hintOther, []string{"地址", "住址", "开户", "银行名", "有效期", "日期", "性别", "民族", "车牌", "邮箱", "备注"}},
}

func labelHint(label string) hint {
	if label == "" {
		return hintNone
	}
	if key, ok := MatchField(label); ok {
		return keyHint(key)
	}
	lower := strings.ToLower(label)
	for _, hk := range hintKeywords {
		for _, kw := range hk.keywords {
			if strings.Contains(lower, kw) {
				return hk.hint
			}
		}
	}
	return hintUnknown
}

func keyHint(key string) hint {
	switch key {
	case KeyName:
		return hintName
	case KeyIDCode:
		return hintIDCode
	case KeyPhone:
		return hintPhone
	case KeyBankNo:
		return hintBankNo
	}
	return hintUnknown
}

// splitLabel 拆分 "标签: 值"，标签不能含数字且不超过 16 个字符
func splitLabel(line string) (string, string) {
	idx := strings.IndexAny(line, ":：=")
	if idx <= 0 {
		return "", line
	}
	label := strings.TrimSpace(line[:idx])
	if label == "" || utf8.RuneCountInString(label) > 16 || strings.IndexFunc(label, unicode.IsDigit) >= 0 {
		return "", line
	}
	_, size := utf8.DecodeRuneInString(line[idx:])
	return label, strings.TrimSpace(line[idx+size:])
}

var separatorReplacer = strings.NewReplacer(" ", "", "-", "", "　", "", "\t", "")

// parseText 逐行扫描，每类字段第一次命中为准
func parseText(text string) *FourElements {
	sc := newScanner()
	for _, line := range splitLines(text) {
		sc.scan(line)
		if sc.fe.Complete() {
			break
		}
	}
	return sc.finish()
}

// scanner 按行累积四要素
// longName 是超过 4 个字的汉字串截出的前 4 个字，只在整段没有 2~4 字人名时采用
type scanner struct {
	fe       *FourElements
	longName string
}

func newScanner() *scanner {
	return &scanner{fe: &FourElements{}}
}

func (sc *scanner) finish() *FourElements {
	if sc.fe.Name == "" && sc.longName != "" {
		sc.fe.Name = sc.longName
	}
	return sc.fe
}

func (sc *scanner) scan(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}

	label, value := splitLabel(line)
	h := labelHint(label)
	if h == hintOther {
		return
	}

	// 带标签的号码允许有空格或短横线分隔
	if h == hintBankNo || h == hintPhone || h == hintIDCode {
		value = separatorReplacer.Replace(value)
	}

	for _, tok := range digitTokenRe.FindAllString(value, -1) {
		classifyDigits(sc.fe, tok, h)
	}

	if h == hintNone || h == hintUnknown || h == hintName {
		sc.scanName(value, h == hintName)
	}
}

func (sc *scanner) scanName(value string, labelled bool) {
	for _, run := range hanRunRe.FindAllString(value, -1) {
		n := utf8.RuneCountInString(run)
		if n < 2 || labelHint(run) != hintUnknown {
			continue
		}
		if n <= 4 {
			sc.fe.setIfEmpty(KeyName, run)
			return
		}
		head := string([]rune(run)[:4])
		if labelled {
			sc.fe.setIfEmpty(KeyName, head)
			return
		}
		if sc.longName == "" {
			sc.longName = head
		}
	}
}

func classifyDigits(fe *FourElements, tok string, h hint) {
	tok = strings.ToUpper(tok)
	n := len(tok)
	endsX := strings.HasSuffix(tok, "X")

	switch {
	case n == 18 && endsX:
		fe.setIfEmpty(KeyIDCode, tok)
	case endsX:
		// 带 X 但不是 18 位，不认
	case n == 18:
		switch {
		case h == hintIDCode:
			fe.setIfEmpty(KeyIDCode, tok)
		case h == hintBankNo:
			fe.setIfEmpty(KeyBankNo, tok)
		case fe.IDCode == "" && looksLikeIDCode(tok):
			fe.setIfEmpty(KeyIDCode, tok)
		default:
			fe.setIfEmpty(KeyBankNo, tok)
		}
	case n == 11 && phoneRe.MatchString(tok):
		fe.setIfEmpty(KeyPhone, tok)
	case n == 13 && strings.HasPrefix(tok, "86") && phoneRe.MatchString(tok[2:]):
		fe.setIfEmpty(KeyPhone, tok[2:])
	case n >= 16 && n <= 19:
		fe.setIfEmpty(KeyBankNo, tok)
	}
}

// looksLikeIDCode 第 7~14 位是否像出生日期
func looksLikeIDCode(tok string) bool {
	year, month, day := tok[6:10], tok[10:12], tok[12:14]
	if year[:2] != "19" && year[:2] != "20" {
		return false
	}
	if month < "01" || month > "12" {
		return false
	}
	return day >= "01" && day <= "31"
}
