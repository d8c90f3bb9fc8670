package synth

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"etcapply/pkg/idgen"
)

const (
	provinces     = "京津沪渝冀豫云辽黑湘皖鲁新苏浙赣鄂桂甘晋蒙陕吉闽贵粤青藏川宁琼"
	plateLetters  = "ABCDEFGHJKLMNPQRSTUVWXYZ" // 不含 I、O
	plateAlnum    = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"
	vinAlphabet   = "ABCDEFGHJKLMNPRSTUVWXYZ0123456789" // 不含 I、O、Q
	hexUpper      = "0123456789ABCDEF"
	surnames      = "王李张刘陈杨黄赵吴周徐孙马朱胡郭何高林罗郑梁谢宋唐许韩冯邓曹彭曾肖田董袁潘于蒋蔡余杜叶程苏魏吕丁任沈姚卢姜崔钟谭陆汪范金石廖贾夏韦付方白邹孟熊秦邱江尹薛闫段雷侯龙史陶黎贺顾毛郝龚邵万钱严覃武戴莫孔向汤"
	givenNameRune = "伟芳娜敏静丽强磊军洋勇艳杰娟涛明超秀霞平刚桂英华玉兰萍红建文辉力宁国庆志鹏飞斌浩宇轩梓涵欣怡子豪俊博文昊然晨阳思远嘉琪雨婷"
)

// 车牌颜色
var plateColors = []string{"blue", "yellow", "green", "white", "black"}

// 身份证前 6 位行政区划
var regionCodes = []string{
	"110101", "110105", "120101", "310101", "310115", "320102", "320106", "320205",
	"330102", "330106", "340102", "370102", "420102", "440103", "440305", "500103",
	"510104", "610102",
}

var idWeights = []int{7, 9, 10, 5, 8, 4, 2, 1, 6, 3, 7, 9, 10, 5, 8, 4, 2}

const idCheckChars = "10X98765432"

// Plate 随机车牌
type Plate struct {
	Province string
	Letter   string
	Number   string
	Color    string
}

// PlateNumber 完整车牌
func (p Plate) PlateNumber() string {
	return p.Province + p.Letter + p.Number
}

// Generator 测试数据生成器，并发安全
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
	ids *idgen.SnowflakeIDGenerator
	now func() time.Time
}

// NewGenerator 创建生成器，seed 相同则输出相同（雪花 ID 除外）
func NewGenerator(seed int64) *Generator {
	return &Generator{
		rng: rand.New(rand.NewSource(seed)),
		ids: idgen.NewSnowflakeIDGenerator(3),
		now: time.Now,
	}
}

var defaultGenerator = NewGenerator(time.Now().UnixNano())

// Default 进程级默认生成器
func Default() *Generator {
	return defaultGenerator
}

func (g *Generator) intn(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Intn(n)
}

func (g *Generator) pick(alphabet string) string {
	runes := []rune(alphabet)
	return string(runes[g.intn(len(runes))])
}

func (g *Generator) digits(n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + g.intn(10)))
	}
	return b.String()
}

func (g *Generator) fromAlphabet(alphabet string, n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString(g.pick(alphabet))
	}
	return b.String()
}

// RandomPlateNumber 省份简称 + 字母 + 5 位字母数字
func (g *Generator) RandomPlateNumber() Plate {
	return Plate{
		Province: g.pick(provinces),
		Letter:   g.pick(plateLetters),
		Number:   g.fromAlphabet(plateAlnum, 5),
		Color:    plateColors[g.intn(len(plateColors))],
	}
}

// RandomName 2~4 个汉字
func (g *Generator) RandomName() string {
	n := 1 + g.intn(3)
	return g.pick(surnames) + g.fromAlphabet(givenNameRune, n)
}

// RandomIDNumber 18 位身份证号，末位按 GB 11643 计算校验码
func (g *Generator) RandomIDNumber() string {
	region := regionCodes[g.intn(len(regionCodes))]
	birth := time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, g.intn(44*365))
	body := region + birth.Format("20060102") + g.digits(3)
	return body + string(IDCheckDigit(body))
}

// IDCheckDigit 身份证前 17 位的校验码
func IDCheckDigit(body string) byte {
	sum := 0
	for i := 0; i < 17 && i < len(body); i++ {
		sum += int(body[i]-'0') * idWeights[i]
	}
	return idCheckChars[sum%11]
}

// RandomPhone 1[3-9] 开头的 11 位手机号
func (g *Generator) RandomPhone() string {
	return "1" + strconv.Itoa(3+g.intn(7)) + g.digits(9)
}

// RandomBankCard 62 开头、16~19 位、末位 Luhn 校验
func (g *Generator) RandomBankCard() string {
	length := 16 + g.intn(4)
	body := "62" + g.digits(length-3)
	return body + string(LuhnCheckDigit(body))
}

// LuhnCheckDigit 计算 Luhn 校验位
func LuhnCheckDigit(body string) byte {
	sum := 0
	double := true
	for i := len(body) - 1; i >= 0; i-- {
		d := int(body[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return byte('0' + (10-sum%10)%10)
}

// LuhnValid 校验整串卡号
func LuhnValid(card string) bool {
	if len(card) < 2 {
		return false
	}
	return LuhnCheckDigit(card[:len(card)-1]) == card[len(card)-1]
}

// RandomETCNumber 622 开头的 19 位 ETC 卡号
func (g *Generator) RandomETCNumber() string {
	return "622" + g.digits(16)
}

// RandomOBNNumber 9000 开头的 20 位 OBU 号
func (g *Generator) RandomOBNNumber() string {
	return "9000" + g.digits(16)
}

// RandomDeviceID 16 位大写十六进制设备号
func (g *Generator) RandomDeviceID() string {
	return g.fromAlphabet(hexUpper, 16)
}

// RandomOrderID ETC + 时间戳 + 6 位随机数
func (g *Generator) RandomOrderID() string {
	return "ETC" + g.now().Format("20060102150405") + g.digits(6)
}

// RandomSnowflakeID 进程内单调递增的雪花 ID
func (g *Generator) RandomSnowflakeID() string {
	return g.ids.NextString()
}

// RandomVIN 17 位车架号，第 9 位为 ISO 3779 校验位
func (g *Generator) RandomVIN() string {
	vin := []byte(g.fromAlphabet(vinAlphabet, 17))
	vin[8] = VINCheckDigit(string(vin))
	return string(vin)
}

var vinWeights = []int{8, 7, 6, 5, 4, 3, 2, 10, 0, 9, 8, 7, 6, 5, 4, 3, 2}

func vinValue(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'H':
		return int(c-'A') + 1
	case c >= 'J' && c <= 'N':
		return int(c-'J') + 1
	case c == 'P':
		return 7
	case c == 'R':
		return 9
	case c >= 'S' && c <= 'Z':
		return int(c-'S') + 2
	default:
		return 0
	}
}

// VINCheckDigit 计算车架号校验位（第 9 位）
func VINCheckDigit(vin string) byte {
	sum := 0
	for i := 0; i < 17 && i < len(vin); i++ {
		sum += vinValue(vin[i]) * vinWeights[i]
	}
	r := sum % 11
	if r == 10 {
		return 'X'
	}
	return byte('0' + r)
}

// RandomEngineNo 发动机号：2 位字母 + 8 位数字
func (g *Generator) RandomEngineNo() string {
	return g.fromAlphabet(plateLetters, 2) + g.digits(8)
}

// RandomUrgentContact 紧急联系人（姓名 + 手机号）
func (g *Generator) RandomUrgentContact() (string, string) {
	return g.RandomName(), g.RandomPhone()
}

// Sample 生成一组样例，CLI 打印用
func (g *Generator) Sample() map[string]string {
	plate := g.RandomPlateNumber()
	return map[string]string{
		"plate":     plate.PlateNumber(),
		"color":     plate.Color,
		"name":      g.RandomName(),
		"id_code":   g.RandomIDNumber(),
		"phone":     g.RandomPhone(),
		"bank_no":   g.RandomBankCard(),
		"vin":       g.RandomVIN(),
		"engine_no": g.RandomEngineNo(),
		"etc_no":    g.RandomETCNumber(),
		"obu_no":    g.RandomOBNNumber(),
		"device_id": g.RandomDeviceID(),
		"order_id":  g.RandomOrderID(),
		"snowflake": g.RandomSnowflakeID(),
	}
}

// SampleKeys Sample 的键，按展示顺序
var SampleKeys = []string{
	"plate", "color", "name", "id_code", "phone", "bank_no", "vin",
	"engine_no", "etc_no", "obu_no", "device_id", "order_id", "snowflake",
}

func (p Plate) String() string {
	return fmt.Sprintf("%s(%s)", p.PlateNumber(), p.Color)
}
