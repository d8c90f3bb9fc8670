package fourelements

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/simplifiedchinese"

	"etcapply/pkg/errorutil"
)

var zhangSan = FourElements{
	Name:   "张三",
	IDCode: "11010119900307123X",
	Phone:  "13812345678",
	BankNo: "6222021234567890123",
}

func mustParse(t *testing.T, name, content string) *FourElements {
	t.Helper()
	fe, err := ParseBytes(name, []byte(content))
	if err != nil {
		t.Fatalf("ParseBytes(%s): %v", name, err)
	}
	return fe
}

func TestParseText_LabelledLines(t *testing.T) {
	t.Parallel()

	got := mustParse(t, "four.txt", "姓名: 张三\n身份证: 11010119900307123X\n手机: 13812345678\n卡号: 6222021234567890123")
	if diff := cmp.Diff(zhangSan, *got); diff != "" {
		t.Fatalf("four elements mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_OrderAndLabelIndependent(t *testing.T) {
	t.Parallel()

	want := FourElements{Name: "李四", IDCode: "320102198807151234", Phone: "13912345678", BankNo: "6217001234567890"}
	labels := [][]string{
		{"姓名: ", "持卡人：", "Name = ", ""},
		{"身份证号码: ", "证件号：", "id_number=", ""},
		{"手机: ", "联系电话：", "mobile: ", ""},
		{"银行卡号: ", "卡号：", "bankNo=", ""},
	}
	values := []string{want.Name, want.IDCode, want.Phone, want.BankNo}

	for _, perm := range permutations([]int{0, 1, 2, 3}) {
		for variant := 0; variant < 4; variant++ {
			lines := []string{"申请资料如下"}
			for _, field := range perm {
				label := labels[field][(variant+field)%4]
				lines = append(lines, label+values[field])
			}
			content := strings.Join(lines, "\n")

			got := mustParse(t, "four.txt", content)
			if diff := cmp.Diff(want, *got); diff != "" {
				t.Fatalf("input:\n%s\nmismatch (-want +got):\n%s", content, diff)
			}
		}
	}
}

func TestParseText_FirstMatchWins(t *testing.T) {
	t.Parallel()

	got := mustParse(t, "four.txt", "手机: 13812345678\n备用手机: 13900000000\n姓名：张三\n联系人：王五")
	if got.Phone != "13812345678" || got.Name != "张三" {
		t.Fatalf("want first phone/name got=%+v", got)
	}
}

func TestParseText_SpacedCardAndSingleLine(t *testing.T) {
	t.Parallel()

	got := mustParse(t, "four.txt", "银行卡号: 6222 0212 3456 7890 123\n张三 11010119900307123X 13812345678")
	if diff := cmp.Diff(zhangSan, *got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_SkipsAddressLines(t *testing.T) {
	t.Parallel()

	got := mustParse(t, "four.txt", "地址: 北京市朝阳区\n开户行：工商银行\n姓名: 张三")
	if got.Name != "张三" {
		t.Fatalf("name want=张三 got=%q", got.Name)
	}
}

func TestParseText_NameUnderAnyLabel(t *testing.T) {
	t.Parallel()

	rest := "\n身份证: 11010119900307123X\n手机: 13812345678\n卡号: 6222021234567890123"
	for _, label := range []string{"联系人", "申请人", "客户", "开户人", "经办", "Holder"} {
		label := label
		t.Run(label, func(t *testing.T) {
			t.Parallel()
			got := mustParse(t, "four.txt", label+": 张三"+rest)
			if diff := cmp.Diff(zhangSan, *got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseText_LongHanRun(t *testing.T) {
	t.Parallel()

	got := mustParse(t, "four.txt", "张三丰先生\n11010119900307123X\n13812345678")
	if got.Name != "张三丰先" {
		t.Fatalf("name want=张三丰先 got=%q", got.Name)
	}

	// 有正常长度的人名时不用截断的长串
	got = mustParse(t, "four.txt", "申请资料如下\n客户: 王五\n13812345678")
	if got.Name != "王五" {
		t.Fatalf("name want=王五 got=%q", got.Name)
	}
}

func TestParseText_Partial(t *testing.T) {
	t.Parallel()

	got := mustParse(t, "four.txt", "手机号码 13812345678")
	if diff := cmp.Diff(FourElements{Phone: "13812345678"}, *got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestParseText_BOMAndGBK(t *testing.T) {
	t.Parallel()

	content := "姓名: 张三\r\n身份证: 11010119900307123X\r\n手机: 13812345678\r\n卡号: 6222021234567890123\r\n"

	got := mustParse(t, "bom.txt", "\xEF\xBB\xBF"+content)
	if diff := cmp.Diff(zhangSan, *got); diff != "" {
		t.Fatalf("bom mismatch (-want +got):\n%s", diff)
	}

	gbk, err := simplifiedchinese.GBK.NewEncoder().String(content)
	if err != nil {
		t.Fatalf("encode gbk: %v", err)
	}
	got = mustParse(t, "gbk.TXT", gbk)
	if diff := cmp.Diff(zhangSan, *got); diff != "" {
		t.Fatalf("gbk mismatch (-want +got):\n%s", diff)
	}
}

func TestParseDelimited(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		file    string
		content string
	}{
		{"header comma", "a.csv", "姓名,身份证号,手机号,银行卡号\n张三,11010119900307123X,13812345678,6222021234567890123\n李四,320102198807151234,13912345678,6217001234567890"},
		{"header english tsv", "a.tsv", "bank_no\tphone\tidCode\tname\n6222021234567890123\t13812345678\t11010119900307123X\t张三"},
		{"label value pairs", "a.csv", "姓名,张三\n身份证,11010119900307123X\n手机,13812345678\n卡号,6222021234567890123"},
		{"pipe no header", "a.csv", "张三|11010119900307123X|13812345678|6222021234567890123"},
		{"semicolon quoted", "a.csv", "\"张三\";\"11010119900307123X\";\"13812345678\";\"6222021234567890123\""},
		{"space separated", "a.csv", "张三 11010119900307123X 13812345678 6222021234567890123"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mustParse(t, tc.file, tc.content)
			if diff := cmp.Diff(zhangSan, *got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseStructured(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		file    string
		content string
	}{
		{"json object", "a.json", `{"idNumber": "11010119900307123X", "姓名": "张三", "mobile": 13812345678, "bankCard": "6222 0212 3456 7890 123"}`},
		{"json list", "a.JSON", `[{"name": "张三", "id_code": "11010119900307123X", "phone": "13812345678", "bank_no": "6222021234567890123"}, {"name": "李四"}]`},
		{"json case-insensitive", "a.json", `{"NAME": "张三", "IDCODE": "11010119900307123x", "Phone": "13812345678", "BANKNO": 6222021234567890123}`},
		{"yaml", "a.yaml", "name: 张三\nid_code: 11010119900307123X\nphone: 13812345678\nbank_no: 6222021234567890123\n"},
		{"yml list", "a.yml", "- 身份证号: 11010119900307123X\n  手机号: \"13812345678\"\n  卡号: \"6222021234567890123\"\n  车主: 张三\n"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mustParse(t, tc.file, tc.content)
			if diff := cmp.Diff(zhangSan, *got); diff != "" {
				t.Fatalf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseStructured_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"a.json": `{"name": `,
		"b.json": `[]`,
		"c.json": `"just a string"`,
		"d.yaml": "- 1\n- 2\n",
		"e.yml":  "name: [unclosed\n",
		"f.json": `[1, 2]`,
	}
	for file, content := range cases {
		_, err := ParseBytes(file, []byte(content))
		var perr *ParseError
		if !errors.As(err, &perr) {
			t.Fatalf("%s: want ParseError got=%v", file, err)
		}
		if kind := errorutil.KindOf(err); kind != errorutil.KindParse {
			t.Fatalf("%s: kind want=%s got=%s", file, errorutil.KindParse, kind)
		}
	}
}

func TestParseTable_XLSX(t *testing.T) {
	t.Parallel()

	f := excelize.NewFile()
	rows := [][]interface{}{
		{"姓名", "身份证号", "手机号", "银行卡号"},
		{"张三", "11010119900307123X", "13812345678", "6222021234567890123"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatalf("set row: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("write workbook: %v", err)
	}

	got := mustParse(t, "four.xlsx", buf.String())
	if diff := cmp.Diff(zhangSan, *got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseBytes("broken.xlsx", []byte("not a zip")); !errorutil.Is(err, errorutil.KindParse) {
		t.Fatalf("broken workbook want ParseError got=%v", err)
	}
}

func TestParseFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "four.txt")
	if err := os.WriteFile(path, []byte("姓名: 张三\n身份证: 11010119900307123X\n手机: 13812345678\n卡号: 6222021234567890123"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if diff := cmp.Diff(zhangSan, *got); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseFile(filepath.Join(dir, "missing.txt")); !errorutil.Is(err, errorutil.KindParse) {
		t.Fatalf("missing file want ParseError got=%v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"four.docx", "four", "four.pdf"} {
		_, err := ParseFile(name)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Fatalf("%s: want ErrUnsupportedFormat got=%v", name, err)
		}
		if kind := errorutil.KindOf(err); kind != errorutil.KindUnsupportedFormat {
			t.Fatalf("%s: kind want=%s got=%s", name, errorutil.KindUnsupportedFormat, kind)
		}
	}
}

func TestMatchField(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"id_code":  KeyIDCode,
		"idNumber": KeyIDCode,
		"身份证号":     KeyIDCode,
		"IDNUMBER": KeyIDCode,
		"手机号码":     KeyPhone,
		"卡号":       KeyBankNo,
		"姓名":       KeyName,
	}
	for field, want := range cases {
		got, ok := MatchField(field)
		if !ok || got != want {
			t.Fatalf("MatchField(%q) want=%s got=%s ok=%v", field, want, got, ok)
		}
	}
	if _, ok := MatchField("地址"); ok {
		t.Fatalf("地址 should not match")
	}
}

func permutations(in []int) [][]int {
	if len(in) <= 1 {
		return [][]int{append([]int(nil), in...)}
	}
	var out [][]int
	for i := range in {
		rest := make([]int, 0, len(in)-1)
		rest = append(rest, in[:i]...)
		rest = append(rest, in[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]int{in[i]}, p...))
		}
	}
	return out
}
