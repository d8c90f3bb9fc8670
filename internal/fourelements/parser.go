package fourelements

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// 文件格式
type format int

const (
	formatText format = iota
	formatDelimited
	formatStructured
	formatTable
)

var formats = map[string]format{
	".txt":  formatText,
	".csv":  formatDelimited,
	".tsv":  formatDelimited,
	".json": formatStructured,
	".yaml": formatStructured,
	".yml":  formatStructured,
	".xlsx": formatTable,
}

// Supported 是否支持该文件（按扩展名，不区分大小写）
func Supported(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// ParseFile 解析拖入的文件，提取四要素
func ParseFile(path string) (*FourElements, error) {
	if !Supported(path) {
		return nil, &UnsupportedFormatError{Path: path, Ext: filepath.Ext(path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Reason: "read file", Err: err}
	}
	return ParseBytes(path, data)
}

// ParseBytes 解析内存中的文件内容，name 只用来判断格式
func ParseBytes(name string, data []byte) (*FourElements, error) {
	ext := strings.ToLower(filepath.Ext(name))
	f, ok := formats[ext]
	if !ok {
		return nil, &UnsupportedFormatError{Path: name, Ext: filepath.Ext(name)}
	}

	// xlsx 是 zip 包，不做文本解码
	if f == formatTable {
		return parseTableFile(name, data)
	}

	text, err := decodeText(data)
	if err != nil {
		return nil, &ParseError{Path: name, Reason: "decode text", Err: err}
	}

	switch f {
	case formatDelimited:
		return parseDelimited(name, ext, text)
	case formatStructured:
		return parseStructured(name, ext, text)
	default:
		return parseText(text), nil
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText 去掉 BOM，非 UTF-8 按 GBK 解码（Windows 下导出的文件常见）
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), nil
	}

	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(data), simplifiedchinese.GBK.NewDecoder()))
	if err != nil {
		return "", err
	}
	return string(decoded), nil
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return strings.Split(text, "\n")
}
