package fourelements

import (
	"bytes"

	"github.com/xuri/excelize/v2"
)

// parseTableFile 读取 xlsx 第一个工作表
func parseTableFile(name string, data []byte) (*FourElements, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Path: name, Reason: "open workbook", Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, &ParseError{Path: name, Reason: "workbook has no sheet"}
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, &ParseError{Path: name, Reason: "read rows", Err: err}
	}
	return parseRows(rows), nil
}
