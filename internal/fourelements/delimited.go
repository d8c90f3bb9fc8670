package fourelements

import (
	"encoding/csv"
	"strings"
)

var delimiters = []rune{',', '\t', '|', ';'}

// sniffDelimiter 以首个非空行里出现最多的分隔符为准，都没有时按空白切分
func sniffDelimiter(text string) rune {
	var first string
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) != "" {
			first = line
			break
		}
	}

	best, bestCount := ' ', 0
	for _, d := range delimiters {
		if c := strings.Count(first, string(d)); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

func parseDelimited(name, ext, text string) (*FourElements, error) {
	delim := sniffDelimiter(text)
	if ext == ".tsv" && strings.ContainsRune(text, '\t') {
		delim = '\t'
	}

	var rows [][]string
	if delim == ' ' {
		for _, line := range splitLines(text) {
			if fields := strings.Fields(line); len(fields) > 0 {
				rows = append(rows, fields)
			}
		}
	} else {
		r := csv.NewReader(strings.NewReader(text))
		r.Comma = delim
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true

		records, err := r.ReadAll()
		if err != nil {
			return nil, &ParseError{Path: name, Reason: "read delimited rows", Err: err}
		}
		rows = records
	}

	return parseRows(rows), nil
}

// parseRows 表头能映射到两个及以上规范键时按列取第一行数据，否则逐格扫描
func parseRows(rows [][]string) *FourElements {
	rows = dropEmptyRows(rows)
	fe := &FourElements{}
	if len(rows) == 0 {
		return fe
	}

	if columns := headerColumns(rows[0]); len(columns) >= 2 {
		if len(rows) < 2 {
			return fe
		}
		data := rows[1]
		for idx, key := range columns {
			if idx < len(data) {
				fe.setIfEmpty(key, normalizeCell(key, data[idx]))
			}
		}
		return fe
	}

	sc := newScanner()
	for _, row := range rows {
		// "标签,值" 两列形式还原成一行 "标签: 值"
		if h := labelHint(strings.TrimSpace(row[0])); len(row) >= 2 && h != hintNone && h != hintUnknown {
			sc.scan(strings.TrimSpace(row[0]) + ": " + strings.Join(row[1:], " "))
			continue
		}
		for _, cell := range row {
			sc.scan(cell)
		}
	}
	return sc.finish()
}

func headerColumns(header []string) map[int]string {
	columns := make(map[int]string)
	seen := make(map[string]bool)
	for idx, cell := range header {
		key, ok := MatchField(cell)
		if !ok || seen[key] {
			continue
		}
		columns[idx] = key
		seen[key] = true
	}
	return columns
}

func normalizeCell(key, value string) string {
	value = strings.TrimSpace(value)
	if key != KeyName {
		value = strings.ToUpper(separatorReplacer.Replace(value))
	}
	return value
}

func dropEmptyRows(rows [][]string) [][]string {
	out := rows[:0:0]
	for _, row := range rows {
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				out = append(out, row)
				break
			}
		}
	}
	return out
}
