package fourelements

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

func parseStructured(name, ext, text string) (*FourElements, error) {
	var doc interface{}
	if ext == ".json" {
		dec := json.NewDecoder(strings.NewReader(text))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, &ParseError{Path: name, Reason: "decode json", Err: err}
		}
	} else {
		if err := yaml.Unmarshal([]byte(text), &doc); err != nil {
			return nil, &ParseError{Path: name, Reason: "decode yaml", Err: err}
		}
	}

	obj, err := pickObject(doc)
	if err != nil {
		return nil, &ParseError{Path: name, Reason: err.Error()}
	}
	return fromObject(obj), nil
}

// pickObject 单个对象或列表第一个元素
func pickObject(doc interface{}) (map[string]interface{}, error) {
	if list, ok := doc.([]interface{}); ok {
		if len(list) == 0 {
			return nil, fmt.Errorf("empty list")
		}
		doc = list[0]
	}

	switch v := doc.(type) {
	case map[string]interface{}:
		return v, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an object, got %T", doc)
	}
}

func fromObject(obj map[string]interface{}) *FourElements {
	fe := &FourElements{}

	// 忽略大小写匹配时按键名排序，结果稳定
	fields := make([]string, 0, len(obj))
	for k := range obj {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	for _, key := range Keys {
		for _, syn := range FieldMap[key] {
			if v, ok := obj[syn]; ok {
				fe.setIfEmpty(key, normalizeCell(key, coerce(v)))
			}
		}
		for _, field := range fields {
			if matched, ok := MatchField(field); ok && matched == key {
				fe.setIfEmpty(key, normalizeCell(key, coerce(obj[field])))
			}
		}
	}
	return fe
}

func coerce(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case uint64:
		return strconv.FormatUint(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}
