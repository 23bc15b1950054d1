package stats

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// DateLayout 是日期的规范格式。
const DateLayout = "2006-01-02"

var (
	errDateMissing   = errors.New("date field not found")
	errDateFormat    = errors.New("unrecognized date format")
	errCountMissing  = errors.New("count field not found")
	errCountNumeric  = errors.New("count is not numeric")
	errCountNegative = errors.New("count is negative")
)

// NormalizeDate 将 YYYY-MM-DD 或 8 位 YYYYMMDD 转为规范日期，其余格式一律不识别。
func NormalizeDate(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	switch {
	case len(value) == 10 && value[4] == '-' && value[7] == '-':
	case len(value) == 8 && isDigits(value):
		value = value[:4] + "-" + value[4:6] + "-" + value[6:]
	default:
		return "", fmt.Errorf("%w: %q", errDateFormat, raw)
	}

	// 02-30 之类不存在的日期同样视为不识别。
	if _, err := time.Parse(DateLayout, value); err != nil {
		return "", fmt.Errorf("%w: %q", errDateFormat, raw)
	}
	return value, nil
}

// ParseCount 解析数值字段：接受非负整数或带千分位逗号的字符串，全角数字会先折叠为半角。
func ParseCount(raw string) (int64, error) {
	value := strings.TrimSpace(width.Narrow.String(raw))
	value = strings.ReplaceAll(value, ",", "")
	if value == "" {
		return 0, errCountNumeric
	}

	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errCountNumeric, raw)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: %d", errCountNegative, n)
	}
	return n, nil
}

// DecodeDate 解析 JSON 字段中的日期，字符串或 8 位数字均可。
func DecodeDate(raw json.RawMessage) (string, error) {
	v, err := decodeScalar(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errDateFormat, err)
	}
	if v == nil {
		return "", errDateMissing
	}
	return dateFromValue(v)
}

// DecodeCount 解析 JSON 字段中的计数，数字或带千分位的字符串均可。
func DecodeCount(raw json.RawMessage) (int64, error) {
	v, err := decodeScalar(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errCountNumeric, err)
	}
	if v == nil {
		return 0, errCountMissing
	}
	return countFromValue(v)
}

func decodeScalar(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func dateFromValue(v any) (string, error) {
	switch typed := v.(type) {
	case string:
		return NormalizeDate(typed)
	case json.Number:
		return NormalizeDate(typed.String())
	default:
		return "", fmt.Errorf("%w: %T", errDateFormat, v)
	}
}

func countFromValue(v any) (int64, error) {
	switch typed := v.(type) {
	case string:
		return ParseCount(typed)
	case json.Number:
		if n, err := typed.Int64(); err == nil {
			if n < 0 {
				return 0, fmt.Errorf("%w: %d", errCountNegative, n)
			}
			return n, nil
		}
		// 1234.0 这类整数值的浮点写法同样接受。float64 无法精确表示 MaxInt64，上界取 2^63。
		f, err := typed.Float64()
		if err != nil || f != math.Trunc(f) || f >= 1<<63 {
			return 0, fmt.Errorf("%w: %s", errCountNumeric, typed)
		}
		if f < 0 {
			return 0, fmt.Errorf("%w: %s", errCountNegative, typed)
		}
		return int64(f), nil
	default:
		return 0, fmt.Errorf("%w: %T", errCountNumeric, v)
	}
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
