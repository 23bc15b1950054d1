package stats

import (
	"bytes"
	"encoding/json"
	"fmt"
)

var (
	// wrapperKeys 是抓取结果外层常见的包装字段，按顺序逐层剥离。
	wrapperKeys = []string{"result", "data"}
	// batchKeys 是按日列表可能出现的字段名。
	batchKeys = []string{"stat", "stats", "list", "items", "dailyStats", "days", "rows"}
	// nestedKeys 是单日对象中可能再嵌套一层的字段名。
	nestedKeys = []string{"stat", "summary", "data"}

	dateAliases = []string{"statDate", "date", "day", "statDay", "dt"}

	countAliases = map[Metric][]string{
		MetricViews:    {"pageViewCount", "pv", "viewCount", "views", "pageViews"},
		MetricVisitors: {"visitorCount", "uv", "visitCount", "visitors", "uniqueVisitors"},
	}
	genericCountAliases = []string{"value", "count", "cnt"}
)

const maxUnwrapDepth = 3

// SkipReason 记录批量数据中某一条无法识别的原因。
type SkipReason struct {
	Index  int
	Reason string
}

// NormalizeResult 汇总一次规整的结果：提取出的事实与跳过的条目数。
type NormalizeResult struct {
	Facts   []DailyFact
	Skipped int
	Reasons []SkipReason
	// Batch 表示载荷是按日列表形式。
	Batch bool
}

func (r *NormalizeResult) skip(index int, err error) {
	r.Skipped++
	r.Reasons = append(r.Reasons, SkipReason{Index: index, Reason: err.Error()})
}

// Normalize 从外部页面抓取的任意结构 JSON 中提取规范化的每日事实。
// 单日载荷最多产生一条事实；按日列表逐条处理，失败的条目单独跳过，不影响其余条目。
// 无法识别的结构不会返回错误，而是计入 Skipped。
func Normalize(metric Metric, raw []byte) NormalizeResult {
	var result NormalizeResult

	if _, ok := countAliases[metric]; !ok {
		result.skip(0, fmt.Errorf("unknown metric %q", metric))
		return result
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var root any
	if err := dec.Decode(&root); err != nil {
		result.skip(0, fmt.Errorf("invalid json: %w", err))
		return result
	}

	entries, batch := locateEntries(root)
	result.Batch = batch
	for i, entry := range entries {
		fact, err := extractFact(metric, entry)
		if err != nil {
			result.skip(i, err)
			continue
		}
		if !batch {
			fact.Source = compactSource(raw, fact.Source)
		}
		result.Facts = append(result.Facts, fact)
	}

	return result
}

func locateEntries(root any) ([]any, bool) {
	node := unwrap(root)
	if list, ok := node.([]any); ok {
		return list, true
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return []any{node}, false
	}
	for _, key := range batchKeys {
		if list, ok := obj[key].([]any); ok {
			return list, true
		}
	}
	return []any{obj}, false
}

func unwrap(node any) any {
	for depth := 0; depth < maxUnwrapDepth; depth++ {
		obj, ok := node.(map[string]any)
		if !ok || hasAny(obj, dateAliases) {
			return node
		}

		var next any
		for _, key := range wrapperKeys {
			switch inner := obj[key].(type) {
			case map[string]any, []any:
				next = inner
			}
			if next != nil {
				break
			}
		}
		if next == nil {
			return node
		}
		node = next
	}
	return node
}

func extractFact(metric Metric, entry any) (DailyFact, error) {
	obj, ok := entry.(map[string]any)
	if !ok {
		return DailyFact{}, fmt.Errorf("entry is %T, not an object", entry)
	}

	rawDate, found := lookup(obj, dateAliases)
	if !found {
		return DailyFact{}, errDateMissing
	}
	date, err := dateFromValue(rawDate)
	if err != nil {
		return DailyFact{}, err
	}

	rawCount, found := lookup(obj, countAliases[metric])
	if !found {
		rawCount, found = lookup(obj, genericCountAliases)
	}
	if !found {
		return DailyFact{}, errCountMissing
	}
	count, err := countFromValue(rawCount)
	if err != nil {
		return DailyFact{}, err
	}

	source, err := json.Marshal(obj)
	if err != nil {
		return DailyFact{}, fmt.Errorf("encode source: %w", err)
	}

	return DailyFact{Date: date, Metric: metric, Count: count, Source: source}, nil
}

// lookup 依次在对象本身及其一层嵌套对象中查找别名，空值视为缺失。
func lookup(obj map[string]any, aliases []string) (any, bool) {
	for _, key := range aliases {
		if v, ok := obj[key]; ok && v != nil {
			return v, true
		}
	}
	for _, nested := range nestedKeys {
		inner, ok := obj[nested].(map[string]any)
		if !ok {
			continue
		}
		for _, key := range aliases {
			if v, ok := inner[key]; ok && v != nil {
				return v, true
			}
		}
	}
	return nil, false
}

func hasAny(obj map[string]any, keys []string) bool {
	_, found := lookup(obj, keys)
	return found
}

func compactSource(raw []byte, fallback json.RawMessage) json.RawMessage {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return fallback
	}
	return json.RawMessage(buf.Bytes())
}
