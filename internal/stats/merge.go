package stats

import (
	"encoding/json"
	"maps"
	"time"
)

// Archive 按指标保存最近一次的原始载荷，仅用于审计，不具权威性。
type Archive map[Metric]json.RawMessage

// Record 是按日期聚合的统计记录，每个日期至多一条。
// Views 与 Visitors 在对应指标首次写入前保持为 nil，以区分“未采集”与“零流量”。
type Record struct {
	Date      string
	Views     *int64
	Visitors  *int64
	Archive   Archive
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Value 返回指定指标的值以及是否已采集。
func (r Record) Value(metric Metric) (int64, bool) {
	var field *int64
	switch metric {
	case MetricViews:
		field = r.Views
	case MetricVisitors:
		field = r.Visitors
	}
	if field == nil {
		return 0, false
	}
	return *field, true
}

// Merge 根据已有记录（可为 nil）与新事实计算合并后的记录。
// 只覆盖与事实指标对应的字段，另一指标保持不变；同一事实重复合并结果不变，
// 不同指标的合并顺序互不影响。函数不读写存储，也不会修改 existing。
func Merge(existing *Record, fact DailyFact, now time.Time) Record {
	var merged Record
	if existing == nil {
		merged = Record{Date: fact.Date, CreatedAt: now}
	} else {
		merged = *existing
		merged.Views = cloneCount(existing.Views)
		merged.Visitors = cloneCount(existing.Visitors)
		merged.Archive = maps.Clone(existing.Archive)
	}

	count := fact.Count
	switch fact.Metric {
	case MetricViews:
		merged.Views = &count
	case MetricVisitors:
		merged.Visitors = &count
	}

	if merged.Archive == nil {
		merged.Archive = Archive{}
	}
	// 没有原始载荷时写入 null，归档始终对应本次提交。
	source := fact.Source
	if len(source) == 0 {
		source = json.RawMessage("null")
	}
	merged.Archive[fact.Metric] = source
	if merged.CreatedAt.IsZero() {
		merged.CreatedAt = now
	}
	merged.UpdatedAt = now

	return merged
}

// MergeAll 依次合并同一日期的多条事实，后到者覆盖同一指标。
func MergeAll(existing *Record, facts []DailyFact, now time.Time) Record {
	current := existing
	var merged Record
	for _, fact := range facts {
		merged = Merge(current, fact, now)
		current = &merged
	}
	if current == nil {
		return Record{}
	}
	return *current
}

// TouchedMetrics 返回一组事实涉及的指标，按 Metrics 的固定顺序排列。
func TouchedMetrics(facts []DailyFact) []Metric {
	seen := make(map[Metric]bool, len(Metrics))
	for _, fact := range facts {
		seen[fact.Metric] = true
	}
	touched := make([]Metric, 0, len(seen))
	for _, metric := range Metrics {
		if seen[metric] {
			touched = append(touched, metric)
		}
	}
	return touched
}

func cloneCount(v *int64) *int64 {
	if v == nil {
		return nil
	}
	n := *v
	return &n
}

// DateGroup 是同一日期下按载荷顺序排列的事实。
type DateGroup struct {
	Date  string
	Facts []DailyFact
}

// GroupByDate 按日期分组，分组顺序为日期首次出现的顺序，组内保持原有顺序。
func GroupByDate(facts []DailyFact) []DateGroup {
	index := make(map[string]int, len(facts))
	var groups []DateGroup
	for _, fact := range facts {
		i, ok := index[fact.Date]
		if !ok {
			i = len(groups)
			index[fact.Date] = i
			groups = append(groups, DateGroup{Date: fact.Date})
		}
		groups[i].Facts = append(groups[i].Facts, fact)
	}
	return groups
}
