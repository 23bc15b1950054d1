package stats

import (
	"encoding/json"
	"strings"
)

// Metric 表示两类独立到达的流量指标。
type Metric string

const (
	// MetricViews 表示页面浏览量（PV）。
	MetricViews Metric = "views"
	// MetricVisitors 表示访客数（UV）。
	MetricVisitors Metric = "visitors"
)

// Metrics 按固定顺序列出全部已知指标。
var Metrics = []Metric{MetricViews, MetricVisitors}

// ParseMetric 解析请求中声明的指标类型，大小写不敏感并兼容常见别名。
func ParseMetric(raw string) (Metric, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "views", "view", "pageviews", "pv":
		return MetricViews, true
	case "visitors", "visitor", "uv", "visits":
		return MetricVisitors, true
	default:
		return "", false
	}
}

func (m Metric) String() string {
	return string(m)
}

// DailyFact 是从抓取数据中提取出的单条 (日期, 指标, 数值) 观测。
type DailyFact struct {
	Date   string
	Metric Metric
	Count  int64
	// Source 保留原始抓取对象，仅用于审计排查。
	Source json.RawMessage
}
