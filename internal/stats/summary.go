package stats

// Summary 汇总一段时间序列，未采集的字段按 0 参与合计，同时单独统计缺失天数。
type Summary struct {
	Days            int     `json:"days"`
	TotalViews      int64   `json:"totalViews"`
	TotalVisitors   int64   `json:"totalVisitors"`
	AverageViews    float64 `json:"averageViews"`
	AverageVisitors float64 `json:"averageVisitors"`
	MissingViews    int     `json:"missingViews"`
	MissingVisitors int     `json:"missingVisitors"`
	PeakViewsDate   string  `json:"peakViewsDate,omitempty"`
	PeakViews       int64   `json:"peakViews"`
}

// Summarize 计算序列汇总。
func Summarize(series []Record) Summary {
	summary := Summary{Days: len(series)}
	for _, record := range series {
		if v, ok := record.Value(MetricViews); ok {
			summary.TotalViews += v
			if summary.PeakViewsDate == "" || v > summary.PeakViews {
				summary.PeakViews = v
				summary.PeakViewsDate = record.Date
			}
		} else {
			summary.MissingViews++
		}
		if v, ok := record.Value(MetricVisitors); ok {
			summary.TotalVisitors += v
		} else {
			summary.MissingVisitors++
		}
	}
	if summary.Days > 0 {
		summary.AverageViews = float64(summary.TotalViews) / float64(summary.Days)
		summary.AverageVisitors = float64(summary.TotalVisitors) / float64(summary.Days)
	}
	return summary
}
