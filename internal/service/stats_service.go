package service

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/blogpulse/internal/db"
	"github.com/blogpulse/internal/notify"
	"github.com/blogpulse/internal/observability"
	"github.com/blogpulse/internal/stats"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	defaultStorageTimeout = 10 * time.Second
	// DefaultSeriesLimit 是序列读取的默认天数。
	DefaultSeriesLimit = 30
	maxSeriesLimit     = 365
)

var metricColumns = map[stats.Metric]string{
	stats.MetricViews:    "views",
	stats.MetricVisitors: "visitors",
}

// CanonicalStat 是已规范化的单日提交，两个指标同时给出。
type CanonicalStat struct {
	Date     string
	Views    int64
	Visitors int64
	RawData  json.RawMessage
}

// IngestResult 描述一次写入的结果。
type IngestResult struct {
	Facts    int
	Dates    []string
	Skipped  int
	Failures []*StorageError
}

// Err 在存在失败日期时返回合并后的错误。
func (r IngestResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, failure := range r.Failures {
		errs[i] = failure
	}
	return errors.Join(errs...)
}

// FailedDates 返回写入失败的日期。
func (r IngestResult) FailedDates() []string {
	dates := make([]string, len(r.Failures))
	for i, failure := range r.Failures {
		dates[i] = failure.Date
	}
	return dates
}

// StatsService 负责每日统计的规整、合并写入与序列读取。
type StatsService struct {
	db        *gorm.DB
	clock     clockwork.Clock
	publisher notify.Publisher
	metrics   *observability.Metrics
	logger    zerolog.Logger
	timeout   time.Duration
}

// NewStatsService 创建 StatsService，默认使用真实时钟、不发布事件、存储超时 10 秒。
func NewStatsService(gdb *gorm.DB) *StatsService {
	return &StatsService{
		db:        gdb,
		clock:     clockwork.NewRealClock(),
		publisher: notify.NoopPublisher{},
		logger:    zerolog.Nop(),
		timeout:   defaultStorageTimeout,
	}
}

// WithClock 替换时间源，主要用于测试。
func (s *StatsService) WithClock(c clockwork.Clock) *StatsService {
	if c != nil {
		s.clock = c
	}
	return s
}

// WithPublisher 设置记录变更事件的发布者。
func (s *StatsService) WithPublisher(p notify.Publisher) *StatsService {
	if p != nil {
		s.publisher = p
	}
	return s
}

// WithMetrics 设置指标收集器。
func (s *StatsService) WithMetrics(m *observability.Metrics) *StatsService {
	s.metrics = m
	return s
}

// WithLogger 设置日志记录器。
func (s *StatsService) WithLogger(l zerolog.Logger) *StatsService {
	s.logger = l
	return s
}

// WithTimeout 调整单个日期写入与序列读取的超时时间。
func (s *StatsService) WithTimeout(d time.Duration) *StatsService {
	if d > 0 {
		s.timeout = d
	}
	return s
}

// IngestPayload 规整抓取载荷并逐日写入。无法识别的条目只计入 Skipped。
func (s *StatsService) IngestPayload(ctx context.Context, metric stats.Metric, raw json.RawMessage) IngestResult {
	normalized := stats.Normalize(metric, raw)
	for _, reason := range normalized.Reasons {
		s.logger.Warn().
			Str("metric", metric.String()).
			Int("entry", reason.Index).
			Str("reason", reason.Reason).
			Msg("skipped unrecognized stats entry")
	}
	if s.metrics != nil && normalized.Skipped > 0 {
		s.metrics.EntriesSkipped.WithLabelValues(metric.String()).Add(float64(normalized.Skipped))
	}

	result := s.IngestFacts(ctx, normalized.Facts)
	result.Skipped = normalized.Skipped
	return result
}

// IngestCanonical 写入已规范化的单日提交，两个指标在同一事务中合并。
func (s *StatsService) IngestCanonical(ctx context.Context, stat CanonicalStat) IngestResult {
	facts := []stats.DailyFact{
		{Date: stat.Date, Metric: stats.MetricViews, Count: stat.Views, Source: stat.RawData},
		{Date: stat.Date, Metric: stats.MetricVisitors, Count: stat.Visitors, Source: stat.RawData},
	}
	return s.IngestFacts(ctx, facts)
}

// IngestFacts 按日期分组写入事实，每个日期一个事务、一次 upsert。
// 某个日期写入失败不会影响其余日期，失败记录在结果的 Failures 中。
func (s *StatsService) IngestFacts(ctx context.Context, facts []stats.DailyFact) IngestResult {
	result := IngestResult{Facts: len(facts)}
	var written []stats.Record

	for _, group := range stats.GroupByDate(facts) {
		record, err := s.writeDate(ctx, group)
		if err != nil {
			storageErr := &StorageError{Date: group.Date, Err: err}
			result.Failures = append(result.Failures, storageErr)
			s.logger.Error().Err(err).Str("date", group.Date).Msg("failed to store daily stats")
			s.countWrite("error")
			continue
		}
		result.Dates = append(result.Dates, group.Date)
		written = append(written, record)
		s.countWrite("success")
		if s.metrics != nil {
			for _, fact := range group.Facts {
				s.metrics.FactsIngested.WithLabelValues(fact.Metric.String()).Inc()
			}
		}
	}

	if len(written) > 0 {
		if err := s.publisher.PublishRecords(ctx, written); err != nil {
			s.logger.Warn().Err(err).Int("records", len(written)).Msg("failed to publish record updates")
		}
	}

	return result
}

func (s *StatsService) writeDate(ctx context.Context, group stats.DateGroup) (stats.Record, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	now := s.clock.Now().UTC()
	var merged stats.Record

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []db.BlogStat
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("date = ?", group.Date).
			Limit(1).
			Find(&rows).Error; err != nil {
			return err
		}

		var existing *stats.Record
		if len(rows) == 1 {
			record := toRecord(rows[0])
			existing = &record
		}

		merged = stats.MergeAll(existing, group.Facts, now)
		row, err := fromRecord(merged)
		if err != nil {
			return err
		}

		columns := []string{"raw_payload_archive", "updated_at"}
		for _, metric := range stats.TouchedMetrics(group.Facts) {
			columns = append(columns, metricColumns[metric])
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "date"}},
			DoUpdates: clause.AssignmentColumns(columns),
		}).Create(&row).Error
	})
	if err != nil {
		return stats.Record{}, err
	}
	return merged, nil
}

// RecentStats 返回最近 limit 天的记录，按日期升序排列。
func (s *StatsService) RecentStats(ctx context.Context, limit int) ([]stats.Record, error) {
	limit = ClampSeriesLimit(limit)

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var rows []db.BlogStat
	if err := s.db.WithContext(ctx).
		Order("date DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	records := make([]stats.Record, len(rows))
	for i := range rows {
		records[i] = toRecord(rows[i])
	}
	slices.Reverse(records)
	return records, nil
}

// Summary 返回最近 limit 天的汇总。
func (s *StatsService) Summary(ctx context.Context, limit int) ([]stats.Record, stats.Summary, error) {
	series, err := s.RecentStats(ctx, limit)
	if err != nil {
		return nil, stats.Summary{}, err
	}
	return series, stats.Summarize(series), nil
}

// ClampSeriesLimit 将天数限制在 1..365，非正数回退为默认值。
func ClampSeriesLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultSeriesLimit
	case limit > maxSeriesLimit:
		return maxSeriesLimit
	default:
		return limit
	}
}

func (s *StatsService) countWrite(outcome string) {
	if s.metrics != nil {
		s.metrics.DateWrites.WithLabelValues(outcome).Inc()
	}
}

func toRecord(row db.BlogStat) stats.Record {
	record := stats.Record{
		Date:      row.Date,
		Views:     row.Views,
		Visitors:  row.Visitors,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if len(row.RawPayloadArchive) > 0 {
		var archive stats.Archive
		// 历史数据可能不是按指标存放，解析失败时从空归档开始。
		if err := json.Unmarshal(row.RawPayloadArchive, &archive); err == nil {
			record.Archive = archive
		}
	}
	return record
}

func fromRecord(record stats.Record) (db.BlogStat, error) {
	archive := record.Archive
	if archive == nil {
		archive = stats.Archive{}
	}
	raw, err := json.Marshal(archive)
	if err != nil {
		return db.BlogStat{}, err
	}
	return db.BlogStat{
		Date:              record.Date,
		Views:             record.Views,
		Visitors:          record.Visitors,
		RawPayloadArchive: raw,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
	}, nil
}
